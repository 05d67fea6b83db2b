package entry_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-entry-gate/internal/adapters/memory"
	"github.com/robertarktes/ticket-entry-gate/internal/clock"
	"github.com/robertarktes/ticket-entry-gate/internal/domain"
	"github.com/robertarktes/ticket-entry-gate/internal/entry"
	"github.com/robertarktes/ticket-entry-gate/internal/token"
)

var (
	eventStart = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	eventEnd   = time.Date(2025, 10, 1, 18, 0, 0, 0, time.UTC)
)

type fakeImages struct{}

func (fakeImages) Render(content string) (string, error) {
	return "img:" + content, nil
}

type fixture struct {
	svc     *entry.Service
	catalog *memory.Catalog
	audit   *memory.AuditLog
	clock   *clock.Fixed
	codec   *token.Codec
}

func newFixture(t *testing.T, opts ...entry.Option) *fixture {
	t.Helper()
	codec, err := token.NewCodec([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		catalog: memory.NewCatalog(),
		audit:   memory.NewAuditLog(),
		clock:   clock.NewFixed(time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)),
		codec:   codec,
	}
	end := eventEnd
	f.catalog.PutEvent(domain.Event{ID: "E1", Title: "Gopher Summit", StartDate: eventStart, EndDate: &end})
	f.catalog.PutTicket(domain.Ticket{
		ID:            "T1",
		TicketNumber:  "TKT-001",
		Price:         100,
		Status:        domain.TicketActive,
		OwnerID:       "U1",
		EventID:       "E1",
		AttendeeName:  "Ada",
		AttendeeEmail: "ada@example.com",
		CreatedAt:     time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC),
	})
	opts = append([]entry.Option{entry.WithClock(f.clock)}, opts...)
	f.svc = entry.NewService(codec, f.catalog, f.catalog, f.audit, fakeImages{}, opts...)
	return f
}

func (f *fixture) generate(t *testing.T, ticketID string) string {
	t.Helper()
	issued, err := f.svc.GenerateToken(context.Background(), ticketID, "U1")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return issued.Token
}

func (f *fixture) scanAt(t *testing.T, tok string, at time.Time) *entry.Decision {
	t.Helper()
	f.clock.Set(at)
	d, err := f.svc.ValidateToken(context.Background(), tok, "gate-1", entry.ScanContext{DeviceInfo: "scanner-a", IP: "10.0.0.7"})
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	return d
}

func at(hh, mm, ss int) time.Time {
	return time.Date(2025, 10, 1, hh, mm, ss, 0, time.UTC)
}

func TestService_EndToEnd(t *testing.T) {
	f := newFixture(t)

	issued, err := f.svc.GenerateToken(context.Background(), "T1", "U1")
	if err != nil {
		t.Fatal(err)
	}
	if issued.Image != "img:"+issued.Token {
		t.Errorf("expected rendered image of the token")
	}
	if !issued.IssuedAt.Equal(at(8, 0, 0)) {
		t.Errorf("expected issuedAt 08:00, got %v", issued.IssuedAt)
	}
	if issued.Ticket.EventTitle != "Gopher Summit" || issued.Ticket.TicketNumber != "TKT-001" {
		t.Errorf("unexpected summary %+v", issued.Ticket)
	}

	first := f.scanAt(t, issued.Token, at(8, 45, 0))
	if first.Status != domain.EntryAllowed || !first.IsValid {
		t.Fatalf("expected ALLOWED, got %s (%s)", first.Status, first.Message)
	}
	if first.Ticket == nil || first.Ticket.AlreadyUsed {
		t.Fatalf("expected fresh ticket summary, got %+v", first.Ticket)
	}
	if !first.ValidatedAt.Equal(at(8, 45, 0)) {
		t.Errorf("unexpected validatedAt %v", first.ValidatedAt)
	}

	second := f.scanAt(t, issued.Token, at(8, 50, 0))
	if second.Status != domain.EntryAlreadyUsed || second.IsValid {
		t.Fatalf("expected ALREADY_USED, got %s", second.Status)
	}
	if second.Ticket == nil || !second.Ticket.AlreadyUsed {
		t.Fatalf("expected alreadyUsed summary, got %+v", second.Ticket)
	}
	if second.Ticket.UsedBy != "gate-1" || second.Ticket.UsedAt == nil || !second.Ticket.UsedAt.Equal(at(8, 45, 0)) {
		t.Errorf("expected redemption details, got %+v", second.Ticket)
	}

	hist, err := f.svc.History(context.Background(), "T1")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].Status != domain.EntryAlreadyUsed || hist[1].Status != domain.EntryAllowed {
		t.Fatalf("unexpected history %+v", hist)
	}
	if hist[1].DeviceInfo != "scanner-a" || hist[1].IPAddress != "10.0.0.7" || hist[1].TokenHash != token.Hash(issued.Token) {
		t.Errorf("scan context not recorded: %+v", hist[1])
	}
	if hist[1].AttendeeID != "U1" || hist[1].EventID != "E1" {
		t.Errorf("ticket identity not recorded: %+v", hist[1])
	}
}

func TestService_TimingBoundaries(t *testing.T) {
	t.Run("one second early", func(t *testing.T) {
		f := newFixture(t)
		d := f.scanAt(t, f.generate(t, "T1"), at(8, 29, 59))
		if d.Status != domain.EntryEventNotStarted {
			t.Fatalf("expected EVENT_NOT_STARTED, got %s", d.Status)
		}
		if !strings.Contains(d.Message, "2025-10-01T08:30:00Z") {
			t.Errorf("expected message naming 08:30:00Z, got %q", d.Message)
		}
		if d.Ticket == nil || d.Ticket.AlreadyUsed {
			t.Errorf("expected summary without redemption, got %+v", d.Ticket)
		}
	})
	t.Run("opening instant", func(t *testing.T) {
		f := newFixture(t)
		if d := f.scanAt(t, f.generate(t, "T1"), at(8, 30, 0)); d.Status != domain.EntryAllowed {
			t.Fatalf("expected ALLOWED, got %s", d.Status)
		}
	})
	t.Run("closing instant", func(t *testing.T) {
		f := newFixture(t)
		if d := f.scanAt(t, f.generate(t, "T1"), at(20, 0, 0)); d.Status != domain.EntryAllowed {
			t.Fatalf("expected ALLOWED, got %s", d.Status)
		}
	})
	t.Run("one second late", func(t *testing.T) {
		f := newFixture(t)
		if d := f.scanAt(t, f.generate(t, "T1"), at(20, 0, 1)); d.Status != domain.EntryEventEnded {
			t.Fatalf("expected EVENT_ENDED, got %s", d.Status)
		}
	})
	t.Run("early scan does not consume the ticket", func(t *testing.T) {
		f := newFixture(t)
		tok := f.generate(t, "T1")
		_ = f.scanAt(t, tok, at(7, 0, 0))
		if d := f.scanAt(t, tok, at(9, 0, 0)); d.Status != domain.EntryAllowed {
			t.Fatalf("expected ALLOWED after early rejection, got %s", d.Status)
		}
	})
}

func TestService_FreshnessAfterPriceChange(t *testing.T) {
	f := newFixture(t)
	tok := f.generate(t, "T1")

	ticket, _ := f.catalog.GetTicket(context.Background(), "T1")
	ticket.Price = 150
	f.catalog.PutTicket(*ticket)

	d := f.scanAt(t, tok, at(9, 0, 0))
	if d.Status != domain.EntryInvalidTicket {
		t.Fatalf("expected INVALID_TICKET, got %s", d.Status)
	}
	if ok, _ := f.audit.ExistsAllowedFor(context.Background(), "T1"); ok {
		t.Fatal("stale token must not redeem the ticket")
	}
}

func TestService_InvalidTickets(t *testing.T) {
	t.Run("forged token", func(t *testing.T) {
		f := newFixture(t)
		forger, _ := token.NewCodec([]byte("guessed"))
		tok, _ := forger.Sign(token.Payload{TicketID: "T1", EventID: "E1", UserID: "U1", TicketNumber: "TKT-001", Price: 100, Version: 1})
		d := f.scanAt(t, tok, at(9, 0, 0))
		if d.Status != domain.EntryInvalidSignature || d.Ticket != nil {
			t.Fatalf("expected INVALID_SIGNATURE without summary, got %s %+v", d.Status, d.Ticket)
		}
		hist, _ := f.svc.History(context.Background(), "")
		if len(hist) != 1 || hist[0].TokenHash != token.Hash(tok) {
			t.Fatalf("expected forged attempt in the audit log, got %+v", hist)
		}
	})
	t.Run("garbage", func(t *testing.T) {
		f := newFixture(t)
		if d := f.scanAt(t, "not a token", at(9, 0, 0)); d.Status != domain.EntryInvalidSignature {
			t.Fatalf("expected INVALID_SIGNATURE, got %s", d.Status)
		}
	})
	t.Run("unknown ticket", func(t *testing.T) {
		f := newFixture(t)
		tok, _ := f.codec.Sign(token.Payload{TicketID: "T404", EventID: "E1", UserID: "U1", Version: 1})
		if d := f.scanAt(t, tok, at(9, 0, 0)); d.Status != domain.EntryInvalidTicket {
			t.Fatalf("expected INVALID_TICKET, got %s", d.Status)
		}
	})
	t.Run("soft-deleted ticket", func(t *testing.T) {
		f := newFixture(t)
		tok := f.generate(t, "T1")
		ticket, _ := f.catalog.GetTicket(context.Background(), "T1")
		deleted := at(8, 10, 0)
		ticket.DeletedAt = &deleted
		f.catalog.PutTicket(*ticket)
		if d := f.scanAt(t, tok, at(9, 0, 0)); d.Status != domain.EntryInvalidTicket {
			t.Fatalf("expected INVALID_TICKET, got %s", d.Status)
		}
	})
	t.Run("cancelled after issuance", func(t *testing.T) {
		f := newFixture(t)
		tok := f.generate(t, "T1")
		ticket, _ := f.catalog.GetTicket(context.Background(), "T1")
		ticket.Status = domain.TicketCancelled
		f.catalog.PutTicket(*ticket)
		if d := f.scanAt(t, tok, at(9, 0, 0)); d.Status != domain.EntryInvalidTicket {
			t.Fatalf("expected INVALID_TICKET, got %s", d.Status)
		}
	})
}

func TestService_ConcurrentScansRedeemOnce(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(at(8, 0, 0))

	const n = 50
	tokens := make([]string, n)
	for i := range tokens {
		f.clock.Set(at(8, 0, i))
		tokens[i] = f.generate(t, "T1")
	}
	f.clock.Set(at(9, 0, 0))

	results := make([]domain.EntryStatus, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			d, err := f.svc.ValidateToken(context.Background(), tokens[i], "gate-1", entry.ScanContext{})
			if err != nil {
				t.Errorf("validate: %v", err)
				return
			}
			results[i] = d.Status
		}(i)
	}
	close(start)
	wg.Wait()

	counts := map[domain.EntryStatus]int{}
	for _, s := range results {
		counts[s]++
	}
	if counts[domain.EntryAllowed] != 1 || counts[domain.EntryAlreadyUsed] != n-1 {
		t.Fatalf("expected 1 ALLOWED and %d ALREADY_USED, got %v", n-1, counts)
	}
	if f.audit.Len() != n {
		t.Fatalf("expected every attempt logged, got %d records", f.audit.Len())
	}
}

func TestService_RegenerationDoesNotRevoke(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(at(7, 0, 0))
	lost := f.generate(t, "T1")
	f.clock.Set(at(7, 30, 0))
	replacement := f.generate(t, "T1")
	if lost == replacement {
		t.Fatal("expected distinct tokens")
	}

	if d := f.scanAt(t, lost, at(9, 0, 0)); d.Status != domain.EntryAllowed {
		t.Fatalf("expected earlier token to stay valid, got %s", d.Status)
	}
	if d := f.scanAt(t, replacement, at(9, 1, 0)); d.Status != domain.EntryAlreadyUsed {
		t.Fatalf("expected replacement to share the redemption, got %s", d.Status)
	}
}

func TestService_GenerateTokenAuthorization(t *testing.T) {
	ctx := context.Background()

	t.Run("not the owner", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.GenerateToken(ctx, "T1", "intruder")
		if !errors.Is(err, domain.ErrNotTicketOwner) || !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ownership error, got %v", err)
		}
	})

	for _, status := range []domain.TicketStatus{domain.TicketCancelled, domain.TicketUsed, domain.TicketRefunded} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			ticket, _ := f.catalog.GetTicket(ctx, "T1")
			ticket.Status = status
			f.catalog.PutTicket(*ticket)
			_, err := f.svc.GenerateToken(ctx, "T1", "U1")
			if !errors.Is(err, domain.ErrTicketInactive) || !errors.Is(err, domain.ErrForbidden) {
				t.Fatalf("expected inactive error, got %v", err)
			}
		})
	}

	t.Run("missing ticket", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.svc.GenerateToken(ctx, "nope", "U1"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestService_RejectsOutOfRangeGeo(t *testing.T) {
	f := newFixture(t)
	tok := f.generate(t, "T1")
	_, err := f.svc.ValidateToken(context.Background(), tok, "gate-1", entry.ScanContext{Geo: &domain.GeoLocation{Latitude: 91}})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if f.audit.Len() != 0 {
		t.Fatal("invalid input is not an attempt")
	}
}

func TestService_Stats(t *testing.T) {
	f := newFixture(t)
	tok := f.generate(t, "T1")
	_ = f.scanAt(t, tok, at(8, 0, 0))
	_ = f.scanAt(t, tok, at(8, 45, 0))
	_ = f.scanAt(t, tok, at(8, 50, 0))

	st, err := f.svc.Stats(context.Background(), "E1")
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalAttempts != 3 || st.SuccessfulEntries != 1 || st.FailedAttempts != 2 {
		t.Fatalf("unexpected totals %+v", st)
	}
	if st.SuccessRate != 33.33 {
		t.Errorf("expected 33.33, got %v", st.SuccessRate)
	}
	if st.BreakdownByStatus[domain.EntryEventNotStarted] != 1 || st.BreakdownByStatus[domain.EntryAlreadyUsed] != 1 {
		t.Errorf("unexpected breakdown %v", st.BreakdownByStatus)
	}
	if st.LastActivity == nil || !st.LastActivity.Equal(at(8, 50, 0)) {
		t.Errorf("unexpected last activity %v", st.LastActivity)
	}

	empty, err := f.svc.Stats(context.Background(), "E404")
	if err != nil {
		t.Fatal(err)
	}
	if empty.TotalAttempts != 0 || empty.SuccessRate != 0 || empty.LastActivity != nil {
		t.Fatalf("expected empty stats, got %+v", empty)
	}
}
