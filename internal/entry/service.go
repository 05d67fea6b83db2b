package entry

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-entry-gate/internal/clock"
	"github.com/robertarktes/ticket-entry-gate/internal/domain"
	"github.com/robertarktes/ticket-entry-gate/internal/observability"
	"github.com/robertarktes/ticket-entry-gate/internal/token"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type TicketLookup interface {
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
}

type EventLookup interface {
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
}

// AuditSink is the single write path for validation attempts.
type AuditSink interface {
	// Append stores rec. For ALLOWED records it returns ErrAlreadyRedeemed
	// when the ticket already has one, atomically with respect to
	// concurrent appends.
	Append(ctx context.Context, rec domain.EntryLogRecord) error
}

type AuditLog interface {
	AuditSink
	ExistsAllowedFor(ctx context.Context, ticketID string) (bool, error)
	// AllowedFor returns ErrNotFound when the ticket was never redeemed.
	AllowedFor(ctx context.Context, ticketID string) (*domain.EntryLogRecord, error)
	// HistoryFor returns attempts newest first.
	HistoryFor(ctx context.Context, ticketID string) ([]domain.EntryLogRecord, error)
	CountsByStatus(ctx context.Context, eventID string) (map[domain.EntryStatus]int64, error)
	// LastActivity returns nil when the event has no attempts.
	LastActivity(ctx context.Context, eventID string) (*time.Time, error)
}

// ImageRenderer turns a token into something a scanner can read.
type ImageRenderer interface {
	Render(content string) (string, error)
}

type Service struct {
	codec   *token.Codec
	tickets TicketLookup
	events  EventLookup
	audit   AuditLog
	images  ImageRenderer
	guard   *ReplayGuard
	cache   RedemptionCache
	clock   clock.Clock
	logger  observability.Logger
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l observability.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithRedemptionCache(c RedemptionCache) Option {
	return func(s *Service) { s.cache = c }
}

func NewService(codec *token.Codec, tickets TicketLookup, events EventLookup, audit AuditLog, images ImageRenderer, opts ...Option) *Service {
	s := &Service{
		codec:   codec,
		tickets: tickets,
		events:  events,
		audit:   audit,
		images:  images,
		clock:   clock.NewSystem(),
		logger:  observability.NewLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.guard = NewReplayGuard(audit, s.cache, s.logger)
	return s
}

// GenerateToken signs a fresh snapshot of an active ticket for its owner.
// Earlier tokens for the same ticket stay valid.
func (s *Service) GenerateToken(ctx context.Context, ticketID, requesterID string) (*IssuedToken, error) {
	ctx, span := otel.Tracer("entry").Start(ctx, "entry.GenerateToken")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", ticketID))

	t, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, errors.Wrapf(err, "load ticket %s", ticketID)
	}
	if t.Deleted() {
		return nil, errors.Wrapf(domain.ErrNotFound, "ticket %s", ticketID)
	}
	if t.OwnerID != requesterID {
		return nil, domain.ErrNotTicketOwner
	}
	if t.Status != domain.TicketActive {
		return nil, errors.Wrapf(domain.ErrTicketInactive, "status %s", t.Status)
	}

	now := s.clock.Now()
	tok, err := s.codec.Sign(token.Payload{
		TicketID:     t.ID,
		EventID:      t.EventID,
		UserID:       t.OwnerID,
		TicketNumber: t.TicketNumber,
		Price:        t.Price,
		CreatedAt:    t.CreatedAt.UnixMilli(),
		Timestamp:    now.UnixMilli(),
		Version:      token.CurrentVersion,
	})
	if err != nil {
		return nil, err
	}
	img, err := s.images.Render(tok)
	if err != nil {
		return nil, errors.Wrap(err, "render token image")
	}

	summary := summarize(t)
	if ev, err := s.events.GetEvent(ctx, t.EventID); err == nil {
		summary.EventTitle = ev.Title
	} else {
		s.log(ctx).WithField("event_id", t.EventID).Warn("event lookup for summary failed: ", err)
	}

	observability.TokensIssued.Inc()
	return &IssuedToken{Token: tok, Image: img, Ticket: *summary, IssuedAt: now}, nil
}

// ValidateToken runs the entry decision. Every outcome is a Decision; an error
// means infrastructure failed and no decision could be made.
func (s *Service) ValidateToken(ctx context.Context, raw, validatorID string, sc ScanContext) (*Decision, error) {
	ctx, span := otel.Tracer("entry").Start(ctx, "entry.ValidateToken")
	defer span.End()

	if sc.Geo != nil {
		if err := sc.Geo.Validate(); err != nil {
			return nil, errors.Wrap(err, "geolocation out of range")
		}
	}

	rec := domain.EntryLogRecord{
		ID:          uuid.New(),
		ValidatorID: validatorID,
		Notes:       sc.Notes,
		DeviceInfo:  sc.DeviceInfo,
		IPAddress:   sc.IP,
		Geo:         sc.Geo,
		ValidatedAt: s.clock.Now(),
		TokenHash:   token.Hash(raw),
	}

	d, err := s.decide(ctx, raw, &rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		observability.EntryFailures.Inc()
		s.log(ctx).WithFields(map[string]interface{}{
			"ticket_id":    rec.TicketID,
			"validator_id": validatorID,
			"token_hash":   rec.TokenHash,
		}).Error("entry validation failed: ", err)
		return nil, errors.Wrap(err, "validate token")
	}

	span.SetAttributes(attribute.String("entry.status", string(d.Status)), attribute.String("ticket.id", rec.TicketID))
	observability.EntryDecisions.WithLabelValues(string(d.Status)).Inc()
	s.log(ctx).WithFields(map[string]interface{}{
		"ticket_id":    rec.TicketID,
		"validator_id": validatorID,
		"status":       d.Status,
	}).Info("entry decision")
	return d, nil
}

func (s *Service) decide(ctx context.Context, raw string, rec *domain.EntryLogRecord) (*Decision, error) {
	p, err := s.codec.Verify(raw)
	if err != nil {
		return s.deny(ctx, rec, domain.EntryInvalidSignature, "Invalid or tampered QR code", nil), nil
	}
	rec.TicketID, rec.EventID, rec.AttendeeID = p.TicketID, p.EventID, p.UserID

	t, err := s.tickets.GetTicket(ctx, p.TicketID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && t.Deleted()) {
		return s.deny(ctx, rec, domain.EntryInvalidTicket, "Ticket not found", nil), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load ticket")
	}
	rec.EventID, rec.AttendeeID = t.EventID, t.OwnerID

	if err := CheckFreshness(p, t); err != nil {
		s.log(ctx).WithField("ticket_id", t.ID).Info("stale token: ", err)
		return s.deny(ctx, rec, domain.EntryInvalidTicket, "Ticket details changed since this QR code was issued", nil), nil
	}
	summary := summarize(t)

	if err := s.guard.Check(ctx, t.ID); err != nil {
		if errors.Is(err, domain.ErrAlreadyRedeemed) {
			return s.alreadyUsed(ctx, rec, summary), nil
		}
		return nil, err
	}

	ev, err := s.events.GetEvent(ctx, t.EventID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.deny(ctx, rec, domain.EntryInvalidTicket, "Event not found", summary), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load event")
	}
	summary.EventTitle = ev.Title

	if err := CheckTiming(ev, rec.ValidatedAt); err != nil {
		w := EntryWindow(ev)
		if errors.Is(err, domain.ErrEventNotStarted) {
			return s.deny(ctx, rec, domain.EntryEventNotStarted,
				"Event has not started yet. Entry allowed from "+w.Opens.UTC().Format(time.RFC3339), summary), nil
		}
		return s.deny(ctx, rec, domain.EntryEventEnded,
			"Event has ended. Entry closed at "+w.Closes.UTC().Format(time.RFC3339), summary), nil
	}

	rec.Status = domain.EntryAllowed
	if err := s.guard.Redeem(ctx, *rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyRedeemed) {
			rec.ID = uuid.New()
			return s.alreadyUsed(ctx, rec, summary), nil
		}
		return nil, err
	}
	return s.decision(rec, "Entry allowed", summary), nil
}

func (s *Service) alreadyUsed(ctx context.Context, rec *domain.EntryLogRecord, summary *TicketSummary) *Decision {
	summary.AlreadyUsed = true
	msg := "Ticket already used"
	prev, err := s.audit.AllowedFor(ctx, rec.TicketID)
	switch {
	case err == nil:
		at := prev.ValidatedAt
		summary.UsedAt = &at
		summary.UsedBy = prev.ValidatorID
		msg += " at " + at.UTC().Format(time.RFC3339)
	case !errors.Is(err, domain.ErrNotFound):
		s.log(ctx).WithField("ticket_id", rec.TicketID).Warn("lookup of redemption record failed: ", err)
	}
	return s.deny(ctx, rec, domain.EntryAlreadyUsed, msg, summary)
}

// deny records a rejected attempt. The append is best-effort: the caller
// still gets its decision when the audit log is unavailable.
func (s *Service) deny(ctx context.Context, rec *domain.EntryLogRecord, status domain.EntryStatus, msg string, summary *TicketSummary) *Decision {
	rec.Status = status
	if err := s.audit.Append(ctx, *rec); err != nil {
		s.log(ctx).WithFields(map[string]interface{}{
			"ticket_id": rec.TicketID,
			"status":    status,
		}).Warn("audit append for rejected attempt failed: ", err)
	}
	return s.decision(rec, msg, summary)
}

func (s *Service) decision(rec *domain.EntryLogRecord, msg string, summary *TicketSummary) *Decision {
	return &Decision{
		Status:      rec.Status,
		Message:     msg,
		IsValid:     rec.Status == domain.EntryAllowed,
		Ticket:      summary,
		ValidatedAt: rec.ValidatedAt,
	}
}

func (s *Service) log(ctx context.Context) observability.Logger {
	return observability.LoggerFrom(ctx, s.logger)
}
