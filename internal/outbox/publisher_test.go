package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-entry-gate/internal/adapters/crdb"
	"github.com/robertarktes/ticket-entry-gate/internal/observability"
)

type fakeStore struct {
	pending   []crdb.OutboxRecord
	published map[uuid.UUID]time.Time
	limit     int
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func (f *fakeStore) GetUnpublishedOutbox(_ context.Context, _ pgx.Tx, limit int) ([]crdb.OutboxRecord, error) {
	f.limit = limit
	var out []crdb.OutboxRecord
	for _, r := range f.pending {
		if _, done := f.published[r.ID]; !done && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkPublished(_ context.Context, _ pgx.Tx, id uuid.UUID, at time.Time) error {
	f.published[id] = at
	return nil
}

type fakeBus struct {
	sent   []amqp.Publishing
	keys   []string
	failOn string
}

func (b *fakeBus) Publish(_ context.Context, key string, msg amqp.Publishing) error {
	if msg.MessageId == b.failOn {
		return errors.New("channel closed")
	}
	b.keys = append(b.keys, key)
	b.sent = append(b.sent, msg)
	return nil
}

func record(eventType string) crdb.OutboxRecord {
	id := uuid.New()
	return crdb.OutboxRecord{
		ID:        id,
		EventType: eventType,
		Payload:   []byte(`{}`),
		CreatedAt: time.Now().Add(-time.Second),
		Status:    "NEW",
		DedupeKey: id.String(),
	}
}

func TestPublisher_RunOnce(t *testing.T) {
	observability.InitMetrics()
	ok, failing := record("entry.allowed"), record("entry.already_used")
	store := &fakeStore{pending: []crdb.OutboxRecord{ok, failing}, published: map[uuid.UUID]time.Time{}}
	bus := &fakeBus{failOn: failing.DedupeKey}

	p := NewPublisher(store, bus, observability.NewLogger(), 10, time.Second)
	n, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || store.limit != 10 {
		t.Fatalf("published %d with limit %d", n, store.limit)
	}
	if bus.keys[0] != "entry.allowed" || bus.sent[0].MessageId != ok.DedupeKey {
		t.Errorf("unexpected message %q %+v", bus.keys[0], bus.sent[0])
	}
	if _, done := store.published[failing.ID]; done {
		t.Error("failed publish must stay pending")
	}

	bus.failOn = ""
	n, err = p.RunOnce(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("retry: %d, %v", n, err)
	}
	if len(store.published) != 2 {
		t.Errorf("expected both rows published, got %d", len(store.published))
	}
}
