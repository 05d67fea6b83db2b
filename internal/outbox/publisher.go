package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-entry-gate/internal/adapters/crdb"
	"github.com/robertarktes/ticket-entry-gate/internal/observability"
)

type Store interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	GetUnpublishedOutbox(ctx context.Context, tx pgx.Tx, limit int) ([]crdb.OutboxRecord, error)
	MarkPublished(ctx context.Context, tx pgx.Tx, id uuid.UUID, publishedAt time.Time) error
}

type MessagePublisher interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

// Publisher relays outbox rows to the message bus. Delivery is at least
// once; consumers dedupe on MessageId.
type Publisher struct {
	repo      Store
	rabbitPub MessagePublisher
	logger    observability.Logger
	batch     int
	interval  time.Duration
	now       func() time.Time
}

func NewPublisher(repo Store, rabbitPub MessagePublisher, logger observability.Logger, batch int, interval time.Duration) *Publisher {
	if batch <= 0 {
		batch = 50
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Publisher{
		repo:      repo,
		rabbitPub: rabbitPub,
		logger:    logger,
		batch:     batch,
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.RunOnce(ctx)
			if err != nil {
				p.logger.Error("outbox relay batch failed: ", err)
				continue
			}
			if n > 0 {
				p.logger.WithField("count", n).Debug("outbox batch relayed")
			}
		}
	}
}

// RunOnce relays one batch and returns how many rows were published.
// Rows whose publish fails stay NEW for the next tick.
func (p *Publisher) RunOnce(ctx context.Context) (int, error) {
	published := 0
	err := p.repo.WithTx(ctx, func(tx pgx.Tx) error {
		published = 0
		records, err := p.repo.GetUnpublishedOutbox(ctx, tx, p.batch)
		if err != nil {
			return err
		}
		for _, rec := range records {
			observability.OutboxLag.Set(p.now().Sub(rec.CreatedAt).Seconds())
			msg := amqp.Publishing{
				MessageId:   rec.DedupeKey,
				ContentType: "application/json",
				Timestamp:   rec.CreatedAt,
				Type:        rec.EventType,
				Body:        rec.Payload,
			}
			if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
				observability.RabbitPublishRetries.Inc()
				p.logger.WithField("outbox_id", rec.ID.String()).Warn("outbox publish failed: ", err)
				continue
			}
			if err := p.repo.MarkPublished(ctx, tx, rec.ID, p.now()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	return published, err
}
