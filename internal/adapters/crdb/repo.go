package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/ticket-entry-gate/internal/domain"
	"github.com/robertarktes/ticket-entry-gate/internal/observability"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"

	oneAllowedConstraint = "entry_logs_one_allowed"
	maxTxAttempts        = 8
)

// Repository is the entry audit log. Rows are only ever inserted.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

// withRetry reruns fn while CockroachDB asks for a transaction restart.
func (r *Repository) withRetry(ctx context.Context, fn func(tx pgx.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := r.WithTx(ctx, fn)
		if !errors.Is(err, domain.ErrSerializationFailure) || attempt == maxTxAttempts-1 {
			return err
		}
		backoff := time.Duration(1<<attempt) * 10 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == SerializationFailureCode:
			return domain.ErrSerializationFailure
		case pgErr.Code == UniqueViolationCode && pgErr.ConstraintName == oneAllowedConstraint:
			return domain.ErrAlreadyRedeemed
		}
	}
	return err
}

// Append inserts rec and its outbox row in one transaction. A second ALLOWED
// row for the same ticket is dropped by the partial unique index and reported
// as ErrAlreadyRedeemed.
func (r *Repository) Append(ctx context.Context, rec domain.EntryLogRecord) error {
	if !rec.Status.Valid() {
		return errors.Wrapf(domain.ErrInvalidInput, "status %q", rec.Status)
	}
	ev := domain.NewEntryEvent(rec)
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal entry event")
	}

	var lat, lng *float64
	if rec.Geo != nil {
		lat, lng = &rec.Geo.Latitude, &rec.Geo.Longitude
	}

	return r.withRetry(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			INSERT INTO entry_logs (id, event_id, ticket_id, attendee_id, status, validator_id, notes, device_info, ip_address, latitude, longitude, validated_at, token_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (ticket_id) WHERE status = 'ALLOWED' DO NOTHING
		`, rec.ID, rec.EventID, rec.TicketID, rec.AttendeeID, string(rec.Status), rec.ValidatorID,
			rec.Notes, rec.DeviceInfo, rec.IPAddress, lat, lng, rec.ValidatedAt, rec.TokenHash)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrAlreadyRedeemed
		}
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "entry",
			AggregateID:   rec.ID,
			EventType:     ev.RoutingKey(),
			Payload:       payload,
			DedupeKey:     rec.ID.String(),
		})
	})
}

func (r *Repository) ExistsAllowedFor(ctx context.Context, ticketID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM entry_logs WHERE ticket_id = $1 AND status = 'ALLOWED')
	`, ticketID).Scan(&exists)
	return exists, err
}

const recordColumns = `id, event_id, ticket_id, attendee_id, status, validator_id, notes, device_info, ip_address, latitude, longitude, validated_at, token_hash`

func (r *Repository) AllowedFor(ctx context.Context, ticketID string) (*domain.EntryLogRecord, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM entry_logs WHERE ticket_id = $1 AND status = 'ALLOWED'
	`, ticketID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) HistoryFor(ctx context.Context, ticketID string) ([]domain.EntryLogRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM entry_logs WHERE ticket_id = $1
		ORDER BY validated_at DESC, id
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.EntryLogRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *Repository) CountsByStatus(ctx context.Context, eventID string) (map[domain.EntryStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, count(*) FROM entry_logs WHERE event_id = $1 GROUP BY status
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.EntryStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.EntryStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *Repository) LastActivity(ctx context.Context, eventID string) (*time.Time, error) {
	var last *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT max(validated_at) FROM entry_logs WHERE event_id = $1
	`, eventID).Scan(&last)
	if err != nil {
		return nil, err
	}
	if last != nil {
		utc := last.UTC()
		last = &utc
	}
	return last, nil
}

func scanRecord(row pgx.Row) (domain.EntryLogRecord, error) {
	var rec domain.EntryLogRecord
	var status string
	var lat, lng *float64
	err := row.Scan(&rec.ID, &rec.EventID, &rec.TicketID, &rec.AttendeeID, &status, &rec.ValidatorID,
		&rec.Notes, &rec.DeviceInfo, &rec.IPAddress, &lat, &lng, &rec.ValidatedAt, &rec.TokenHash)
	if err != nil {
		return rec, err
	}
	rec.Status = domain.EntryStatus(status)
	rec.ValidatedAt = rec.ValidatedAt.UTC()
	if lat != nil && lng != nil {
		rec.Geo = &domain.GeoLocation{Latitude: *lat, Longitude: *lng}
	}
	return rec, nil
}
