// Package memory holds in-process stores for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robertarktes/ticket-entry-gate/internal/domain"
)

// AuditLog is an append-only entry log. Append holds the write lock across
// the ALLOWED uniqueness check and the insert.
type AuditLog struct {
	mu      sync.RWMutex
	records []domain.EntryLogRecord
	allowed map[string]int
}

func NewAuditLog() *AuditLog {
	return &AuditLog{allowed: make(map[string]int)}
}

func (a *AuditLog) Append(ctx context.Context, rec domain.EntryLogRecord) error {
	if !rec.Status.Valid() {
		return domain.ErrInvalidInput
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if rec.Status == domain.EntryAllowed {
		if _, ok := a.allowed[rec.TicketID]; ok {
			return domain.ErrAlreadyRedeemed
		}
		a.allowed[rec.TicketID] = len(a.records)
	}
	a.records = append(a.records, rec)
	return nil
}

func (a *AuditLog) ExistsAllowedFor(ctx context.Context, ticketID string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.allowed[ticketID]
	return ok, nil
}

func (a *AuditLog) AllowedFor(ctx context.Context, ticketID string) (*domain.EntryLogRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	i, ok := a.allowed[ticketID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	rec := a.records[i]
	return &rec, nil
}

func (a *AuditLog) HistoryFor(ctx context.Context, ticketID string) ([]domain.EntryLogRecord, error) {
	a.mu.RLock()
	var out []domain.EntryLogRecord
	for _, rec := range a.records {
		if rec.TicketID == ticketID {
			out = append(out, rec)
		}
	}
	a.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ValidatedAt.After(out[j].ValidatedAt)
	})
	return out, nil
}

func (a *AuditLog) CountsByStatus(ctx context.Context, eventID string) (map[domain.EntryStatus]int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	counts := make(map[domain.EntryStatus]int64)
	for _, rec := range a.records {
		if rec.EventID == eventID {
			counts[rec.Status]++
		}
	}
	return counts, nil
}

func (a *AuditLog) LastActivity(ctx context.Context, eventID string) (*time.Time, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var last *time.Time
	for _, rec := range a.records {
		if rec.EventID != eventID {
			continue
		}
		if last == nil || rec.ValidatedAt.After(*last) {
			at := rec.ValidatedAt
			last = &at
		}
	}
	return last, nil
}

// Len reports the number of stored records.
func (a *AuditLog) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}
