package entry

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-entry-gate/internal/domain"
	"golang.org/x/sync/errgroup"
)

func (s *Service) History(ctx context.Context, ticketID string) ([]domain.EntryLogRecord, error) {
	recs, err := s.audit.HistoryFor(ctx, ticketID)
	if err != nil {
		return nil, errors.Wrapf(err, "history for ticket %s", ticketID)
	}
	return recs, nil
}

func (s *Service) Stats(ctx context.Context, eventID string) (*Stats, error) {
	var (
		counts map[domain.EntryStatus]int64
		last   *time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = s.audit.CountsByStatus(gctx, eventID)
		return err
	})
	g.Go(func() error {
		var err error
		last, err = s.audit.LastActivity(gctx, eventID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "stats for event %s", eventID)
	}

	st := &Stats{BreakdownByStatus: make(map[domain.EntryStatus]int64, len(counts)), LastActivity: last}
	for status, n := range counts {
		st.BreakdownByStatus[status] = n
		st.TotalAttempts += n
	}
	st.SuccessfulEntries = counts[domain.EntryAllowed]
	st.FailedAttempts = st.TotalAttempts - st.SuccessfulEntries
	if st.TotalAttempts > 0 {
		rate := float64(st.SuccessfulEntries) / float64(st.TotalAttempts) * 100
		st.SuccessRate = math.Round(rate*100) / 100
	}
	return st, nil
}
