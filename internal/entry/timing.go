package entry

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-entry-gate/internal/domain"
)

const (
	EarlyEntry = 30 * time.Minute
	LateEntry  = 2 * time.Hour
)

// Window is the inclusive period during which entry is permitted. Closes is
// nil for events without an end date.
type Window struct {
	Opens  time.Time
	Closes *time.Time
}

func EntryWindow(ev *domain.Event) Window {
	w := Window{Opens: ev.StartDate.Add(-EarlyEntry)}
	if ev.EndDate != nil {
		closes := ev.EndDate.Add(LateEntry)
		w.Closes = &closes
	}
	return w
}

// CheckTiming returns ErrEventNotStarted or ErrEventEnded when now falls
// outside the event's entry window.
func CheckTiming(ev *domain.Event, now time.Time) error {
	w := EntryWindow(ev)
	if now.Before(w.Opens) {
		return errors.Wrapf(domain.ErrEventNotStarted, "entry allowed from %s", w.Opens.UTC().Format(time.RFC3339))
	}
	if w.Closes != nil && now.After(*w.Closes) {
		return errors.Wrapf(domain.ErrEventEnded, "entry closed at %s", w.Closes.UTC().Format(time.RFC3339))
	}
	return nil
}
