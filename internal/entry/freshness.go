package entry

import (
	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-entry-gate/internal/domain"
	"github.com/robertarktes/ticket-entry-gate/internal/token"
)

// CheckFreshness rejects a token whose snapshot no longer matches the live
// ticket. There is no time-based expiry: an unchanged, unredeemed ticket
// keeps its tokens valid.
func CheckFreshness(p token.Payload, t *domain.Ticket) error {
	switch {
	case p.TicketID != t.ID:
		return errors.Wrap(domain.ErrStaleToken, "ticket id mismatch")
	case p.EventID != t.EventID:
		return errors.Wrap(domain.ErrStaleToken, "event mismatch")
	case p.TicketNumber != t.TicketNumber:
		return errors.Wrap(domain.ErrStaleToken, "ticket number mismatch")
	case p.Price != t.Price:
		return errors.Wrap(domain.ErrStaleToken, "price mismatch")
	case p.UserID != t.OwnerID:
		return errors.Wrap(domain.ErrStaleToken, "owner mismatch")
	case t.Status.Revoked():
		return errors.Wrapf(domain.ErrStaleToken, "ticket %s", t.Status)
	}
	return nil
}
