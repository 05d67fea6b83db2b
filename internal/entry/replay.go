package entry

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-entry-gate/internal/domain"
	"github.com/robertarktes/ticket-entry-gate/internal/observability"
)

// RedemptionCache remembers tickets known to be redeemed. A miss is never
// trusted; only the audit log can say a ticket is unused.
type RedemptionCache interface {
	IsRedeemed(ctx context.Context, ticketID string) (bool, error)
	MarkRedeemed(ctx context.Context, ticketID string) error
}

// ReplayGuard keys redemption on the ticket id, never on the token, so every
// token ever issued for a ticket shares one redemption.
type ReplayGuard struct {
	log    AuditLog
	cache  RedemptionCache
	logger observability.Logger
}

func NewReplayGuard(log AuditLog, cache RedemptionCache, logger observability.Logger) *ReplayGuard {
	return &ReplayGuard{log: log, cache: cache, logger: logger}
}

// Check returns ErrAlreadyRedeemed when an ALLOWED record exists.
func (g *ReplayGuard) Check(ctx context.Context, ticketID string) error {
	if g.cache != nil {
		hit, err := g.cache.IsRedeemed(ctx, ticketID)
		if err != nil {
			g.logger.WithField("ticket_id", ticketID).Warn("redemption cache lookup failed: ", err)
		} else if hit {
			return domain.ErrAlreadyRedeemed
		}
	}
	used, err := g.log.ExistsAllowedFor(ctx, ticketID)
	if err != nil {
		return errors.Wrap(err, "check redemption")
	}
	if used {
		g.remember(ctx, ticketID)
		return domain.ErrAlreadyRedeemed
	}
	return nil
}

// Redeem appends the ALLOWED record. The audit log's uniqueness guarantee
// decides concurrent races; the loser gets ErrAlreadyRedeemed.
func (g *ReplayGuard) Redeem(ctx context.Context, rec domain.EntryLogRecord) error {
	if rec.Status != domain.EntryAllowed {
		return errors.Wrapf(domain.ErrInvalidInput, "redeem with status %s", rec.Status)
	}
	if err := g.log.Append(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyRedeemed) {
			g.remember(ctx, rec.TicketID)
			return domain.ErrAlreadyRedeemed
		}
		return errors.Wrap(err, "append redemption")
	}
	g.remember(ctx, rec.TicketID)
	return nil
}

func (g *ReplayGuard) remember(ctx context.Context, ticketID string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.MarkRedeemed(ctx, ticketID); err != nil {
		g.logger.WithField("ticket_id", ticketID).Warn("redemption cache write failed: ", err)
	}
}
