package domain

import "github.com/cockroachdb/errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
)

// Scan-time causes. The orchestrator turns these into decisions, never into
// errors returned to the caller.
var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrStaleToken       = errors.New("token does not match ticket")
	ErrAlreadyRedeemed  = errors.Mark(errors.New("ticket already redeemed"), ErrConflict)
	ErrEventNotStarted  = errors.New("event not started")
	ErrEventEnded       = errors.New("event ended")
)

// Generation-time causes, both reported as ErrForbidden.
var (
	ErrForbidden      = errors.New("forbidden")
	ErrNotTicketOwner = errors.Mark(errors.New("requester does not own ticket"), ErrForbidden)
	ErrTicketInactive = errors.Mark(errors.New("ticket is not active"), ErrForbidden)
)
