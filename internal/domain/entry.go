package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryStatus is the closed set of outcomes a validation attempt resolves to.
type EntryStatus string

const (
	EntryAllowed          EntryStatus = "ALLOWED"
	EntryDenied           EntryStatus = "DENIED"
	EntryAlreadyUsed      EntryStatus = "ALREADY_USED"
	EntryInvalidTicket    EntryStatus = "INVALID_TICKET"
	EntryInvalidSignature EntryStatus = "INVALID_SIGNATURE"
	EntryExpired          EntryStatus = "EXPIRED"
	EntryEventNotStarted  EntryStatus = "EVENT_NOT_STARTED"
	EntryEventEnded       EntryStatus = "EVENT_ENDED"
)

// EntryStatuses lists every status in storage order.
var EntryStatuses = []EntryStatus{
	EntryAllowed,
	EntryDenied,
	EntryAlreadyUsed,
	EntryInvalidTicket,
	EntryInvalidSignature,
	EntryExpired,
	EntryEventNotStarted,
	EntryEventEnded,
}

func (s EntryStatus) Valid() bool {
	for _, known := range EntryStatuses {
		if s == known {
			return true
		}
	}
	return false
}

type GeoLocation struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

func (g GeoLocation) Validate() error {
	if g.Latitude < -90 || g.Latitude > 90 {
		return ErrInvalidInput
	}
	if g.Longitude < -180 || g.Longitude > 180 {
		return ErrInvalidInput
	}
	return nil
}

// EntryLogRecord is one validation attempt. Records are append-only.
// TicketID, EventID and AttendeeID are empty when the token could not be
// decoded.
type EntryLogRecord struct {
	ID          uuid.UUID
	EventID     string
	TicketID    string
	AttendeeID  string
	Status      EntryStatus
	ValidatorID string
	Notes       string
	DeviceInfo  string
	IPAddress   string
	Geo         *GeoLocation
	ValidatedAt time.Time
	TokenHash   string
}
