package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntryEvent is the published form of an EntryLogRecord.
type EntryEvent struct {
	ID          uuid.UUID    `json:"id"`
	EventID     string       `json:"eventId"`
	TicketID    string       `json:"ticketId"`
	AttendeeID  string       `json:"attendeeId"`
	Status      EntryStatus  `json:"status"`
	ValidatorID string       `json:"validatorId"`
	Notes       string       `json:"notes,omitempty"`
	DeviceInfo  string       `json:"deviceInfo,omitempty"`
	IPAddress   string       `json:"ipAddress,omitempty"`
	Geo         *GeoLocation `json:"geo,omitempty"`
	ValidatedAt time.Time    `json:"validatedAt"`
	TokenHash   string       `json:"tokenHash"`
}

func NewEntryEvent(rec EntryLogRecord) EntryEvent {
	return EntryEvent{
		ID:          rec.ID,
		EventID:     rec.EventID,
		TicketID:    rec.TicketID,
		AttendeeID:  rec.AttendeeID,
		Status:      rec.Status,
		ValidatorID: rec.ValidatorID,
		Notes:       rec.Notes,
		DeviceInfo:  rec.DeviceInfo,
		IPAddress:   rec.IPAddress,
		Geo:         rec.Geo,
		ValidatedAt: rec.ValidatedAt,
		TokenHash:   rec.TokenHash,
	}
}

func (e EntryEvent) Record() EntryLogRecord {
	return EntryLogRecord{
		ID:          e.ID,
		EventID:     e.EventID,
		TicketID:    e.TicketID,
		AttendeeID:  e.AttendeeID,
		Status:      e.Status,
		ValidatorID: e.ValidatorID,
		Notes:       e.Notes,
		DeviceInfo:  e.DeviceInfo,
		IPAddress:   e.IPAddress,
		Geo:         e.Geo,
		ValidatedAt: e.ValidatedAt,
		TokenHash:   e.TokenHash,
	}
}

// RoutingKey is the topic key the event is published under, e.g. entry.allowed.
func (e EntryEvent) RoutingKey() string {
	return "entry." + strings.ToLower(string(e.Status))
}
