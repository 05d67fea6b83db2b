package entry

import (
	"time"

	"github.com/robertarktes/ticket-entry-gate/internal/domain"
)

// ScanContext is what the gate device reports alongside a token.
type ScanContext struct {
	Notes      string
	DeviceInfo string
	IP         string
	Geo        *domain.GeoLocation
}

type TicketSummary struct {
	TicketID      string              `json:"ticketId"`
	TicketNumber  string              `json:"ticketNumber"`
	EventID       string              `json:"eventId"`
	EventTitle    string              `json:"eventTitle,omitempty"`
	AttendeeName  string              `json:"attendeeName,omitempty"`
	AttendeeEmail string              `json:"attendeeEmail,omitempty"`
	Price         float64             `json:"price"`
	Status        domain.TicketStatus `json:"status"`
	AlreadyUsed   bool                `json:"alreadyUsed"`
	UsedAt        *time.Time          `json:"usedAt,omitempty"`
	UsedBy        string              `json:"usedBy,omitempty"`
}

// Decision is the terminal result of one validation call.
type Decision struct {
	Status      domain.EntryStatus `json:"status"`
	Message     string             `json:"message"`
	IsValid     bool               `json:"isValid"`
	Ticket      *TicketSummary     `json:"ticketSummary,omitempty"`
	ValidatedAt time.Time          `json:"validatedAt"`
}

type IssuedToken struct {
	Token    string        `json:"token"`
	Image    string        `json:"image"`
	Ticket   TicketSummary `json:"ticketSummary"`
	IssuedAt time.Time     `json:"issuedAt"`
}

type Stats struct {
	TotalAttempts     int64                        `json:"totalAttempts"`
	SuccessfulEntries int64                        `json:"successfulEntries"`
	FailedAttempts    int64                        `json:"failedAttempts"`
	SuccessRate       float64                      `json:"successRate"`
	BreakdownByStatus map[domain.EntryStatus]int64 `json:"breakdownByStatus"`
	LastActivity      *time.Time                   `json:"lastActivity"`
}

func summarize(t *domain.Ticket) *TicketSummary {
	return &TicketSummary{
		TicketID:      t.ID,
		TicketNumber:  t.TicketNumber,
		EventID:       t.EventID,
		AttendeeName:  t.AttendeeName,
		AttendeeEmail: t.AttendeeEmail,
		Price:         t.Price,
		Status:        t.Status,
	}
}
