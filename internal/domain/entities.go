package domain

import "time"

type TicketStatus string

const (
	TicketActive      TicketStatus = "active"
	TicketUsed        TicketStatus = "used"
	TicketCancelled   TicketStatus = "cancelled"
	TicketRefunded    TicketStatus = "refunded"
	TicketTransferred TicketStatus = "transferred"
)

// Revoked reports whether a ticket in this state must never be admitted.
func (s TicketStatus) Revoked() bool {
	return s == TicketCancelled || s == TicketRefunded
}

// Ticket is owned by the ticketing subsystem and only read here.
type Ticket struct {
	ID            string
	TicketNumber  string
	Price         float64
	Status        TicketStatus
	OwnerID       string
	EventID       string
	AttendeeName  string
	AttendeeEmail string
	AttendeePhone string
	CreatedAt     time.Time
	DeletedAt     *time.Time
}

func (t Ticket) Deleted() bool {
	return t.DeletedAt != nil
}

type Event struct {
	ID        string
	Title     string
	StartDate time.Time
	EndDate   *time.Time
}
