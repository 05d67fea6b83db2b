package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-entry-gate/internal/domain"
	"github.com/robertarktes/ticket-entry-gate/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogRepository reads the ticketing subsystem's tickets and events.
type CatalogRepository struct {
	tickets *mongo.Collection
	events  *mongo.Collection
	logger  observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		tickets: db.Collection("tickets"),
		events:  db.Collection("events"),
		logger:  logger,
	}
}

type TicketDoc struct {
	ID            string     `bson:"_id"`
	TicketNumber  string     `bson:"ticket_number"`
	Price         float64    `bson:"price"`
	Status        string     `bson:"status"`
	UserID        string     `bson:"user_id"`
	EventID       string     `bson:"event_id"`
	AttendeeName  string     `bson:"attendee_name"`
	AttendeeEmail string     `bson:"attendee_email"`
	AttendeePhone string     `bson:"attendee_phone"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
	DeletedAt     *time.Time `bson:"deleted_at,omitempty"`
}

type EventDoc struct {
	ID        string     `bson:"_id"`
	Title     string     `bson:"title"`
	StartDate time.Time  `bson:"start_date"`
	EndDate   *time.Time `bson:"end_date,omitempty"`
	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

func (d TicketDoc) Ticket() *domain.Ticket {
	t := &domain.Ticket{
		ID:            d.ID,
		TicketNumber:  d.TicketNumber,
		Price:         d.Price,
		Status:        domain.TicketStatus(d.Status),
		OwnerID:       d.UserID,
		EventID:       d.EventID,
		AttendeeName:  d.AttendeeName,
		AttendeeEmail: d.AttendeeEmail,
		AttendeePhone: d.AttendeePhone,
		CreatedAt:     d.CreatedAt.UTC(),
	}
	if d.DeletedAt != nil {
		at := d.DeletedAt.UTC()
		t.DeletedAt = &at
	}
	return t
}

func (d EventDoc) Event() *domain.Event {
	e := &domain.Event{ID: d.ID, Title: d.Title, StartDate: d.StartDate.UTC()}
	if d.EndDate != nil {
		end := d.EndDate.UTC()
		e.EndDate = &end
	}
	return e
}

func (c *CatalogRepository) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	var doc TicketDoc
	err := c.tickets.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		c.logger.Error("failed to get ticket: ", err)
		return nil, err
	}
	return doc.Ticket(), nil
}

func (c *CatalogRepository) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	var doc EventDoc
	err := c.events.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		c.logger.Error("failed to get event: ", err)
		return nil, err
	}
	return doc.Event(), nil
}

// UpsertTicket and UpsertEvent stand in for the ticketing subsystem in
// seeding and tests.
func (c *CatalogRepository) UpsertTicket(ctx context.Context, doc TicketDoc) error {
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}
	_, err := c.tickets.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.Error("failed to upsert ticket: ", err)
		return err
	}
	return nil
}

func (c *CatalogRepository) UpsertEvent(ctx context.Context, doc EventDoc) error {
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}
	_, err := c.events.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.Error("failed to upsert event: ", err)
		return err
	}
	return nil
}
