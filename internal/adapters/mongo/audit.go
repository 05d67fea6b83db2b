package mongo

import (
	"context"
	"time"

	"github.com/robertarktes/ticket-entry-gate/internal/domain"
	"github.com/robertarktes/ticket-entry-gate/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditMirror keeps a forensic copy of entry attempts next to the ticket
// data. It is fed from the message bus, so writes are idempotent on the
// record id.
type AuditMirror struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditMirror(db *mongo.Database, logger observability.Logger) *AuditMirror {
	return &AuditMirror{
		coll:   db.Collection("entry_audit"),
		logger: logger,
	}
}

type EntryAuditDoc struct {
	ID          string              `bson:"_id"`
	EventID     string              `bson:"event_id"`
	TicketID    string              `bson:"ticket_id"`
	AttendeeID  string              `bson:"attendee_id"`
	Status      string              `bson:"status"`
	ValidatorID string              `bson:"validator_id"`
	Notes       string              `bson:"notes,omitempty"`
	DeviceInfo  string              `bson:"device_info,omitempty"`
	IPAddress   string              `bson:"ip_address,omitempty"`
	Geo         *domain.GeoLocation `bson:"geo,omitempty"`
	ValidatedAt time.Time           `bson:"validated_at"`
	TokenHash   string              `bson:"token_hash"`
	MirroredAt  time.Time           `bson:"mirrored_at"`
}

func entryAuditDoc(rec domain.EntryLogRecord) EntryAuditDoc {
	return EntryAuditDoc{
		ID:          rec.ID.String(),
		EventID:     rec.EventID,
		TicketID:    rec.TicketID,
		AttendeeID:  rec.AttendeeID,
		Status:      string(rec.Status),
		ValidatorID: rec.ValidatorID,
		Notes:       rec.Notes,
		DeviceInfo:  rec.DeviceInfo,
		IPAddress:   rec.IPAddress,
		Geo:         rec.Geo,
		ValidatedAt: rec.ValidatedAt,
		TokenHash:   rec.TokenHash,
		MirroredAt:  time.Now().UTC(),
	}
}

func (a *AuditMirror) LogEntry(ctx context.Context, rec domain.EntryLogRecord) error {
	doc := entryAuditDoc(rec)
	fields, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	var set bson.M
	if err := bson.Unmarshal(fields, &set); err != nil {
		return err
	}
	delete(set, "_id")

	_, err = a.coll.UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$setOnInsert": set},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		a.logger.Error("failed to mirror entry audit record: ", err)
		return err
	}
	return nil
}
