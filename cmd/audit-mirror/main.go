package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	mongoadapter "github.com/robertarktes/ticket-entry-gate/internal/adapters/mongo"
	"github.com/robertarktes/ticket-entry-gate/internal/adapters/rabbit"
	"github.com/robertarktes/ticket-entry-gate/internal/config"
	"github.com/robertarktes/ticket-entry-gate/internal/domain"
	"github.com/robertarktes/ticket-entry-gate/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "entry-audit-mirror")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLoggerWithLevel(cfg.LogLevel)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mirror := mongoadapter.NewAuditMirror(mongoClient.Database(cfg.MongoDatabase), logger)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, cfg.AuditQueue, "entry.#")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume: %v", err)
	}

	w := NewMirrorWorker(mirror, logger)
	go w.Run(ctx, deliveries)
	logger.WithField("queue", cfg.AuditQueue).Info("Audit mirror started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown audit mirror")
}

type AuditMirror interface {
	LogEntry(ctx context.Context, rec domain.EntryLogRecord) error
}

type MirrorWorker struct {
	mirror AuditMirror
	logger observability.Logger
}

func NewMirrorWorker(mirror AuditMirror, logger observability.Logger) *MirrorWorker {
	return &MirrorWorker{mirror: mirror, logger: logger}
}

func (w *MirrorWorker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				w.logger.Warn("delivery channel closed")
				return
			}
			w.handle(ctx, d)
		}
	}
}

// handle drops malformed messages and requeues ones the store rejected.
func (w *MirrorWorker) handle(ctx context.Context, d amqp.Delivery) {
	var ev domain.EntryEvent
	err := json.Unmarshal(d.Body, &ev)
	if err == nil && ev.ID == uuid.Nil {
		err = domain.ErrInvalidInput
	}
	if err != nil {
		w.logger.WithField("message_id", d.MessageId).Error("malformed entry event: ", err)
		d.Nack(false, false)
		return
	}
	if err := w.mirror.LogEntry(ctx, ev.Record()); err != nil {
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}
