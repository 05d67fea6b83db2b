package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/ticket-entry-gate/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/ticket-entry-gate/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/ticket-entry-gate/internal/adapters/redis"
	"github.com/robertarktes/ticket-entry-gate/internal/config"
	"github.com/robertarktes/ticket-entry-gate/internal/entry"
	httphandler "github.com/robertarktes/ticket-entry-gate/internal/http"
	"github.com/robertarktes/ticket-entry-gate/internal/idempotency"
	"github.com/robertarktes/ticket-entry-gate/internal/observability"
	"github.com/robertarktes/ticket-entry-gate/internal/qr"
	"github.com/robertarktes/ticket-entry-gate/internal/rateLimit"
	"github.com/robertarktes/ticket-entry-gate/internal/token"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg, "entry-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLoggerWithLevel(cfg.LogLevel)
	observability.InitMetrics()

	codec, err := token.NewCodec([]byte(cfg.TokenSecret))
	if err != nil {
		log.Fatalf("failed to init token codec: %v", err)
	}

	if err := crdb.Migrate(cfg.CRDBDSN); err != nil {
		log.Fatalf("failed to migrate crdb: %v", err)
	}
	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	crdbRepo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoCatalog := mongoadapter.NewCatalogRepository(mongoClient.Database(cfg.MongoDatabase), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(redisCache)

	svc := entry.NewService(codec, mongoCatalog, mongoCatalog, crdbRepo, qr.NewRenderer(cfg.QRSize),
		entry.WithLogger(logger),
		entry.WithRedemptionCache(redisCache),
	)

	handlers := httphandler.NewHandlers(svc, map[string]httphandler.Pinger{
		"crdb": crdbRepo,
		"mongo": pingFunc(func(ctx context.Context) error {
			return mongoClient.Ping(ctx, readpref.Primary())
		}),
		"redis": pingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	}, logger)

	r := httphandler.SetupRouter(handlers, logger, httphandler.RouterConfig{
		JWTSecret:      []byte(cfg.JWTSecret),
		ScanRateLimit:  cfg.ScanRateLimit,
		ScanRatePeriod: cfg.ScanRatePeriod,
		Limiter:        rl,
		Idempotency:    idemp,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("entry api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
