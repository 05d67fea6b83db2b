package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	CRDBDSN       string `env:"CRDB_DSN"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"tro"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RabbitURL     string `env:"RABBIT_URL"`
	JWTSecret     string `env:"JWT_SECRET"`
	OTLPEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// TokenSecret keys every entry token. It is read once at startup.
	TokenSecret string `env:"ENTRY_TOKEN_SECRET"`

	ScanRateLimit  int           `env:"SCAN_RATE_LIMIT" envDefault:"120"`
	ScanRatePeriod time.Duration `env:"SCAN_RATE_PERIOD" envDefault:"1m"`
	QRSize         int           `env:"QR_SIZE" envDefault:"256"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"1h"`

	OutboxInterval time.Duration `env:"OUTBOX_INTERVAL" envDefault:"5s"`
	OutboxBatch    int           `env:"OUTBOX_BATCH" envDefault:"50"`
	AuditQueue     string        `env:"AUDIT_QUEUE" envDefault:"entry.audit.q"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	if cfg.TokenSecret == "" {
		return nil, errors.New("ENTRY_TOKEN_SECRET is required")
	}
	if cfg.ScanRateLimit <= 0 {
		return nil, errors.Newf("SCAN_RATE_LIMIT must be positive, got %d", cfg.ScanRateLimit)
	}
	return cfg, nil
}
