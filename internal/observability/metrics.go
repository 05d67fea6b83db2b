package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tro_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	EntryDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tro_entry_decisions_total",
			Help: "Entry validation decisions by status",
		},
		[]string{"status"},
	)

	EntryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tro_entry_failures_total",
			Help: "Entry validations aborted by infrastructure errors",
		},
	)

	TokensIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tro_entry_tokens_issued_total",
			Help: "Total entry tokens generated",
		},
	)

	DBTxDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tro_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tro_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tro_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tro_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)

var registerOnce sync.Once

func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			EntryDecisions,
			EntryFailures,
			TokensIssued,
			DBTxDuration,
			OutboxLag,
			RabbitPublishRetries,
			RateLimitExceeded,
		)
	})
}
