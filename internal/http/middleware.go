package http

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robertarktes/ticket-entry-gate/internal/idempotency"
	"github.com/robertarktes/ticket-entry-gate/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelhttp "go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type Limiter interface {
	Allow(ctx context.Context, key string, rate int, period time.Duration) (bool, error)
}

type IdempotencyStore interface {
	Get(ctx context.Context, scope, key string) (*idempotency.Response, error)
	Set(ctx context.Context, scope, key string, resp idempotency.Response) error
}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
				entry = entry.WithField("trace_id", sc.TraceID().String())
			}
			ctx := observability.ContextWithLogger(r.Context(), entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(status), r.Method).Inc()
	})
}

// IdempotencyMiddleware replays the first successful response stored under
// the caller's Idempotency-Key. Requests without a key pass through.
func IdempotencyMiddleware(idemp IdempotencyStore) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if idemp == nil || r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) < 16 || len(key) > 128 {
				writeJSONError(w, http.StatusBadRequest, "invalid Idempotency-Key")
				return
			}
			scope := "anonymous"
			if p, ok := PrincipalFrom(r.Context()); ok {
				scope = p.UserID
			}
			scope += ":" + r.URL.Path
			log := observability.LoggerFrom(r.Context(), observability.NewLogger())

			existing, err := idemp.Get(r.Context(), scope, key)
			if err != nil {
				log.Warn("idempotency lookup failed: ", err)
			}
			if existing != nil {
				if existing.ContentType != "" {
					w.Header().Set("Content-Type", existing.ContentType)
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(existing.Status)
				w.Write(existing.Result)
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			var body bytes.Buffer
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			if ww.Status() >= 200 && ww.Status() < 300 {
				resp := idempotency.Response{
					Status:      ww.Status(),
					ContentType: ww.Header().Get("Content-Type"),
					Result:      body.Bytes(),
				}
				if err := idemp.Set(r.Context(), scope, key, resp); err != nil {
					log.Warn("idempotency store failed: ", err)
				}
			}
		})
	}
}

// RateLimitMiddleware throttles per principal and per client IP. Limiter
// errors let the request through.
func RateLimitMiddleware(rl Limiter, rate int, period time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl == nil {
				next.ServeHTTP(w, r)
				return
			}
			keys := []string{"ip:" + clientIP(r)}
			if p, ok := PrincipalFrom(r.Context()); ok {
				keys = append(keys, "user:"+p.UserID)
			}
			for _, key := range keys {
				ok, err := rl.Allow(r.Context(), "scan:"+key, rate, period)
				if err != nil {
					observability.LoggerFrom(r.Context(), observability.NewLogger()).Warn("rate limiter unavailable: ", err)
					continue
				}
				if !ok {
					observability.RateLimitExceeded.Inc()
					writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), otelhttp.HeaderCarrier(r.Header))
		tracer := otel.Tracer("http")
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP expects middleware.RealIP to have run.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
