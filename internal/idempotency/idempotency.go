package idempotency

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/ticket-entry-gate/internal/adapters/redis"
)

type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) (bool, error)
}

// Idempotency replays the first response recorded under a client key.
// Keys are scoped by principal so two users cannot collide.
type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl}
}

type Response struct {
	Status      int
	ContentType string
	Result      []byte
}

func scoped(scope, key string) string {
	return scope + ":" + key
}

func (i *Idempotency) Get(ctx context.Context, scope, key string) (*Response, error) {
	r, err := i.store.Get(ctx, scoped(scope, key))
	if err != nil || r == nil {
		return nil, err
	}
	return &Response{Status: r.Status, ContentType: r.ContentType, Result: r.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, scope, key string, resp Response) error {
	_, err := i.store.Set(ctx, scoped(scope, key), redisadapter.IdempResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
	}, i.ttl)
	return err
}
