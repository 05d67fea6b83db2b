package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

type IdempResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Result      []byte `json:"result"`
}

func idempKey(key string) string {
	return "idemp:" + key
}

func (i *Idempotency) Get(ctx context.Context, key string) (*IdempResponse, error) {
	val, err := i.client.Get(ctx, idempKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp IdempResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Set stores the response only if no other request stored one first.
func (i *Idempotency) Set(ctx context.Context, key string, resp IdempResponse, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return false, err
	}
	return i.client.SetNX(ctx, idempKey(key), data, ttl).Result()
}
