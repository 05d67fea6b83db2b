package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func redeemedKey(ticketID string) string {
	return "redeemed:" + ticketID
}

// IsRedeemed reports whether a redemption mark exists for the ticket.
// A miss is not authoritative; callers fall back to the audit log.
func (c *Cache) IsRedeemed(ctx context.Context, ticketID string) (bool, error) {
	n, err := c.client.Exists(ctx, redeemedKey(ticketID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkRedeemed records the redemption. Marks never expire: a ticket
// redeemed once stays redeemed.
func (c *Cache) MarkRedeemed(ctx context.Context, ticketID string) error {
	res := c.client.SetNX(ctx, redeemedKey(ticketID), time.Now().UTC().Format(time.RFC3339Nano), 0)
	return res.Err()
}
