package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	redisadapter "github.com/robertarktes/ticket-entry-gate/internal/adapters/redis"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start redis: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatal(err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCache_Redemption(t *testing.T) {
	client := startRedis(t)
	cache := redisadapter.NewCache(client)
	ctx := context.Background()

	ok, err := cache.IsRedeemed(ctx, "t-1")
	if err != nil || ok {
		t.Fatalf("fresh ticket: got %v, %v", ok, err)
	}
	if err := cache.MarkRedeemed(ctx, "t-1"); err != nil {
		t.Fatal(err)
	}
	if err := cache.MarkRedeemed(ctx, "t-1"); err != nil {
		t.Fatalf("second mark should be a no-op: %v", err)
	}
	ok, err = cache.IsRedeemed(ctx, "t-1")
	if err != nil || !ok {
		t.Fatalf("marked ticket: got %v, %v", ok, err)
	}
	if ttl := client.TTL(ctx, "redeemed:t-1").Val(); ttl != -1 {
		t.Errorf("redemption mark should not expire, ttl %v", ttl)
	}
}

func TestIdempotency_FirstWriterWins(t *testing.T) {
	client := startRedis(t)
	idem := redisadapter.NewIdempotency(client)
	ctx := context.Background()

	got, err := idem.Get(ctx, "k")
	if err != nil || got != nil {
		t.Fatalf("missing key: got %v, %v", got, err)
	}

	first := redisadapter.IdempResponse{Status: 201, ContentType: "application/json", Result: []byte(`{"a":1}`)}
	stored, err := idem.Set(ctx, "k", first, time.Minute)
	if err != nil || !stored {
		t.Fatalf("first set: %v, %v", stored, err)
	}
	stored, err = idem.Set(ctx, "k", redisadapter.IdempResponse{Status: 500}, time.Minute)
	if err != nil || stored {
		t.Fatalf("second set should lose: %v, %v", stored, err)
	}

	got, err = idem.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != 201 || string(got.Result) != `{"a":1}` {
		t.Errorf("unexpected stored response %+v", got)
	}
}
