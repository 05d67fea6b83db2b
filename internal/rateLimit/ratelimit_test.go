package rateLimit

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

func TestRateLimiter_Window(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis: %v", err)
	}
	defer container.Terminate(ctx)

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "6379")
	client := goredis.NewClient(&goredis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	defer client.Close()

	rl := NewRateLimiter(redisadapter.NewCache(client))
	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "scan:v1", 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("request %d: %v, %v", i, ok, err)
		}
	}
	ok, err := rl.Allow(ctx, "scan:v1", 3, time.Minute)
	if err != nil || ok {
		t.Fatalf("fourth request should be limited: %v, %v", ok, err)
	}
	ok, _ = rl.Allow(ctx, "scan:v2", 3, time.Minute)
	if !ok {
		t.Error("limits must be per key")
	}
}
