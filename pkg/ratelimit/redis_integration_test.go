//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisLimiter_Integration_SharedAcrossInstances(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	quota := Quota{Operation: "export", MaxRequests: 4, Window: 2 * time.Second}

	// Two trackers over the same Redis behave like two service replicas.
	a := NewTracker(NewRedisLimiter(redisClient), zerolog.Nop())
	b := NewTracker(NewRedisLimiter(redisClient), zerolog.Nop())

	for i := 0; i < 4; i++ {
		tracker := a
		if i%2 == 1 {
			tracker = b
		}
		if err := tracker.Allow(ctx, quota, "198.51.100.1"); err != nil {
			t.Fatalf("request %d: error = %v", i+1, err)
		}
	}

	if err := b.Allow(ctx, quota, "198.51.100.1"); err == nil {
		t.Fatal("request 5 allowed, want limited")
	}

	ttl, err := redisClient.PTTL(ctx, RedisKeyPrefix+Key("export", "198.51.100.1")).Result()
	if err != nil {
		t.Fatalf("PTTL error = %v", err)
	}
	if ttl <= 0 || ttl > 2*time.Second {
		t.Errorf("TTL = %v, want in (0, 2s]", ttl)
	}

	time.Sleep(2100 * time.Millisecond)

	if err := a.Allow(ctx, quota, "198.51.100.1"); err != nil {
		t.Errorf("after window: error = %v", err)
	}
}
