//go:build integration

package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
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

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}
	return client, cleanup
}

func budgetHeaders(remaining, resetSeconds int) http.Header {
	headers := http.Header{}
	headers.Set(HeaderRemaining, strconv.Itoa(remaining))
	headers.Set(HeaderReset, strconv.Itoa(resetSeconds))
	return headers
}

func TestTracker_Integration_GetState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, logger)
	ctx := context.Background()

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != 100 || !state.IsHealthy {
		t.Errorf("default state = %+v, want 100 remaining and healthy", state)
	}

	if err := tracker.UpdateFromHeaders(ctx, budgetHeaders(75, 120)); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err = tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() after update error = %v", err)
	}
	if state.Remaining != 75 {
		t.Errorf("Remaining = %d, want 75", state.Remaining)
	}
	if !state.IsHealthy {
		t.Error("State with 75 remaining should be healthy")
	}

	d := state.TimeUntilReset()
	if d < 115*time.Second || d > 125*time.Second {
		t.Errorf("TimeUntilReset = %v, want approximately 2m", d)
	}

	ttl, err := redisClient.TTL(ctx, tracker.keyRemaining()).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 {
		t.Errorf("TTL = %v, want keys to expire", ttl)
	}
}

func TestTracker_Integration_SeparatePrefixes(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	a := NewTracker(redisClient, logger, WithKeyPrefix("api-a"))
	b := NewTracker(redisClient, logger, WithKeyPrefix("api-b"))
	ctx := context.Background()

	if err := a.UpdateFromHeaders(ctx, budgetHeaders(2, 60)); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	if err := a.Allow(ctx); !errors.Is(err, ErrBlocked) {
		t.Errorf("a.Allow() error = %v, want ErrBlocked", err)
	}
	if err := b.Allow(ctx); err != nil {
		t.Errorf("b.Allow() error = %v, want nil", err)
	}
}

func TestTracker_Integration_Allow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, logger, WithThrottleDelay(300*time.Millisecond))
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		if err := tracker.UpdateFromHeaders(ctx, budgetHeaders(90, 60)); err != nil {
			t.Fatalf("UpdateFromHeaders() error = %v", err)
		}
		start := time.Now()
		if err := tracker.Allow(ctx); err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if d := time.Since(start); d > 100*time.Millisecond {
			t.Errorf("Allow() took %v, want no throttling", d)
		}
	})

	t.Run("throttled", func(t *testing.T) {
		if err := tracker.UpdateFromHeaders(ctx, budgetHeaders(15, 60)); err != nil {
			t.Fatalf("UpdateFromHeaders() error = %v", err)
		}
		start := time.Now()
		if err := tracker.Allow(ctx); err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if d := time.Since(start); d < 250*time.Millisecond {
			t.Errorf("Allow() took %v, want throttling", d)
		}
	})

	t.Run("throttle honours cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := tracker.Allow(cctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Allow() error = %v, want context.Canceled", err)
		}
	})

	t.Run("blocked", func(t *testing.T) {
		if err := tracker.UpdateFromHeaders(ctx, budgetHeaders(3, 60)); err != nil {
			t.Fatalf("UpdateFromHeaders() error = %v", err)
		}
		if err := tracker.Allow(ctx); !errors.Is(err, ErrBlocked) {
			t.Errorf("Allow() error = %v, want ErrBlocked", err)
		}
	})
}

func TestTracker_Integration_WindowRollover(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, logger)
	ctx := context.Background()

	if err := tracker.UpdateFromHeaders(ctx, budgetHeaders(3, 1)); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	if err := tracker.Allow(ctx); !errors.Is(err, ErrBlocked) {
		t.Fatalf("Allow() error = %v, want ErrBlocked", err)
	}

	time.Sleep(2 * time.Second)

	if err := tracker.Allow(ctx); err != nil {
		t.Errorf("Allow() after reset error = %v, want nil", err)
	}
}
