package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrBlocked is returned by Allow while the budget is exhausted.
var ErrBlocked = errors.New("rate limit exhausted")

// DefaultKeyPrefix namespaces the Redis keys.
const DefaultKeyPrefix = "netpager:ratelimit"

// Prometheus metrics for rate limit tracking.
var (
	requestsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netpager_ratelimit_remaining",
		Help: "Requests remaining in the current rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netpager_ratelimit_blocks_total",
		Help: "Total number of requests blocked on an exhausted rate limit",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netpager_ratelimit_throttles_total",
		Help: "Total number of requests delayed on a low rate limit",
	})
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithKeyPrefix sets the Redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(t *Tracker) { t.prefix = prefix }
}

// WithThrottleDelay sets how long a throttled request waits.
func WithThrottleDelay(d time.Duration) Option {
	return func(t *Tracker) { t.throttleDelay = d }
}

// Tracker keeps the shared request budget in Redis and gates requests on it.
type Tracker struct {
	redis         *redis.Client
	logger        zerolog.Logger
	prefix        string
	throttleDelay time.Duration
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		redis:         redisClient,
		logger:        logger,
		prefix:        DefaultKeyPrefix,
		throttleDelay: time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) keyRemaining() string  { return t.prefix + ":remaining" }
func (t *Tracker) keyReset() string      { return t.prefix + ":reset_timestamp" }
func (t *Tracker) keyLastUpdate() string { return t.prefix + ":last_update" }

// GetState reads the budget from Redis. Without stored state the budget is
// assumed healthy.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	vals, err := t.redis.MGet(ctx, t.keyRemaining(), t.keyReset(), t.keyLastUpdate()).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	if vals[0] == nil || vals[1] == nil {
		t.logger.Debug().Msg("No rate limit state in Redis, assuming healthy")
		return defaultState(time.Now()), nil
	}

	remaining, err := strconv.Atoi(fmt.Sprint(vals[0]))
	if err != nil {
		return nil, fmt.Errorf("parse remaining: %w", err)
	}
	resetUnix, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse reset timestamp: %w", err)
	}

	now := time.Now()
	if !now.Before(time.Unix(resetUnix, 0)) {
		// The stored window is over; the budget is full again.
		return defaultState(now), nil
	}

	var lastUpdate time.Time
	if s, ok := vals[2].(string); ok && s != "" {
		if err := json.Unmarshal([]byte(s), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &State{
		Remaining:  remaining,
		ResetAt:    time.Unix(resetUnix, 0),
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()
	return state, nil
}

// UpdateFromHeaders stores the budget reported by a response. Responses
// without rate limit headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers, time.Now())
	if err != nil || !ok {
		return err
	}

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	// Keys outlive the window a little so a quiet API does not keep a stale
	// budget forever.
	ttl := state.TimeUntilReset() + time.Minute

	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, t.keyRemaining(), state.Remaining, ttl)
	pipe.Set(ctx, t.keyReset(), state.ResetAt.Unix(), ttl)
	pipe.Set(ctx, t.keyLastUpdate(), lastUpdateJSON, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	requestsRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsBlock():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit exhausted, requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit low, requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Rate limit state updated")
	}
	return nil
}

// Allow decides whether a request may go out now. It returns an error
// wrapping ErrBlocked while the budget is exhausted and waits for the
// throttle delay when the budget is low.
func (t *Tracker) Allow(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		return err
	}

	if state.NeedsBlock() {
		wait := state.TimeUntilReset()
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", wait).
			Msg("Rate limit exhausted, blocking request")
		rateLimitBlocksTotal.Inc()
		return fmt.Errorf("%w: resets in %s", ErrBlocked, wait.Round(time.Second))
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("delay", t.throttleDelay).
			Msg("Rate limit low, throttling request")
		rateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(t.throttleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return nil
}
