// Command netpager loads a paginated listing from the listing API, prints
// it, and optionally keeps serving health and metrics endpoints.
//
// Configuration comes from netpager.yaml (or the file named by
// NETPAGER_CONFIG) and NETPAGER_* environment variables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Sternrassler/netpager/pkg/client"
	"github.com/Sternrassler/netpager/pkg/config"
	"github.com/Sternrassler/netpager/pkg/listing"
	"github.com/Sternrassler/netpager/pkg/logging"
	"github.com/Sternrassler/netpager/pkg/metrics"
	"github.com/Sternrassler/netpager/pkg/pagination"
	"github.com/Sternrassler/netpager/pkg/query"
	"github.com/Sternrassler/netpager/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxLoadRetries bounds how often the demo retries a failed page.
const maxLoadRetries = 3

func main() {
	cfg, err := config.Load(os.Getenv("NETPAGER_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.LogConfig())
	logger := logging.NewLogger("netpager")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, logger); err != nil {
		logger.Error().Err(err).Msg("netpager failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, out io.Writer, logger zerolog.Logger) error {
	var redisClient *redis.Client
	var tracker *ratelimit.Tracker
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, rate limit checks will be skipped")
		} else {
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		}
		tracker = ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"), ratelimit.WithKeyPrefix(cfg.Redis.KeyPrefix))
	}

	apiClient, err := client.New(clientConfig(cfg, tracker))
	if err != nil {
		return fmt.Errorf("create listing client: %w", err)
	}
	defer apiClient.Close()

	pool := pagination.NewWorkerPool(pagination.PoolConfig{
		Workers:   cfg.Paging.Workers,
		QueueSize: cfg.Paging.QueueSize,
	})
	defer pool.Close()

	repo := listing.NewRepository[client.Post](ctx, apiClient, pool, listing.Config{
		PageSize:         cfg.Paging.PageSize,
		InitialLoadSize:  cfg.Paging.InitialLoadSize,
		PrefetchDistance: cfg.Paging.PrefetchDistance,
	})
	ctrl := query.NewController[client.Post](repo, cfg.Paging.PageSize)
	defer ctrl.Close()

	ctrl.SetKey(cfg.Query.Key)
	logger.Info().
		Str("key", cfg.Query.Key).
		Int("pages", cfg.Query.Pages).
		Str("base_url", cfg.API.BaseURL).
		Msg("Loading listing")

	posts, loadErr := loadPages(ctx, ctrl, cfg.Query.Pages*cfg.Paging.PageSize, logger)
	printPosts(out, posts)
	if loadErr != nil && !cfg.Server.Serve {
		return loadErr
	}
	if loadErr != nil {
		logger.Warn().Err(loadErr).Msg("Listing incomplete, serving anyway")
	}

	if !cfg.Server.Serve {
		return nil
	}
	return serve(ctx, cfg.Server.Addr, newMux(ctrl, redisClient), logger)
}

func clientConfig(cfg *config.Config, tracker *ratelimit.Tracker) client.Config {
	cc := client.DefaultConfig(cfg.API.BaseURL, cfg.API.UserAgent)
	cc.Timeout = cfg.API.Timeout
	cc.RateLimiter = tracker
	cc.Retry = client.RetryConfig{
		MaxAttempts:       cfg.API.RetryAttempts,
		InitialBackoff:    cfg.API.InitialBackoff,
		MaxBackoff:        cfg.API.MaxBackoff,
		BackoffMultiplier: 2.0,
	}
	return cc
}

// loadPages scrolls the current listing until it holds want items or has no
// more pages. A failed page is retried up to maxLoadRetries times with a
// growing pause; the count starts over once a page loads.
func loadPages(ctx context.Context, ctrl *query.Controller[client.Post], want int, logger zerolog.Logger) ([]client.Post, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := ctrl.Items().Subscribe(ctx)
	states := ctrl.NetworkState().Subscribe(ctx)

	var posts []client.Post
	retries := 0
	for {
		if err := ctx.Err(); err != nil {
			return posts, err
		}
		l := ctrl.Listing()
		if l != nil && !l.HasMore() {
			// The item stream may lag behind the pager.
			posts = l.Items().Get()
		}
		if len(posts) >= want {
			return posts[:want], nil
		}
		if l == nil || !l.HasMore() {
			return posts, nil
		}

		select {
		case <-ctx.Done():
			return posts, ctx.Err()

		case next, ok := <-items:
			if !ok {
				return posts, closedErr(ctx)
			}
			if len(next) > len(posts) {
				retries = 0
			}
			posts = next
			if len(posts) < want {
				ctrl.LoadAround(len(posts) - 1)
			}

		case state, ok := <-states:
			if !ok {
				return posts, closedErr(ctx)
			}
			switch state.Status {
			case pagination.StatusFailed:
				if retries >= maxLoadRetries {
					return posts, fmt.Errorf("load listing: %s", state.Msg)
				}
				retries++
				pause := time.Duration(retries) * 500 * time.Millisecond
				logger.Warn().
					Str("error", state.Msg).
					Str("error_kind", string(state.Kind)).
					Int("attempt", retries).
					Dur("pause", pause).
					Msg("Page load failed, retrying")
				if err := sleep(ctx, pause); err != nil {
					return posts, err
				}
				ctrl.Retry()
			case pagination.StatusLoaded:
				retries = 0
				if len(posts) < want {
					ctrl.LoadAround(len(posts) - 1)
				}
			}
		}
	}
}

func closedErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("listing closed")
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func printPosts(out io.Writer, posts []client.Post) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tTITLE\tAUTHOR\tSCORE\tURL")
	for i, p := range posts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", i+1, p.ID, p.Title, p.Author, p.Score, p.URL)
	}
	w.Flush()
}

func newMux(ctrl *query.Controller[client.Post], redisClient *redis.Client) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(redisClient, ctrl))
	mux.HandleFunc("GET /listing", listingHandler(ctrl))
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving health and metrics")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info().Msg("Shutting down")
	return srv.Shutdown(shutdownCtx)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports ready once the listing's first page is in and Redis,
// when configured, answers.
func readyHandler(redisClient *redis.Client, ctrl *query.Controller[client.Post]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, fmt.Sprintf("redis unavailable: %v", err), http.StatusServiceUnavailable)
				return
			}
		}

		if state := ctrl.RefreshState().Get(); state.Status != pagination.StatusLoaded {
			http.Error(w, fmt.Sprintf("listing not loaded: %s", state), http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

type listingStatus struct {
	Key          string        `json:"key"`
	Items        int           `json:"items"`
	NetworkState string        `json:"network_state"`
	RefreshState string        `json:"refresh_state"`
	Posts        []client.Post `json:"posts"`
}

func listingHandler(ctrl *query.Controller[client.Post]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, _ := ctrl.CurrentKey()
		posts := ctrl.Items().Get()
		status := listingStatus{
			Key:          key,
			Items:        len(posts),
			NetworkState: ctrl.NetworkState().Get().String(),
			RefreshState: ctrl.RefreshState().Get().String(),
			Posts:        posts,
		}
		if status.Posts == nil {
			status.Posts = []client.Post{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Warn().Err(err).Msg("Failed to write listing status")
		}
	}
}
