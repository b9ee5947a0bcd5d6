package listing

import (
	"context"
	"slices"
	"sync"

	"github.com/Sternrassler/netpager/pkg/live"
	"github.com/Sternrassler/netpager/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Factory creates fetchers for one listing key and remembers the most
// recent one.
type Factory[T any] struct {
	ctx    context.Context
	source pagination.Source[T]
	key    string
	exec   pagination.Executor
	logger zerolog.Logger

	mu      sync.Mutex
	hooks   []func(*pagination.Fetcher[T])
	current *live.Value[*pagination.Fetcher[T]]
}

// NewFactory creates a fetcher factory bound to key.
func NewFactory[T any](ctx context.Context, source pagination.Source[T], key string, exec pagination.Executor) *Factory[T] {
	return &Factory[T]{
		ctx:     ctx,
		source:  source,
		key:     key,
		exec:    exec,
		logger:  log.With().Str("component", "fetcher-factory").Str("key", key).Logger(),
		current: live.NewValue[*pagination.Fetcher[T]](nil),
	}
}

// OnCreate registers hook to run for every new fetcher, after it became
// current and before Create returns it.
func (f *Factory[T]) OnCreate(hook func(*pagination.Fetcher[T])) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, hook)
}

// Create builds a new fetcher and makes it current.
func (f *Factory[T]) Create() *pagination.Fetcher[T] {
	fetcher := pagination.NewFetcher(f.ctx, f.source, f.key, f.exec)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.current.Set(fetcher)
	for _, hook := range slices.Clone(f.hooks) {
		hook(fetcher)
	}

	FetchersCreated.Inc()
	f.logger.Info().Str("fetcher_id", fetcher.ID().String()).Msg("Fetcher created")
	return fetcher
}

// Current returns the most recently created fetcher, or nil.
func (f *Factory[T]) Current() *pagination.Fetcher[T] {
	return f.current.Get()
}

// Fetchers streams the current fetcher.
func (f *Factory[T]) Fetchers() *live.Value[*pagination.Fetcher[T]] {
	return f.current
}

// Key returns the listing key.
func (f *Factory[T]) Key() string {
	return f.key
}
