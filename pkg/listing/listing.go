// Package listing binds a listing key to a stream of pages.
//
// A Listing owns a fetcher Factory and a Pager. Its state streams are
// stable: they follow whichever fetcher the factory produced last, so a
// refresh swaps the fetcher underneath without readers re-subscribing, and
// late results from a replaced fetcher never reach them.
package listing

import (
	"context"

	"github.com/Sternrassler/netpager/pkg/live"
	"github.com/Sternrassler/netpager/pkg/pagination"
)

// Listing is everything a view needs to show one paginated key.
type Listing[T any] struct {
	factory      *Factory[T]
	pager        *Pager[T]
	networkState *live.Switch[pagination.NetworkState]
	refreshState *live.Switch[pagination.NetworkState]
}

// Key returns the listing key.
func (l *Listing[T]) Key() string { return l.factory.Key() }

// Items streams the loaded items.
func (l *Listing[T]) Items() *live.Value[[]T] { return l.pager.Items() }

// NetworkState streams the aggregate state of the current fetcher.
func (l *Listing[T]) NetworkState() *live.Value[pagination.NetworkState] {
	return l.networkState.Value()
}

// RefreshState streams the initial-load state of the current fetcher.
func (l *Listing[T]) RefreshState() *live.Value[pagination.NetworkState] {
	return l.refreshState.Value()
}

// Refresh invalidates the current fetcher. The items already shown stay
// until the replacement's first page arrives.
func (l *Listing[T]) Refresh() {
	if f := l.factory.Current(); f != nil {
		f.Invalidate()
	}
}

// Retry replays the current fetcher's failed load, if any.
func (l *Listing[T]) Retry() {
	if f := l.factory.Current(); f != nil {
		f.RetryAllFailed()
	}
}

// LoadAround reports that the item at index is visible.
func (l *Listing[T]) LoadAround(index int) {
	l.pager.LoadAround(index)
}

// HasMore reports whether more pages may follow.
func (l *Listing[T]) HasMore() bool {
	return l.pager.HasMore()
}

// Close releases the listing's streams.
func (l *Listing[T]) Close() {
	l.pager.Close()
	l.networkState.Close()
	l.refreshState.Close()
}

// Repository hands out listings backed by one source.
type Repository[T any] struct {
	ctx    context.Context
	source pagination.Source[T]
	exec   pagination.Executor
	config Config
}

// NewRepository creates a repository. Fetches run with ctx on exec.
func NewRepository[T any](ctx context.Context, source pagination.Source[T], exec pagination.Executor, config Config) *Repository[T] {
	if source == nil {
		panic("source cannot be nil")
	}
	if exec == nil {
		panic("executor cannot be nil")
	}
	return &Repository[T]{ctx: ctx, source: source, exec: exec, config: config}
}

// ListingFor starts loading key with pages of pageSize items.
func (r *Repository[T]) ListingFor(key string, pageSize int) *Listing[T] {
	config := r.config
	if pageSize > 0 && pageSize != config.PageSize {
		config.PageSize = pageSize
		config.InitialLoadSize = 0
		config.PrefetchDistance = 0
	}

	factory := NewFactory(r.ctx, r.source, key, r.exec)
	l := &Listing[T]{
		factory:      factory,
		networkState: live.NewSwitch(pagination.Idle()),
		refreshState: live.NewSwitch(pagination.Idle()),
	}
	// The pager's hook runs first, so the streams pick up Loading.
	l.pager = NewPager(factory, r.exec, config)
	factory.OnCreate(func(f *pagination.Fetcher[T]) {
		l.networkState.Follow(f.NetworkState())
		l.refreshState.Follow(f.InitialLoad())
	})
	l.pager.Start()
	return l
}
