package pagination

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/netpager/pkg/live"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	loadInitial = "initial"
	loadAfter   = "after"
)

// Fetcher loads the pages of one listing key using page-number cursors.
//
// The paging consumer calls LoadInitial exactly once and waits for it to
// finish before it issues any LoadAfter, and it never has two LoadAfter
// calls in flight. The two state streams therefore need no extra
// synchronisation beyond what live.Value provides.
type Fetcher[T any] struct {
	id     uuid.UUID
	key    string
	source Source[T]
	exec   Executor
	ctx    context.Context
	logger zerolog.Logger

	// retry holds the replay of the last failed load, if any.
	retry atomic.Pointer[func()]

	networkState *live.Value[NetworkState]
	initialLoad  *live.Value[NetworkState]

	mu            sync.Mutex
	invalid       bool
	onInvalidated []func()
}

// NewFetcher creates a fetcher bound to key. Appends and retries run on
// exec; fetches use ctx.
func NewFetcher[T any](ctx context.Context, source Source[T], key string, exec Executor) *Fetcher[T] {
	if source == nil {
		panic("source cannot be nil")
	}
	if exec == nil {
		panic("executor cannot be nil")
	}

	id := uuid.New()
	return &Fetcher[T]{
		id:     id,
		key:    key,
		source: source,
		exec:   exec,
		ctx:    ctx,
		logger: log.With().
			Str("component", "fetcher").
			Str("fetcher_id", id.String()).
			Str("key", key).
			Logger(),
		networkState: live.NewValue(Idle()),
		initialLoad:  live.NewValue(Idle()),
	}
}

// ID identifies this fetcher instance.
func (f *Fetcher[T]) ID() uuid.UUID { return f.id }

// Key returns the listing key the fetcher is bound to.
func (f *Fetcher[T]) Key() string { return f.key }

// NetworkState is the aggregate status of the most recent load.
func (f *Fetcher[T]) NetworkState() *live.Value[NetworkState] { return f.networkState }

// InitialLoad is the status of the first load only.
func (f *Fetcher[T]) InitialLoad() *live.Value[NetworkState] { return f.initialLoad }

// MarkLoading posts Loading to both streams. Callers that schedule
// LoadInitial on an executor use it so the fetcher never shows Idle while
// the load waits for a worker.
func (f *Fetcher[T]) MarkLoading() {
	f.networkState.Set(Loading())
	f.initialLoad.Set(Loading())
}

// LoadInitial fetches the first page and blocks until it is done. On
// success cb receives the items and the cursor of the second page. On
// failure cb is not called and a retry is recorded.
func (f *Fetcher[T]) LoadInitial(params InitialParams, cb Callback[T]) {
	f.retry.Store(nil)
	f.MarkLoading()

	page, err := f.fetch(loadInitial, 0, params.RequestedSize)
	if err != nil {
		f.setRetry(func() {
			f.LoadInitial(params, cb)
		})
		state := Failed(err.Error(), err.Kind)
		f.networkState.Set(state)
		f.initialLoad.Set(state)
		return
	}

	f.retry.Store(nil)
	f.networkState.Set(Loaded())
	f.initialLoad.Set(Loaded())

	cb(LoadResult[T]{Items: page.Items, Next: params.nextPage(), HasNext: page.HasMore})
}

// LoadAfter fetches the page at params.Key on the executor and returns
// immediately. Only the aggregate state is updated.
func (f *Fetcher[T]) LoadAfter(params AfterParams, cb Callback[T]) {
	f.retry.Store(nil)
	f.networkState.Set(Loading())

	f.exec.Execute(func() {
		f.runAfter(params, cb)
	})
}

// runAfter runs on the executor. Its retry replays the fetch in place
// instead of queueing another task from inside a worker.
func (f *Fetcher[T]) runAfter(params AfterParams, cb Callback[T]) {
	page, err := f.fetch(loadAfter, params.Key, params.RequestedSize)
	if err != nil {
		f.setRetry(func() {
			f.networkState.Set(Loading())
			f.runAfter(params, cb)
		})
		f.networkState.Set(Failed(err.Error(), err.Kind))
		return
	}

	f.retry.Store(nil)
	cb(LoadResult[T]{Items: page.Items, Next: params.Key + 1, HasNext: page.HasMore})
	f.networkState.Set(Loaded())
}

// LoadBefore does nothing: listings only ever grow forward from the
// initial page.
func (f *Fetcher[T]) LoadBefore(params BeforeParams, cb Callback[T]) {}

// RetryAllFailed replays the last failed load on the executor. The pending
// retry is taken atomically, so concurrent callers replay it at most once.
// Without a pending retry it does nothing.
func (f *Fetcher[T]) RetryAllFailed() {
	prev := f.retry.Swap(nil)
	if prev == nil {
		return
	}

	Retries.Inc()
	f.logger.Info().Msg("Retrying failed load")
	f.exec.Execute(*prev)
}

// HasPendingRetry reports whether a failed load is waiting for a retry.
func (f *Fetcher[T]) HasPendingRetry() bool {
	return f.retry.Load() != nil
}

// Invalidate marks the fetcher as stale and notifies OnInvalidated
// callbacks. Only the first call has an effect.
func (f *Fetcher[T]) Invalidate() {
	f.mu.Lock()
	if f.invalid {
		f.mu.Unlock()
		return
	}
	f.invalid = true
	callbacks := slices.Clone(f.onInvalidated)
	f.mu.Unlock()

	Invalidations.Inc()
	f.logger.Info().Msg("Fetcher invalidated")

	for _, cb := range callbacks {
		cb()
	}
}

// Invalid reports whether Invalidate has been called.
func (f *Fetcher[T]) Invalid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalid
}

// OnInvalidated registers cb to run on invalidation. If the fetcher is
// already invalid cb runs immediately.
func (f *Fetcher[T]) OnInvalidated(cb func()) {
	f.mu.Lock()
	if f.invalid {
		f.mu.Unlock()
		cb()
		return
	}
	f.onInvalidated = append(f.onInvalidated, cb)
	f.mu.Unlock()
}

func (f *Fetcher[T]) setRetry(fn func()) {
	f.retry.Store(&fn)
}

// fetch calls the source and records the outcome.
func (f *Fetcher[T]) fetch(load string, pageNum, limit int) (Page[T], *FetchError) {
	start := time.Now()
	page, err := f.source.FetchPage(f.ctx, f.key, pageNum, limit)
	duration := time.Since(start)
	PageLoadDuration.WithLabelValues(load).Observe(duration.Seconds())

	if err != nil {
		fe := classify(err)
		PageLoads.WithLabelValues(load, string(fe.Kind)).Inc()
		f.logger.Warn().
			Err(fe.Unwrap()).
			Str("load", load).
			Int("page", pageNum).
			Str("error_kind", string(fe.Kind)).
			Int("status", fe.StatusCode).
			Dur("duration", duration).
			Msg("Page load failed")
		return Page[T]{}, fe
	}

	PageLoads.WithLabelValues(load, "success").Inc()
	f.logger.Debug().
		Str("load", load).
		Int("page", pageNum).
		Int("items", len(page.Items)).
		Bool("has_more", page.HasMore).
		Dur("duration", duration).
		Msg("Page loaded")
	return page, nil
}
