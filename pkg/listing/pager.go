package listing

import (
	"slices"
	"sync"

	"github.com/Sternrassler/netpager/pkg/live"
	"github.com/Sternrassler/netpager/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds paging configuration
type Config struct {
	// PageSize is the number of items requested per append
	PageSize int
	// InitialLoadSize is the number of items requested by the first load,
	// rounded up to whole pages (default: 3 * PageSize)
	InitialLoadSize int
	// PrefetchDistance is how close to the loaded edge LoadAround must get
	// before the next page is requested (default: PageSize)
	PrefetchDistance int
}

// DefaultConfig returns the default paging configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:         30,
		InitialLoadSize:  90,
		PrefetchDistance: 30,
	}
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = 30
	}
	if c.InitialLoadSize <= 0 {
		c.InitialLoadSize = 3 * c.PageSize
	}
	// Page cursors count in PageSize units, so the first load covers whole
	// pages.
	if rem := c.InitialLoadSize % c.PageSize; rem != 0 {
		c.InitialLoadSize += c.PageSize - rem
	}
	if c.PrefetchDistance <= 0 {
		c.PrefetchDistance = c.PageSize
	}
	return c
}

// Pager is the paging consumer. It keeps the committed window of items,
// loads the first page of every new fetcher, appends pages on demand and
// replaces its fetcher when the current one is invalidated.
//
// Results from a fetcher that is no longer current are dropped. After a
// failed append no further append is issued until a retry delivers it.
type Pager[T any] struct {
	factory *Factory[T]
	exec    pagination.Executor
	config  Config
	logger  zerolog.Logger

	mu          sync.Mutex
	fetcher     *pagination.Fetcher[T]
	items       []T
	next        int
	hasNext     bool
	initialized bool
	appending   bool
	started     bool
	closed      bool

	published *live.Value[[]T]
}

// NewPager creates a pager over factory. Initial loads run on exec.
// Every fetcher the factory creates is marked Loading before later OnCreate
// hooks see it, since the pager schedules its initial load right away.
func NewPager[T any](factory *Factory[T], exec pagination.Executor, config Config) *Pager[T] {
	p := &Pager[T]{
		factory:   factory,
		exec:      exec,
		config:    config.withDefaults(),
		logger:    log.With().Str("component", "pager").Str("key", factory.Key()).Logger(),
		published: live.NewValue[[]T](nil),
	}
	factory.OnCreate(func(f *pagination.Fetcher[T]) {
		f.MarkLoading()
	})
	return p
}

// Start creates the first fetcher and schedules its initial load.
// Subsequent calls do nothing.
func (p *Pager[T]) Start() {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.switchTo(p.factory.Create())
}

// Items streams the committed window. Published slices are never mutated.
func (p *Pager[T]) Items() *live.Value[[]T] {
	return p.published
}

// Snapshot returns the committed items.
func (p *Pager[T]) Snapshot() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.items)
}

// HasMore reports whether another page can be appended.
func (p *Pager[T]) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.initialized || p.hasNext
}

// LoadAround tells the pager that the item at index is visible. When index
// is within PrefetchDistance of the end of the window the next page is
// requested.
func (p *Pager[T]) LoadAround(index int) {
	p.mu.Lock()
	if p.closed || !p.initialized || p.appending || !p.hasNext {
		p.mu.Unlock()
		return
	}
	if index < len(p.items)-p.config.PrefetchDistance {
		p.mu.Unlock()
		return
	}

	fetcher := p.fetcher
	params := pagination.AfterParams{Key: p.next, RequestedSize: p.config.PageSize}
	p.appending = true
	p.mu.Unlock()

	p.logger.Debug().Int("page", params.Key).Int("index", index).Msg("Requesting next page")
	fetcher.LoadAfter(params, func(res pagination.LoadResult[T]) {
		p.onAppend(fetcher, res)
	})
}

// Close stops the pager and closes the item stream.
func (p *Pager[T]) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.published.Close()
}

func (p *Pager[T]) switchTo(fetcher *pagination.Fetcher[T]) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.fetcher = fetcher
	p.initialized = false
	p.appending = false
	p.mu.Unlock()

	fetcher.OnInvalidated(func() {
		p.onInvalidated(fetcher)
	})

	params := pagination.InitialParams{RequestedSize: p.config.InitialLoadSize, PageSize: p.config.PageSize}
	p.exec.Execute(func() {
		fetcher.LoadInitial(params, func(res pagination.LoadResult[T]) {
			p.onInitial(fetcher, res)
		})
	})
}

func (p *Pager[T]) onInvalidated(fetcher *pagination.Fetcher[T]) {
	p.mu.Lock()
	current := p.fetcher == fetcher && !p.closed
	p.mu.Unlock()

	if !current {
		return
	}
	p.switchTo(p.factory.Create())
}

func (p *Pager[T]) onInitial(fetcher *pagination.Fetcher[T], res pagination.LoadResult[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.fetcher != fetcher {
		StaleResults.WithLabelValues("initial").Inc()
		p.logger.Debug().Str("fetcher_id", fetcher.ID().String()).Msg("Dropping initial page of replaced fetcher")
		return
	}

	p.items = slices.Clone(res.Items)
	p.next, p.hasNext = res.Next, res.HasNext
	p.initialized = true
	ItemsLoaded.Add(float64(len(res.Items)))
	p.published.Set(slices.Clip(p.items))
}

func (p *Pager[T]) onAppend(fetcher *pagination.Fetcher[T], res pagination.LoadResult[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.fetcher != fetcher {
		StaleResults.WithLabelValues("after").Inc()
		p.logger.Debug().Str("fetcher_id", fetcher.ID().String()).Msg("Dropping appended page of replaced fetcher")
		return
	}

	p.items = append(p.items, res.Items...)
	p.next, p.hasNext = res.Next, res.HasNext
	p.appending = false
	ItemsLoaded.Add(float64(len(res.Items)))
	p.published.Set(slices.Clip(p.items))
}
