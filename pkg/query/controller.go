// Package query tracks which listing key is on screen.
package query

import (
	"sync"

	"github.com/Sternrassler/netpager/pkg/listing"
	"github.com/Sternrassler/netpager/pkg/live"
	"github.com/Sternrassler/netpager/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Repository produces a listing for a key.
type Repository[T any] interface {
	ListingFor(key string, pageSize int) *listing.Listing[T]
}

// Controller holds the current key and the listing bound to it. Its streams
// follow whichever listing is current.
type Controller[T any] struct {
	repo     Repository[T]
	pageSize int
	logger   zerolog.Logger

	mu      sync.Mutex
	key     string
	hasKey  bool
	listing *listing.Listing[T]

	items        *live.Switch[[]T]
	networkState *live.Switch[pagination.NetworkState]
	refreshState *live.Switch[pagination.NetworkState]
}

// NewController creates a controller with no key.
func NewController[T any](repo Repository[T], pageSize int) *Controller[T] {
	return &Controller[T]{
		repo:         repo,
		pageSize:     pageSize,
		logger:       log.With().Str("component", "query").Logger(),
		items:        live.NewSwitch[[]T](nil),
		networkState: live.NewSwitch(pagination.Idle()),
		refreshState: live.NewSwitch(pagination.Idle()),
	}
}

// SetKey shows key. It returns false without doing anything when key is
// already shown; otherwise the old listing is replaced and it returns true,
// which callers use to reset their scroll position.
func (c *Controller[T]) SetKey(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasKey && c.key == key {
		return false
	}

	previous := c.listing
	c.key, c.hasKey = key, true
	c.listing = c.repo.ListingFor(key, c.pageSize)

	c.items.Follow(c.listing.Items())
	c.networkState.Follow(c.listing.NetworkState())
	c.refreshState.Follow(c.listing.RefreshState())

	if previous != nil {
		previous.Close()
	}

	c.logger.Info().Str("key", key).Msg("Key changed")
	return true
}

// CurrentKey returns the shown key; ok is false before the first SetKey.
func (c *Controller[T]) CurrentKey() (key string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key, c.hasKey
}

// Items streams the items of the current listing.
func (c *Controller[T]) Items() *live.Value[[]T] { return c.items.Value() }

// NetworkState streams the aggregate state of the current listing.
func (c *Controller[T]) NetworkState() *live.Value[pagination.NetworkState] {
	return c.networkState.Value()
}

// RefreshState streams the initial-load state of the current listing.
func (c *Controller[T]) RefreshState() *live.Value[pagination.NetworkState] {
	return c.refreshState.Value()
}

// Refresh reloads the current listing.
func (c *Controller[T]) Refresh() {
	if l := c.current(); l != nil {
		l.Refresh()
	}
}

// Retry replays the current listing's failed load.
func (c *Controller[T]) Retry() {
	if l := c.current(); l != nil {
		l.Retry()
	}
}

// LoadAround reports that the item at index of the current listing is
// visible.
func (c *Controller[T]) LoadAround(index int) {
	if l := c.current(); l != nil {
		l.LoadAround(index)
	}
}

// Listing returns the current listing, or nil before the first SetKey.
func (c *Controller[T]) Listing() *listing.Listing[T] {
	return c.current()
}

// Close releases the current listing and the controller's streams.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	l := c.listing
	c.listing = nil
	c.mu.Unlock()

	if l != nil {
		l.Close()
	}
	c.items.Close()
	c.networkState.Close()
	c.refreshState.Close()
}

func (c *Controller[T]) current() *listing.Listing[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listing
}
