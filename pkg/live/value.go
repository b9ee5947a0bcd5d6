// Package live provides observable "latest value" streams.
//
// A Value holds a single current value and broadcasts every update to its
// subscribers. Each subscription is a channel with a buffer of one: a slow
// reader never blocks the writer, it simply skips to the newest value. A
// Switch is a stable proxy over whichever Value it currently follows, so
// readers can keep one subscription while the underlying source is swapped.
package live

import (
	"context"
	"sync"
)

// Value is a single-slot broadcaster. The zero value is not usable; use
// NewValue.
type Value[T any] struct {
	mu     sync.Mutex
	val    T
	subs   map[chan T]struct{}
	done   chan struct{}
	closed bool
}

// NewValue creates a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		val:  initial,
		subs: make(map[chan T]struct{}),
		done: make(chan struct{}),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val
}

// Set stores val and offers it to every subscriber. Setting a closed Value
// is a no-op.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.val = val
	for sub := range v.subs {
		offer(sub, val)
	}
}

// Subscribe returns a channel that receives the current value immediately
// and then every subsequent update, newest first when the reader lags. The
// channel is closed when ctx is done or the Value is closed.
func (v *Value[T]) Subscribe(ctx context.Context) <-chan T {
	v.mu.Lock()
	defer v.mu.Unlock()

	sub := make(chan T, 1)
	sub <- v.val
	if v.closed {
		close(sub)
		return sub
	}
	v.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-v.done:
		}
		v.unsubscribe(sub)
	}()

	return sub
}

// Close closes every subscription. The last value stays readable via Get.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.closed = true
	close(v.done)
	for sub := range v.subs {
		close(sub)
		delete(v.subs, sub)
	}
}

func (v *Value[T]) unsubscribe(sub chan T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.subs[sub]; !ok {
		// already unsubscribed
		return
	}
	close(sub)
	delete(v.subs, sub)
}

// offer replaces whatever is buffered in sub with val. Only Set and
// Subscribe send, both under the Value's lock, so the send cannot block.
func offer[T any](sub chan T, val T) {
	select {
	case <-sub:
	default:
	}
	select {
	case sub <- val:
	default:
	}
}
