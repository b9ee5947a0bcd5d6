package live

import (
	"context"
	"sync"
)

// Switch mirrors the Value it currently follows into its own output Value.
// Updates that arrive from a source after Follow has moved on to another
// source are discarded.
type Switch[T any] struct {
	out *Value[T]

	mu   sync.Mutex
	src  *Value[T]
	stop context.CancelFunc
}

// NewSwitch creates a Switch whose output holds initial until the first
// Follow.
func NewSwitch[T any](initial T) *Switch[T] {
	return &Switch[T]{out: NewValue(initial)}
}

// Value returns the stable output stream.
func (s *Switch[T]) Value() *Value[T] {
	return s.out
}

// Follow makes src the only source of the output stream. The output takes
// src's current value before Follow returns.
func (s *Switch[T]) Follow(src *Value[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.src == src {
		return
	}
	if s.stop != nil {
		s.stop()
	}

	ctx, stop := context.WithCancel(context.Background())
	s.src, s.stop = src, stop
	ch := src.Subscribe(ctx)
	s.out.Set(src.Get())

	go s.forward(src, ch)
}

// Following reports the source currently mirrored, or nil.
func (s *Switch[T]) Following() *Value[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src
}

// Close detaches from the current source and closes the output stream.
func (s *Switch[T]) Close() {
	s.mu.Lock()
	if s.stop != nil {
		s.stop()
	}
	s.src, s.stop = nil, nil
	s.mu.Unlock()

	s.out.Close()
}

func (s *Switch[T]) forward(src *Value[T], ch <-chan T) {
	for v := range ch {
		s.mu.Lock()
		if s.src == src {
			s.out.Set(v)
		}
		s.mu.Unlock()
	}
}
