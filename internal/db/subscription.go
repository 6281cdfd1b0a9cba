package db

import (
	"context"
	"sync"
)

// Snapshot is one push of a live query: the complete current result set, or
// the error that ended the subscription.
type Snapshot[T any] struct {
	Items []T
	Err   error
}

// Subscription delivers snapshots of a live query until Cancel is called or
// the parent context ends. Only the latest undelivered snapshot is kept: a slow
// reader skips intermediate states but always observes the most recent one.
// Cancel never writes to the store.
type Subscription[T any] struct {
	ch     chan Snapshot[T]
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newSubscription[T any](ctx context.Context) (*Subscription[T], context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		ch:     make(chan Snapshot[T], 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		<-ctx.Done()
		s.close()
	}()
	return s, ctx
}

// C returns the snapshot channel. It is closed after cancellation.
func (s *Subscription[T]) C() <-chan Snapshot[T] {
	return s.ch
}

// Done is closed once the subscription has stopped.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Cancel stops the subscription. It is safe to call more than once.
func (s *Subscription[T]) Cancel() {
	s.cancel()
	s.close()
}

// push replaces any pending snapshot with snap.
func (s *Subscription[T]) push(snap Snapshot[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
	return true
}

func (s *Subscription[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	close(s.done)
}
