package driver

import (
	"context"
	"sync/atomic"
)

// Signal is resolved exactly once when its transfer completes, fails or
// is cancelled.
type Signal struct {
	ID string

	done     chan struct{}
	err      error
	resolved atomic.Bool
}

func newSignal(id string) *Signal {
	return &Signal{ID: id, done: make(chan struct{})}
}

// resolve reports false when s was already resolved; err is then dropped.
func (s *Signal) resolve(err error) bool {
	if !s.resolved.CompareAndSwap(false, true) {
		return false
	}
	s.err = err
	close(s.done)
	return true
}

// Done returns a channel closed on resolution.
func (s *Signal) Done() <-chan struct{} { return s.done }

// Resolved reports whether s has been resolved.
func (s *Signal) Resolved() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Err blocks until s resolves and returns its error, nil on success.
func (s *Signal) Err() error {
	<-s.done
	return s.err
}

// Wait is Err bounded by ctx. An expired ctx does not resolve s.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
