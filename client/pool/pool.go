// Package pool lends a fixed set of transfer handles to logical requests.
package pool

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"sync"

	"github.com/adamwoolhether/httpmulti/client/handle"
)

var (
	ErrClosed        = errors.New("pool closed")
	ErrNotLent       = errors.New("handle not lent by this pool")
	ErrMustNotBeZero = errors.New("must be greater than zero")
)

// sessionCacheSize bounds the shared TLS session cache.
const sessionCacheSize = 256

// NewShare returns the state shared by every handle of a pool. The cookie
// jar is only created when cookies is true.
func NewShare(cookies bool) (*handle.Share, error) {
	s := &handle.Share{
		Sessions: tls.NewLRUClientSessionCache(sessionCacheSize),
	}

	if cookies {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		s.Jar = jar
	}

	return s, nil
}

// Pool owns size handles. A handle is either idle in the pool or lent to
// exactly one caller.
type Pool struct {
	handles []handle.Handle
	idle    chan handle.Handle
	logger  *slog.Logger

	mu     sync.Mutex
	lent   map[handle.Handle]bool
	closed bool
	done   chan struct{}
}

// New creates size handles from f, each built with base.
func New(f handle.Factory, size int, base handle.Base, logger *slog.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("size[%d] %w", size, ErrMustNotBeZero)
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		handles: make([]handle.Handle, 0, size),
		idle:    make(chan handle.Handle, size),
		logger:  logger,
		lent:    make(map[handle.Handle]bool, size),
		done:    make(chan struct{}),
	}

	for range size {
		h, err := f.NewHandle(base)
		if err != nil {
			p.closeAll()
			return nil, fmt.Errorf("creating handle: %w", err)
		}
		p.handles = append(p.handles, h)
		p.idle <- h
	}

	return p, nil
}

// Acquire suspends until a handle is idle, ctx ends or the pool closes.
// The handle carries no configuration from its previous use.
func (p *Pool) Acquire(ctx context.Context) (handle.Handle, error) {
	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}

	select {
	case h := <-p.idle:
		p.mu.Lock()
		defer p.mu.Unlock()

		if p.closed {
			p.idle <- h
			return nil, ErrClosed
		}
		p.lent[h] = true

		return h, nil

	case <-ctx.Done():
		return nil, ctx.Err()

	case <-p.done:
		return nil, ErrClosed
	}
}

// Release resets h and hands it to one waiting Acquire, if any.
func (p *Pool) Release(h handle.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lent[h] {
		return ErrNotLent
	}
	delete(p.lent, h)

	h.Reset()
	p.idle <- h

	return nil
}

// Size is the fixed number of handles.
func (p *Pool) Size() int { return len(p.handles) }

// Idle is the number of handles currently in the pool.
func (p *Pool) Idle() int { return len(p.idle) }

// Lent is the number of handles currently held by callers.
func (p *Pool) Lent() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.lent)
}

// Close wakes every waiting Acquire with ErrClosed and closes all handles.
// Handles still lent are closed too, callers must not use them afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	if n := p.Lent(); n > 0 {
		p.logger.Warn("closing pool with lent handles", "lent", n)
	}

	return p.closeAll()
}

func (p *Pool) closeAll() error {
	var errs []error
	for _, h := range p.handles {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
