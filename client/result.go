package client

import (
	"context"
	"sync"
)

// Result represents an in-flight or completed request.
type Result struct {
	id     string
	done   chan struct{}
	cancel context.CancelCauseFunc

	mu   sync.Mutex
	resp *Response
	err  error
}

func newResult(id string, cancel context.CancelCauseFunc) *Result {
	return &Result{
		id:     id,
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// ID returns the request id used in logs and spans.
func (r *Result) ID() string { return r.id }

// Done returns a channel that is closed when the request completes.
func (r *Result) Done() <-chan struct{} { return r.done }

// Err blocks until the request completes and returns its error.
func (r *Result) Err() error {
	_, err := r.Response()
	return err
}

// Response blocks until the request completes.
func (r *Result) Response() (*Response, error) {
	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.resp, r.err
}

// Wait is Response bounded by ctx. When ctx ends first the request keeps
// running, use Cancel to stop it.
func (r *Result) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-r.done:
		return r.Response()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops the request. The result then resolves with an error
// matching errs.ErrCancelled unless it had already completed. Calling
// Cancel more than once is a no-op.
func (r *Result) Cancel() {
	r.cancel(errCancelRequested)
}

func (r *Result) resolve(resp *Response, err error) {
	r.mu.Lock()
	r.resp, r.err = resp, err
	r.mu.Unlock()

	close(r.done)
}
