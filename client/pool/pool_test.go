package pool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adamwoolhether/httpmulti/client/handle"
	"github.com/adamwoolhether/httpmulti/client/handle/handletest"
	"github.com/adamwoolhether/httpmulti/client/pool"
)

func newPool(t *testing.T, size int) (*pool.Pool, *handletest.Factory) {
	t.Helper()

	f := &handletest.Factory{}
	p, err := pool.New(f, size, handle.Base{}, nil)
	if err != nil {
		t.Fatalf("creating pool: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	return p, f
}

func TestNew_Validation(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := pool.New(&handletest.Factory{}, size, handle.Base{}, nil); !errors.Is(err, pool.ErrMustNotBeZero) {
			t.Errorf("size %d: expected ErrMustNotBeZero, got %v", size, err)
		}
	}
}

func TestPool_AcquireRelease(t *testing.T) {
	p, f := newPool(t, 2)

	if p.Size() != 2 || p.Idle() != 2 {
		t.Fatalf("size/idle = %d/%d, want 2/2", p.Size(), p.Idle())
	}
	if len(f.Handles) != 2 {
		t.Fatalf("factory created %d handles, want 2", len(f.Handles))
	}

	h, err := p.Acquire(t.Context())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if p.Idle() != 1 || p.Lent() != 1 {
		t.Errorf("idle/lent = %d/%d, want 1/1", p.Idle(), p.Lent())
	}

	if err := h.Configure(handle.Options{URL: "http://stale.example.com", Proxy: "http://proxy:1"}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := p.Release(h); err != nil {
		t.Fatalf("release: %v", err)
	}

	fh := h.(*handletest.Handle)
	if fh.Resets() != 1 {
		t.Errorf("resets = %d, want 1", fh.Resets())
	}
	if opts := fh.Options(); opts.URL != "" || opts.Proxy != "" {
		t.Errorf("stale options survived release: %+v", opts)
	}
	if p.Idle()+p.Lent() != p.Size() {
		t.Errorf("ownership broken: idle %d + lent %d != size %d", p.Idle(), p.Lent(), p.Size())
	}
}

func TestPool_ReleaseTwice(t *testing.T) {
	p, _ := newPool(t, 1)

	h, err := p.Acquire(t.Context())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := p.Release(h); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := p.Release(h); !errors.Is(err, pool.ErrNotLent) {
		t.Errorf("second release: got %v, want ErrNotLent", err)
	}
	if p.Idle() != 1 {
		t.Errorf("idle = %d, want 1", p.Idle())
	}
}

func TestPool_AcquireSuspends(t *testing.T) {
	p, _ := newPool(t, 1)

	h, err := p.Acquire(t.Context())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	got := make(chan handle.Handle, 1)
	go func() {
		h2, err := p.Acquire(context.Background())
		if err != nil {
			t.Errorf("waiting acquire: %v", err)
		}
		got <- h2
	}()

	select {
	case <-got:
		t.Fatal("acquire returned while the pool was empty")
	case <-time.After(50 * time.Millisecond):
	}

	if err := p.Release(h); err != nil {
		t.Fatalf("release: %v", err)
	}

	select {
	case h2 := <-got:
		if h2 != h {
			t.Error("expected the released handle")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by release")
	}
}

func TestPool_AcquireContext(t *testing.T) {
	p, _ := newPool(t, 1)

	if _, err := p.Acquire(t.Context()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestPool_Close(t *testing.T) {
	p, f := newPool(t, 1)

	if _, err := p.Acquire(t.Context()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, pool.ErrClosed) {
			t.Errorf("waiter got %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by close")
	}

	if !f.Handles[0].Closed() {
		t.Error("handle not closed")
	}
	if _, err := p.Acquire(t.Context()); !errors.Is(err, pool.ErrClosed) {
		t.Errorf("acquire after close: got %v, want ErrClosed", err)
	}
}

func TestNewShare(t *testing.T) {
	s, err := pool.NewShare(true)
	if err != nil {
		t.Fatalf("new share: %v", err)
	}
	if s.Jar == nil || s.Sessions == nil {
		t.Errorf("share incomplete: %+v", s)
	}

	s, err = pool.NewShare(false)
	if err != nil {
		t.Fatalf("new share: %v", err)
	}
	if s.Jar != nil {
		t.Error("cookie jar created with cookies disabled")
	}
}
