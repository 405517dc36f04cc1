//go:build unix

// Package eventloop is a single-goroutine reactor: it polls registered
// descriptors, fires timers and runs posted functions, all on the
// goroutine that called [Loop.Run].
//
// Only [Loop.Post] and [Loop.Close] may be called from other goroutines.
// Everything else is meant for callbacks already running on the loop, or
// for setup before Run starts.
package eventloop

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/adamwoolhether/httpmulti/client/driver"
	"github.com/adamwoolhether/httpmulti/client/internal/notify"
)

var (
	ErrClosed     = errors.New("event loop closed")
	ErrRegistered = errors.New("callback already registered")
	ErrNotFound   = errors.New("no callback registered")
)

var _ driver.Loop = (*Loop)(nil)

// Loop implements driver.Loop on top of poll(2).
type Loop struct {
	logger *slog.Logger
	wake   *notify.Pipe

	readers map[int]func()
	writers map[int]func()

	timers    timerHeap
	tokens    map[driver.Token]*timer
	nextToken driver.Token

	mu      sync.Mutex
	posted  []func()
	closed  bool
	running bool
	stopped chan struct{}
}

// New returns a loop ready to Run.
func New(logger *slog.Logger) (*Loop, error) {
	if logger == nil {
		logger = slog.Default()
	}

	wake, err := notify.New()
	if err != nil {
		return nil, fmt.Errorf("creating wake pipe: %w", err)
	}

	return &Loop{
		logger:  logger,
		wake:    wake,
		readers: make(map[int]func()),
		writers: make(map[int]func()),
		tokens:  make(map[driver.Token]*timer),
		stopped: make(chan struct{}),
	}, nil
}

// AddReader calls fn whenever fd is readable.
func (l *Loop) AddReader(fd int, fn func()) error {
	if _, ok := l.readers[fd]; ok {
		return fmt.Errorf("reader fd[%d]: %w", fd, ErrRegistered)
	}
	l.readers[fd] = fn
	return nil
}

// AddWriter calls fn whenever fd is writable.
func (l *Loop) AddWriter(fd int, fn func()) error {
	if _, ok := l.writers[fd]; ok {
		return fmt.Errorf("writer fd[%d]: %w", fd, ErrRegistered)
	}
	l.writers[fd] = fn
	return nil
}

func (l *Loop) RemoveReader(fd int) error {
	if _, ok := l.readers[fd]; !ok {
		return fmt.Errorf("reader fd[%d]: %w", fd, ErrNotFound)
	}
	delete(l.readers, fd)
	return nil
}

func (l *Loop) RemoveWriter(fd int) error {
	if _, ok := l.writers[fd]; !ok {
		return fmt.Errorf("writer fd[%d]: %w", fd, ErrNotFound)
	}
	delete(l.writers, fd)
	return nil
}

// ScheduleAfter runs fn once, d from now.
func (l *Loop) ScheduleAfter(d time.Duration, fn func()) driver.Token {
	l.nextToken++
	t := &timer{when: time.Now().Add(d), fn: fn, token: l.nextToken}
	heap.Push(&l.timers, t)
	l.tokens[t.token] = t
	return t.token
}

// CancelScheduled reports false when the callback already ran or was cancelled.
func (l *Loop) CancelScheduled(tok driver.Token) bool {
	t, ok := l.tokens[tok]
	if !ok {
		return false
	}
	delete(l.tokens, tok)
	heap.Remove(&l.timers, t.index)
	return true
}

// Post queues fn to run on the loop goroutine.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.posted = append(l.posted, fn)
	l.mu.Unlock()

	// A pipe closed after fn was queued means Run is draining posted
	// functions on its way out, fn still runs.
	if err := l.wake.Notify(); err != nil && !errors.Is(err, notify.ErrClosed) {
		return err
	}
	return nil
}

// Do runs fn on the loop goroutine and waits for it.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Run processes events until ctx ends or Close is called. Functions
// already posted run before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("event loop already running")
	}
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.running = true
	l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = l.wake.Notify() })
	defer stop()

	defer func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		l.runPosted()
		close(l.stopped)
		if err := l.wake.Close(); err != nil {
			l.logger.Error("closing wake pipe", "error", err)
		}
	}()

	var fds []unix.PollFd
	for {
		l.runPosted()
		l.runTimers()

		if l.isClosed() || ctx.Err() != nil {
			return nil
		}

		fds = l.pollSet(fds[:0])
		n, err := unix.Poll(fds, l.pollTimeout())
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			continue
		}

		l.dispatch(fds)
	}
}

// Close stops Run. It is safe to call from any goroutine.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	running := l.running
	l.mu.Unlock()

	if !running {
		close(l.stopped)
		return l.wake.Close()
	}

	if err := l.wake.Notify(); err != nil && !errors.Is(err, notify.ErrClosed) {
		return err
	}
	return nil
}

// Stopped is closed once Run has returned.
func (l *Loop) Stopped() <-chan struct{} { return l.stopped }

func (l *Loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.closed
}

func (l *Loop) runPosted() {
	l.mu.Lock()
	posted := l.posted
	l.posted = nil
	l.mu.Unlock()

	for _, fn := range posted {
		fn()
	}
}

func (l *Loop) runTimers() {
	now := time.Now()
	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		t := heap.Pop(&l.timers).(*timer)
		delete(l.tokens, t.token)
		t.fn()
	}
}

func (l *Loop) pollSet(fds []unix.PollFd) []unix.PollFd {
	fds = append(fds, unix.PollFd{Fd: int32(l.wake.Fd()), Events: unix.POLLIN})

	events := make(map[int]int16, len(l.readers)+len(l.writers))
	for fd := range l.readers {
		events[fd] |= unix.POLLIN
	}
	for fd := range l.writers {
		events[fd] |= unix.POLLOUT
	}
	for fd, ev := range events {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: ev})
	}

	return fds
}

// pollTimeout is the poll(2) timeout in milliseconds, -1 to block.
func (l *Loop) pollTimeout() int {
	l.mu.Lock()
	posted := len(l.posted)
	l.mu.Unlock()

	if posted > 0 {
		return 0
	}
	if len(l.timers) == 0 {
		return -1
	}

	d := time.Until(l.timers[0].when)
	if d <= 0 {
		return 0
	}

	// Round up so a timer is never polled for early and spun on.
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

func (l *Loop) dispatch(fds []unix.PollFd) {
	const failed = unix.POLLHUP | unix.POLLERR | unix.POLLNVAL

	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}

		fd := int(pfd.Fd)
		if fd == l.wake.Fd() {
			if _, err := l.wake.Drain(); err != nil {
				l.logger.Error("draining wake pipe", "error", err)
			}
			continue
		}

		// Earlier callbacks in this round may have changed registrations.
		if pfd.Revents&(unix.POLLIN|failed) != 0 {
			if fn, ok := l.readers[fd]; ok {
				fn()
			}
		}
		if pfd.Revents&(unix.POLLOUT|failed) != 0 {
			if fn, ok := l.writers[fd]; ok {
				fn()
			}
		}
	}
}
