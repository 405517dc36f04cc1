//go:build unix

package nethttp

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/adamwoolhether/httpmulti/client/handle"
	"github.com/adamwoolhether/httpmulti/client/internal/notify"
)

// Factory builds net/http handles and multis.
type Factory struct {
	// BatchSize caps the completions returned by one InfoRead. Zero means 16.
	BatchSize int
	Logger    *slog.Logger
}

// NewHandle implements [handle.Factory].
func (f Factory) NewHandle(base handle.Base) (handle.Handle, error) {
	return NewHandle(base)
}

// NewMulti implements [handle.Factory].
func (f Factory) NewMulti() (handle.Multi, error) {
	return NewMulti(f.BatchSize, f.Logger)
}

// Multi drives net/http transfers. Its methods must be called from one
// goroutine, the transfers report back through a pipe.
type Multi struct {
	logger   *slog.Logger
	pipe     *notify.Pipe
	batch    int
	socketFn handle.SocketFunc
	timerFn  handle.TimerFunc

	active   map[*Handle]*transfer
	running  int
	queue    []*transfer
	watching bool

	mu       sync.Mutex
	finished []*transfer
}

// NewMulti creates a multi returning at most batch completions per InfoRead.
func NewMulti(batch int, logger *slog.Logger) (*Multi, error) {
	if batch <= 0 {
		batch = 16
	}
	if logger == nil {
		logger = slog.Default()
	}

	pipe, err := notify.New()
	if err != nil {
		return nil, fmt.Errorf("creating completion pipe: %w", err)
	}

	m := Multi{
		logger:   logger,
		pipe:     pipe,
		batch:    batch,
		socketFn: func(handle.Handle, int, handle.Poll) {},
		timerFn:  func(time.Duration) {},
		active:   make(map[*Handle]*transfer),
	}

	return &m, nil
}

func (m *Multi) SetSocketFunc(fn handle.SocketFunc) { m.socketFn = fn }
func (m *Multi) SetTimerFunc(fn handle.TimerFunc)   { m.timerFn = fn }

// Add starts the exchange of h.
func (m *Multi) Add(hh handle.Handle) error {
	h, ok := hh.(*Handle)
	if !ok {
		return handle.ErrForeignHandle
	}
	if _, ok := m.active[h]; ok {
		return fmt.Errorf("handle already added")
	}

	t, err := h.begin()
	if err != nil {
		return err
	}

	m.active[h] = t
	m.running++

	go func() {
		t.run()

		m.mu.Lock()
		m.finished = append(m.finished, t)
		m.mu.Unlock()

		if err := m.pipe.Notify(); err != nil {
			m.logger.Debug("completion notify", "error", err)
		}
	}()

	m.watching = true
	m.socketFn(h, m.pipe.Fd(), handle.PollIn)
	m.schedule()

	return nil
}

// Remove aborts h if it is still transferring and forgets it.
func (m *Multi) Remove(hh handle.Handle) error {
	h, ok := hh.(*Handle)
	if !ok {
		return handle.ErrForeignHandle
	}

	t, ok := m.active[h]
	if !ok {
		return nil
	}
	delete(m.active, h)
	t.removed = true

	if !t.collected {
		t.cancel(errRemoved)
		<-t.done
		h.end()
		m.running--
	}

	m.queue = slices.DeleteFunc(m.queue, func(q *transfer) bool { return q == t })
	m.unwatch(h)

	return nil
}

// SocketAction collects finished transfers and, on a timeout action,
// enforces deadlines and low-speed limits.
func (m *Multi) SocketAction(fd int, _ handle.Event) (int, error) {
	switch fd {
	case m.pipe.Fd():
		if _, err := m.pipe.Drain(); err != nil {
			return m.running, fmt.Errorf("draining completion pipe: %w", err)
		}
	case handle.SocketTimeout:
		now := time.Now()
		for _, t := range m.active {
			if !t.collected {
				t.check(now)
			}
		}
		m.schedule()
	}

	m.collect()

	return m.running, nil
}

// SocketAll collects finished transfers.
func (m *Multi) SocketAll() (int, error) {
	m.collect()

	return m.running, nil
}

// InfoRead pops at most one batch of finished transfers.
func (m *Multi) InfoRead() (bool, []handle.Handle, []handle.Failure) {
	n := min(m.batch, len(m.queue))
	batch := m.queue[:n]
	m.queue = slices.Clone(m.queue[n:])

	var done []handle.Handle
	var failed []handle.Failure
	for _, t := range batch {
		if t.code == handle.CodeOK {
			done = append(done, t.h)
			continue
		}
		failed = append(failed, handle.Failure{Handle: t.h, Code: t.code, Message: t.msg})
	}

	return len(m.queue) > 0, done, failed
}

// Close aborts every transfer and releases the pipe.
func (m *Multi) Close() error {
	for h := range m.active {
		m.Remove(h)
	}

	return m.pipe.Close()
}

// =============================================================================

func (m *Multi) collect() {
	m.mu.Lock()
	finished := m.finished
	m.finished = nil
	m.mu.Unlock()

	for _, t := range finished {
		if t.removed {
			continue
		}
		t.collected = true
		t.h.end()
		m.running--
		m.queue = append(m.queue, t)
	}

	if len(finished) > 0 {
		m.unwatch(nil)
	}
}

// unwatch drops the pipe interest once nothing runs anymore.
func (m *Multi) unwatch(h *Handle) {
	if m.running > 0 || !m.watching {
		return
	}
	m.watching = false

	if h == nil {
		m.socketFn(nil, m.pipe.Fd(), handle.PollRemove)
		return
	}
	m.socketFn(h, m.pipe.Fd(), handle.PollRemove)
}

// schedule asks for a wake-up at the earliest check of a running transfer.
func (m *Multi) schedule() {
	var next time.Time
	for _, t := range m.active {
		if t.collected {
			continue
		}
		if at, ok := t.nextCheck(); ok && (next.IsZero() || at.Before(next)) {
			next = at
		}
	}

	if next.IsZero() {
		m.timerFn(handle.NoTimeout)
		return
	}
	m.timerFn(max(time.Until(next), 0))
}
