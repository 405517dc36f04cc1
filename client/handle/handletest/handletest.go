// Package handletest provides a scripted transfer backend for tests.
//
// Transfers never touch the network. A test decides when a transfer wants
// socket interest, delivers response bytes and finishes it; the [Multi]
// then reports it through InfoRead on the next SocketAction, exactly the
// way a socket-driven backend discovers completions.
package handletest

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/adamwoolhether/httpmulti/client/handle"
)

// Factory creates scripted handles and multis.
type Factory struct {
	mu      sync.Mutex
	Handles []*Handle
	Multis  []*Multi
	// BatchSize bounds the messages returned by one InfoRead. Zero means 1.
	BatchSize int
}

func (f *Factory) NewHandle(base handle.Base) (handle.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	h := &Handle{ID: len(f.Handles) + 1, Base: base}
	f.Handles = append(f.Handles, h)
	return h, nil
}

func (f *Factory) NewMulti() (handle.Multi, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := NewMulti()
	if f.BatchSize > 0 {
		m.BatchSize = f.BatchSize
	}
	f.Multis = append(f.Multis, m)
	return m, nil
}

// Handle records the options it is configured with.
type Handle struct {
	ID   int
	Base handle.Base

	mu         sync.Mutex
	opts       handle.Options
	info       handle.Info
	resets     int
	closed     bool
	configured int
}

func (h *Handle) Configure(opts handle.Options) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("handle %d closed", h.ID)
	}
	h.opts = opts
	h.configured++
	return nil
}

// Perform delivers nothing and reports a 200 for the configured URL.
func (h *Handle) Perform() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.info = handle.Info{ResponseCode: 200, EffectiveURL: h.opts.URL}
	return nil
}

func (h *Handle) Info() handle.Info {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.info
}

func (h *Handle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.opts = handle.Options{}
	h.info = handle.Info{}
	h.resets++
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	return nil
}

// Options returns the options last configured.
func (h *Handle) Options() handle.Options {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.opts
}

// Resets counts calls to Reset.
func (h *Handle) Resets() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.resets
}

// Closed reports whether Close was called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.closed
}

// Respond feeds header lines and body to the configured callbacks and
// records the exchange result.
func (h *Handle) Respond(status int, effectiveURL string, headerLines []string, body []byte) error {
	h.mu.Lock()
	opts := h.opts
	h.info = handle.Info{ResponseCode: status, EffectiveURL: effectiveURL}
	h.mu.Unlock()

	if opts.HeaderFunc != nil {
		opts.HeaderFunc([]byte(fmt.Sprintf("HTTP/1.1 %d\r\n", status)))
		for _, l := range headerLines {
			opts.HeaderFunc([]byte(l + "\r\n"))
		}
		opts.HeaderFunc([]byte("\r\n"))
	}
	if opts.WriteFunc != nil && len(body) > 0 {
		if _, err := opts.WriteFunc(body); err != nil {
			return err
		}
	}
	return nil
}

type transfer struct {
	h        *Handle
	fd       int
	interest handle.Poll
	finished bool
	queued   bool
	failure  *handle.Failure
}

// Call records a SocketAction invocation.
type Call struct {
	Fd    int
	Event handle.Event
}

// Multi is a scripted multi. Like a real one it is not safe for
// concurrent use: drive it from the goroutine that drives the engine.
type Multi struct {
	BatchSize int

	socketFn handle.SocketFunc
	timerFn  handle.TimerFunc

	transfers map[*Handle]*transfer
	queue     []*transfer
	nextFd    int

	Actions []Call
	Removed []*Handle
	closed  bool
}

// NewMulti returns an empty scripted multi.
func NewMulti() *Multi {
	return &Multi{
		BatchSize: 1,
		transfers: make(map[*Handle]*transfer),
		nextFd:    100,
	}
}

func (m *Multi) SetSocketFunc(fn handle.SocketFunc) { m.socketFn = fn }
func (m *Multi) SetTimerFunc(fn handle.TimerFunc)   { m.timerFn = fn }

func (m *Multi) Add(h handle.Handle) error {
	fh, ok := h.(*Handle)
	if !ok {
		return handle.ErrForeignHandle
	}
	if m.closed {
		return fmt.Errorf("multi closed")
	}
	if _, ok := m.transfers[fh]; ok {
		return fmt.Errorf("handle %d already added", fh.ID)
	}

	m.nextFd++
	m.transfers[fh] = &transfer{h: fh, fd: m.nextFd}
	if m.timerFn != nil {
		m.timerFn(0)
	}
	return nil
}

func (m *Multi) Remove(h handle.Handle) error {
	fh, ok := h.(*Handle)
	if !ok {
		return handle.ErrForeignHandle
	}
	t, ok := m.transfers[fh]
	if !ok {
		return nil
	}

	if t.interest != handle.PollNone && t.interest != handle.PollRemove && m.socketFn != nil {
		m.socketFn(fh, t.fd, handle.PollRemove)
	}
	delete(m.transfers, fh)
	m.queue = slices.DeleteFunc(m.queue, func(q *transfer) bool { return q == t })
	m.Removed = append(m.Removed, fh)
	return nil
}

// Fd returns the descriptor assigned to h.
func (m *Multi) Fd(h *Handle) int {
	if t, ok := m.transfers[h]; ok {
		return t.fd
	}
	return -1
}

// Want makes h ask for what on its descriptor.
func (m *Multi) Want(h *Handle, what handle.Poll) {
	t := m.transfers[h]
	t.interest = what
	m.socketFn(h, t.fd, what)
}

// WantTimer asks for a wake-up after d.
func (m *Multi) WantTimer(d time.Duration) {
	m.timerFn(d)
}

// Finish marks h done. It is reported on the next SocketAction.
func (m *Multi) Finish(h *Handle) {
	m.transfers[h].finished = true
}

// Fail marks h failed with code. It is reported on the next SocketAction.
func (m *Multi) Fail(h *Handle, code handle.Code, msg string) {
	t := m.transfers[h]
	t.finished = true
	t.failure = &handle.Failure{Handle: h, Code: code, Message: msg}
}

// Running is the number of transfers not yet reported finished.
func (m *Multi) Running() int {
	n := 0
	for _, t := range m.transfers {
		if !t.finished {
			n++
		}
	}
	return n
}

func (m *Multi) SocketAction(fd int, ev handle.Event) (int, error) {
	m.Actions = append(m.Actions, Call{Fd: fd, Event: ev})
	return m.collect(), nil
}

func (m *Multi) SocketAll() (int, error) {
	return m.collect(), nil
}

func (m *Multi) collect() int {
	ids := make([]*Handle, 0, len(m.transfers))
	for h, t := range m.transfers {
		if t.finished && !t.queued {
			ids = append(ids, h)
		}
	}
	slices.SortFunc(ids, func(a, b *Handle) int { return a.ID - b.ID })

	for _, h := range ids {
		t := m.transfers[h]
		if t.interest != handle.PollNone && t.interest != handle.PollRemove {
			t.interest = handle.PollRemove
			m.socketFn(h, t.fd, handle.PollRemove)
		}
		t.queued = true
		m.queue = append(m.queue, t)
	}

	return m.Running()
}

func (m *Multi) InfoRead() (bool, []handle.Handle, []handle.Failure) {
	n := min(m.BatchSize, len(m.queue))
	batch := m.queue[:n]
	m.queue = m.queue[n:]

	var done []handle.Handle
	var failed []handle.Failure
	for _, t := range batch {
		if t.failure != nil {
			failed = append(failed, *t.failure)
			continue
		}
		done = append(done, t.h)
	}

	return len(m.queue) > 0, done, failed
}

func (m *Multi) Close() error {
	m.closed = true
	return nil
}
