package driver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/adamwoolhether/httpmulti/client/errs"
	"github.com/adamwoolhether/httpmulti/client/handle"
	"github.com/adamwoolhether/httpmulti/client/handle/handletest"
)

// fakeLoop records registrations and fires callbacks on demand.
type fakeLoop struct {
	readers map[int]func()
	writers map[int]func()
	timers  map[Token]scheduled
	next    Token
	log     []string
}

type scheduled struct {
	d  time.Duration
	fn func()
}

func newFakeLoop() *fakeLoop {
	return &fakeLoop{
		readers: make(map[int]func()),
		writers: make(map[int]func()),
		timers:  make(map[Token]scheduled),
	}
}

func (l *fakeLoop) AddReader(fd int, fn func()) error {
	if _, ok := l.readers[fd]; ok {
		return fmt.Errorf("reader for fd %d already registered", fd)
	}
	l.readers[fd] = fn
	l.log = append(l.log, fmt.Sprintf("add-reader %d", fd))
	return nil
}

func (l *fakeLoop) AddWriter(fd int, fn func()) error {
	if _, ok := l.writers[fd]; ok {
		return fmt.Errorf("writer for fd %d already registered", fd)
	}
	l.writers[fd] = fn
	l.log = append(l.log, fmt.Sprintf("add-writer %d", fd))
	return nil
}

func (l *fakeLoop) RemoveReader(fd int) error {
	if _, ok := l.readers[fd]; !ok {
		return fmt.Errorf("no reader for fd %d", fd)
	}
	delete(l.readers, fd)
	l.log = append(l.log, fmt.Sprintf("remove-reader %d", fd))
	return nil
}

func (l *fakeLoop) RemoveWriter(fd int) error {
	if _, ok := l.writers[fd]; !ok {
		return fmt.Errorf("no writer for fd %d", fd)
	}
	delete(l.writers, fd)
	l.log = append(l.log, fmt.Sprintf("remove-writer %d", fd))
	return nil
}

func (l *fakeLoop) ScheduleAfter(d time.Duration, fn func()) Token {
	l.next++
	l.timers[l.next] = scheduled{d: d, fn: fn}
	return l.next
}

func (l *fakeLoop) CancelScheduled(t Token) bool {
	_, ok := l.timers[t]
	delete(l.timers, t)
	return ok
}

func (l *fakeLoop) Post(fn func()) error {
	fn()
	return nil
}

func (l *fakeLoop) fireTimer(t *testing.T) {
	t.Helper()
	if len(l.timers) != 1 {
		t.Fatalf("expected exactly one timer, have %d", len(l.timers))
	}
	for tok, s := range l.timers {
		delete(l.timers, tok)
		s.fn()
	}
}

func (l *fakeLoop) readable(t *testing.T, fd int) {
	t.Helper()
	fn, ok := l.readers[fd]
	if !ok {
		t.Fatalf("no reader registered for fd %d", fd)
	}
	fn()
}

type fixture struct {
	loop    *fakeLoop
	multi   *handletest.Multi
	driver  *Driver
	factory *handletest.Factory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	loop := newFakeLoop()
	multi := handletest.NewMulti()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		loop:    loop,
		multi:   multi,
		driver:  New(multi, loop, logger),
		factory: &handletest.Factory{},
	}
}

func (f *fixture) register(t *testing.T) (*handletest.Handle, *Signal) {
	t.Helper()

	h, err := f.factory.NewHandle(handle.Base{})
	if err != nil {
		t.Fatalf("new handle: %v", err)
	}
	sig, err := f.driver.Register(h)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return h.(*handletest.Handle), sig
}

func TestDriver_Lifecycle(t *testing.T) {
	f := newFixture(t)

	h, sig := f.register(t)
	if got := f.driver.State(h); got != Registered {
		t.Fatalf("state = %v, want registered", got)
	}
	if sig.Resolved() {
		t.Fatal("signal resolved at registration")
	}

	fd := f.multi.Fd(h)
	f.multi.Want(h, handle.PollIn)
	if got := f.driver.State(h); got != WaitingIO {
		t.Fatalf("state = %v, want waiting-io", got)
	}
	if diff := cmp.Diff(map[int]Interest{fd: {Read: true}}, f.driver.Interest()); diff != "" {
		t.Errorf("interest mismatch (-want +got):\n%s", diff)
	}

	// Readiness with nothing finished keeps the transfer pending.
	f.loop.readable(t, fd)
	if sig.Resolved() || f.driver.Pending() != 1 {
		t.Fatal("transfer resolved before it finished")
	}

	f.multi.Finish(h)
	f.loop.readable(t, fd)

	if !sig.Resolved() {
		t.Fatal("signal not resolved after completion")
	}
	if err := sig.Err(); err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if got := f.driver.State(h); got != Idle {
		t.Errorf("state = %v, want idle", got)
	}
	if f.driver.Pending() != 0 {
		t.Errorf("pending = %d, want 0", f.driver.Pending())
	}
	if len(f.loop.readers) != 0 {
		t.Errorf("readers left registered: %v", f.loop.readers)
	}
}

func TestDriver_InterestDiff(t *testing.T) {
	f := newFixture(t)

	h, _ := f.register(t)
	fd := f.multi.Fd(h)

	f.multi.Want(h, handle.PollOut)
	f.multi.Want(h, handle.PollOut)
	f.multi.Want(h, handle.PollInOut)
	f.multi.Want(h, handle.PollIn)
	f.multi.Want(h, handle.PollIn)
	f.multi.Want(h, handle.PollRemove)

	want := []string{
		fmt.Sprintf("add-writer %d", fd),
		fmt.Sprintf("add-reader %d", fd),
		fmt.Sprintf("remove-writer %d", fd),
		fmt.Sprintf("remove-reader %d", fd),
	}
	if diff := cmp.Diff(want, f.loop.log); diff != "" {
		t.Errorf("loop calls mismatch (-want +got):\n%s", diff)
	}
	if len(f.driver.Interest()) != 0 {
		t.Errorf("interest not cleared: %v", f.driver.Interest())
	}
}

func TestDriver_Failure(t *testing.T) {
	f := newFixture(t)

	h, sig := f.register(t)
	f.multi.Want(h, handle.PollIn)
	f.multi.Fail(h, handle.CodeCouldntConnect, "connection refused")
	f.loop.readable(t, f.multi.Fd(h))

	var te *errs.TransportError
	if !errors.As(sig.Err(), &te) {
		t.Fatalf("expected TransportError, got %v", sig.Err())
	}
	if te.Code != handle.CodeCouldntConnect || te.Message != "connection refused" {
		t.Errorf("got code %d message %q", te.Code, te.Message)
	}
}

func TestDriver_DrainExhaustsBatches(t *testing.T) {
	f := newFixture(t)
	f.multi.BatchSize = 1

	var (
		handles []*handletest.Handle
		signals []*Signal
	)
	for range 3 {
		h, sig := f.register(t)
		f.multi.Want(h, handle.PollIn)
		handles = append(handles, h)
		signals = append(signals, sig)
	}

	f.multi.Finish(handles[0])
	f.multi.Fail(handles[1], handle.CodeRecvError, "reset")
	f.multi.Finish(handles[2])

	// One readiness event on any descriptor drains every queued message.
	f.loop.readable(t, f.multi.Fd(handles[0]))

	for i, sig := range signals {
		if !sig.Resolved() {
			t.Errorf("signal %d not resolved", i)
		}
	}
	if err := signals[1].Err(); !errors.Is(err, errs.ErrTransport) {
		t.Errorf("signal 1: expected transport error, got %v", err)
	}
	if f.driver.Pending() != 0 {
		t.Errorf("pending = %d, want 0", f.driver.Pending())
	}
}

func TestDriver_Timer(t *testing.T) {
	f := newFixture(t)

	// Add asks for an immediate timeout.
	h, sig := f.register(t)
	if !f.driver.TimerArmed() {
		t.Fatal("timer not armed after add")
	}

	f.multi.WantTimer(10 * time.Millisecond)
	f.multi.WantTimer(20 * time.Millisecond)
	if len(f.loop.timers) != 1 {
		t.Fatalf("timers = %d, want a single outstanding timer", len(f.loop.timers))
	}
	for _, s := range f.loop.timers {
		if s.d != 20*time.Millisecond {
			t.Errorf("timer = %v, want 20ms", s.d)
		}
	}

	f.multi.WantTimer(handle.NoTimeout)
	if f.driver.TimerArmed() || len(f.loop.timers) != 0 {
		t.Fatal("timer not cleared")
	}

	// A transfer finishing with no socket is found on the timer tick.
	f.multi.WantTimer(time.Millisecond)
	f.multi.Fail(h, handle.CodeOperationTimedOut, "operation timed out")
	f.loop.fireTimer(t)

	last := f.multi.Actions[len(f.multi.Actions)-1]
	if last.Fd != handle.SocketTimeout {
		t.Errorf("timer advanced fd %d, want SocketTimeout", last.Fd)
	}
	if !errs.IsTimeout(sig.Err()) {
		t.Errorf("expected timeout error, got %v", sig.Err())
	}
}

func TestDriver_CancelWaitingIO(t *testing.T) {
	f := newFixture(t)

	h, sig := f.register(t)
	fd := f.multi.Fd(h)
	f.multi.Want(h, handle.PollInOut)

	if !f.driver.Cancel(h) {
		t.Fatal("cancel reported no pending transfer")
	}

	if _, ok := f.loop.readers[fd]; ok {
		t.Error("reader still registered after cancel")
	}
	if _, ok := f.loop.writers[fd]; ok {
		t.Error("writer still registered after cancel")
	}
	if !errors.Is(sig.Err(), errs.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", sig.Err())
	}
	if len(f.multi.Removed) != 1 || f.multi.Removed[0] != h {
		t.Errorf("handle not removed from multi: %v", f.multi.Removed)
	}

	if f.driver.Cancel(h) {
		t.Error("second cancel should be a no-op")
	}
}

func TestDriver_CancelAfterCompletion(t *testing.T) {
	f := newFixture(t)

	h, sig := f.register(t)
	f.multi.Want(h, handle.PollIn)
	f.multi.Finish(h)
	f.loop.readable(t, f.multi.Fd(h))

	if f.driver.Cancel(h) || f.driver.Cancel(h) {
		t.Error("cancel of a resolved transfer should be a no-op")
	}
	if err := sig.Err(); err != nil {
		t.Errorf("resolution changed by cancel: %v", err)
	}
}

func TestDriver_CancelRegistered(t *testing.T) {
	f := newFixture(t)

	h, sig := f.register(t)
	if !f.driver.Cancel(h) {
		t.Fatal("cancel reported no pending transfer")
	}
	if !errors.Is(sig.Err(), errs.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", sig.Err())
	}
}

func TestDriver_RegisterTwice(t *testing.T) {
	f := newFixture(t)

	h, _ := f.register(t)
	if _, err := f.driver.Register(h); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
	if f.driver.Pending() != 1 {
		t.Errorf("pending = %d, want 1", f.driver.Pending())
	}
}

type foreignHandle struct{ handle.Handle }

func TestDriver_RegisterRejected(t *testing.T) {
	f := newFixture(t)

	if _, err := f.driver.Register(foreignHandle{}); !errors.Is(err, handle.ErrForeignHandle) {
		t.Errorf("expected ErrForeignHandle, got %v", err)
	}
	if f.driver.Pending() != 0 {
		t.Errorf("pending = %d, want 0", f.driver.Pending())
	}
}

func TestDriver_Close(t *testing.T) {
	f := newFixture(t)

	h1, sig1 := f.register(t)
	_, sig2 := f.register(t)
	f.multi.Want(h1, handle.PollIn)

	if err := f.driver.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for i, sig := range []*Signal{sig1, sig2} {
		if !errors.Is(sig.Err(), errs.ErrShutdown) {
			t.Errorf("signal %d: expected ErrShutdown, got %v", i, sig.Err())
		}
	}
	if len(f.loop.readers) != 0 || len(f.loop.timers) != 0 {
		t.Errorf("loop registrations left: readers %d timers %d", len(f.loop.readers), len(f.loop.timers))
	}

	h3, err := f.factory.NewHandle(handle.Base{})
	if err != nil {
		t.Fatalf("new handle: %v", err)
	}
	if _, err := f.driver.Register(h3); !errors.Is(err, errs.ErrShutdown) {
		t.Errorf("register after close: got %v, want ErrShutdown", err)
	}
	if err := f.driver.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
