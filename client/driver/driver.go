package driver

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/adamwoolhether/httpmulti/client/errs"
	"github.com/adamwoolhether/httpmulti/client/handle"
)

// ErrAlreadyRegistered is returned when a handle is registered twice.
var ErrAlreadyRegistered = errors.New("handle already registered")

// State is the lifecycle of a handle as seen by the driver.
type State int

const (
	Idle       State = iota // not registered
	Registered              // added to the multi, no socket known yet
	WaitingIO               // socket interest registered with the loop
	Completed               // result reported, being drained
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Registered:
		return "registered"
	case WaitingIO:
		return "waiting-io"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Interest is the readiness wanted for one descriptor.
type Interest struct {
	Read  bool
	Write bool
}

type pendingTransfer struct {
	h     handle.Handle
	sig   *Signal
	state State
	start time.Time
}

// Driver is a readiness machine over a handle.Multi.
type Driver struct {
	multi  handle.Multi
	loop   Loop
	logger *slog.Logger

	pending  map[handle.Handle]*pendingTransfer
	interest map[int]Interest

	timer    Token
	timerSet bool
	closed   bool
}

// New attaches multi to loop. The driver takes ownership of multi.
func New(multi handle.Multi, loop Loop, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Driver{
		multi:    multi,
		loop:     loop,
		logger:   logger,
		pending:  make(map[handle.Handle]*pendingTransfer),
		interest: make(map[int]Interest),
	}

	multi.SetSocketFunc(d.onSocket)
	multi.SetTimerFunc(d.onTimer)

	return d
}

// Register adds h to the multi and returns the signal its result will be
// delivered on. The caller must not touch h until the signal resolves.
func (d *Driver) Register(h handle.Handle) (*Signal, error) {
	if d.closed {
		return nil, errs.ErrShutdown
	}
	if _, ok := d.pending[h]; ok {
		return nil, ErrAlreadyRegistered
	}

	p := &pendingTransfer{
		h:     h,
		sig:   newSignal(uuid.NewString()),
		state: Registered,
		start: time.Now(),
	}
	// The multi may report socket interest for h from within Add.
	d.pending[h] = p

	if err := d.multi.Add(h); err != nil {
		delete(d.pending, h)
		return nil, fmt.Errorf("adding handle: %w", err)
	}

	d.logger.Debug("transfer registered", "transfer_id", p.sig.ID, "pending", len(d.pending))

	return p.sig, nil
}

// Cancel takes h out of the multi and resolves its signal with
// errs.ErrCancelled. It reports false when h has no pending transfer.
func (d *Driver) Cancel(h handle.Handle) bool {
	return d.cancel(h, errs.ErrCancelled)
}

func (d *Driver) cancel(h handle.Handle, reason error) bool {
	p, ok := d.pending[h]
	if !ok {
		return false
	}

	// Socket interest is dropped by Remove before the handle can go back
	// to its pool.
	if err := d.multi.Remove(h); err != nil {
		d.logger.Error("removing cancelled handle", "transfer_id", p.sig.ID, "error", err)
	}
	delete(d.pending, h)
	p.sig.resolve(reason)

	d.logger.Debug("transfer cancelled", "transfer_id", p.sig.ID, "state", p.state.String())

	return true
}

// Close cancels every pending transfer with errs.ErrShutdown and closes
// the multi. Later registrations fail.
func (d *Driver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	for _, p := range d.pendingByStart() {
		d.cancel(p.h, errs.ErrShutdown)
	}

	d.clearTimer()
	for _, fd := range slices.Sorted(maps.Keys(d.interest)) {
		d.setInterest(fd, Interest{})
	}

	return d.multi.Close()
}

// State reports the driver state of h.
func (d *Driver) State(h handle.Handle) State {
	if p, ok := d.pending[h]; ok {
		return p.state
	}
	return Idle
}

// Pending is the number of unresolved transfers.
func (d *Driver) Pending() int { return len(d.pending) }

// Interest returns a copy of the interest set.
func (d *Driver) Interest() map[int]Interest { return maps.Clone(d.interest) }

// TimerArmed reports whether a deadline is scheduled.
func (d *Driver) TimerArmed() bool { return d.timerSet }

// =============================================================================
// Multi callbacks

func (d *Driver) onSocket(h handle.Handle, fd int, what handle.Poll) {
	var next Interest
	if what != handle.PollRemove {
		next = Interest{Read: what.Readable(), Write: what.Writable()}
	}

	d.setInterest(fd, next)

	if h == nil {
		return
	}
	if p, ok := d.pending[h]; ok && p.state == Registered && next != (Interest{}) {
		p.state = WaitingIO
	}
}

// setInterest moves the loop registrations for fd from the current
// interest to next, touching only what changed.
func (d *Driver) setInterest(fd int, next Interest) {
	prev := d.interest[fd]
	if prev == next {
		return
	}

	if prev.Read != next.Read {
		var err error
		if next.Read {
			err = d.loop.AddReader(fd, func() { d.onReadable(fd) })
		} else {
			err = d.loop.RemoveReader(fd)
		}
		if err != nil {
			d.logger.Error("updating reader", "fd", fd, "error", err)
		}
	}

	if prev.Write != next.Write {
		var err error
		if next.Write {
			err = d.loop.AddWriter(fd, func() { d.onWritable(fd) })
		} else {
			err = d.loop.RemoveWriter(fd)
		}
		if err != nil {
			d.logger.Error("updating writer", "fd", fd, "error", err)
		}
	}

	if next == (Interest{}) {
		delete(d.interest, fd)
	} else {
		d.interest[fd] = next
	}

	d.logger.Debug("socket interest", "fd", fd, "read", next.Read, "write", next.Write)
}

func (d *Driver) onTimer(timeout time.Duration) {
	d.clearTimer()
	if timeout < 0 {
		return
	}

	d.timer = d.loop.ScheduleAfter(timeout, d.onTimerFire)
	d.timerSet = true
}

func (d *Driver) clearTimer() {
	if !d.timerSet {
		return
	}
	d.loop.CancelScheduled(d.timer)
	d.timerSet = false
}

// =============================================================================
// Loop callbacks

func (d *Driver) onReadable(fd int) {
	d.advance(fd, handle.EventIn)
}

func (d *Driver) onWritable(fd int) {
	d.advance(fd, handle.EventOut)
}

func (d *Driver) onTimerFire() {
	d.timerSet = false
	d.advance(handle.SocketTimeout, handle.EventNone)
}

func (d *Driver) advance(fd int, ev handle.Event) {
	if d.closed {
		return
	}

	if _, err := d.multi.SocketAction(fd, ev); err != nil {
		d.logger.Error("socket action", "fd", fd, "error", err)
	}
	running, err := d.multi.SocketAll()
	if err != nil {
		d.logger.Error("socket all", "error", err)
	}

	// The multi reports counts, not handles: a gap means some transfers
	// ended and are waiting in its message queue.
	if running != len(d.pending) {
		d.drain()
	}
}

// drain resolves every finished transfer the multi has queued.
func (d *Driver) drain() {
	for {
		more, done, failed := d.multi.InfoRead()

		for _, h := range done {
			d.finish(h, nil)
		}
		for _, f := range failed {
			d.finish(f.Handle, &errs.TransportError{Code: f.Code, Message: f.Message})
		}

		if !more {
			return
		}
	}
}

func (d *Driver) finish(h handle.Handle, err error) {
	if rmErr := d.multi.Remove(h); rmErr != nil {
		d.logger.Error("removing finished handle", "error", rmErr)
	}

	p, ok := d.pending[h]
	if !ok {
		d.logger.Warn("finished handle has no pending transfer")
		return
	}
	p.state = Completed
	delete(d.pending, h)

	if !p.sig.resolve(err) {
		d.logger.Error("transfer resolved twice", "transfer_id", p.sig.ID)
		return
	}

	if err != nil {
		d.logger.Debug("transfer failed", "transfer_id", p.sig.ID, "took", time.Since(p.start).String(), "error", err)
		return
	}
	d.logger.Debug("transfer done", "transfer_id", p.sig.ID, "took", time.Since(p.start).String())
}

func (d *Driver) pendingByStart() []*pendingTransfer {
	ps := slices.Collect(maps.Values(d.pending))
	slices.SortFunc(ps, func(a, b *pendingTransfer) int { return a.start.Compare(b.start) })
	return ps
}
