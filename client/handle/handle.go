package handle

import (
	"errors"
	"time"
)

// SocketTimeout is passed to [Multi.SocketAction] in place of a descriptor
// when the engine timer fires.
const SocketTimeout = -1

// NoTimeout is passed to a [TimerFunc] when the multi no longer needs a wake-up.
const NoTimeout time.Duration = -1

// ErrForeignHandle is returned when a handle is added to a multi of another backend.
var ErrForeignHandle = errors.New("handle does not belong to this backend")

// Poll describes the readiness a multi wants for a descriptor.
type Poll int

const (
	PollNone Poll = iota
	PollIn
	PollOut
	PollInOut
	PollRemove
)

// Readable reports whether p includes read interest.
func (p Poll) Readable() bool { return p == PollIn || p == PollInOut }

// Writable reports whether p includes write interest.
func (p Poll) Writable() bool { return p == PollOut || p == PollInOut }

func (p Poll) String() string {
	switch p {
	case PollNone:
		return "none"
	case PollIn:
		return "in"
	case PollOut:
		return "out"
	case PollInOut:
		return "inout"
	case PollRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is the readiness delivered to [Multi.SocketAction].
type Event int

const (
	EventNone Event = 0
	EventIn   Event = 1 << iota
	EventOut
)

// SocketFunc is called by a multi whenever the interest it needs for fd
// changes. h is the handle that caused the change, it may be nil when the
// descriptor is shared and no longer needed by anyone.
type SocketFunc func(h Handle, fd int, what Poll)

// TimerFunc is called by a multi when it wants to be woken after d.
// [NoTimeout] cancels any earlier request.
type TimerFunc func(d time.Duration)

// Info is what a handle reports about its last exchange.
type Info struct {
	ResponseCode int
	EffectiveURL string
	Redirects    int
	TotalTime    time.Duration
}

// Handle is a reusable unit able to perform one exchange.
type Handle interface {
	// Configure replaces the handle options. It performs no I/O.
	Configure(opts Options) error

	// Perform runs the exchange synchronously.
	Perform() error

	// Info reports status and effective URL once the exchange has ended.
	Info() Info

	// Reset clears every option and callback set by a previous exchange,
	// leaving only the creation-time settings.
	Reset()

	Close() error
}

// Failure is a handle that finished with a transport error.
type Failure struct {
	Handle  Handle
	Code    Code
	Message string
}

// Multi advances many handles over non-blocking sockets. Every method must
// be called from a single goroutine.
type Multi interface {
	SetSocketFunc(fn SocketFunc)
	SetTimerFunc(fn TimerFunc)

	Add(h Handle) error

	// Remove takes h out of the multi. When h is still transferring, the
	// transfer is aborted and no callback of h runs once Remove returns.
	Remove(h Handle) error

	// SocketAction advances the transfers using fd, or every transfer when
	// fd is SocketTimeout. It returns the number of transfers still running.
	SocketAction(fd int, ev Event) (running int, err error)

	// SocketAll advances every transfer regardless of readiness.
	SocketAll() (running int, err error)

	// InfoRead pops a batch of finished transfers. more reports that
	// further messages remain queued.
	InfoRead() (more bool, done []Handle, failed []Failure)

	Close() error
}

// Factory creates handles and the multi able to drive them.
type Factory interface {
	NewHandle(base Base) (Handle, error)
	NewMulti() (Multi, error)
}
