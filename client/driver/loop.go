package driver

import "time"

// Token identifies a scheduled callback.
type Token uint64

// Loop is the event loop a Driver is attached to. Callbacks run on the
// loop goroutine. Registering a second reader or writer for the same
// descriptor is an error.
type Loop interface {
	AddReader(fd int, fn func()) error
	AddWriter(fd int, fn func()) error
	RemoveReader(fd int) error
	RemoveWriter(fd int) error

	ScheduleAfter(d time.Duration, fn func()) Token
	CancelScheduled(t Token) bool

	// Post runs fn on the loop goroutine.
	Post(fn func()) error
}
