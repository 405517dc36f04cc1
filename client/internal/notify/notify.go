//go:build unix

// Package notify provides a non-blocking pipe used to wake a poller from
// another goroutine.
package notify

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned when notifying a closed pipe.
var ErrClosed = errors.New("notify pipe closed")

// Pipe is a self-pipe. Notify may be called from any goroutine; Drain and
// Fd belong to the goroutine polling the read end.
type Pipe struct {
	r, w int

	mu     sync.RWMutex
	closed bool
}

// New opens a pipe with both ends non-blocking and close-on-exec.
func New() (*Pipe, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("creating pipe: %w", err)
	}

	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, fmt.Errorf("setting non-blocking: %w", err)
		}
	}

	return &Pipe{r: fds[0], w: fds[1]}, nil
}

// Fd is the read end to poll for readability.
func (p *Pipe) Fd() int { return p.r }

// Notify makes the read end readable. A full pipe is already readable, so
// EAGAIN is not an error.
func (p *Pipe) Notify() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	for {
		_, err := unix.Write(p.w, []byte{1})
		switch {
		case err == nil, errors.Is(err, unix.EAGAIN):
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		default:
			return fmt.Errorf("writing notify pipe: %w", err)
		}
	}
}

// Drain consumes every pending notification and reports how many bytes
// were read.
func (p *Pipe) Drain() (int, error) {
	var (
		buf   [64]byte
		total int
	)
	for {
		n, err := unix.Read(p.r, buf[:])
		if n > 0 {
			total += n
		}
		switch {
		case err == nil && n == len(buf):
			continue
		case err == nil, errors.Is(err, unix.EAGAIN):
			return total, nil
		case errors.Is(err, unix.EINTR):
			continue
		default:
			return total, fmt.Errorf("reading notify pipe: %w", err)
		}
	}
}

// Close closes both ends. Later Notify calls fail with ErrClosed.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return errors.Join(unix.Close(p.r), unix.Close(p.w))
}
