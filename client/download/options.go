package download

import (
	"errors"
	"hash"
	"time"
)

const defaultProgressInterval = time.Second

// Option configures a [File].
type Option func(*options) error

type options struct {
	digest       *digest
	progress     time.Duration
	skipExisting bool
}

// WithChecksum hashes the body with h and fails Commit unless the sum
// matches the hex string expected.
func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		switch {
		case h == nil:
			return errors.New("hash must not be nil")
		case expected == "":
			return errors.New("expected checksum must not be empty")
		}

		opts.digest = &digest{hash: h, expected: expected}
		return nil
	}
}

// WithProgress logs progress once a second.
func WithProgress() Option {
	return WithProgressInterval(defaultProgressInterval)
}

// WithProgressInterval logs progress at most once per interval.
func WithProgressInterval(interval time.Duration) Option {
	return func(opts *options) error {
		if interval <= 0 {
			return errors.New("progress interval must be greater than zero")
		}

		opts.progress = interval
		return nil
	}
}

// WithSkipExisting leaves an existing destination alone. Create then
// returns a File that is [File.Skipped].
func WithSkipExisting() Option {
	return func(opts *options) error {
		opts.skipExisting = true
		return nil
	}
}
