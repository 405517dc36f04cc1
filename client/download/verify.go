package download

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
)

var (
	ErrContentLengthMismatch = errors.New("content length mismatch")
	ErrChecksumMismatch      = errors.New("checksum mismatch")
)

// Error reports a body that failed verification before it was committed.
type Error struct {
	Err      error
	Expected string
	Got      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: expected %s, got %s", e.Err, e.Expected, e.Got)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// digest hashes body bytes as they are written and compares the sum
// against a hex string once the body is complete.
type digest struct {
	hash     hash.Hash
	expected string
}

func (d *digest) Write(p []byte) (int, error) {
	return d.hash.Write(p)
}

func (d *digest) check() error {
	if d == nil {
		return nil
	}

	got := hex.EncodeToString(d.hash.Sum(nil))
	if !strings.EqualFold(got, d.expected) {
		return &Error{Err: ErrChecksumMismatch, Expected: d.expected, Got: got}
	}

	return nil
}

// checkLength compares written against the announced Content-Length,
// which is negative when the server sent none.
func checkLength(announced, written int64) error {
	if announced < 0 || announced == written {
		return nil
	}

	return &Error{
		Err:      ErrContentLengthMismatch,
		Expected: fmt.Sprintf("%d bytes", announced),
		Got:      fmt.Sprintf("%d bytes", written),
	}
}
