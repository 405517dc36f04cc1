// Package assemble accumulates the header lines and body bytes of one
// exchange into a response.
//
// Header names are trimmed and lowercased. When a name repeats, the last
// value received wins; this includes headers of intermediate responses
// when redirects are followed.
package assemble

import (
	"bytes"
	"errors"
	"strings"
	"sync"
)

// ErrFrozen is returned when bytes arrive after the response was frozen.
var ErrFrozen = errors.New("response already frozen")

// Response is the immutable result of one exchange.
type Response struct {
	StatusCode   int
	EffectiveURL string
	Headers      map[string]string
	Body         []byte
}

// Header returns the value for name, matched case-insensitively.
func (r *Response) Header(name string) string {
	return r.Headers[strings.ToLower(strings.TrimSpace(name))]
}

// Assembler collects one exchange. Its sinks may be called from the
// goroutine running the transfer while Freeze is called afterwards from
// another, so access is serialized.
type Assembler struct {
	mu      sync.Mutex
	headers map[string]string
	body    bytes.Buffer
	frozen  bool
}

// New returns an empty Assembler.
func New() *Assembler {
	return &Assembler{headers: make(map[string]string)}
}

// HeaderLine consumes one raw header line. Lines with no colon, such as
// status lines and the blank terminator, are ignored.
func (a *Assembler) HeaderLine(line []byte) {
	name, value, ok := bytes.Cut(line, []byte(":"))
	if !ok {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen {
		return
	}

	a.headers[strings.ToLower(strings.TrimSpace(latin1(name)))] = strings.TrimSpace(latin1(value))
}

// Write appends body bytes unchanged.
func (a *Assembler) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen {
		return 0, ErrFrozen
	}

	return a.body.Write(p)
}

// Len reports the number of body bytes collected so far.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.body.Len()
}

// Freeze ends collection and returns the response. Later calls return
// responses sharing the same headers and body.
func (a *Assembler) Freeze(statusCode int, effectiveURL string) *Response {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.frozen = true

	return &Response{
		StatusCode:   statusCode,
		EffectiveURL: effectiveURL,
		Headers:      a.headers,
		Body:         a.body.Bytes(),
	}
}

// latin1 decodes ISO-8859-1 bytes, which header values are transmitted in.
func latin1(b []byte) string {
	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}

	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
