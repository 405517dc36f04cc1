package handle

import (
	"crypto/tls"
	"net/http"
	"time"
)

// Verb selects how a handle issues its request line.
type Verb int

const (
	VerbGet    Verb = iota // HTTPGET
	VerbPost               // POST with a post-field size
	VerbUpload             // PUT with an upload size
	VerbNoBody             // HEAD
	VerbCustom             // CustomRequest carries the method
)

// HeaderFunc receives each raw response header line, status lines included.
type HeaderFunc func(line []byte)

// WriteFunc receives response body bytes in delivery order.
type WriteFunc func(p []byte) (int, error)

// ReadFunc supplies request body bytes. It returns io.EOF when done.
type ReadFunc func(p []byte) (int, error)

// RewindFunc is called when the handle must send the body again from its
// first byte, e.g. after a followed 307 or 308 redirect.
type RewindFunc func() error

// Options is the per-exchange configuration of a handle. The zero value is
// the configuration-neutral state a handle returns to on Reset.
type Options struct {
	URL           string
	Verb          Verb
	CustomRequest string
	// Header holds raw "Name: value" lines. A line "Name:" sends no value.
	Header []string

	FollowLocation bool
	MaxRedirs      int

	ConnectTimeout time.Duration
	Timeout        time.Duration
	LowSpeedLimit  int
	LowSpeedTime   time.Duration

	// Proxy is the proxy URL. Empty disables proxying.
	Proxy string

	VerifyPeer bool
	VerifyHost bool

	HeaderFunc HeaderFunc
	WriteFunc  WriteFunc
	ReadFunc   ReadFunc
	RewindFunc RewindFunc

	// PostFieldSize is the body size for VerbPost, InFileSize for uploads.
	// -1 means unknown.
	PostFieldSize int64
	InFileSize    int64
}

// Impersonation is an opaque browser profile applied to a handle.
type Impersonation struct {
	Target         string
	DefaultHeaders bool
}

// Share is state every handle of an engine may reference concurrently.
// Its members serialize their own mutation.
type Share struct {
	Jar      http.CookieJar
	Sessions tls.ClientSessionCache
}

// Base is the creation-time configuration of a handle. It survives Reset.
type Base struct {
	Share       *Share
	CAFile      string
	Impersonate *Impersonation
	UserAgent   string
}
