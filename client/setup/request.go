package setup

import (
	"net/http"
	"net/url"
	"time"
)

// LogicalRequest is one HTTP request as submitted by a caller. It must not
// be modified once submitted. Nil pointer fields are unset and fall back to
// the engine [Defaults]; a non-nil zero value is honoured as given.
type LogicalRequest struct {
	Method string      `json:"method" validate:"required"`
	URL    string      `json:"url"`
	Params url.Values  `json:"params"`
	Header http.Header `json:"header"`
	// Body is nil when the request carries no body.
	Body []byte `json:"body"`

	Timeout         *time.Duration `json:"timeout" validate:"omitempty,gte=0"`
	FollowRedirects *bool          `json:"follow_redirects"`
	MaxRedirects    *int           `json:"max_redirects" validate:"omitempty,gte=-1"`
	Proxy           *string        `json:"proxy" validate:"omitempty,proxy"`
	Verify          *bool          `json:"verify"`
}

// Defaults are the engine-wide values used when a request leaves a field unset.
type Defaults struct {
	FollowRedirects bool
	MaxRedirects    int
	Timeout         *time.Duration
	Proxy           *string
	Verify          bool
}

// DefaultDefaults mirrors a freshly built engine.
func DefaultDefaults() Defaults {
	return Defaults{
		FollowRedirects: true,
		MaxRedirects:    5,
		Verify:          true,
	}
}

// FullURL returns URL with Params appended to its query.
func (r *LogicalRequest) FullURL() string {
	if len(r.Params) == 0 {
		return r.URL
	}

	sep := "?"
	for i := 0; i < len(r.URL); i++ {
		if r.URL[i] == '?' {
			sep = "&"
			break
		}
	}

	return r.URL + sep + r.Params.Encode()
}
