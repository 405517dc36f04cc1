package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adamwoolhether/httpmulti/client/setup"
)

// Request is one logical request. It must not be modified once submitted.
type Request = setup.LogicalRequest

// RequestOption is a functional option for [NewRequest].
type RequestOption func(req *Request) error

// NewRequest builds a [Request]. Validation of method and body happens on
// submission so that it is reported the same way for hand-built requests.
func NewRequest(method, rawURL string, opts ...RequestOption) (*Request, error) {
	req := Request{
		Method: strings.ToUpper(method),
		URL:    rawURL,
	}

	for _, opt := range opts {
		if err := opt(&req); err != nil {
			return nil, fmt.Errorf("applying request option: %w", err)
		}
	}

	return &req, nil
}

// WithHeaders adds custom headers to the outgoing request.
func WithHeaders(headers map[string][]string) RequestOption {
	return func(req *Request) error {
		if req.Header == nil {
			req.Header = make(http.Header, len(headers))
		}
		for k, v := range headers {
			for _, element := range v {
				req.Header.Add(k, element)
			}
		}

		return nil
	}
}

// WithHeader sets a single header, replacing earlier values.
func WithHeader(name, value string) RequestOption {
	return func(req *Request) error {
		if name == "" {
			return errors.New("header name must not be empty")
		}
		if req.Header == nil {
			req.Header = make(http.Header)
		}
		req.Header.Set(name, value)

		return nil
	}
}

// WithBody sets the raw request body. A nil body means no body; use an
// empty slice to send a zero-length one.
func WithBody(body []byte) RequestOption {
	return func(req *Request) error {
		req.Body = body

		return nil
	}
}

// WithJSON sets the JSON-encoded request body and a Content-Type of
// application/json unless one is already set.
func WithJSON(body any) RequestOption {
	return func(req *Request) error {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request payload: %w", err)
		}
		req.Body = b

		if req.Header == nil {
			req.Header = make(http.Header)
		}
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		return nil
	}
}

// WithParams appends query parameters to the URL.
func WithParams(params map[string]string) RequestOption {
	return func(req *Request) error {
		if req.Params == nil {
			req.Params = make(url.Values, len(params))
		}
		for k, v := range params {
			req.Params.Add(k, v)
		}

		return nil
	}
}

// WithRequestTimeout overrides the engine timeout for this request. Zero
// disables the timeout.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(req *Request) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		req.Timeout = &d

		return nil
	}
}

// WithRedirects overrides the redirect policy for this request. max is
// ignored when follow is false, -1 means unlimited.
func WithRedirects(follow bool, max int) RequestOption {
	return func(req *Request) error {
		req.FollowRedirects = &follow
		if follow {
			req.MaxRedirects = &max
		}

		return nil
	}
}

// WithRequestProxy overrides the engine proxy. An empty value disables
// proxying for this request.
func WithRequestProxy(proxyURL string) RequestOption {
	return func(req *Request) error {
		req.Proxy = &proxyURL

		return nil
	}
}

// WithRequestVerify overrides TLS verification for this request.
func WithRequestVerify(verify bool) RequestOption {
	return func(req *Request) error {
		req.Verify = &verify

		return nil
	}
}
