// Package setup translates a logical request into the options of a
// transfer handle. It performs no I/O.
package setup

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/adamwoolhether/httpmulti/client/errs"
	"github.com/adamwoolhether/httpmulti/client/handle"
)

const (
	// ConnectTimeout applies when neither the request nor the engine sets a timeout.
	ConnectTimeout = 300 * time.Second
	// LowSpeedLimit and LowSpeedTime abort a transfer moving fewer than
	// LowSpeedLimit bytes per second for LowSpeedTime.
	LowSpeedLimit = 1
	LowSpeedTime  = 30 * time.Second
)

// Sink receives the response of a configured handle.
type Sink interface {
	HeaderLine(line []byte)
	Write(p []byte) (int, error)
}

var verbs = map[string]handle.Verb{
	http.MethodGet:  handle.VerbGet,
	http.MethodPost: handle.VerbPost,
	http.MethodPut:  handle.VerbUpload,
	http.MethodHead: handle.VerbNoBody,
}

var customMethods = map[string]bool{
	http.MethodDelete:  true,
	http.MethodOptions: true,
	http.MethodPatch:   true,
}

// Check reports whether req would be accepted by [Configure].
func Check(req *LogicalRequest) error {
	_, err := Options(req, DefaultDefaults(), nil)
	return err
}

// Configure applies req to h, sending the response to sink. Nothing is
// applied to h when req is invalid.
func Configure(h handle.Handle, req *LogicalRequest, defaults Defaults, sink Sink) error {
	opts, err := Options(req, defaults, sink)
	if err != nil {
		return err
	}

	if err := h.Configure(opts); err != nil {
		return fmt.Errorf("configuring handle: %w", err)
	}

	return nil
}

// Options builds the handle options for req.
func Options(req *LogicalRequest, defaults Defaults, sink Sink) (handle.Options, error) {
	var opts handle.Options

	if err := Validate(req); err != nil {
		return opts, err
	}

	method := strings.ToUpper(req.Method)
	switch verb, ok := verbs[method]; {
	case ok:
		opts.Verb = verb
	case customMethods[method]:
		opts.Verb = handle.VerbCustom
		opts.CustomRequest = method
	default:
		return opts, errs.NewConfigurationError("method", fmt.Sprintf("unknown method %q", req.Method))
	}

	bodyExpected := method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
	bodyPresent := req.Body != nil
	if bodyPresent && method == http.MethodGet {
		return opts, errs.NewConfigurationError("body", "body must be nil for GET request")
	}

	opts.URL = req.FullURL()
	opts.Header = headerLines(req.Header)

	followRedirects := defaults.FollowRedirects
	if req.FollowRedirects != nil {
		followRedirects = *req.FollowRedirects
	}
	if followRedirects {
		opts.FollowLocation = true
		opts.MaxRedirs = defaults.MaxRedirects
		if req.MaxRedirects != nil {
			opts.MaxRedirs = *req.MaxRedirects
		}
	}

	switch {
	case req.Timeout != nil:
		opts.ConnectTimeout = *req.Timeout
		opts.Timeout = *req.Timeout
	case defaults.Timeout != nil:
		opts.ConnectTimeout = *defaults.Timeout
		opts.Timeout = *defaults.Timeout
	default:
		opts.ConnectTimeout = ConnectTimeout
	}
	opts.LowSpeedLimit = LowSpeedLimit
	opts.LowSpeedTime = LowSpeedTime

	switch {
	case req.Proxy != nil:
		opts.Proxy = *req.Proxy
	case defaults.Proxy != nil:
		opts.Proxy = *defaults.Proxy
	}

	verify := defaults.Verify
	if req.Verify != nil {
		verify = *req.Verify
	}
	opts.VerifyPeer = verify
	opts.VerifyHost = verify

	if sink != nil {
		opts.HeaderFunc = sink.HeaderLine
		opts.WriteFunc = sink.Write
	}

	opts.PostFieldSize = -1
	opts.InFileSize = -1
	if bodyExpected || bodyPresent {
		body := bytes.NewReader(req.Body)
		opts.ReadFunc = body.Read
		opts.RewindFunc = func() error {
			_, err := body.Seek(0, io.SeekStart)
			return err
		}

		if method == http.MethodPost {
			opts.PostFieldSize = int64(len(req.Body))
		} else {
			opts.InFileSize = int64(len(req.Body))
		}
	}

	return opts, nil
}

// headerLines renders header as sorted "Name: value" lines, one per name
// holding its last value. Expect and Pragma are always present, empty when
// unset, so the transport adds neither on its own.
func headerLines(header http.Header) []string {
	merged := make(map[string]string, len(header)+2)
	for k, v := range header {
		if len(v) == 0 {
			continue
		}
		merged[http.CanonicalHeaderKey(k)] = v[len(v)-1]
	}
	for _, k := range []string{"Expect", "Pragma"} {
		if _, ok := merged[k]; !ok {
			merged[k] = ""
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		if merged[k] == "" {
			lines = append(lines, k+":")
			continue
		}
		lines = append(lines, k+": "+merged[k])
	}

	return lines
}
