package nethttp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adamwoolhether/httpmulti/client/handle"
)

// PerformError is returned by [Handle.Perform] when the exchange fails.
type PerformError struct {
	Code    handle.Code
	Message string
}

func (e *PerformError) Error() string {
	return fmt.Sprintf("transfer failed (%d): %s", e.Code, e.Message)
}

type transportKey struct {
	proxy   string
	verify  bool
	connect time.Duration
}

// Handle performs one exchange at a time with net/http. Its transports are
// kept across Reset so connections are reused by later exchanges.
type Handle struct {
	base    handle.Base
	roots   *x509.CertPool
	profile http.Header

	mu         sync.Mutex
	opts       handle.Options
	info       handle.Info
	busy       bool
	transports map[transportKey]*http.Transport
}

// NewHandle creates a handle with the creation-time settings of base.
func NewHandle(base handle.Base) (*Handle, error) {
	h := Handle{
		base:       base,
		transports: make(map[transportKey]*http.Transport),
	}

	if base.CAFile != "" {
		pem, err := os.ReadFile(base.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading ca file: %w", err)
		}
		h.roots = x509.NewCertPool()
		if !h.roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca file %q holds no certificate", base.CAFile)
		}
	}

	profile, err := profileHeaders(base.Impersonate)
	if err != nil {
		return nil, err
	}
	if base.UserAgent != "" {
		if profile == nil {
			profile = http.Header{}
		}
		profile.Set("User-Agent", base.UserAgent)
	}
	h.profile = profile

	return &h, nil
}

// Configure replaces the options of h.
func (h *Handle) Configure(opts handle.Options) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.busy {
		return errors.New("handle is transferring")
	}
	h.opts = opts
	h.opts.Header = slices.Clone(opts.Header)

	return nil
}

// Perform runs the exchange on the calling goroutine, enforcing the
// timeout and low-speed limits itself.
func (h *Handle) Perform() error {
	t, err := h.begin()
	if err != nil {
		return err
	}

	go t.run()

	for {
		now := time.Now()
		t.check(now)

		wait := time.Hour
		if next, ok := t.nextCheck(); ok {
			wait = max(next.Sub(now), 0)
		}

		timer := time.NewTimer(wait)
		select {
		case <-t.done:
			timer.Stop()
			h.end()
			if t.code != handle.CodeOK {
				return &PerformError{Code: t.code, Message: t.msg}
			}
			return nil
		case <-timer.C:
		}
	}
}

// Info reports the outcome of the last exchange.
func (h *Handle) Info() handle.Info {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.info
}

// Reset clears options and callbacks.
func (h *Handle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.opts = handle.Options{}
	h.info = handle.Info{}
}

// Close releases the idle connections of h.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, tr := range h.transports {
		tr.CloseIdleConnections()
	}
	clear(h.transports)

	return nil
}

// begin snapshots the options of h into a new transfer.
func (h *Handle) begin() (*transfer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.busy {
		return nil, errors.New("handle is already transferring")
	}
	h.busy = true
	h.info = handle.Info{}

	return newTransfer(h, h.opts), nil
}

func (h *Handle) end() {
	h.mu.Lock()
	h.busy = false
	h.mu.Unlock()
}

func (h *Handle) setInfo(info handle.Info) {
	h.mu.Lock()
	h.info = info
	h.mu.Unlock()
}

func (h *Handle) transport(opts handle.Options) (*http.Transport, error) {
	key := transportKey{
		proxy:   opts.Proxy,
		verify:  opts.VerifyPeer || opts.VerifyHost,
		connect: opts.ConnectTimeout,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if tr, ok := h.transports[key]; ok {
		return tr, nil
	}

	dialer := net.Dialer{Timeout: key.connect, KeepAlive: 30 * time.Second}

	tlsConf := tls.Config{
		RootCAs:            h.roots,
		InsecureSkipVerify: !key.verify,
	}
	if h.base.Share != nil {
		tlsConf.ClientSessionCache = h.base.Share.Sessions
	}

	tr := http.Transport{
		DialContext:         dialer.DialContext,
		TLSClientConfig:     &tlsConf,
		TLSHandshakeTimeout: key.connect,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	if key.proxy != "" {
		proxy, err := url.Parse(key.proxy)
		if err != nil || proxy.Host == "" {
			return nil, failf(handle.CodeCouldntResolveProxy, "Could not resolve proxy: %s", key.proxy)
		}
		tr.Proxy = http.ProxyURL(proxy)
	}

	h.transports[key] = &tr

	return &tr, nil
}

// =============================================================================

// transfer is one exchange of a handle. Fields below the line are owned by
// whoever drives the deadlines: the multi goroutine or Perform.
type transfer struct {
	h      *Handle
	opts   handle.Options
	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
	start  time.Time
	bytes  atomic.Int64

	// Set by run before done is closed.
	code handle.Code
	msg  string

	// ---
	deadline    time.Time
	windowStart time.Time
	windowBytes int64
	removed     bool
	collected   bool
}

func newTransfer(h *Handle, opts handle.Options) *transfer {
	ctx, cancel := context.WithCancelCause(context.Background())
	now := time.Now()

	t := transfer{
		h:           h,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		start:       now,
		windowStart: now,
	}
	if opts.Timeout > 0 {
		t.deadline = now.Add(opts.Timeout)
	}

	return &t
}

// check aborts t when its deadline passed or it stalled below the
// low-speed limit for a whole window.
func (t *transfer) check(now time.Time) {
	if !t.deadline.IsZero() && !now.Before(t.deadline) {
		t.cancel(&abortError{
			code: handle.CodeOperationTimedOut,
			msg:  fmt.Sprintf("Operation timed out after %d milliseconds with %d bytes received", now.Sub(t.start).Milliseconds(), t.bytes.Load()),
		})
		return
	}

	if t.opts.LowSpeedTime <= 0 || t.opts.LowSpeedLimit <= 0 {
		return
	}
	if now.Sub(t.windowStart) < t.opts.LowSpeedTime {
		return
	}

	moved := t.bytes.Load() - t.windowBytes
	if secs := now.Sub(t.windowStart).Seconds(); float64(moved)/secs < float64(t.opts.LowSpeedLimit) {
		t.cancel(&abortError{
			code: handle.CodeOperationTimedOut,
			msg:  fmt.Sprintf("Operation too slow. Less than %d bytes/sec transferred the last %d seconds", t.opts.LowSpeedLimit, int(t.opts.LowSpeedTime.Seconds())),
		})
		return
	}

	t.windowStart = now
	t.windowBytes += moved
}

// nextCheck reports when check must run again. An aborted transfer
// needs no further checks, only its completion.
func (t *transfer) nextCheck() (time.Time, bool) {
	if t.ctx.Err() != nil {
		return time.Time{}, false
	}

	var next time.Time
	if t.opts.LowSpeedTime > 0 && t.opts.LowSpeedLimit > 0 {
		next = t.windowStart.Add(t.opts.LowSpeedTime)
	}
	if !t.deadline.IsZero() && (next.IsZero() || t.deadline.Before(next)) {
		next = t.deadline
	}

	return next, !next.IsZero()
}

// run performs the exchange and records its outcome. It closes done last.
func (t *transfer) run() {
	defer close(t.done)
	defer t.cancel(nil)

	info, err := t.exchange()
	info.TotalTime = time.Since(t.start)
	t.h.setInfo(info)

	if err != nil {
		t.code, t.msg = classify(t.ctx, err)
	}
}

func (t *transfer) exchange() (handle.Info, error) {
	opts := t.opts
	info := handle.Info{EffectiveURL: opts.URL}

	if opts.URL == "" {
		return info, failf(handle.CodeURLMalformat, "No URL set")
	}
	u, err := url.Parse(opts.URL)
	if err != nil || u.Host == "" {
		return info, failf(handle.CodeURLMalformat, "URL rejected: Malformed input to a URL function")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return info, failf(handle.CodeUnsupportedProtocol, "Protocol %q not supported", u.Scheme)
	}

	req, err := t.request(u)
	if err != nil {
		return info, err
	}

	tr, err := t.h.transport(opts)
	if err != nil {
		return info, err
	}

	client := http.Client{
		Transport: tr,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if !opts.FollowLocation {
				return http.ErrUseLastResponse
			}
			if opts.MaxRedirs >= 0 && len(via) > opts.MaxRedirs {
				return failf(handle.CodeTooManyRedirects, "Maximum (%d) redirects followed", opts.MaxRedirs)
			}
			info.Redirects = len(via)
			return nil
		},
	}
	if share := t.h.base.Share; share != nil && share.Jar != nil {
		client.Jar = share.Jar
	}

	resp, err := client.Do(req)
	if err != nil {
		return info, err
	}
	defer resp.Body.Close()

	info.ResponseCode = resp.StatusCode
	info.EffectiveURL = resp.Request.URL.String()

	t.headers(resp)

	if err := t.body(resp.Body); err != nil {
		return info, err
	}

	return info, nil
}

func (t *transfer) request(u *url.URL) (*http.Request, error) {
	opts := t.opts

	var method string
	switch opts.Verb {
	case handle.VerbGet:
		method = http.MethodGet
	case handle.VerbPost:
		method = http.MethodPost
	case handle.VerbUpload:
		method = http.MethodPut
	case handle.VerbNoBody:
		method = http.MethodHead
	case handle.VerbCustom:
		method = opts.CustomRequest
	}

	var body io.Reader
	size := int64(-1)
	if opts.ReadFunc != nil {
		body = t.source()
		size = opts.InFileSize
		if opts.Verb == handle.VerbPost {
			size = opts.PostFieldSize
		}
	}

	req, err := http.NewRequestWithContext(t.ctx, method, u.String(), body)
	if err != nil {
		return nil, failf(handle.CodeURLMalformat, "%s", err)
	}

	if body != nil {
		req.ContentLength = max(size, -1)
		if size == 0 {
			req.Body = http.NoBody
		}
		req.GetBody = func() (io.ReadCloser, error) {
			if opts.RewindFunc == nil {
				return nil, failf(handle.CodeSendFailRewind, "necessary data rewind wasn't possible")
			}
			if err := opts.RewindFunc(); err != nil {
				return nil, failf(handle.CodeSendFailRewind, "necessary data rewind wasn't possible: %s", err)
			}
			return io.NopCloser(t.source()), nil
		}
	}

	for name, values := range t.h.profile {
		req.Header[name] = slices.Clone(values)
	}

	for _, line := range opts.Header {
		name, value, _ := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" {
			continue
		}

		switch {
		case value != "":
			req.Header.Set(name, value)
		case http.CanonicalHeaderKey(name) == "User-Agent":
			// net/http omits the header when present but empty.
			req.Header["User-Agent"] = []string{""}
		default:
			req.Header.Del(name)
		}
	}

	return req, nil
}

// source reads the body through ReadFunc, counting bytes sent.
func (t *transfer) source() io.Reader {
	return readerFunc(func(p []byte) (int, error) {
		n, err := t.opts.ReadFunc(p)
		t.bytes.Add(int64(n))
		if err != nil && !errors.Is(err, io.EOF) {
			return n, failf(handle.CodeReadError, "operation aborted by callback: %s", err)
		}
		return n, err
	})
}

func (t *transfer) headers(resp *http.Response) {
	if t.opts.HeaderFunc == nil {
		return
	}

	t.opts.HeaderFunc(fmt.Appendf(nil, "%s %s\r\n", resp.Proto, resp.Status))

	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		for _, value := range resp.Header[name] {
			t.opts.HeaderFunc(fmt.Appendf(nil, "%s: %s\r\n", name, value))
		}
	}

	t.opts.HeaderFunc([]byte("\r\n"))
}

func (t *transfer) body(r io.Reader) error {
	buf := make([]byte, 32*1024)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			t.bytes.Add(int64(n))
			if t.opts.WriteFunc != nil {
				written, werr := t.opts.WriteFunc(buf[:n])
				if werr != nil || written != n {
					return failf(handle.CodeWriteError, "Failure writing output to destination")
				}
			}
		}

		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
	}
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
