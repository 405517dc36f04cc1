package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/httpmulti/client/assemble"
	"github.com/adamwoolhether/httpmulti/client/driver"
	"github.com/adamwoolhether/httpmulti/client/errs"
	"github.com/adamwoolhether/httpmulti/client/handle"
	"github.com/adamwoolhether/httpmulti/client/pool"
	"github.com/adamwoolhether/httpmulti/client/setup"
	"github.com/adamwoolhether/httpmulti/client/throttle"
)

var errCancelRequested = fmt.Errorf("%w: by caller", errs.ErrCancelled)

// ownedLoop is an event loop the Client runs and stops itself.
type ownedLoop interface {
	driver.Loop
	Run(ctx context.Context) error
	Close() error
	Stopped() <-chan struct{}
}

// Client submits requests to the transfer engine. It is safe for
// concurrent use.
type Client struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	defaults setup.Defaults
	limiter  *throttle.Limiter
	pool     *pool.Pool
	driver   *driver.Driver
	loop     driver.Loop
	owned    ownedLoop
	stats    *statsRecorder

	// ctx ends when Close starts, aborting every request.
	ctx  context.Context
	stop context.CancelCauseFunc
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Build creates a Client. Unless [WithEventLoop] is given it starts its
// own event loop, which [Client.Close] stops.
func Build(optFns ...Option) (*Client, error) {
	opts := options{
		poolSize:    defaultPoolSize,
		impersonate: &handle.Impersonation{Target: defaultImpersonate, DefaultHeaders: true},
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	c := Client{
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer(""),
		defaults: setup.DefaultDefaults(),
		stats:    newStatsRecorder(),
	}
	if opts.logger != nil {
		c.logger = opts.logger
	}
	if opts.tracer != nil {
		c.tracer = opts.tracer
	}

	if opts.timeout != nil {
		c.defaults.Timeout = opts.timeout
	}
	if opts.followRedirects != nil {
		c.defaults.FollowRedirects = *opts.followRedirects
	}
	c.defaults.MaxRedirects = defaultMaxRedirects
	if opts.maxRedirects != nil {
		c.defaults.MaxRedirects = *opts.maxRedirects
	}
	c.defaults.Proxy = opts.proxy
	if opts.verify != nil {
		c.defaults.Verify = *opts.verify
	}

	if opts.throttle != nil {
		limiter, err := throttle.New(*opts.throttle, func() *slog.Logger { return c.logger })
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		c.limiter = limiter
	}

	share, err := pool.NewShare(opts.cookies)
	if err != nil {
		return nil, fmt.Errorf("creating shared state: %w", err)
	}
	base := handle.Base{
		Share:     share,
		CAFile:    opts.caFile,
		UserAgent: opts.userAgent,
	}
	if opts.impersonate != nil && opts.impersonate.Target != "" {
		base.Impersonate = opts.impersonate
	}

	backend := opts.backend
	if backend == nil {
		if backend = defaultBackend(c.logger); backend == nil {
			return nil, errors.New("no default backend on this platform, use WithBackend")
		}
	}

	multi, err := backend.NewMulti()
	if err != nil {
		return nil, fmt.Errorf("creating multi: %w", err)
	}

	c.pool, err = pool.New(backend, opts.poolSize, base, c.logger)
	if err != nil {
		multi.Close()
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	c.loop = opts.loop
	if c.loop == nil {
		owned, err := newLoop(c.logger)
		if err != nil {
			multi.Close()
			c.pool.Close()
			return nil, fmt.Errorf("creating event loop: %w", err)
		}
		c.owned = owned
		c.loop = owned

		go func() {
			if err := owned.Run(context.Background()); err != nil {
				c.logger.Error("event loop stopped", "error", err)
			}
		}()
	}

	c.driver = driver.New(multi, c.loop, c.logger)
	c.ctx, c.stop = context.WithCancelCause(context.Background())

	return &c, nil
}

// Submit starts req and returns immediately. Invalid requests fail here
// with an errs.ConfigurationError, before any handle is borrowed.
func (c *Client) Submit(ctx context.Context, req *Request) (*Result, error) {
	return c.submit(ctx, req, nil)
}

// Do submits req and waits for its response.
func (c *Client) Do(ctx context.Context, req *Request, opts ...DoOption) (*Response, error) {
	var settings doOpts
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return nil, err
		}
	}

	r, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := r.Response()
	if err != nil {
		return nil, err
	}

	if settings.expCode != 0 && resp.StatusCode != settings.expCode {
		return resp, statusError(resp.StatusCode, resp.Body)
	}

	if settings.responseBody != nil {
		if err := resp.Decode(settings.responseBody, settings.useJSONNum); err != nil {
			return resp, err
		}
	}

	return resp, nil
}

// Get issues a GET request to rawURL.
func (c *Client) Get(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return c.verb(ctx, http.MethodGet, rawURL, opts)
}

// Post issues a POST request to rawURL.
func (c *Client) Post(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return c.verb(ctx, http.MethodPost, rawURL, opts)
}

// Put issues a PUT request to rawURL.
func (c *Client) Put(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return c.verb(ctx, http.MethodPut, rawURL, opts)
}

// Patch issues a PATCH request to rawURL.
func (c *Client) Patch(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return c.verb(ctx, http.MethodPatch, rawURL, opts)
}

// Delete issues a DELETE request to rawURL.
func (c *Client) Delete(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return c.verb(ctx, http.MethodDelete, rawURL, opts)
}

// Head issues a HEAD request to rawURL.
func (c *Client) Head(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return c.verb(ctx, http.MethodHead, rawURL, opts)
}

// Options issues an OPTIONS request to rawURL.
func (c *Client) Options(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return c.verb(ctx, http.MethodOptions, rawURL, opts)
}

// Stats returns a snapshot of request counters and latencies.
func (c *Client) Stats() Stats {
	st := c.stats.snapshot()
	st.PoolSize = c.pool.Size()
	st.PoolIdle = c.pool.Idle()

	return st
}

// Close stops accepting requests, cancels every pending one with
// errs.ErrShutdown and releases the engine. It waits for outstanding
// requests to hand their handles back.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stop(errs.ErrShutdown)

	var driverErr error
	if err := c.onLoop(func() { driverErr = c.driver.Close() }); err != nil {
		c.logger.Error("closing driver", "error", err)
	}

	c.wg.Wait()
	poolErr := c.pool.Close()

	if c.owned != nil {
		if err := c.owned.Close(); err != nil {
			c.logger.Error("closing event loop", "error", err)
		}
		<-c.owned.Stopped()
	}

	c.logger.Info("client closed")

	return errors.Join(driverErr, poolErr)
}

// =============================================================================

func (c *Client) verb(ctx context.Context, method, rawURL string, opts []RequestOption) (*Response, error) {
	req, err := NewRequest(method, rawURL, opts...)
	if err != nil {
		return nil, err
	}

	return c.Do(ctx, req)
}

// submit starts req. When body is set, response body bytes go there
// instead of the Response.
func (c *Client) submit(ctx context.Context, req *Request, body bodySink) (*Result, error) {
	if req == nil {
		return nil, errors.New("request must not be nil")
	}
	if err := setup.Check(req); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errs.ErrShutdown
	}
	c.wg.Add(1)
	c.mu.Unlock()

	id := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "httpmulti.request", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("request_id", id),
		attribute.String("http.method", req.Method),
		attribute.String("url", req.FullURL()),
	)

	ctx, cancel := context.WithCancelCause(ctx)
	stopOnClose := context.AfterFunc(c.ctx, func() { cancel(errs.ErrShutdown) })

	r := newResult(id, cancel)
	c.stats.submit()

	go func() {
		defer c.wg.Done()
		defer cancel(nil)
		defer stopOnClose()

		start := time.Now()
		resp, err := c.transfer(ctx, id, req, body)
		took := time.Since(start)

		switch {
		case err == nil:
			c.stats.record(outcomeSucceeded, took)
			span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		case errors.Is(err, errs.ErrCancelled):
			c.stats.record(outcomeCancelled, took)
			span.SetStatus(codes.Error, err.Error())
		default:
			c.stats.record(outcomeFailed, took)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		r.resolve(resp, err)
	}()

	return r, nil
}

// transfer runs one request through throttle, pool, setup and driver.
func (c *Client) transfer(ctx context.Context, id string, req *Request, body bodySink) (*Response, error) {
	log := c.logger.With("request_id", id)

	if err := c.limiter.Wait(ctx, req.URL); err != nil {
		return nil, cancelled(ctx, err)
	}

	h, err := c.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, pool.ErrClosed) {
			return nil, errs.ErrShutdown
		}
		return nil, cancelled(ctx, err)
	}
	// A handle still held by a stopped loop stays lent, Pool.Close closes it.
	var stranded bool
	defer func() {
		if stranded {
			return
		}
		if err := c.pool.Release(h); err != nil {
			log.Error("releasing handle", "error", err)
		}
	}()

	// Trace context goes on a copy, the submitted request stays untouched.
	outgoing := *req
	outgoing.Header = req.Header.Clone()
	if outgoing.Header == nil {
		outgoing.Header = make(http.Header)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(outgoing.Header))

	asm := assemble.New()
	var sink setup.Sink = asm
	if body != nil {
		sink = &splitSink{headers: asm, body: body, length: -1}
	}

	if err := setup.Configure(h, &outgoing, c.defaults, sink); err != nil {
		return nil, err
	}

	sig, err := c.register(h)
	if err != nil {
		return nil, err
	}
	log.Debug("request started", "method", req.Method, "url", req.URL, "transfer_id", sig.ID)

	select {
	case <-sig.Done():
	case <-ctx.Done():
		if err := c.loop.Post(func() { c.driver.Cancel(h) }); err != nil {
			// Nothing will ever complete sig once the loop is gone.
			log.Error("posting cancel", "error", err)
			stranded = true
			return nil, errs.ErrShutdown
		}
		<-sig.Done()
	}

	if err := sig.Err(); err != nil {
		if errors.Is(err, errs.ErrCancelled) && ctx.Err() != nil {
			err = cancelled(ctx, ctx.Err())
		}
		log.Debug("request failed", "error", err)
		return nil, err
	}

	info := h.Info()
	resp := Response{asm.Freeze(info.ResponseCode, info.EffectiveURL)}
	log.Debug("request done", "status", resp.StatusCode, "bytes", len(resp.Body))

	return &resp, nil
}

// register adds h to the driver on the loop goroutine.
func (c *Client) register(h handle.Handle) (*driver.Signal, error) {
	var sig *driver.Signal
	var err error
	if perr := c.onLoop(func() { sig, err = c.driver.Register(h) }); perr != nil {
		return nil, errs.ErrShutdown
	}

	return sig, err
}

// onLoop runs fn on the loop goroutine and waits for it.
func (c *Client) onLoop(fn func()) error {
	done := make(chan struct{})
	if err := c.loop.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	<-done

	return nil
}

// cancelled reports why ctx ended as an errs.ErrCancelled error.
func cancelled(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errs.ErrShutdown):
		return errs.ErrShutdown
	case errors.Is(cause, errCancelRequested):
		return errCancelRequested
	}

	return fmt.Errorf("%w: %w", errs.ErrCancelled, err)
}

func statusError(code int, body []byte) *UnexpectedStatusError {
	e := UnexpectedStatusError{
		StatusCode: code,
		Body:       string(body[:min(len(body), maxErrBodySize)]),
		Err:        ErrUnexpectedStatusCode,
	}
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		e.Err = errors.Join(ErrUnexpectedStatusCode, ErrAuthFailure)
	}

	return &e
}
