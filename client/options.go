package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/httpmulti/client/driver"
	"github.com/adamwoolhether/httpmulti/client/handle"
	"github.com/adamwoolhether/httpmulti/client/throttle"
)

const (
	defaultPoolSize     = 5
	defaultMaxRedirects = 5
	defaultImpersonate  = "chrome110"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	poolSize        int
	timeout         *time.Duration
	followRedirects *bool
	maxRedirects    *int
	proxy           *string
	verify          *bool
	caFile          string
	impersonate     *handle.Impersonation
	cookies         bool
	userAgent       string
	throttle        *throttle.Config
	logger          *slog.Logger
	tracer          trace.Tracer
	backend         handle.Factory
	loop            driver.Loop
}

// WithPoolSize sets how many transfer handles the [Client] owns, which is
// the number of requests in flight at once. Defaults to 5.
func WithPoolSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("pool size[%d] must be greater than zero", n)
		}
		o.poolSize = n
		return nil
	}
}

// WithTimeout sets the default overall timeout of a request. Zero
// disables the timeout for requests that do not set their own.
func WithTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		o.timeout = &d
		return nil
	}
}

// WithFollowRedirects sets whether redirects are followed by default.
func WithFollowRedirects(follow bool) Option {
	return func(o *options) error {
		o.followRedirects = &follow
		return nil
	}
}

// WithMaxRedirects caps followed redirects. -1 means unlimited.
func WithMaxRedirects(n int) Option {
	return func(o *options) error {
		if n < -1 {
			return fmt.Errorf("max redirects[%d] must be -1 or greater", n)
		}
		o.maxRedirects = &n
		return nil
	}
}

// WithProxy routes requests through proxyURL by default. An empty value
// disables proxying.
func WithProxy(proxyURL string) Option {
	return func(o *options) error {
		if proxyURL != "" {
			u, err := url.Parse(proxyURL)
			if err != nil || u.Host == "" {
				return fmt.Errorf("invalid proxy url %q", proxyURL)
			}
		}
		o.proxy = &proxyURL
		return nil
	}
}

// WithVerifyTLS sets whether certificates and host names are verified.
func WithVerifyTLS(verify bool) Option {
	return func(o *options) error {
		o.verify = &verify
		return nil
	}
}

// WithCAFile trusts the PEM certificates in path instead of the system roots.
func WithCAFile(path string) Option {
	return func(o *options) error {
		if path == "" {
			return errors.New("ca file path must not be empty")
		}
		o.caFile = path
		return nil
	}
}

// WithImpersonate applies the browser profile target to every handle.
// defaultHeaders adds the profile's default request headers. An empty
// target disables impersonation.
func WithImpersonate(target string, defaultHeaders bool) Option {
	return func(o *options) error {
		o.impersonate = &handle.Impersonation{Target: target, DefaultHeaders: defaultHeaders}
		return nil
	}
}

// WithCookies enables a cookie jar shared by every handle.
func WithCookies(enabled bool) Option {
	return func(o *options) error {
		o.cookies = enabled
		return nil
	}
}

// WithUserAgent sets a persistent User-Agent header on all outgoing requests.
func WithUserAgent(header string) Option {
	return func(o *options) error {
		o.userAgent = header
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting with the given requests per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(o *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		o.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithTracer starts a span per request on tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		o.tracer = tracer
		return nil
	}
}

// WithBackend replaces the net/http transfer backend.
func WithBackend(f handle.Factory) Option {
	return func(o *options) error {
		if f == nil {
			return errors.New("backend must not be nil")
		}
		o.backend = f
		return nil
	}
}

// WithEventLoop drives transfers on loop instead of a loop owned by the
// [Client]. The caller runs loop and must keep it running until
// [Client.Close] returns.
func WithEventLoop(loop driver.Loop) Option {
	return func(o *options) error {
		if loop == nil {
			return errors.New("event loop must not be nil")
		}
		o.loop = loop
		return nil
	}
}

// DoOption is a functional option for [Client.Do].
type DoOption func(options *doOpts) error

type doOpts struct {
	expCode      int
	responseBody any
	useJSONNum   bool
}

// WithExpectStatus makes [Client.Do] fail with an [UnexpectedStatusError]
// unless the response carries code.
func WithExpectStatus(code int) DoOption {
	return func(opts *doOpts) error {
		if code < 100 || code > 999 {
			return fmt.Errorf("invalid status code %d", code)
		}
		opts.expCode = code

		return nil
	}
}

// WithDestination decodes the JSON response body into bodyTemplate.
// bodyTemplate must be a pointer.
func WithDestination[T any](bodyTemplate *T) DoOption {
	return func(opts *doOpts) error {
		if bodyTemplate == nil {
			return errors.New("destination must not be nil")
		}
		opts.responseBody = bodyTemplate

		return nil
	}
}

// WithJSONNumb tells the JSON decoder to use [json.Decoder.UseNumber],
// preserving number precision as [json.Number] instead of float64.
func WithJSONNumb() DoOption {
	return func(opts *doOpts) error {
		opts.useJSONNum = true

		return nil
	}
}
