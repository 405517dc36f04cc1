// Package throttle rate-limits request submission using a token-bucket
// algorithm from [golang.org/x/time/rate].
//
// # Usage
//
// Create a [Limiter] and wait on it before starting each request:
//
//	l, err := throttle.New(
//		throttle.Config{RPS: 10, Burst: 5},
//		func() *slog.Logger { return slog.Default() },
//	)
//	if err := l.Wait(ctx, url); err != nil { ... }
//
// When the rate limit is exceeded, Wait blocks until a token becomes
// available or the context is cancelled.
package throttle
