package throttle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	testCases := []struct {
		name   string
		rps    int
		burst  int
		expErr error
	}{
		{name: "Invalid RPS (zero)", rps: 0, burst: 10, expErr: ErrMustNotBeZero},
		{name: "Invalid RPS (negative)", rps: -5, burst: 10, expErr: ErrMustNotBeZero},
		{name: "Invalid Burst (zero)", rps: 10, burst: 0, expErr: ErrMustNotBeZero},
		{name: "Invalid Burst (negative)", rps: 10, burst: -5, expErr: ErrMustNotBeZero},
		{name: "Valid input", rps: 10, burst: 20},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := New(Config{RPS: tc.rps, Burst: tc.burst}, nil)

			if tc.expErr != nil {
				if !errors.Is(err, tc.expErr) {
					t.Errorf("exp err %v; got: %v", tc.expErr, err)
				}
				return
			}

			if err != nil {
				t.Errorf("exp nil err, got: %v", err)
			}
			if l == nil {
				t.Error("exp non-nil Limiter")
			}
		})
	}
}

func TestLimiter_Wait(t *testing.T) {
	testCases := []struct {
		name        string
		rps         int
		burst       int
		waiters     int
		timeout     time.Duration
		preCancel   bool
		expErrs     int
		expErr      error
		minDuration time.Duration
		maxDuration time.Duration
	}{
		{
			name:        "High Limits - Concurrent Load",
			rps:         10000,
			burst:       100,
			waiters:     50,
			maxDuration: 200 * time.Millisecond,
		},
		{
			name:    "Low Limit - Exceed Burst & Timeout Waiting",
			rps:     5,
			burst:   2,
			waiters: 5, // 2 use burst, the rest need >50ms each
			timeout: 50 * time.Millisecond,
			expErrs: 3,
			expErr:  ErrWaitingFailed,
		},
		{
			name:    "Low Limit - Exceed Burst - Succeed Waiting",
			rps:     10,
			burst:   5,
			waiters: 8,
			timeout: time.Second,
			// (8-5 waiters) / 10 RPS
			minDuration: 300 * time.Millisecond,
		},
		{
			name:      "Pre-Cancelled Context Fails Early",
			rps:       20,
			burst:     10,
			waiters:   1,
			preCancel: true,
			expErrs:   1,
			expErr:    ErrContextEnded,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := New(Config{RPS: tc.rps, Burst: tc.burst}, nil)
			if err != nil {
				t.Fatal(err)
			}

			errs := make([]error, tc.waiters)
			var wg sync.WaitGroup
			start := time.Now()

			for i := range tc.waiters {
				wg.Go(func() {
					ctx := t.Context()
					var cancel context.CancelFunc = func() {}
					switch {
					case tc.preCancel:
						ctx, cancel = context.WithCancel(ctx)
						cancel()
					case tc.timeout > 0:
						ctx, cancel = context.WithTimeout(ctx, tc.timeout)
					}
					defer cancel()

					errs[i] = l.Wait(ctx, "http://example.com")
				})
			}
			wg.Wait()
			duration := time.Since(start)

			failed := 0
			for _, err := range errs {
				if err == nil {
					continue
				}
				failed++
				if !errors.Is(err, tc.expErr) {
					t.Errorf("exp %v, got %v", tc.expErr, err)
				}
			}
			if failed != tc.expErrs {
				t.Errorf("exp %d failed waits; got %d", tc.expErrs, failed)
			}

			if tc.minDuration > 0 && duration < tc.minDuration {
				t.Errorf("waits should be slowed down by throttle (>= %v), but took %v", tc.minDuration, duration)
			}
			if tc.maxDuration > 0 && duration > tc.maxDuration {
				t.Errorf("waits should be fast (< %v), but took %v", tc.maxDuration, duration)
			}
		})
	}
}

func TestLimiter_LogsExhaustion(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	l, err := New(Config{RPS: 50, Burst: 1}, func() *slog.Logger { return logger })
	if err != nil {
		t.Fatal(err)
	}

	for range 3 {
		if err := l.Wait(t.Context(), "http://example.com/a"); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}

	out := buf.String()
	if !strings.Contains(out, "throttle tokens exhausted") || !strings.Contains(out, "throttle wait complete") {
		t.Errorf("exp exhaustion logs, got:\n%s", out)
	}
}

func TestLimiter_Nil(t *testing.T) {
	var l *Limiter
	if err := l.Wait(t.Context(), ""); err != nil {
		t.Errorf("nil limiter must not block or fail, got %v", err)
	}
}

func TestLimiter_BurstWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	// At 1 rps, any token spent twice would stall a later Wait for a second.
	l, err := New(Config{RPS: 1, Burst: 4}, func() *slog.Logger { return logger })
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	for range 4 {
		if err := l.Wait(t.Context(), "http://example.com/a"); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}

	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("burst of 4 took %v, exp no waiting", elapsed)
	}
	if out := buf.String(); strings.Contains(out, "throttle tokens exhausted") {
		t.Errorf("exp no exhaustion within burst, got:\n%s", out)
	}
}
