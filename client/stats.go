package client

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Stats is a snapshot of the requests a [Client] has handled.
type Stats struct {
	Submitted int64
	Succeeded int64
	Failed    int64
	Cancelled int64
	InFlight  int64
	Latency   Latency

	PoolSize int
	PoolIdle int
}

// Latency summarises the duration of completed transfers.
type Latency struct {
	Count int64
	Min   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeCancelled
)

// statsRecorder tracks latencies in microseconds up to one hour.
type statsRecorder struct {
	mu        sync.Mutex
	hist      *hdrhistogram.Histogram
	submitted int64
	succeeded int64
	failed    int64
	cancelled int64
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{
		hist: hdrhistogram.New(1, int64(time.Hour/time.Microsecond), 3),
	}
}

func (s *statsRecorder) submit() {
	s.mu.Lock()
	s.submitted++
	s.mu.Unlock()
}

func (s *statsRecorder) record(o outcome, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch o {
	case outcomeSucceeded:
		s.succeeded++
	case outcomeFailed:
		s.failed++
	case outcomeCancelled:
		s.cancelled++
		return
	}

	micros := min(max(took.Microseconds(), 1), s.hist.HighestTrackableValue())
	s.hist.RecordValue(micros)
}

func (s *statsRecorder) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Submitted: s.submitted,
		Succeeded: s.succeeded,
		Failed:    s.failed,
		Cancelled: s.cancelled,
		InFlight:  s.submitted - s.succeeded - s.failed - s.cancelled,
	}

	if s.hist.TotalCount() > 0 {
		st.Latency = Latency{
			Count: s.hist.TotalCount(),
			Min:   time.Duration(s.hist.Min()) * time.Microsecond,
			Mean:  time.Duration(s.hist.Mean()) * time.Microsecond,
			P50:   time.Duration(s.hist.ValueAtQuantile(50)) * time.Microsecond,
			P90:   time.Duration(s.hist.ValueAtQuantile(90)) * time.Microsecond,
			P99:   time.Duration(s.hist.ValueAtQuantile(99)) * time.Microsecond,
			Max:   time.Duration(s.hist.Max()) * time.Microsecond,
		}
	}

	return st
}
