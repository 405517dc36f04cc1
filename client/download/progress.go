package download

import (
	"fmt"
	"log/slog"
	"time"
)

// progress logs how far a body has got, at most once per interval, and
// once more when the announced length is reached.
type progress struct {
	logger   *slog.Logger
	interval time.Duration
	start    time.Time
	next     time.Time
	total    int64
	done     bool
}

func newProgress(logger *slog.Logger, path string, interval time.Duration) *progress {
	now := time.Now()

	return &progress{
		logger:   logger.With("path", path),
		interval: interval,
		start:    now,
		next:     now.Add(interval),
		total:    -1,
	}
}

// advance is called with the running byte count after every write.
func (p *progress) advance(written int64) {
	if p.done {
		return
	}

	if p.total >= 0 && written >= p.total {
		p.done = true
		p.log("download complete", written)
		return
	}

	if now := time.Now(); !now.Before(p.next) {
		p.next = now.Add(p.interval)
		p.log("downloading", written)
	}
}

func (p *progress) log(msg string, written int64) {
	elapsed := time.Since(p.start)

	pct := "unknown"
	if p.total > 0 {
		pct = fmt.Sprintf("%.1f%%", float64(written)/float64(p.total)*100)
	}

	var mbps float64
	if secs := elapsed.Seconds(); secs > 0 {
		mbps = float64(written) / secs / (1 << 20)
	}

	p.logger.Info(msg,
		"progress", pct,
		"elapsed", elapsed.Round(time.Millisecond),
		"transferred", written,
		"total", p.total,
		"mbps", fmt.Sprintf("%.2f", mbps),
	)
}
