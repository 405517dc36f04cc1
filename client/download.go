package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"

	"github.com/adamwoolhether/httpmulti/client/download"
)

// DownloadOption is a functional option for [Client.Download].
type DownloadOption = download.Option

// DownloadError reports a body that failed length or checksum
// verification. It unwraps to ErrContentLengthMismatch or ErrChecksumMismatch.
type DownloadError = download.Error

var (
	// ErrContentLengthMismatch indicates the byte count did not match Content-Length.
	ErrContentLengthMismatch = download.ErrContentLengthMismatch

	// ErrChecksumMismatch indicates the file checksum did not match the expected value.
	ErrChecksumMismatch = download.ErrChecksumMismatch
)

// WithChecksum enables checksum validation of the downloaded file.
// h is a [hash.Hash] instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string.
func WithChecksum(h hash.Hash, expected string) DownloadOption {
	return download.WithChecksum(h, expected)
}

// WithProgress enables periodic download progress logging.
func WithProgress() DownloadOption { return download.WithProgress() }

// WithProgressInterval logs download progress at most once per interval.
func WithProgressInterval(interval time.Duration) DownloadOption {
	return download.WithProgressInterval(interval)
}

// WithSkipExisting causes a download to return nil immediately when
// the destination file already exists.
func WithSkipExisting() DownloadOption { return download.WithSkipExisting() }

// Download executes req and streams the response body to destPath.
// Data streams to a temp file in the same directory, then the temp file
// is renamed to destPath on success or removed on failure.
func (c *Client) Download(ctx context.Context, req *Request, expCode int, destPath string, opts ...DownloadOption) error {
	f, err := download.Create(destPath, c.logger, opts...)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if f.Skipped() {
		return nil
	}

	r, err := c.submit(ctx, req, f)
	if err != nil {
		f.Abort()
		return err
	}

	resp, err := r.Response()
	if err != nil {
		f.Abort()
		return err
	}

	if resp.StatusCode != expCode {
		f.Abort()
		return statusError(resp.StatusCode, nil)
	}

	if err := f.Commit(); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	return nil
}

// =============================================================================

// bodySink receives response body bytes in place of the assembler.
type bodySink interface {
	Write(p []byte) (int, error)
	Expect(contentLength int64)
}

// splitSink sends header lines to the assembler and the body elsewhere.
// It announces the Content-Length of the last header block to the body.
type splitSink struct {
	headers interface{ HeaderLine(line []byte) }
	body    bodySink
	length  int64
}

func (s *splitSink) HeaderLine(line []byte) {
	s.headers.HeaderLine(line)

	trimmed := bytes.TrimSpace(line)
	switch {
	case len(trimmed) == 0:
		s.body.Expect(s.length)
	case bytes.HasPrefix(trimmed, []byte("HTTP/")):
		s.length = -1
	default:
		name, value, ok := strings.Cut(string(trimmed), ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "content-length") {
			return
		}
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return
		}
		s.length = n
	}
}

func (s *splitSink) Write(p []byte) (int, error) {
	n, err := s.body.Write(p)
	if err == nil && n != len(p) {
		err = errors.New("short write")
	}

	return n, err
}
