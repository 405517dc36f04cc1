package download

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// File streams a response body to a temp file in the same directory as
// its destination. The temp file is renamed on Commit and removed on Abort.
type File struct {
	path    string
	logger  *slog.Logger
	opts    options
	skipped bool

	mu       sync.Mutex
	file     *os.File
	writer   io.Writer
	progress *progress
	written  int64
	expected int64
	closed   bool
}

// Create opens the temp file for destPath. When WithSkipExisting is set
// and destPath exists, the returned File is [File.Skipped] and holds no
// temp file.
func Create(destPath string, logger *slog.Logger, optFns ...Option) (*File, error) {
	if destPath == "" {
		return nil, errors.New("destPath must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	f := File{
		path:     destPath,
		logger:   logger,
		opts:     opts,
		expected: -1,
	}

	if opts.skipExisting {
		if _, err := os.Stat(destPath); err == nil {
			logger.Info("skipping existing file", "path", destPath)
			f.skipped = true
			return &f, nil
		}
	}

	file, err := os.CreateTemp(filepath.Dir(destPath), ".httpmulti-dl-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	f.file = file

	f.writer = file
	if opts.digest != nil {
		f.writer = io.MultiWriter(file, opts.digest)
	}
	if opts.progress > 0 {
		f.progress = newProgress(logger, destPath, opts.progress)
	}

	return &f, nil
}

// Skipped reports that the destination already existed.
func (f *File) Skipped() bool { return f.skipped }

// Expect records the announced body length, -1 when unknown.
func (f *File) Expect(contentLength int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.expected = contentLength
	if f.progress != nil {
		f.progress.total = contentLength
	}
}

// Write appends body bytes to the temp file.
func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.file == nil {
		return 0, os.ErrClosed
	}

	n, err := f.writer.Write(p)
	f.written += int64(n)
	if f.progress != nil {
		f.progress.advance(f.written)
	}

	return n, err
}

// Commit verifies length and checksum, then moves the temp file to the
// destination. On failure the temp file is removed.
func (f *File) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.skipped {
		return nil
	}

	successful := false
	defer func() {
		if !successful {
			f.remove()
		}
	}()

	if err := checkLength(f.expected, f.written); err != nil {
		return err
	}
	if err := f.opts.digest.check(); err != nil {
		return err
	}

	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	f.closed = true
	if err := os.Rename(f.file.Name(), f.path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	successful = true

	return nil
}

// Abort discards the temp file. It is a no-op after Commit.
func (f *File) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.skipped || f.closed {
		return
	}
	f.remove()
}

func (f *File) remove() {
	if !f.closed {
		if err := f.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			f.logger.Error("closing temp file", "error", err)
		}
		f.closed = true
	}
	if err := os.Remove(f.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		f.logger.Error("failed to remove temp file", "error", err)
	}
}
