// Package transfer fetches remote binary assets to local storage using
// bounded memory, independent of total file size.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultChunkSize balances syscall overhead against resident memory for
// multi-hundred-MB model files.
const DefaultChunkSize = 4 << 20

// Error describes a failed transfer.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transfer: %s failed with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transfer: %s failed: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transferer downloads files chunk by chunk. Peak resident memory stays
// bounded near one chunk regardless of remote file size. One Transferer is
// shared by every concurrent pipeline run, so the counter is atomic.
type Transferer struct {
	client    *http.Client
	chunkSize int
	logger    zerolog.Logger

	chunks atomic.Int64
}

// Option customizes a Transferer.
type Option func(*Transferer)

// WithChunkSize overrides the streaming buffer size.
func WithChunkSize(n int) Option {
	return func(t *Transferer) {
		if n > 0 {
			t.chunkSize = n
		}
	}
}

// WithHTTPClient injects a preconfigured client (tests, shared transports).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transferer) {
		if c != nil {
			t.client = c
		}
	}
}

// New constructs a Transferer whose requests carry the given total timeout.
func New(timeout time.Duration, logger zerolog.Logger, opts ...Option) *Transferer {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	t := &Transferer{
		client:    &http.Client{Timeout: timeout},
		chunkSize: DefaultChunkSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Fetch downloads url to destPath, creating parent directories as needed, and
// returns destPath. On any failure the partially written destination is
// removed and a *Error is returned; there is no partial-success value.
func (t *Transferer) Fetch(ctx context.Context, url, destPath string) (string, error) {
	t.logger.Info().Str("url", url).Str("dest", destPath).Msg("transfer: starting streaming download")

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", &Error{URL: url, Err: fmt.Errorf("ensure destination dir: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &Error{URL: url, Err: err}
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{URL: url, StatusCode: resp.StatusCode}
	}

	dst, err := os.Create(destPath)
	if err != nil {
		return "", &Error{URL: url, Err: fmt.Errorf("create destination: %w", err)}
	}

	written, err := t.copyChunked(dst, resp.Body)
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		// No reader ever resumes a partial model file; drop it.
		_ = os.Remove(destPath)
		return "", &Error{URL: url, Err: err}
	}

	t.logger.Info().
		Str("dest", destPath).
		Int64("bytes", written).
		Msg("transfer: completed")
	return destPath, nil
}

func (t *Transferer) copyChunked(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, t.chunkSize)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			t.chunks.Add(1)
			wn, writeErr := dst.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, writeErr
			}
			if wn != n {
				return written, io.ErrShortWrite
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// Chunks reports how many chunk reads the last fetches performed. Tests use
// it to assert bounded-memory streaming without measuring memory.
func (t *Transferer) Chunks() int64 {
	return t.chunks.Load()
}
