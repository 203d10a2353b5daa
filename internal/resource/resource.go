// Package resource throttles background I/O so spill and compaction writes
// do not starve the query that owns the set.
package resource

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// NewLimiter creates a byte-rate limiter allowing bytesPerSec sustained
// throughput with a burst of the same size.
func NewLimiter(bytesPerSec int64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
}

// RateLimitedWriter wraps an io.Writer with rate limiting.
type RateLimitedWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// NewRateLimitedWriter creates a new RateLimitedWriter.
func NewRateLimitedWriter(w io.Writer, limiter *rate.Limiter, ctx context.Context) *RateLimitedWriter {
	return &RateLimitedWriter{
		w:       w,
		limiter: limiter,
		ctx:     ctx,
	}
}

func (w *RateLimitedWriter) Write(p []byte) (n int, err error) {
	if err := w.limiter.WaitN(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}

// RateLimitedReader wraps an io.Reader with rate limiting.
type RateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

// NewRateLimitedReader creates a new RateLimitedReader.
func NewRateLimitedReader(r io.Reader, limiter *rate.Limiter, ctx context.Context) *RateLimitedReader {
	return &RateLimitedReader{
		r:       r,
		limiter: limiter,
		ctx:     ctx,
	}
}

func (r *RateLimitedReader) Read(p []byte) (n int, err error) {
	// We don't know how many bytes the read will return, so limit on the
	// buffer size (the maximum potential read).
	if err := r.limiter.WaitN(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
