package filestore

import (
	"context"
	"io"

	"golang.org/x/time/rate"

	"github.com/hupe1980/spillset/internal/resource"
)

// RateLimitedFactory wraps another Factory and throttles all writes through
// its handles to a sustained byte rate. Reads are not throttled: loads and
// merges sit on the caller's critical path.
type RateLimitedFactory struct {
	inner   Factory
	limiter *rate.Limiter
}

// NewRateLimitedFactory wraps inner, limiting writes to bytesPerSec.
func NewRateLimitedFactory(inner Factory, bytesPerSec int64) *RateLimitedFactory {
	return &RateLimitedFactory{
		inner:   inner,
		limiter: resource.NewLimiter(bytesPerSec),
	}
}

// Create allocates a new rate-limited spill file handle.
func (f *RateLimitedFactory) Create() (Handle, error) {
	h, err := f.inner.Create()
	if err != nil {
		return nil, err
	}
	return &rateLimitedHandle{inner: h, limiter: f.limiter}, nil
}

type rateLimitedHandle struct {
	inner   Handle
	limiter *rate.Limiter
}

func (h *rateLimitedHandle) Name() string { return h.inner.Name() }

func (h *rateLimitedHandle) OpenWrite() (io.WriteCloser, error) {
	w, err := h.inner.OpenWrite()
	if err != nil {
		return nil, err
	}
	return &rateLimitedWriteCloser{
		Writer: resource.NewRateLimitedWriter(w, h.limiter, context.Background()),
		closer: w,
	}, nil
}

func (h *rateLimitedHandle) OpenRead() (io.ReadCloser, error) {
	return h.inner.OpenRead()
}

func (h *rateLimitedHandle) Remove() error {
	return h.inner.Remove()
}

type rateLimitedWriteCloser struct {
	io.Writer
	closer io.Closer
}

func (w *rateLimitedWriteCloser) Close() error { return w.closer.Close() }
