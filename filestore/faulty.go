package filestore

import (
	"errors"
	"io"
	"sync"
)

// Fault defines injected failure behavior for a FaultyFactory.
type Fault struct {
	// FailCreateAfter fails Create once this many handles have been
	// created. -1 disables.
	FailCreateAfter int
	// FailWriteAfterBytes fails writes on a handle after this many bytes
	// were written to it. -1 disables.
	FailWriteAfterBytes int64
	// FailOnClose fails the writer's Close.
	FailOnClose bool
	// FailOnRead fails the first Read on any reader.
	FailOnRead bool
	// Err is the injected error. Defaults to a generic injected fault.
	Err error
}

// FaultyFactory wraps another Factory and injects errors, for exercising
// failure paths in tests.
type FaultyFactory struct {
	Inner Factory

	mu      sync.Mutex
	fault   Fault
	created int
}

// NewFaultyFactory creates a FaultyFactory wrapping inner with no active
// faults.
func NewFaultyFactory(inner Factory) *FaultyFactory {
	return &FaultyFactory{
		Inner: inner,
		fault: Fault{FailCreateAfter: -1, FailWriteAfterBytes: -1},
	}
}

// SetFault replaces the active fault rule.
func (f *FaultyFactory) SetFault(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fault.Err == nil {
		fault.Err = errors.New("injected fault error")
	}
	f.fault = fault
}

// Create allocates a handle from the inner factory, or fails if the create
// fault has triggered.
func (f *FaultyFactory) Create() (Handle, error) {
	f.mu.Lock()
	fault := f.fault
	trigger := fault.FailCreateAfter >= 0 && f.created >= fault.FailCreateAfter
	if !trigger {
		f.created++
	}
	f.mu.Unlock()

	if trigger {
		return nil, fault.Err
	}
	h, err := f.Inner.Create()
	if err != nil {
		return nil, err
	}
	return &faultyHandle{inner: h, fault: fault}, nil
}

type faultyHandle struct {
	inner Handle
	fault Fault
}

func (h *faultyHandle) Name() string { return h.inner.Name() }

func (h *faultyHandle) OpenWrite() (io.WriteCloser, error) {
	w, err := h.inner.OpenWrite()
	if err != nil {
		return nil, err
	}
	return &faultyWriter{inner: w, fault: h.fault}, nil
}

func (h *faultyHandle) OpenRead() (io.ReadCloser, error) {
	r, err := h.inner.OpenRead()
	if err != nil {
		return nil, err
	}
	if h.fault.FailOnRead {
		return &faultyReader{inner: r, err: h.fault.Err}, nil
	}
	return r, nil
}

func (h *faultyHandle) Remove() error { return h.inner.Remove() }

type faultyWriter struct {
	inner   io.WriteCloser
	fault   Fault
	written int64
}

func (w *faultyWriter) Write(p []byte) (int, error) {
	if w.fault.FailWriteAfterBytes >= 0 && w.written+int64(len(p)) > w.fault.FailWriteAfterBytes {
		return 0, w.fault.Err
	}
	n, err := w.inner.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *faultyWriter) Close() error {
	if w.fault.FailOnClose {
		_ = w.inner.Close()
		return w.fault.Err
	}
	return w.inner.Close()
}

type faultyReader struct {
	inner io.ReadCloser
	err   error
}

func (r *faultyReader) Read([]byte) (int, error) { return 0, r.err }

func (r *faultyReader) Close() error { return r.inner.Close() }
