package filestore

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// MemoryFactory is an in-memory Factory implementation for testing.
// It stores spill files as byte slices without any filesystem dependency.
// Thread-safe for concurrent reads and writes.
type MemoryFactory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	seq   uint64
}

// NewMemoryFactory creates a new in-memory factory.
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{
		blobs: make(map[string][]byte),
	}
}

// Create allocates a new in-memory spill file handle.
func (f *MemoryFactory) Create() (Handle, error) {
	f.mu.Lock()
	f.seq++
	name := fmt.Sprintf("run_%06d.spill", f.seq)
	f.mu.Unlock()
	return &memoryHandle{factory: f, name: name}, nil
}

// Count returns the number of backing files currently held.
func (f *MemoryFactory) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.blobs)
}

type memoryHandle struct {
	factory *MemoryFactory
	name    string
}

func (h *memoryHandle) Name() string { return h.name }

func (h *memoryHandle) OpenWrite() (io.WriteCloser, error) {
	return &memoryWriter{factory: h.factory, name: h.name}, nil
}

func (h *memoryHandle) OpenRead() (io.ReadCloser, error) {
	h.factory.mu.RLock()
	data, ok := h.factory.blobs[h.name]
	h.factory.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, h.name)
	}

	// Copy so a concurrent rewrite cannot mutate the reader's view.
	copied := make([]byte, len(data))
	copy(copied, data)
	return io.NopCloser(bytes.NewReader(copied)), nil
}

func (h *memoryHandle) Remove() error {
	h.factory.mu.Lock()
	delete(h.factory.blobs, h.name)
	h.factory.mu.Unlock()
	return nil
}

// memoryWriter buffers writes and commits the blob on Close.
type memoryWriter struct {
	factory *MemoryFactory
	name    string
	buf     bytes.Buffer
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memoryWriter) Close() error {
	w.factory.mu.Lock()
	defer w.factory.mu.Unlock()

	data := make([]byte, w.buf.Len())
	copy(data, w.buf.Bytes())
	w.factory.blobs[w.name] = data
	return nil
}
