package filestore

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeAll(t *testing.T, h Handle, data []byte) {
	t.Helper()
	w, err := h.OpenWrite()
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readAll(t *testing.T, h Handle) []byte {
	t.Helper()
	r, err := h.OpenRead()
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func testFactory(t *testing.T, factory Factory) {
	t.Helper()

	h, err := factory.Create()
	require.NoError(t, err)
	require.NotEmpty(t, h.Name())

	payload := []byte("sorted run payload")
	writeAll(t, h, payload)
	require.Equal(t, payload, readAll(t, h))

	// Rewrite replaces the previous content.
	writeAll(t, h, []byte("v2"))
	require.Equal(t, []byte("v2"), readAll(t, h))

	require.NoError(t, h.Remove())
	_, err = h.OpenRead()
	require.ErrorIs(t, err, ErrNotFound)

	// Removing twice is not an error.
	require.NoError(t, h.Remove())
}

func TestLocalFactory(t *testing.T) {
	factory, err := NewLocalFactory(t.TempDir())
	require.NoError(t, err)
	testFactory(t, factory)
}

func TestMemoryFactory(t *testing.T) {
	testFactory(t, NewMemoryFactory())
}

func TestLocalFactoryRemoveAll(t *testing.T) {
	factory, err := NewLocalFactory(t.TempDir())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		h, err := factory.Create()
		require.NoError(t, err)
		writeAll(t, h, []byte("x"))
	}

	require.NoError(t, factory.RemoveAll())

	matches, err := filepath.Glob(filepath.Join(factory.Dir(), "run_*"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestMemoryFactoryCount(t *testing.T) {
	factory := NewMemoryFactory()
	require.Equal(t, 0, factory.Count())

	h, err := factory.Create()
	require.NoError(t, err)
	writeAll(t, h, []byte("x"))
	require.Equal(t, 1, factory.Count())

	require.NoError(t, h.Remove())
	require.Equal(t, 0, factory.Count())
}

func TestLocalFactoryUnpublishedWrite(t *testing.T) {
	factory, err := NewLocalFactory(t.TempDir())
	require.NoError(t, err)

	h, err := factory.Create()
	require.NoError(t, err)

	w, err := h.OpenWrite()
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	// Content is invisible until Close publishes it.
	_, err = h.OpenRead()
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, w.Close())
	require.Equal(t, []byte("partial"), readAll(t, h))
}

func TestCompressedFactory(t *testing.T) {
	for _, compression := range []Compression{Zstd, LZ4} {
		t.Run(compression.String(), func(t *testing.T) {
			testFactory(t, NewCompressedFactory(NewMemoryFactory(), compression))
		})
	}
}

func TestCompressedFactoryShrinks(t *testing.T) {
	inner := NewMemoryFactory()
	factory := NewCompressedFactory(inner, Zstd)

	h, err := factory.Create()
	require.NoError(t, err)

	payload := make([]byte, 64*1024) // zero-filled, highly compressible
	writeAll(t, h, payload)

	inner.mu.RLock()
	stored := len(inner.blobs[h.Name()])
	inner.mu.RUnlock()
	require.Less(t, stored, len(payload))

	require.Equal(t, payload, readAll(t, h))
}

func TestRateLimitedFactory(t *testing.T) {
	// A generous limit must not alter the data path.
	testFactory(t, NewRateLimitedFactory(NewMemoryFactory(), 1<<30))
}

func TestFaultyFactoryCreate(t *testing.T) {
	factory := NewFaultyFactory(NewMemoryFactory())
	factory.SetFault(Fault{FailCreateAfter: 1, FailWriteAfterBytes: -1})

	_, err := factory.Create()
	require.NoError(t, err)

	_, err = factory.Create()
	require.Error(t, err)
}

func TestFaultyFactoryWrite(t *testing.T) {
	injected := errors.New("disk full")
	factory := NewFaultyFactory(NewMemoryFactory())
	factory.SetFault(Fault{FailCreateAfter: -1, FailWriteAfterBytes: 4, Err: injected})

	h, err := factory.Create()
	require.NoError(t, err)

	w, err := h.OpenWrite()
	require.NoError(t, err)
	_, err = w.Write([]byte("0123456789"))
	require.ErrorIs(t, err, injected)
}

func TestFaultyFactoryRead(t *testing.T) {
	injected := errors.New("read torn")
	factory := NewFaultyFactory(NewMemoryFactory())
	// The fault is captured at Create, so set it before allocating the
	// handle; writes are unaffected by a read fault.
	factory.SetFault(Fault{FailCreateAfter: -1, FailWriteAfterBytes: -1, FailOnRead: true, Err: injected})

	h, err := factory.Create()
	require.NoError(t, err)
	writeAll(t, h, []byte("payload"))

	r, err := h.OpenRead()
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	require.ErrorIs(t, err, injected)
}
