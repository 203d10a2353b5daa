package filestore

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the stream compression applied by CompressedFactory.
type Compression int

const (
	// Zstd compresses spill files with zstandard.
	Zstd Compression = iota
	// LZ4 compresses spill files with the lz4 frame format.
	LZ4
)

func (c Compression) String() string {
	switch c {
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", int(c))
	}
}

// CompressedFactory wraps another Factory and transparently compresses
// everything written through its handles. Spill files are written once and
// scanned sequentially, which is the best case for stream compression.
type CompressedFactory struct {
	inner       Factory
	compression Compression
	level       zstd.EncoderLevel
}

// CompressedOption configures a CompressedFactory.
type CompressedOption func(*CompressedFactory)

// WithZstdLevel sets the zstd encoder level. Ignored for LZ4.
func WithZstdLevel(level zstd.EncoderLevel) CompressedOption {
	return func(f *CompressedFactory) {
		f.level = level
	}
}

// NewCompressedFactory wraps inner with stream compression.
func NewCompressedFactory(inner Factory, compression Compression, optFns ...CompressedOption) *CompressedFactory {
	f := &CompressedFactory{
		inner:       inner,
		compression: compression,
		level:       zstd.SpeedDefault,
	}
	for _, fn := range optFns {
		fn(f)
	}
	return f
}

// Create allocates a new compressed spill file handle.
func (f *CompressedFactory) Create() (Handle, error) {
	h, err := f.inner.Create()
	if err != nil {
		return nil, err
	}
	return &compressedHandle{inner: h, factory: f}, nil
}

type compressedHandle struct {
	inner   Handle
	factory *CompressedFactory
}

func (h *compressedHandle) Name() string { return h.inner.Name() }

func (h *compressedHandle) OpenWrite() (io.WriteCloser, error) {
	w, err := h.inner.OpenWrite()
	if err != nil {
		return nil, err
	}

	switch h.factory.compression {
	case LZ4:
		return &compressedWriter{enc: lz4.NewWriter(w), inner: w}, nil
	default:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(h.factory.level))
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("create compressor: %w", err)
		}
		return &compressedWriter{enc: enc, inner: w}, nil
	}
}

func (h *compressedHandle) OpenRead() (io.ReadCloser, error) {
	r, err := h.inner.OpenRead()
	if err != nil {
		return nil, err
	}

	switch h.factory.compression {
	case LZ4:
		return &lz4ReadCloser{dec: lz4.NewReader(r), inner: r}, nil
	default:
		dec, err := zstd.NewReader(r)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("create decompressor: %w", err)
		}
		return &zstdReadCloser{dec: dec, inner: r}, nil
	}
}

func (h *compressedHandle) Remove() error {
	return h.inner.Remove()
}

// compressedWriter flushes the encoder before closing the underlying file.
type compressedWriter struct {
	enc   io.WriteCloser
	inner io.WriteCloser
}

func (w *compressedWriter) Write(p []byte) (int, error) {
	return w.enc.Write(p)
}

func (w *compressedWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		_ = w.inner.Close()
		return err
	}
	return w.inner.Close()
}

type zstdReadCloser struct {
	dec   *zstd.Decoder
	inner io.ReadCloser
}

func (r *zstdReadCloser) Read(p []byte) (int, error) { return r.dec.Read(p) }

func (r *zstdReadCloser) Close() error {
	r.dec.Close()
	return r.inner.Close()
}

type lz4ReadCloser struct {
	dec   *lz4.Reader
	inner io.ReadCloser
}

func (r *lz4ReadCloser) Read(p []byte) (int, error) { return r.dec.Read(p) }

func (r *lz4ReadCloser) Close() error { return r.inner.Close() }
