package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/spillset/filestore"
)

// Factory implements filestore.Factory on MinIO and S3-compatible storage.
//
// Each spill file becomes one object under the configured prefix. Writes
// stream through a pipe into a single PutObject; the object is visible to
// readers only after the writer's Close returns.
type Factory struct {
	ctx    context.Context
	client *minio.Client
	bucket string
	prefix string
	seq    atomic.Uint64
}

// NewFactory creates a MinIO-backed spill factory.
// ctx bounds all object-storage calls made through the factory's handles.
// rootPrefix is prepended to all keys (e.g. "query-1234/").
func NewFactory(ctx context.Context, client *minio.Client, bucket, rootPrefix string) *Factory {
	return &Factory{
		ctx:    ctx,
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

// Create allocates a new object-backed spill file handle.
func (f *Factory) Create() (filestore.Handle, error) {
	name := fmt.Sprintf("run_%06d.spill", f.seq.Add(1))
	return &objectHandle{
		factory: f,
		name:    name,
		key:     path.Join(f.prefix, name),
	}, nil
}

// RemoveAll deletes every object under the factory's prefix, in parallel.
// Use it to reclaim leftovers after abandoning a set without Clear.
func (f *Factory) RemoveAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for obj := range f.client.ListObjects(ctx, f.bucket, minio.ListObjectsOptions{
		Prefix:    f.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return obj.Err
		}
		key := obj.Key
		g.Go(func() error {
			return f.client.RemoveObject(ctx, f.bucket, key, minio.RemoveObjectOptions{})
		})
	}
	return g.Wait()
}

type objectHandle struct {
	factory *Factory
	name    string
	key     string
}

func (h *objectHandle) Name() string { return h.name }

func (h *objectHandle) OpenWrite() (io.WriteCloser, error) {
	pr, pw := io.Pipe()

	w := &objectWriter{
		pw:   pw,
		done: make(chan error, 1),
	}

	// Start the upload in the background; Close waits for it.
	go func() {
		f := h.factory
		_, err := f.client.PutObject(f.ctx, f.bucket, h.key, pr, -1, minio.PutObjectOptions{})
		_ = pr.CloseWithError(err)
		w.done <- err
	}()

	return w, nil
}

func (h *objectHandle) OpenRead() (io.ReadCloser, error) {
	f := h.factory

	// Stat first so a missing object fails here, not on first Read.
	if _, err := f.client.StatObject(f.ctx, f.bucket, h.key, minio.StatObjectOptions{}); err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil, fmt.Errorf("%w: %s", filestore.ErrNotFound, h.name)
		}
		return nil, err
	}

	obj, err := f.client.GetObject(f.ctx, f.bucket, h.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (h *objectHandle) Remove() error {
	f := h.factory
	err := f.client.RemoveObject(f.ctx, f.bucket, h.key, minio.RemoveObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil // Already gone
		}
		return err
	}
	return nil
}

// objectWriter implements io.WriteCloser for streaming uploads.
type objectWriter struct {
	pw       *io.PipeWriter
	done     chan error
	finished atomic.Bool
}

func (w *objectWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *objectWriter) Close() error {
	if !w.finished.CompareAndSwap(false, true) {
		return errors.New("already closed")
	}
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}
