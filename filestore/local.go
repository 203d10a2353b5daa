package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
)

// LocalFactory creates spill files under a local directory.
//
// Writes go to a temporary sibling first and are renamed into place on
// Close, so a reader never observes a partially written file.
type LocalFactory struct {
	dir string
	seq atomic.Uint64
}

// NewLocalFactory creates a LocalFactory rooted at dir, creating the
// directory if needed.
func NewLocalFactory(dir string) (*LocalFactory, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalFactory{dir: dir}, nil
}

// Dir returns the root directory of the factory.
func (f *LocalFactory) Dir() string { return f.dir }

// RemoveAll deletes every spill file under the factory's root, including
// unpublished temp files. Use it to reclaim leftovers after abandoning a
// set without Clear.
func (f *LocalFactory) RemoveAll() error {
	matches, err := filepath.Glob(filepath.Join(f.dir, "run_*.spill*"))
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Create allocates a new spill file handle.
func (f *LocalFactory) Create() (Handle, error) {
	name := fmt.Sprintf("run_%06d.spill", f.seq.Add(1))
	return &localHandle{path: filepath.Join(f.dir, name), name: name}, nil
}

type localHandle struct {
	path string
	name string
}

func (h *localHandle) Name() string { return h.name }

func (h *localHandle) OpenWrite() (io.WriteCloser, error) {
	tmp := h.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &localWriter{file: file, tmp: tmp, path: h.path}, nil
}

func (h *localHandle) OpenRead() (io.ReadCloser, error) {
	file, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, h.name)
		}
		return nil, err
	}
	return file, nil
}

func (h *localHandle) Remove() error {
	err := os.Remove(h.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// localWriter writes to a temp file and publishes it by rename on Close.
type localWriter struct {
	file *os.File
	tmp  string
	path string
}

func (w *localWriter) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

func (w *localWriter) Close() error {
	if err := w.file.Close(); err != nil {
		_ = os.Remove(w.tmp)
		return err
	}
	if err := os.Rename(w.tmp, w.path); err != nil {
		_ = os.Remove(w.tmp)
		return err
	}
	return nil
}
