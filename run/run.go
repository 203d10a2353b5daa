// Package run implements the sorted runs a spill set is built from and the
// merged read view over them.
//
// A Run is a single sorted, deduplicating collection of elements that lives
// either in memory (backed by a btree) or on disk (backed by a
// filestore.Handle), never both. A MergedView treats an ordered list of runs
// as one logical sorted collection via a lazy k-way merge; it borrows the
// runs and owns no storage.
package run

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/btree"

	"github.com/hupe1980/spillset/codec"
	"github.com/hupe1980/spillset/filestore"
)

const btreeDegree = 32

var (
	// ErrPersisted is returned when a mutating operation is attempted on a
	// persisted run. Call Load first.
	ErrPersisted = errors.New("run is persisted")

	// ErrEmpty is returned by First/Last on an empty run or view.
	ErrEmpty = errors.New("empty")

	// ErrHandleCreate wraps a failure to obtain a new backing file from
	// the factory.
	ErrHandleCreate = errors.New("create backing file")

	// ErrPersist wraps an I/O failure while writing a run to its backing
	// file.
	ErrPersist = errors.New("persist run")

	// ErrLoad wraps an I/O failure while reading a run back from its
	// backing file.
	ErrLoad = errors.New("load run")
)

// Run is a single sorted, deduplicating run of elements.
//
// Exactly one of mem and file carries the data: mem while the run is in
// memory, file once it has been persisted. Load brings a persisted run back
// into memory for mutation; the backing file stays behind and is rewritten
// by the next Persist.
//
// A Run is not safe for concurrent use.
type Run[E any] struct {
	less  func(a, b E) bool
	codec codec.Codec
	mem   *btree.BTreeG[E]
	file  filestore.Handle
	count int
}

// New creates an empty in-memory run ordered by less.
func New[E any](less func(a, b E) bool, c codec.Codec) *Run[E] {
	if c == nil {
		c = codec.Default
	}
	return &Run[E]{
		less:  less,
		codec: c,
		mem:   btree.NewG(btreeDegree, btree.LessFunc[E](less)),
	}
}

// IsPersisted reports whether the run's elements live only in its backing
// file.
func (r *Run[E]) IsPersisted() bool { return r.mem == nil }

// Len returns the number of elements in the run.
func (r *Run[E]) Len() int { return r.count }

// Handle returns the run's backing file handle, or nil if the run has never
// been persisted.
func (r *Run[E]) Handle() filestore.Handle { return r.file }

// Add inserts e, preserving order and uniqueness. It reports whether the
// run changed. Valid only while the run is in memory.
func (r *Run[E]) Add(e E) (bool, error) {
	if r.mem == nil {
		return false, ErrPersisted
	}
	if _, replaced := r.mem.ReplaceOrInsert(e); replaced {
		return false, nil
	}
	r.count++
	return true, nil
}

// AddAll inserts every element of es and reports whether the run changed.
func (r *Run[E]) AddAll(es []E) (bool, error) {
	changed := false
	for _, e := range es {
		ok, err := r.Add(e)
		if err != nil {
			return changed, err
		}
		changed = changed || ok
	}
	return changed, nil
}

// Remove deletes e and reports whether the run changed. Valid only while
// the run is in memory.
func (r *Run[E]) Remove(e E) (bool, error) {
	if r.mem == nil {
		return false, ErrPersisted
	}
	if _, ok := r.mem.Delete(e); !ok {
		return false, nil
	}
	r.count--
	return true, nil
}

// RemoveAll deletes every element of es and reports whether the run
// changed.
func (r *Run[E]) RemoveAll(es []E) (bool, error) {
	changed := false
	for _, e := range es {
		ok, err := r.Remove(e)
		if err != nil {
			return changed, err
		}
		changed = changed || ok
	}
	return changed, nil
}

// RetainAll deletes every element not present in es and reports whether the
// run changed. Valid only while the run is in memory.
func (r *Run[E]) RetainAll(es []E) (bool, error) {
	if r.mem == nil {
		return false, ErrPersisted
	}

	keep := btree.NewG(btreeDegree, btree.LessFunc[E](r.less))
	for _, e := range es {
		keep.ReplaceOrInsert(e)
	}

	var drop []E
	r.mem.Ascend(func(item E) bool {
		if !keep.Has(item) {
			drop = append(drop, item)
		}
		return true
	})
	for _, e := range drop {
		r.mem.Delete(e)
		r.count--
	}
	return len(drop) > 0, nil
}

// Contains reports whether the run holds an element equal to e under the
// run's ordering. On a persisted run this streams the backing file,
// early-exiting once the scan passes e.
func (r *Run[E]) Contains(e E) (bool, error) {
	if r.mem != nil {
		return r.mem.Has(e), nil
	}
	if r.count == 0 {
		return false, nil
	}

	cur, err := r.cursor()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer cur.close()

	for {
		item, ok, err := cur.next()
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrLoad, err)
		}
		if !ok {
			return false, nil
		}
		if r.less(e, item) {
			return false, nil // scanned past e
		}
		if !r.less(item, e) {
			return true, nil // equal
		}
	}
}

// ContainsAll reports whether the run holds every element of es.
func (r *Run[E]) ContainsAll(es []E) (bool, error) {
	for _, e := range es {
		ok, err := r.Contains(e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// First returns the smallest element.
func (r *Run[E]) First() (E, error) {
	var zero E
	if r.count == 0 {
		return zero, ErrEmpty
	}
	if r.mem != nil {
		min, _ := r.mem.Min()
		return min, nil
	}

	cur, err := r.cursor()
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer cur.close()

	item, ok, err := cur.next()
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	if !ok {
		return zero, ErrEmpty
	}
	return item, nil
}

// Last returns the largest element. On a persisted run this scans the whole
// backing file.
func (r *Run[E]) Last() (E, error) {
	var zero E
	if r.count == 0 {
		return zero, ErrEmpty
	}
	if r.mem != nil {
		max, _ := r.mem.Max()
		return max, nil
	}

	cur, err := r.cursor()
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer cur.close()

	var last E
	found := false
	for {
		item, ok, err := cur.next()
		if err != nil {
			return zero, fmt.Errorf("%w: %w", ErrLoad, err)
		}
		if !ok {
			break
		}
		last, found = item, true
	}
	if !found {
		return zero, ErrEmpty
	}
	return last, nil
}

// Persist writes the in-memory content to the run's backing file, creating
// one from factory on first persist, and frees the in-memory
// representation. A no-op if the run is already persisted.
//
// On failure the run keeps its in-memory content and, if the handle was
// created by this call, the partial file is removed, so the run is either
// fully before or fully after the transition.
func (r *Run[E]) Persist(factory filestore.Factory) error {
	if r.mem == nil {
		return nil
	}

	created := false
	if r.file == nil {
		h, err := factory.Create()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHandleCreate, err)
		}
		r.file = h
		created = true
	}

	if err := r.write(); err != nil {
		if created {
			_ = r.file.Remove()
			r.file = nil
		}
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	r.mem = nil
	return nil
}

func (r *Run[E]) write() error {
	w, err := r.file.OpenWrite()
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	var encErr error
	r.mem.Ascend(func(item E) bool {
		encErr = writeElement(bw, r.codec, item)
		return encErr == nil
	})
	if encErr != nil {
		_ = w.Close()
		return encErr
	}
	if err := bw.Flush(); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Load reads the backing file fully back into memory, leaving the file in
// place. A no-op if the run is already in memory.
func (r *Run[E]) Load() error {
	if r.mem != nil {
		return nil
	}

	cur, err := r.cursor()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer cur.close()

	mem := btree.NewG(btreeDegree, btree.LessFunc[E](r.less))
	count := 0
	for {
		item, ok, err := cur.next()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLoad, err)
		}
		if !ok {
			break
		}
		mem.ReplaceOrInsert(item)
		count++
	}

	r.mem = mem
	r.count = count
	return nil
}

// Clear deletes the backing file, if any, and drops the in-memory content.
// The run is dead afterwards; its owner must drop the reference.
func (r *Run[E]) Clear() error {
	var err error
	if r.file != nil {
		err = r.file.Remove()
		r.file = nil
	}
	r.mem = nil
	r.count = 0
	return err
}

// Compact merges the view into a single persisted run backed by h. The view
// is streamed through its merge iterator, so comparator-equal elements from
// different runs collapse into one. On failure the partial file is removed
// and the consumed view is untouched.
func Compact[E any](view *MergedView[E], h filestore.Handle, c codec.Codec) (*Run[E], error) {
	if c == nil {
		c = codec.Default
	}

	w, err := h.OpenWrite()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	it, err := view.Iterator()
	if err != nil {
		_ = w.Close()
		_ = h.Remove()
		return nil, err
	}

	bw := bufio.NewWriter(w)
	count := 0
	for it.Next() {
		if err := writeElement(bw, c, it.Item()); err != nil {
			abortCompact(it, w, h)
			return nil, fmt.Errorf("%w: %w", ErrPersist, err)
		}
		count++
	}
	if err := it.Err(); err != nil {
		abortCompact(it, w, h)
		return nil, err
	}
	_ = it.Close()

	if err := bw.Flush(); err != nil {
		_ = w.Close()
		_ = h.Remove()
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := w.Close(); err != nil {
		_ = h.Remove()
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	return &Run[E]{
		less:  view.less,
		codec: c,
		file:  h,
		count: count,
	}, nil
}

func abortCompact[E any](it *Iterator[E], w io.WriteCloser, h filestore.Handle) {
	_ = it.Close()
	_ = w.Close()
	_ = h.Remove()
}

// cursor returns a forward-only stream over the run's elements in order.
func (r *Run[E]) cursor() (cursor[E], error) {
	if r.mem != nil {
		items := make([]E, 0, r.count)
		r.mem.Ascend(func(item E) bool {
			items = append(items, item)
			return true
		})
		return &sliceCursor[E]{items: items}, nil
	}
	if r.file == nil {
		return &sliceCursor[E]{}, nil
	}

	rc, err := r.file.OpenRead()
	if err != nil {
		return nil, err
	}
	return &fileCursor[E]{
		rc:    rc,
		br:    bufio.NewReader(rc),
		codec: r.codec,
	}, nil
}

type cursor[E any] interface {
	next() (E, bool, error)
	close() error
}

type sliceCursor[E any] struct {
	items []E
	pos   int
}

func (c *sliceCursor[E]) next() (E, bool, error) {
	var zero E
	if c.pos >= len(c.items) {
		return zero, false, nil
	}
	item := c.items[c.pos]
	c.pos++
	return item, true, nil
}

func (c *sliceCursor[E]) close() error { return nil }

type fileCursor[E any] struct {
	rc    io.ReadCloser
	br    *bufio.Reader
	codec codec.Codec
	buf   []byte
}

func (c *fileCursor[E]) next() (E, bool, error) {
	var zero E

	n, err := binary.ReadUvarint(c.br)
	if err == io.EOF {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}

	if uint64(cap(c.buf)) < n {
		c.buf = make([]byte, n)
	}
	buf := c.buf[:n]
	if _, err := io.ReadFull(c.br, buf); err != nil {
		return zero, false, err
	}

	var item E
	if err := c.codec.Unmarshal(buf, &item); err != nil {
		return zero, false, err
	}
	return item, true, nil
}

func (c *fileCursor[E]) close() error { return c.rc.Close() }

// writeElement frames one codec-encoded element as uvarint length plus
// payload.
func writeElement[E any](bw *bufio.Writer, c codec.Codec, e E) error {
	data, err := c.Marshal(e)
	if err != nil {
		return err
	}

	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(data)))
	if _, err := bw.Write(lenBuf[:n]); err != nil {
		return err
	}
	_, err = bw.Write(data)
	return err
}
