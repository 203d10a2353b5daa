package spillset

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/spillset/codec"
	"github.com/hupe1980/spillset/filestore"
	"github.com/hupe1980/spillset/run"
)

// Set is a sorted set that holds up to a configured number of elements in
// memory before spilling them to disk as immutable sorted runs. Backing
// files are created on demand through the configured filestore.Factory and
// compacted down to the open-file budget whenever an iterator is requested.
//
// A Set has a single logical owner: one goroutine drives mutation and
// iteration sequentially, and all I/O is synchronous at the point of the
// operation that triggers it. The owner is responsible for calling Clear to
// release backing files; there is no background reclamation.
//
// Range views and iterator-driven reads are only guaranteed to reflect
// subsequent structural changes while no spill has occurred; after a spill
// they still produce correct snapshots of the runs they reference, but a
// later compaction replaces those runs.
type Set[E any] struct {
	less         func(a, b E) bool
	codec        codec.Codec
	factory      filestore.Factory
	threshold    int
	maxOpenFiles int
	logger       *Logger
	metrics      MetricsCollector

	// runs holds every live run in insertion order; buffer, when non-nil,
	// is the single unpersisted run and is always the last entry.
	runs   []*run.Run[E]
	buffer *run.Run[E]

	size      int
	sizeDirty bool
}

// New creates a Set ordered by the natural ordering of E.
func New[E cmp.Ordered](factory filestore.Factory, optFns ...Option) (*Set[E], error) {
	return NewFunc(func(a, b E) bool { return a < b }, factory, optFns...)
}

// NewFunc creates a Set ordered by less.
func NewFunc[E any](less func(a, b E) bool, factory filestore.Factory, optFns ...Option) (*Set[E], error) {
	o, factory := applyOptions(factory, optFns)

	if o.bufferPersistThreshold < 1 {
		return nil, &ErrInvalidThreshold{Threshold: o.bufferPersistThreshold}
	}
	if o.maxOpenFiles < 1 {
		return nil, &ErrInvalidMaxOpenFiles{MaxOpenFiles: o.maxOpenFiles}
	}

	return &Set[E]{
		less:         less,
		codec:        o.codec,
		factory:      factory,
		threshold:    o.bufferPersistThreshold,
		maxOpenFiles: o.maxOpenFiles,
		logger:       o.logger,
		metrics:      o.metrics,
	}, nil
}

// Add inserts e and reports whether the set changed. If the insert fills
// the buffer to the persist threshold, the buffer is spilled before Add
// returns; a spill failure fails the Add.
func (s *Set[E]) Add(e E) (bool, error) {
	if s.buffer == nil {
		s.buffer = run.New(s.less, s.codec)
		s.runs = append(s.runs, s.buffer)
	}

	changed, err := s.buffer.Add(e)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	s.sizeDirty = true

	if s.buffer.Len() >= s.threshold {
		if err := s.spill(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// AddAll inserts every element of es and reports whether the set changed.
// Spills triggered part-way through leave earlier elements persisted; the
// call fails as a whole on the first spill failure.
func (s *Set[E]) AddAll(es []E) (bool, error) {
	changed := false
	for _, e := range es {
		ok, err := s.Add(e)
		if err != nil {
			return false, err
		}
		changed = changed || ok
	}
	return changed, nil
}

// Remove deletes e from every run that contains it and reports whether the
// set changed. For each persisted run containing e this is a full
// load-mutate-persist round trip, so the worst case costs one file rewrite
// per run.
func (s *Set[E]) Remove(e E) (bool, error) {
	removed := false
	for _, r := range s.runs {
		ok, err := r.Contains(e)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}

		if r.IsPersisted() {
			if _, err := s.mutatePersisted(r, func(r *run.Run[E]) (bool, error) {
				return r.Remove(e)
			}); err != nil {
				s.logger.LogMutation("remove", len(s.runs), err)
				return false, err
			}
		} else {
			if _, err := r.Remove(e); err != nil {
				return false, err
			}
		}
		removed = true
	}

	if removed {
		s.sizeDirty = true
	}
	return removed, nil
}

// RemoveAll deletes every element of es from every run, rewriting each
// persisted run once, and reports whether the set changed.
func (s *Set[E]) RemoveAll(es []E) (bool, error) {
	return s.mutateAll("removeAll", func(r *run.Run[E]) (bool, error) {
		return r.RemoveAll(es)
	})
}

// RetainAll deletes every element not present in es from every run,
// rewriting each persisted run once, and reports whether the set changed.
func (s *Set[E]) RetainAll(es []E) (bool, error) {
	return s.mutateAll("retainAll", func(r *run.Run[E]) (bool, error) {
		return r.RetainAll(es)
	})
}

// mutateAll applies mutate to every run; persisted runs get the full
// load-mutate-persist round trip.
func (s *Set[E]) mutateAll(op string, mutate func(*run.Run[E]) (bool, error)) (bool, error) {
	modified := false
	for _, r := range s.runs {
		if r.IsPersisted() {
			changed, err := s.mutatePersisted(r, mutate)
			if err != nil {
				s.logger.LogMutation(op, len(s.runs), err)
				return false, err
			}
			modified = modified || changed
		} else {
			changed, err := mutate(r)
			if err != nil {
				return false, err
			}
			modified = modified || changed
		}
	}

	if modified {
		s.sizeDirty = true
	}
	s.logger.LogMutation(op, len(s.runs), nil)
	return modified, nil
}

func (s *Set[E]) mutatePersisted(r *run.Run[E], mutate func(*run.Run[E]) (bool, error)) (bool, error) {
	start := time.Now()
	err := r.Load()
	s.metrics.RecordLoad(r.Len(), time.Since(start), err)
	if err != nil {
		return false, err
	}

	changed, err := mutate(r)
	if err != nil {
		return changed, err
	}
	if err := r.Persist(s.factory); err != nil {
		return changed, err
	}
	return changed, nil
}

// Contains reports whether the set holds an element equal to e. The
// in-memory buffer is checked first; persisted runs are streamed until a
// match or the scan passes e.
func (s *Set[E]) Contains(e E) (bool, error) {
	if s.buffer != nil {
		if ok, err := s.buffer.Contains(e); err != nil || ok {
			return ok, err
		}
	}
	for _, r := range s.runs {
		if r == s.buffer {
			continue
		}
		ok, err := r.Contains(e)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// ContainsAll reports whether the set holds every element of es.
func (s *Set[E]) ContainsAll(es []E) (bool, error) {
	for _, e := range es {
		ok, err := s.Contains(e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Len returns the number of elements in the set. The value is cached and
// recomputed lazily after mutations as the sum of the run lengths; elements
// equal under the comparator but split across runs (inserted before and
// after a spill boundary) are counted once per run until a compaction
// collapses them.
func (s *Set[E]) Len() int {
	if s.sizeDirty {
		total := 0
		for _, r := range s.runs {
			total += r.Len()
		}
		s.size = total
		s.sizeDirty = false
	}
	return s.size
}

// IsEmpty reports whether the set holds no elements.
func (s *Set[E]) IsEmpty() bool { return s.Len() == 0 }

// First returns the smallest element.
func (s *Set[E]) First() (E, error) {
	e, err := run.NewMergedView(s.less, s.runs).First()
	if errors.Is(err, run.ErrEmpty) {
		return e, ErrEmptySet
	}
	return e, err
}

// Last returns the largest element. Persisted runs are scanned fully.
func (s *Set[E]) Last() (E, error) {
	e, err := run.NewMergedView(s.less, s.runs).Last()
	if errors.Is(err, run.ErrEmpty) {
		return e, ErrEmptySet
	}
	return e, err
}

// SubSet returns a merged view restricted to [from, to). The view
// references the set's current runs; a later compaction or Clear replaces
// or deletes those runs without updating the view.
func (s *Set[E]) SubSet(from, to E) *run.MergedView[E] {
	return run.NewMergedView(s.less, s.runs).SubSet(from, to)
}

// HeadSet returns a merged view of elements strictly below to.
func (s *Set[E]) HeadSet(to E) *run.MergedView[E] {
	return run.NewMergedView(s.less, s.runs).HeadSet(to)
}

// TailSet returns a merged view of elements at or above from.
func (s *Set[E]) TailSet(from E) *run.MergedView[E] {
	return run.NewMergedView(s.less, s.runs).TailSet(from)
}

// Persist force-spills the active buffer, if any, leaving every run on
// disk. Use it to hand the backing files off in a fully consistent state.
func (s *Set[E]) Persist() error {
	if s.buffer == nil {
		return nil
	}
	return s.spill()
}

func (s *Set[E]) spill() error {
	start := time.Now()
	n := s.buffer.Len()
	err := s.buffer.Persist(s.factory)
	s.metrics.RecordSpill(n, time.Since(start), err)

	name := ""
	if h := s.buffer.Handle(); h != nil {
		name = h.Name()
	}
	s.logger.LogSpill(name, n, err)

	if err != nil {
		return err
	}
	s.buffer = nil
	return nil
}

// Iterator normalizes the set and returns a forward-only iterator over all
// elements in non-decreasing order. If more than one run exists the buffer
// is persisted first, then the runs are compacted down to the open-file
// budget. The iterator is non-restartable; request a new one to re-read.
func (s *Set[E]) Iterator() (*run.Iterator[E], error) {
	if len(s.runs) > 1 {
		if err := s.Persist(); err != nil {
			return nil, err
		}
	}
	if err := s.Compact(s.maxOpenFiles); err != nil {
		return nil, err
	}
	return run.NewMergedView(s.less, s.runs).Iterator()
}

// Compact reduces the number of runs to at most maxFiles by merging batches
// of runs into larger persisted runs, round by round. Each round merges at
// most the open-file budget's worth of runs at a time, so the peak number
// of concurrently open files stays bounded no matter how many runs
// accumulated. A no-op when maxFiles is non-positive or already satisfied.
func (s *Set[E]) Compact(maxFiles int) error {
	if maxFiles <= 0 || len(s.runs) <= maxFiles {
		return nil
	}

	before := len(s.runs)
	start := time.Now()
	rounds := 0

	var err error
	for len(s.runs) > maxFiles {
		rounds++
		if err = s.compactRound(maxFiles); err != nil {
			break
		}
	}

	s.sizeDirty = true
	s.metrics.RecordCompaction(before, len(s.runs), time.Since(start), err)
	s.logger.LogCompaction(before, len(s.runs), rounds, err)
	return err
}

// compactRound merges one generation of runs into the next: the run list is
// partitioned into consecutive batches sized to divide the excess roughly
// evenly across maxFiles outputs, each batch is merged into one new
// persisted run, and the consumed runs' files are deleted only after the
// replacement is durably written.
func (s *Set[E]) compactRound(maxFiles int) error {
	n := len(s.runs)

	batchSize := int(math.Round(float64(n) / float64(maxFiles)))
	if batchSize > s.maxOpenFiles {
		batchSize = s.maxOpenFiles
	}
	if batchSize < 2 {
		batchSize = 2
	}

	newRuns := make([]*run.Run[E], 0, (n+batchSize-1)/batchSize)
	for i := 0; i < n; i += batchSize {
		end := i + batchSize
		if end > n {
			end = n
		}
		group := s.runs[i:end]

		if len(group) == 1 {
			newRuns = append(newRuns, group[0])
			continue
		}

		merged, err := s.compactGroup(group)
		if err != nil {
			// Completed batches are kept; the failing batch and every
			// batch after it keep their original runs.
			s.runs = append(newRuns, s.runs[i:]...)
			return fmt.Errorf("%w: %w", ErrCompaction, err)
		}

		for _, r := range group {
			if r == s.buffer {
				s.buffer = nil
			}
			_ = r.Clear()
		}
		newRuns = append(newRuns, merged)
	}

	s.runs = newRuns
	return nil
}

func (s *Set[E]) compactGroup(group []*run.Run[E]) (*run.Run[E], error) {
	h, err := s.factory.Create()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandleCreate, err)
	}
	return run.Compact(run.NewMergedView(s.less, group), h, s.codec)
}

// HasPersistedData reports whether any run has been spilled to disk.
func (s *Set[E]) HasPersistedData() bool {
	for _, r := range s.runs {
		if r.IsPersisted() {
			return true
		}
	}
	return false
}

// IsPersisted reports whether the set holds no in-memory data.
func (s *Set[E]) IsPersisted() bool {
	// completely persisted iff there is no active buffer
	return s.buffer == nil || s.buffer.IsPersisted()
}

// BufferLen returns the element count of the active buffer.
func (s *Set[E]) BufferLen() int {
	if s.buffer == nil {
		return 0
	}
	return s.buffer.Len()
}

// BufferPersistThreshold returns the configured spill threshold.
func (s *Set[E]) BufferPersistThreshold() int { return s.threshold }

// MaxOpenFiles returns the configured open-file budget.
func (s *Set[E]) MaxOpenFiles() int { return s.maxOpenFiles }

// RunCount returns the current number of runs, including the buffer.
func (s *Set[E]) RunCount() int { return len(s.runs) }

// Clear deletes every backing file, drops the buffer and resets the set to
// its freshly constructed state.
func (s *Set[E]) Clear() error {
	runs := len(s.runs)
	err := run.NewMergedView(s.less, s.runs).Clear()

	s.runs = nil
	s.buffer = nil
	s.size = 0
	s.sizeDirty = false

	s.metrics.RecordClear(runs, err)
	s.logger.LogClear(runs, err)
	return err
}
