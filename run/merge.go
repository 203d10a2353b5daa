package run

import (
	"container/heap"
	"errors"
	"fmt"
)

// MergedView treats an ordered list of runs as one logical sorted
// collection. It borrows the runs for the view's lifetime and owns no
// storage; range views reference, never copy, the underlying runs.
type MergedView[E any] struct {
	less func(a, b E) bool
	runs []*Run[E]
	from *E // inclusive lower bound, nil for unbounded
	to   *E // exclusive upper bound, nil for unbounded
}

// NewMergedView creates a view over runs ordered by less.
func NewMergedView[E any](less func(a, b E) bool, runs []*Run[E]) *MergedView[E] {
	return &MergedView[E]{less: less, runs: runs}
}

// Len returns the number of elements in the view. For an unbounded view
// this is the sum of the run lengths, which may overcount comparator-equal
// elements split across runs; a bounded view counts through the merge
// iterator and reads every backing file in range.
func (v *MergedView[E]) Len() (int, error) {
	if v.from == nil && v.to == nil {
		total := 0
		for _, r := range v.runs {
			total += r.Len()
		}
		return total, nil
	}

	it, err := v.Iterator()
	if err != nil {
		return 0, err
	}
	defer it.Close()

	count := 0
	for it.Next() {
		count++
	}
	return count, it.Err()
}

// Contains reports whether any run holds an element equal to e within the
// view's bounds.
func (v *MergedView[E]) Contains(e E) (bool, error) {
	if !v.inRange(e) {
		return false, nil
	}
	for _, r := range v.runs {
		ok, err := r.Contains(e)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ContainsAll reports whether the view holds every element of es.
func (v *MergedView[E]) ContainsAll(es []E) (bool, error) {
	for _, e := range es {
		ok, err := v.Contains(e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// First returns the smallest element in the view.
func (v *MergedView[E]) First() (E, error) {
	var zero E

	it, err := v.Iterator()
	if err != nil {
		return zero, err
	}
	defer it.Close()

	if !it.Next() {
		if err := it.Err(); err != nil {
			return zero, err
		}
		return zero, ErrEmpty
	}
	return it.Item(), nil
}

// Last returns the largest element in the view. On persisted runs this
// scans every backing file in range.
func (v *MergedView[E]) Last() (E, error) {
	var zero E

	it, err := v.Iterator()
	if err != nil {
		return zero, err
	}
	defer it.Close()

	var last E
	found := false
	for it.Next() {
		last = it.Item()
		found = true
	}
	if err := it.Err(); err != nil {
		return zero, err
	}
	if !found {
		return zero, ErrEmpty
	}
	return last, nil
}

// SubSet returns a view restricted to [from, to).
func (v *MergedView[E]) SubSet(from, to E) *MergedView[E] {
	sub := v.narrow()
	sub.tighten(&from, &to)
	return sub
}

// HeadSet returns a view restricted to elements strictly below to.
func (v *MergedView[E]) HeadSet(to E) *MergedView[E] {
	sub := v.narrow()
	sub.tighten(nil, &to)
	return sub
}

// TailSet returns a view restricted to elements at or above from.
func (v *MergedView[E]) TailSet(from E) *MergedView[E] {
	sub := v.narrow()
	sub.tighten(&from, nil)
	return sub
}

func (v *MergedView[E]) narrow() *MergedView[E] {
	return &MergedView[E]{less: v.less, runs: v.runs, from: v.from, to: v.to}
}

// tighten intersects the view's bounds with [from, to).
func (v *MergedView[E]) tighten(from, to *E) {
	if from != nil && (v.from == nil || v.less(*v.from, *from)) {
		v.from = from
	}
	if to != nil && (v.to == nil || v.less(*to, *v.to)) {
		v.to = to
	}
}

func (v *MergedView[E]) inRange(e E) bool {
	if v.from != nil && v.less(e, *v.from) {
		return false
	}
	if v.to != nil && !v.less(e, *v.to) {
		return false
	}
	return true
}

// Clear clears every referenced run (deleting backing files) and empties
// the view's run list.
func (v *MergedView[E]) Clear() error {
	var errs []error
	for _, r := range v.runs {
		if err := r.Clear(); err != nil {
			errs = append(errs, err)
		}
	}
	v.runs = nil
	return errors.Join(errs...)
}

// Iterator returns a lazy, forward-only, non-restartable iterator over the
// view in non-decreasing order. Comparator-equal elements present in
// several runs are produced once. Cost is O(log k) per element for k runs.
func (v *MergedView[E]) Iterator() (*Iterator[E], error) {
	it := &Iterator[E]{
		less: v.less,
		from: v.from,
		to:   v.to,
		heap: &mergeHeap[E]{less: v.less},
	}

	for i, r := range v.runs {
		cur, err := r.cursor()
		if err != nil {
			_ = it.Close()
			return nil, fmt.Errorf("%w: %w", ErrLoad, err)
		}
		it.cursors = append(it.cursors, cur)

		item, ok, err := cur.next()
		if err != nil {
			_ = it.Close()
			return nil, fmt.Errorf("%w: %w", ErrLoad, err)
		}
		if ok {
			it.heap.items = append(it.heap.items, mergeItem[E]{elem: item, src: i})
		}
	}
	heap.Init(it.heap)

	return it, nil
}

// Iterator is a forward-only k-way merge over a view's runs: a priority
// queue keyed by each run's current head, ties broken by run index for
// determinism.
type Iterator[E any] struct {
	less    func(a, b E) bool
	heap    *mergeHeap[E]
	cursors []cursor[E]
	from    *E
	to      *E

	cur     E
	prev    E
	prevSet bool
	done    bool
	err     error
	closed  bool
}

// Next advances to the next element. It returns false when the sequence is
// exhausted or a read fails; check Err afterwards.
func (it *Iterator[E]) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	for it.heap.Len() > 0 {
		top := it.heap.items[0]

		// Refill the source cursor in place, or drop it.
		item, ok, err := it.cursors[top.src].next()
		if err != nil {
			it.err = fmt.Errorf("%w: %w", ErrLoad, err)
			return false
		}
		if ok {
			it.heap.items[0] = mergeItem[E]{elem: item, src: top.src}
			heap.Fix(it.heap, 0)
		} else {
			heap.Pop(it.heap)
		}

		if it.to != nil && !it.less(top.elem, *it.to) {
			it.done = true
			return false
		}
		if it.from != nil && it.less(top.elem, *it.from) {
			continue
		}
		if it.prevSet && !it.less(it.prev, top.elem) && !it.less(top.elem, it.prev) {
			continue // duplicate across runs
		}

		it.cur = top.elem
		it.prev = top.elem
		it.prevSet = true
		return true
	}

	it.done = true
	return false
}

// Item returns the element produced by the last successful Next.
func (it *Iterator[E]) Item() E { return it.cur }

// Err returns the first read failure encountered, if any.
func (it *Iterator[E]) Err() error { return it.err }

// Close releases the underlying cursors. Safe to call more than once.
func (it *Iterator[E]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true

	var errs []error
	for _, c := range it.cursors {
		if err := c.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type mergeItem[E any] struct {
	elem E
	src  int
}

type mergeHeap[E any] struct {
	less  func(a, b E) bool
	items []mergeItem[E]
}

func (h *mergeHeap[E]) Len() int { return len(h.items) }

func (h *mergeHeap[E]) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if h.less(a.elem, b.elem) {
		return true
	}
	if h.less(b.elem, a.elem) {
		return false
	}
	return a.src < b.src
}

func (h *mergeHeap[E]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *mergeHeap[E]) Push(x any) {
	h.items = append(h.items, x.(mergeItem[E]))
}

func (h *mergeHeap[E]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
