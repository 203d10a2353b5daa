package run

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spillset/codec"
	"github.com/hupe1980/spillset/filestore"
)

// makeRuns builds one run per element slice, persisting every other run so
// merges cross the memory/disk boundary.
func makeRuns(t *testing.T, factory filestore.Factory, groups ...[]int) []*Run[int] {
	t.Helper()

	runs := make([]*Run[int], 0, len(groups))
	for i, group := range groups {
		r := New(intLess, codec.Default)
		_, err := r.AddAll(group)
		require.NoError(t, err)
		if i%2 == 0 {
			require.NoError(t, r.Persist(factory))
		}
		runs = append(runs, r)
	}
	return runs
}

func drain(t *testing.T, it *Iterator[int]) []int {
	t.Helper()
	defer it.Close()

	var items []int
	for it.Next() {
		items = append(items, it.Item())
	}
	require.NoError(t, it.Err())
	return items
}

func TestMergedViewIterator(t *testing.T) {
	factory := filestore.NewMemoryFactory()
	runs := makeRuns(t, factory,
		[]int{1, 4, 7},
		[]int{2, 5, 8},
		[]int{3, 6, 9},
	)

	view := NewMergedView(intLess, runs)
	it, err := view.Iterator()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, drain(t, it))
}

func TestMergedViewDeduplicates(t *testing.T) {
	factory := filestore.NewMemoryFactory()
	runs := makeRuns(t, factory,
		[]int{1, 2, 3},
		[]int{2, 3, 4},
		[]int{3, 4, 5},
	)

	it, err := NewMergedView(intLess, runs).Iterator()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5}, drain(t, it))
}

func TestMergedViewEmptyRuns(t *testing.T) {
	factory := filestore.NewMemoryFactory()
	runs := makeRuns(t, factory, []int{}, []int{1}, []int{})

	it, err := NewMergedView(intLess, runs).Iterator()
	require.NoError(t, err)
	require.Equal(t, []int{1}, drain(t, it))
}

func TestMergedViewIteratorExhausts(t *testing.T) {
	it, err := NewMergedView(intLess, nil).Iterator()
	require.NoError(t, err)
	defer it.Close()

	require.False(t, it.Next())
	// Forward-only: once exhausted it stays exhausted.
	require.False(t, it.Next())
	require.NoError(t, it.Err())
}

func TestMergedViewContains(t *testing.T) {
	factory := filestore.NewMemoryFactory()
	runs := makeRuns(t, factory, []int{1, 3}, []int{5, 7})
	view := NewMergedView(intLess, runs)

	for _, e := range []int{1, 3, 5, 7} {
		ok, err := view.Contains(e)
		require.NoError(t, err)
		require.True(t, ok, e)
	}

	ok, err := view.Contains(4)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = view.ContainsAll([]int{1, 5})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = view.ContainsAll([]int{1, 4})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMergedViewFirstLast(t *testing.T) {
	factory := filestore.NewMemoryFactory()
	runs := makeRuns(t, factory, []int{5, 9}, []int{2, 7})
	view := NewMergedView(intLess, runs)

	first, err := view.First()
	require.NoError(t, err)
	require.Equal(t, 2, first)

	last, err := view.Last()
	require.NoError(t, err)
	require.Equal(t, 9, last)

	_, err = NewMergedView(intLess, nil).First()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestMergedViewRangeViews(t *testing.T) {
	factory := filestore.NewMemoryFactory()
	runs := makeRuns(t, factory, []int{1, 3, 5, 7}, []int{2, 4, 6, 8})
	view := NewMergedView(intLess, runs)

	it, err := view.SubSet(3, 7).Iterator()
	require.NoError(t, err)
	require.Equal(t, []int{3, 4, 5, 6}, drain(t, it))

	it, err = view.HeadSet(4).Iterator()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, drain(t, it))

	it, err = view.TailSet(6).Iterator()
	require.NoError(t, err)
	require.Equal(t, []int{6, 7, 8}, drain(t, it))

	// Nested views intersect their bounds.
	it, err = view.TailSet(3).HeadSet(6).TailSet(2).Iterator()
	require.NoError(t, err)
	require.Equal(t, []int{3, 4, 5}, drain(t, it))

	// Bounded Contains respects the range.
	sub := view.SubSet(3, 7)
	ok, err := sub.Contains(8)
	require.NoError(t, err)
	require.False(t, ok)

	n, err := sub.Len()
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestMergedViewLen(t *testing.T) {
	factory := filestore.NewMemoryFactory()
	runs := makeRuns(t, factory, []int{1, 2}, []int{2, 3})
	view := NewMergedView(intLess, runs)

	// Unbounded Len sums run lengths and may overcount cross-run
	// duplicates.
	n, err := view.Len()
	require.NoError(t, err)
	require.Equal(t, 4, n)

	// A bounded view counts through the deduplicating iterator.
	n, err = view.TailSet(1).Len()
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestMergedViewClear(t *testing.T) {
	factory := filestore.NewMemoryFactory()
	runs := makeRuns(t, factory, []int{1}, []int{2}, []int{3})
	view := NewMergedView(intLess, runs)

	require.NoError(t, view.Clear())
	require.Equal(t, 0, factory.Count())

	n, err := view.Len()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestCompact(t *testing.T) {
	factory := filestore.NewMemoryFactory()
	runs := makeRuns(t, factory,
		[]int{1, 4},
		[]int{2, 4, 5},
		[]int{3},
	)

	h, err := factory.Create()
	require.NoError(t, err)

	merged, err := Compact(NewMergedView(intLess, runs), h, codec.Default)
	require.NoError(t, err)
	require.True(t, merged.IsPersisted())
	// 4 appears in two inputs and is written once.
	require.Equal(t, 5, merged.Len())

	it, err := NewMergedView(intLess, []*Run[int]{merged}).Iterator()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5}, drain(t, it))
}

func TestCompactWriteFailure(t *testing.T) {
	inner := filestore.NewMemoryFactory()
	factory := filestore.NewFaultyFactory(inner)
	runs := makeRuns(t, factory, []int{1, 2}, []int{3, 4})

	factory.SetFault(filestore.Fault{FailCreateAfter: -1, FailWriteAfterBytes: 0})
	h, err := factory.Create()
	require.NoError(t, err)

	_, err = Compact(NewMergedView(intLess, runs), h, codec.Default)
	require.ErrorIs(t, err, ErrPersist)

	// The partial output is gone; the inputs are untouched.
	factory.SetFault(filestore.Fault{FailCreateAfter: -1, FailWriteAfterBytes: -1})
	it, err := NewMergedView(intLess, runs).Iterator()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4}, drain(t, it))
}
