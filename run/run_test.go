package run

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spillset/codec"
	"github.com/hupe1980/spillset/filestore"
)

func intLess(a, b int) bool { return a < b }

func collect(t *testing.T, r *Run[int]) []int {
	t.Helper()
	cur, err := r.cursor()
	require.NoError(t, err)
	defer cur.close()

	var items []int
	for {
		item, ok, err := cur.next()
		require.NoError(t, err)
		if !ok {
			return items
		}
		items = append(items, item)
	}
}

func TestRunAdd(t *testing.T) {
	r := New(intLess, codec.Default)

	changed, err := r.Add(3)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = r.Add(1)
	require.NoError(t, err)
	require.True(t, changed)

	// Duplicate insert does not change the run.
	changed, err = r.Add(3)
	require.NoError(t, err)
	require.False(t, changed)

	require.Equal(t, 2, r.Len())
	require.Equal(t, []int{1, 3}, collect(t, r))
}

func TestRunAddAll(t *testing.T) {
	r := New(intLess, codec.Default)

	changed, err := r.AddAll([]int{5, 2, 8, 2})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, 3, r.Len())

	changed, err = r.AddAll([]int{5, 8})
	require.NoError(t, err)
	require.False(t, changed)
}

func TestRunPersistLoadRoundTrip(t *testing.T) {
	factory := filestore.NewMemoryFactory()
	r := New(intLess, codec.Default)

	_, err := r.AddAll([]int{4, 1, 3, 2})
	require.NoError(t, err)
	require.False(t, r.IsPersisted())

	require.NoError(t, r.Persist(factory))
	require.True(t, r.IsPersisted())
	require.Equal(t, 4, r.Len())
	require.Equal(t, 1, factory.Count())

	// Persist is idempotent once persisted.
	require.NoError(t, r.Persist(factory))
	require.Equal(t, 1, factory.Count())

	require.NoError(t, r.Load())
	require.False(t, r.IsPersisted())
	require.Equal(t, 4, r.Len())
	require.Equal(t, []int{1, 2, 3, 4}, collect(t, r))

	// The file survives the load.
	require.Equal(t, 1, factory.Count())
}

func TestRunMutationRequiresLoad(t *testing.T) {
	factory := filestore.NewMemoryFactory()
	r := New(intLess, codec.Default)

	_, err := r.AddAll([]int{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, r.Persist(factory))

	_, err = r.Add(4)
	require.ErrorIs(t, err, ErrPersisted)
	_, err = r.Remove(1)
	require.ErrorIs(t, err, ErrPersisted)
	_, err = r.RetainAll([]int{1})
	require.ErrorIs(t, err, ErrPersisted)

	require.NoError(t, r.Load())
	changed, err := r.Remove(2)
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, r.Persist(factory))

	require.NoError(t, r.Load())
	require.Equal(t, []int{1, 3}, collect(t, r))
}

func TestRunContainsPersisted(t *testing.T) {
	factory := filestore.NewMemoryFactory()
	r := New(intLess, codec.Default)

	_, err := r.AddAll([]int{10, 20, 30})
	require.NoError(t, err)
	require.NoError(t, r.Persist(factory))

	ok, err := r.Contains(20)
	require.NoError(t, err)
	require.True(t, ok)

	// Early exit once the scan passes the probe.
	ok, err = r.Contains(15)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.ContainsAll([]int{10, 30})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.ContainsAll([]int{10, 40})
	require.NoError(t, err)
	require.False(t, ok)

	// The run is still persisted: contains never loads.
	require.True(t, r.IsPersisted())
}

func TestRunRetainAll(t *testing.T) {
	r := New(intLess, codec.Default)

	_, err := r.AddAll([]int{1, 2, 3, 4, 5})
	require.NoError(t, err)

	changed, err := r.RetainAll([]int{2, 4, 9})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, []int{2, 4}, collect(t, r))

	changed, err = r.RetainAll([]int{2, 4})
	require.NoError(t, err)
	require.False(t, changed)
}

func TestRunFirstLast(t *testing.T) {
	factory := filestore.NewMemoryFactory()
	r := New(intLess, codec.Default)

	_, err := r.First()
	require.ErrorIs(t, err, ErrEmpty)

	_, err = r.AddAll([]int{7, 3, 9})
	require.NoError(t, err)

	first, err := r.First()
	require.NoError(t, err)
	require.Equal(t, 3, first)

	last, err := r.Last()
	require.NoError(t, err)
	require.Equal(t, 9, last)

	// Same answers from the persisted form.
	require.NoError(t, r.Persist(factory))

	first, err = r.First()
	require.NoError(t, err)
	require.Equal(t, 3, first)

	last, err = r.Last()
	require.NoError(t, err)
	require.Equal(t, 9, last)
}

func TestRunClear(t *testing.T) {
	factory := filestore.NewMemoryFactory()
	r := New(intLess, codec.Default)

	_, err := r.AddAll([]int{1, 2})
	require.NoError(t, err)
	require.NoError(t, r.Persist(factory))
	require.Equal(t, 1, factory.Count())

	require.NoError(t, r.Clear())
	require.Equal(t, 0, r.Len())
	require.Equal(t, 0, factory.Count())
}

func TestRunPersistFailureKeepsMemory(t *testing.T) {
	factory := filestore.NewFaultyFactory(filestore.NewMemoryFactory())
	r := New(intLess, codec.Default)

	_, err := r.AddAll([]int{1, 2, 3})
	require.NoError(t, err)

	factory.SetFault(filestore.Fault{FailCreateAfter: -1, FailWriteAfterBytes: 0})
	err = r.Persist(factory)
	require.ErrorIs(t, err, ErrPersist)

	// Fully before the transition: still in memory, still mutable.
	require.False(t, r.IsPersisted())
	require.Equal(t, []int{1, 2, 3}, collect(t, r))

	factory.SetFault(filestore.Fault{FailCreateAfter: -1, FailWriteAfterBytes: -1})
	require.NoError(t, r.Persist(factory))
	require.True(t, r.IsPersisted())
}

func TestRunPersistHandleCreateFailure(t *testing.T) {
	factory := filestore.NewFaultyFactory(filestore.NewMemoryFactory())
	factory.SetFault(filestore.Fault{FailCreateAfter: 0, FailWriteAfterBytes: -1})

	r := New(intLess, codec.Default)
	_, err := r.Add(1)
	require.NoError(t, err)

	err = r.Persist(factory)
	require.ErrorIs(t, err, ErrHandleCreate)
	require.False(t, r.IsPersisted())
}

func TestRunCodecs(t *testing.T) {
	for _, name := range []string{"json", "go-json", "cbor"} {
		t.Run(name, func(t *testing.T) {
			c, ok := codec.ByName(name)
			require.True(t, ok)

			factory := filestore.NewMemoryFactory()
			r := New(intLess, c)
			_, err := r.AddAll([]int{3, 1, 2})
			require.NoError(t, err)

			require.NoError(t, r.Persist(factory))
			require.NoError(t, r.Load())
			require.Equal(t, []int{1, 2, 3}, collect(t, r))
		})
	}
}
