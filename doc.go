// Package spillset provides an external, disk-spilling sorted set for
// staging query intermediate results that can outgrow memory.
//
// A Set buffers elements in memory up to a configurable threshold, spills
// full buffers to disk as immutable sorted runs through a pluggable
// filestore.Factory, and compacts many small runs into fewer large ones via
// k-way merge whenever an ordered traversal is requested, keeping the
// number of backing files within a configurable open-file budget.
//
// # Usage
//
//	factory, err := filestore.NewLocalFactory(os.TempDir())
//	if err != nil { ... }
//
//	set, err := spillset.New[int64](factory,
//		spillset.WithBufferPersistThreshold(10_000),
//		spillset.WithMaxOpenFiles(32),
//	)
//	if err != nil { ... }
//	defer set.Clear()
//
//	for _, v := range hits {
//		if _, err := set.Add(v); err != nil { ... }
//	}
//
//	it, err := set.Iterator()
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() {
//		consume(it.Item())
//	}
//	if err := it.Err(); err != nil { ... }
//
// # Trade-offs
//
// The structure is a single-owner, single-pass staging container: no
// transactions, no crash durability, no concurrent writers. Removing
// elements after a spill costs a load-rewrite round trip per affected run
// and is meant for occasional fix-ups, not steady mutation.
package spillset
