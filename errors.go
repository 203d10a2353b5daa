package spillset

import (
	"errors"
	"fmt"

	"github.com/hupe1980/spillset/run"
)

var (
	// ErrEmptySet is returned by First/Last on an empty set.
	ErrEmptySet = errors.New("set is empty")

	// ErrHandleCreate indicates the file handle factory could not produce
	// a new backing file.
	ErrHandleCreate = run.ErrHandleCreate

	// ErrPersist indicates an I/O failure while spilling a run to disk.
	ErrPersist = run.ErrPersist

	// ErrLoad indicates an I/O failure while reading a run back from
	// disk.
	ErrLoad = run.ErrLoad

	// ErrCompaction indicates a compaction round failed. Batches that
	// completed before the failure remain valid; the failing batch's
	// partial output is discarded.
	ErrCompaction = errors.New("compaction failed")
)

// ErrInvalidThreshold indicates a non-positive buffer persist threshold.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidThreshold struct {
	Threshold int
	cause     error
}

func (e *ErrInvalidThreshold) Error() string {
	return fmt.Sprintf("invalid buffer persist threshold: %d", e.Threshold)
}

func (e *ErrInvalidThreshold) Unwrap() error { return e.cause }

// ErrInvalidMaxOpenFiles indicates an open-file budget below 1.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidMaxOpenFiles struct {
	MaxOpenFiles int
	cause        error
}

func (e *ErrInvalidMaxOpenFiles) Error() string {
	return fmt.Sprintf("invalid open-file budget: %d", e.MaxOpenFiles)
}

func (e *ErrInvalidMaxOpenFiles) Unwrap() error { return e.cause }
