package spillset

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordSpill is called after each buffer spill.
	// elements is the buffer size at the time of the spill.
	RecordSpill(elements int, duration time.Duration, err error)

	// RecordCompaction is called after each Compact call that did work.
	// before and after are the run counts around the call.
	RecordCompaction(before, after int, duration time.Duration, err error)

	// RecordLoad is called after each load of a persisted run back into
	// memory (mutations of persisted runs trigger these).
	RecordLoad(elements int, duration time.Duration, err error)

	// RecordClear is called after each Clear.
	RecordClear(runs int, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSpill(int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordCompaction(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordLoad(int, time.Duration, error)            {}
func (NoopMetricsCollector) RecordClear(int, error)                          {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SpillCount           atomic.Int64
	SpillErrors          atomic.Int64
	SpillElements        atomic.Int64
	SpillTotalNanos      atomic.Int64
	CompactionCount      atomic.Int64
	CompactionErrors     atomic.Int64
	CompactionTotalNanos atomic.Int64
	LoadCount            atomic.Int64
	LoadErrors           atomic.Int64
	ClearCount           atomic.Int64
}

// RecordSpill implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSpill(elements int, duration time.Duration, err error) {
	b.SpillCount.Add(1)
	b.SpillElements.Add(int64(elements))
	b.SpillTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SpillErrors.Add(1)
	}
}

// RecordCompaction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCompaction(before, after int, duration time.Duration, err error) {
	b.CompactionCount.Add(1)
	b.CompactionTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CompactionErrors.Add(1)
	}
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(elements int, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordClear implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClear(runs int, err error) {
	b.ClearCount.Add(1)
}
