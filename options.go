package spillset

import (
	"github.com/hupe1980/spillset/codec"
	"github.com/hupe1980/spillset/filestore"
)

const (
	// DefaultBufferPersistThreshold is the buffer size at which a spill is
	// triggered when no explicit threshold is configured.
	DefaultBufferPersistThreshold = 1000

	// DefaultMaxOpenFiles is the open-file budget applied when no
	// explicit budget is configured.
	DefaultMaxOpenFiles = 100
)

type options struct {
	codec                  codec.Codec
	bufferPersistThreshold int
	maxOpenFiles           int
	writeRateLimit         int64
	logger                 *Logger
	metrics                MetricsCollector
}

// Option configures Set construction.
type Option func(*options)

// WithCodec configures the codec used for spill files.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithBufferPersistThreshold sets the element count at which the in-memory
// buffer spills to disk. Defaults to DefaultBufferPersistThreshold.
func WithBufferPersistThreshold(threshold int) Option {
	return func(o *options) {
		o.bufferPersistThreshold = threshold
	}
}

// WithMaxOpenFiles sets the open-file budget: the maximum number of backing
// runs allowed to remain after compaction, which also caps how many files a
// single compaction round reads at once. Defaults to DefaultMaxOpenFiles.
func WithMaxOpenFiles(maxOpenFiles int) Option {
	return func(o *options) {
		o.maxOpenFiles = maxOpenFiles
	}
}

// WithWriteRateLimit throttles spill and compaction writes to bytesPerSec.
// Zero or negative disables throttling.
//
// Throttling keeps background spills from starving the query that owns the
// set when both share a disk.
func WithWriteRateLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.writeRateLimit = bytesPerSec
	}
}

// WithLogger sets the logger. Defaults to NoopLogger.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector. Defaults to
// NoopMetricsCollector.
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *options) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

func applyOptions(factory filestore.Factory, optFns []Option) (options, filestore.Factory) {
	o := options{
		codec:                  codec.Default,
		bufferPersistThreshold: DefaultBufferPersistThreshold,
		maxOpenFiles:           DefaultMaxOpenFiles,
		logger:                 NoopLogger(),
		metrics:                NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.writeRateLimit > 0 {
		factory = filestore.NewRateLimitedFactory(factory, o.writeRateLimit)
	}
	return o, factory
}
