package evaluation

import (
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/genotrain/metrics"
	"github.com/YuminosukeSato/genotrain/performance"
	"github.com/YuminosukeSato/genotrain/pkg/log"
)

type settings struct {
	logger   log.Logger
	analyzer metrics.SequenceAnalyzer
	device   performance.DeviceMonitor
	now      func() time.Time
	progress func(Progress)
	newRunID func() string
}

func defaultSettings() settings {
	return settings{
		logger:   log.GetLogger(),
		device:   performance.NoDevice{},
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// Option configures MultiTaskEvaluator and BenchmarkEvaluator. Options that
// only concern benchmarking are ignored by MultiTaskEvaluator.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithSequenceAnalyzer provides the biological capability for genomic
// sequence tasks. Without it those tasks report empty results.
func WithSequenceAnalyzer(a metrics.SequenceAnalyzer) Option {
	return func(s *settings) { s.analyzer = a }
}

// WithDeviceMonitor sets the device used for synchronisation and peak memory.
// Default is performance.NoDevice.
func WithDeviceMonitor(d performance.DeviceMonitor) Option {
	return func(s *settings) { s.device = d }
}

// WithClock replaces time.Now for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithProgress registers a callback invoked after every batch.
func WithProgress(fn func(Progress)) Option {
	return func(s *settings) { s.progress = fn }
}

// WithRunIDGenerator replaces uuid.NewString for report run IDs.
func WithRunIDGenerator(fn func() string) Option {
	return func(s *settings) { s.newRunID = fn }
}

// Progress is reported after each evaluated batch.
type Progress struct {
	Batch         int
	InferenceTime time.Duration
}
