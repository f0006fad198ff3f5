package checkpoint

import (
	"time"

	"github.com/YuminosukeSato/genotrain/core/model"
	"github.com/YuminosukeSato/genotrain/pkg/log"
)

type options struct {
	maxCheckpoints int
	saveBest       bool
	metricForBest  string
	minimize       bool
	saveOptimizer  bool
	saveScheduler  bool
	compress       bool
	logger         log.Logger
	now            func() time.Time
}

func defaultOptions() options {
	return options{
		maxCheckpoints: 5,
		saveBest:       true,
		metricForBest:  "loss",
		minimize:       true,
		saveOptimizer:  true,
		saveScheduler:  true,
		now:            time.Now,
	}
}

// Option configures a Manager.
type Option func(*options)

// WithMaxCheckpoints keeps at most n checkpoints on disk. n <= 0 disables
// cleanup. Default 5.
func WithMaxCheckpoints(n int) Option {
	return func(o *options) { o.maxCheckpoints = n }
}

// WithSaveBest toggles best-checkpoint tracking. Default true.
func WithSaveBest(enabled bool) Option {
	return func(o *options) { o.saveBest = enabled }
}

// WithMetricForBest sets the metric key used for best tracking. Default "loss".
func WithMetricForBest(name string) Option {
	return func(o *options) { o.metricForBest = name }
}

// WithMinimize sets the best-tracking direction. Default true.
func WithMinimize(minimize bool) Option {
	return func(o *options) { o.minimize = minimize }
}

// WithSaveOptimizer toggles optimizer state capture. Default true.
func WithSaveOptimizer(enabled bool) Option {
	return func(o *options) { o.saveOptimizer = enabled }
}

// WithSaveScheduler toggles scheduler state capture. Default true.
func WithSaveScheduler(enabled bool) Option {
	return func(o *options) { o.saveScheduler = enabled }
}

// WithCompression gzips the state stream of new checkpoints. Either encoding
// is readable regardless of this setting.
func WithCompression(enabled bool) Option {
	return func(o *options) { o.compress = enabled }
}

// WithLogger sets the logger. Default log.GetLogger().
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces time.Now for checkpoint timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type saveOptions struct {
	optimizer model.StateSaver
	scheduler interface{}
	extra     map[string]interface{}
}

// SaveOption adds optional state to a single Save call.
type SaveOption func(*saveOptions)

// WithOptimizer captures the optimizer state.
func WithOptimizer(opt model.StateSaver) SaveOption {
	return func(o *saveOptions) { o.optimizer = opt }
}

// WithScheduler captures the scheduler state if sched implements
// model.StateSaver. Other values are accepted and ignored.
func WithScheduler(sched interface{}) SaveOption {
	return func(o *saveOptions) { o.scheduler = sched }
}

// WithExtraData stores arbitrary gob-encodable values with the checkpoint.
func WithExtraData(extra map[string]interface{}) SaveOption {
	return func(o *saveOptions) { o.extra = extra }
}
