package evaluation

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/genotrain/metrics"
	"github.com/YuminosukeSato/genotrain/pkg/errors"
	"github.com/YuminosukeSato/genotrain/pkg/log"
)

// MultiTaskEvaluator owns one metric per task and routes updates by task name.
type MultiTaskEvaluator struct {
	configs map[string]TaskConfig
	metrics map[string]metrics.Metric
	logger  log.Logger
}

// NewMultiTaskEvaluator builds a metric for every configured task. A task
// with an unrecognised type is rejected with an UnknownTaskTypeError.
func NewMultiTaskEvaluator(configs map[string]TaskConfig, opts ...Option) (*MultiTaskEvaluator, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	e := &MultiTaskEvaluator{
		configs: make(map[string]TaskConfig, len(configs)),
		metrics: make(map[string]metrics.Metric, len(configs)),
		logger:  s.logger.With(log.ComponentKey, "evaluation"),
	}
	for name, cfg := range configs {
		m, err := newMetric(name, cfg, s.analyzer, e.logger)
		if err != nil {
			return nil, err
		}
		e.configs[name] = cfg.WithDefaults()
		e.metrics[name] = m
	}
	return e, nil
}

// TaskNames returns the configured task names in sorted order.
func (e *MultiTaskEvaluator) TaskNames() []string {
	names := make([]string, 0, len(e.metrics))
	for name := range e.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config returns the effective configuration of a task.
func (e *MultiTaskEvaluator) Config(task string) (TaskConfig, bool) {
	cfg, ok := e.configs[task]
	return cfg, ok
}

// Reset clears every task's metric.
func (e *MultiTaskEvaluator) Reset() {
	for _, m := range e.metrics {
		m.Reset()
	}
}

// Update feeds one batch to the named task. Unknown task names are ignored.
func (e *MultiTaskEvaluator) Update(task string, in metrics.Inputs) error {
	m, ok := e.metrics[task]
	if !ok {
		return nil
	}
	if err := m.Update(in); err != nil {
		return errors.Wrapf(err, "update task %q", task)
	}
	return nil
}

// Compute returns one result per task.
func (e *MultiTaskEvaluator) Compute() map[string]metrics.EvaluationResult {
	out := make(map[string]metrics.EvaluationResult, len(e.metrics))
	for name, m := range e.metrics {
		out[name] = metrics.EvaluationResult{
			TaskName: name,
			Metrics:  m.Compute(),
		}
	}
	return out
}

// ComputeSummary aggregates every metric key across the tasks that report it
// into avg_{key} and std_{key}. The standard deviation is the population
// value; tasks lacking a key do not contribute to it.
func (e *MultiTaskEvaluator) ComputeSummary() map[string]float64 {
	values := make(map[string][]float64)
	for _, name := range e.TaskNames() {
		for key, v := range e.metrics[name].Compute() {
			values[key] = append(values[key], v)
		}
	}
	summary := make(map[string]float64, 2*len(values))
	for key, vs := range values {
		mean, std := stat.PopMeanStdDev(vs, nil)
		summary["avg_"+key] = mean
		summary["std_"+key] = std
	}
	return summary
}
