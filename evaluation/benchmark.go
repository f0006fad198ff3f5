package evaluation

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/YuminosukeSato/genotrain/metrics"
	"github.com/YuminosukeSato/genotrain/performance"
	"github.com/YuminosukeSato/genotrain/pkg/errors"
	"github.com/YuminosukeSato/genotrain/pkg/log"
)

// Config enumerates the benchmark tasks.
type Config struct {
	Tasks map[string]TaskConfig `yaml:"tasks" json:"tasks"`
}

// Report is the consolidated result of one EvaluateModel call.
type Report struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	NumBatches int           `json:"num_batches"`

	// TaskResults holds one result per task.
	TaskResults map[string]metrics.EvaluationResult `json:"task_results"`
	// ComputationalMetrics holds latency and memory statistics.
	ComputationalMetrics map[string]float64 `json:"computational_metrics"`
	// SummaryMetrics flattens TaskResults as {task}_{metric}.
	SummaryMetrics map[string]float64 `json:"summary_metrics"`
}

// SummaryKey returns the SummaryMetrics key of a task metric.
func SummaryKey(task, metric string) string {
	return task + "_" + metric
}

// BenchmarkEvaluator runs a model over a data source and evaluates every
// configured task. It is not safe for concurrent use.
type BenchmarkEvaluator struct {
	settings      settings
	logger        log.Logger
	taskNames     []string
	evaluators    map[string]*MultiTaskEvaluator
	computational *metrics.ComputationalMetrics
}

// NewBenchmarkEvaluator creates one MultiTaskEvaluator per task.
func NewBenchmarkEvaluator(cfg Config, opts ...Option) (*BenchmarkEvaluator, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	b := &BenchmarkEvaluator{
		settings:      s,
		logger:        s.logger.With(log.ComponentKey, "benchmark"),
		evaluators:    make(map[string]*MultiTaskEvaluator, len(cfg.Tasks)),
		computational: metrics.NewComputationalMetrics(),
	}
	for name, taskCfg := range cfg.Tasks {
		ev, err := NewMultiTaskEvaluator(map[string]TaskConfig{name: taskCfg}, opts...)
		if err != nil {
			return nil, err
		}
		b.evaluators[name] = ev
		b.taskNames = append(b.taskNames, name)
	}
	sort.Strings(b.taskNames)
	return b, nil
}

// TaskNames returns the configured task names in sorted order.
func (b *BenchmarkEvaluator) TaskNames() []string {
	return append([]string(nil), b.taskNames...)
}

// EvaluateModel switches the model to evaluation mode, resets every metric and
// consumes source until io.EOF. Any other source or model error aborts the run.
func (b *BenchmarkEvaluator) EvaluateModel(ctx context.Context, model Model, source DataSource) (*Report, error) {
	runID := b.settings.newRunID()
	logger := b.logger.With(log.RunIDKey, runID, log.OperationKey, log.OperationEvaluate)

	model.Eval()
	for _, ev := range b.evaluators {
		ev.Reset()
	}
	b.computational.Reset()

	device := b.settings.device
	if device.Available() {
		device.ResetPeak()
	}

	startedAt := b.settings.now()
	logger.Info("Starting evaluation", "tasks", b.taskNames)

	batches := 0
	for {
		batch, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read batch %d", batches)
		}
		if err := b.evaluateBatch(ctx, model, batch, batches, logger); err != nil {
			return nil, err
		}
		batches++
	}

	report := b.buildReport(runID, startedAt, batches)
	fields := []any{
		log.SamplesKey, batches,
		log.DurationMsKey, report.Duration.Milliseconds(),
	}
	if tp, ok := report.ComputationalMetrics["throughput_samples_per_sec"]; ok {
		fields = append(fields, log.ThroughputKey, tp)
	}
	if device.Available() {
		fields = append(fields, log.MemoryUsageKey, humanize.IBytes(device.PeakMemoryBytes()))
	}
	logger.Info("Evaluation completed", fields...)
	return report, nil
}

func (b *BenchmarkEvaluator) evaluateBatch(ctx context.Context, model Model, batch Batch, idx int, logger log.Logger) error {
	device := b.settings.device
	if device.Available() {
		device.Synchronize()
	}
	start := b.settings.now()
	outputs, err := errors.SafeCall("Forward", func() (Outputs, error) {
		return model.Forward(ctx, batch)
	})
	if device.Available() {
		device.Synchronize()
	}
	elapsed := b.settings.now().Sub(start)
	if err != nil {
		return errors.Wrapf(errors.NewModelError("Forward", "forward pass failed", err), "batch %d", idx)
	}

	perf := metrics.Inputs{InferenceTime: metrics.Float(elapsed.Seconds())}
	if device.Available() {
		perf.MemoryMB = metrics.Float(performance.PeakMB(device))
	}
	if err := b.computational.Update(perf); err != nil {
		return err
	}

	for _, name := range b.taskNames {
		out, ok := outputs[name]
		if !ok {
			continue
		}
		ev := b.evaluators[name]
		cfg, _ := ev.Config(name)
		in, ok := extractInputs(name, cfg.Type, out, batch)
		if !ok {
			logger.Debug("Skipping task without required fields", log.TaskNameKey, name, log.BatchKey, idx)
			continue
		}
		if err := ev.Update(name, in); err != nil {
			return errors.Wrapf(err, "batch %d", idx)
		}
	}

	if b.settings.progress != nil {
		b.settings.progress(Progress{Batch: idx, InferenceTime: elapsed})
	}
	return nil
}

func (b *BenchmarkEvaluator) buildReport(runID string, startedAt time.Time, batches int) *Report {
	report := &Report{
		RunID:                runID,
		StartedAt:            startedAt,
		Duration:             b.settings.now().Sub(startedAt),
		NumBatches:           batches,
		TaskResults:          make(map[string]metrics.EvaluationResult, len(b.taskNames)),
		ComputationalMetrics: b.computational.Compute(),
		SummaryMetrics:       make(map[string]float64),
	}
	for _, name := range b.taskNames {
		result := b.evaluators[name].Compute()[name]
		report.TaskResults[name] = result
		for metric, v := range result.Metrics {
			report.SummaryMetrics[SummaryKey(name, metric)] = v
		}
	}
	return report
}
