// Standard attribute keys for checkpointing and evaluation logs.
//
// Keys follow a dotted hierarchy ("checkpoint.path", "task.name") so that log
// pipelines can filter by prefix.

package log

// Component and run context.
const (
	// ComponentKey identifies which package emitted the record.
	// Examples: "checkpoint", "evaluation", "benchmark"
	ComponentKey = "genotrain.component"

	// RunIDKey carries the benchmark run identifier (a UUID string).
	RunIDKey = "run.id"

	// OperationKey names the operation being performed.
	// Standard values: "save", "load", "export", "evaluate"
	OperationKey = "genotrain.operation"
)

// Checkpoint context.
const (
	// CheckpointDirKey is the directory a manager owns.
	CheckpointDirKey = "checkpoint.dir"

	// CheckpointPathKey is the payload file involved in the operation.
	CheckpointPathKey = "checkpoint.path"

	// StepKey is the global training step of a checkpoint.
	StepKey = "checkpoint.step"

	// EpochKey is the training epoch of a checkpoint.
	EpochKey = "checkpoint.epoch"

	// BestMetricKey is the monitored metric's best value so far.
	BestMetricKey = "checkpoint.best_metric"

	// MetricForBestKey is the name of the monitored metric.
	MetricForBestKey = "checkpoint.metric_for_best"

	// FormatKey is an export format tag.
	FormatKey = "checkpoint.format"

	// MissingKeysKey and UnexpectedKeysKey report a non-strict state load.
	MissingKeysKey    = "checkpoint.missing_keys"
	UnexpectedKeysKey = "checkpoint.unexpected_keys"
)

// Evaluation context.
const (
	// TaskNameKey is the evaluation task a record refers to.
	TaskNameKey = "task.name"

	// TaskTypeKey is the task's metric family.
	TaskTypeKey = "task.type"

	// MetricNameKey is the metric family name.
	MetricNameKey = "metrics.name"

	// BatchKey is the zero-based batch index within an evaluation pass.
	BatchKey = "data.batch"

	// SamplesKey is the number of samples seen.
	SamplesKey = "data.samples"
)

// Performance.
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// MemoryUsageKey records memory usage in bytes.
	MemoryUsageKey = "perf.memory_bytes"

	// ThroughputKey records samples per second.
	ThroughputKey = "perf.throughput"
)

// Errors.
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// SuggestionKey provides hints for resolving issues.
	SuggestionKey = "error.suggestion"
)

// Standard values for OperationKey.
const (
	OperationSave     = "save"
	OperationLoad     = "load"
	OperationExport   = "export"
	OperationDelete   = "delete"
	OperationEvaluate = "evaluate"
)
