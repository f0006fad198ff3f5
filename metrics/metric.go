// Package metrics implements the stateful metric accumulators used by the
// evaluation harness together with the free functions they are built from.
//
// Every accumulator follows the same life cycle: Update any number of times,
// Compute as often as needed (Compute never mutates state), Reset to start
// over. Accumulators are not safe for concurrent use.
package metrics

import (
	"github.com/YuminosukeSato/genotrain/core/tensor"
)

// DefaultIgnoreIndex marks padding positions in targets.
const DefaultIgnoreIndex = -100

// Metric is a resettable accumulator over prediction/target batches.
type Metric interface {
	// Name is the metric family, e.g. "classification".
	Name() string
	// Reset clears accumulated state.
	Reset()
	// Update accumulates one batch.
	Update(in Inputs) error
	// Compute derives metric values from the accumulated state. An empty map
	// means there was nothing to report.
	Compute() map[string]float64
}

// Inputs carries the optional fields a metric may consume. Each metric reads
// only the fields it needs and ignores the rest.
type Inputs struct {
	Predictions   *tensor.Tensor
	Targets       *tensor.Tensor
	Probabilities *tensor.Tensor
	Logits        *tensor.Tensor

	// Generated and Reference hold raw sequences for GenomicSequenceMetrics.
	Generated []string
	Reference []string

	// IgnoreIndex overrides the metric's ignore sentinel for this call.
	IgnoreIndex *int

	// Per-call efficiency measurements for ComputationalMetrics.
	InferenceTime *float64
	MemoryMB      *float64
	Flops         *float64
}

// Float returns a pointer to v, for the optional Inputs fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// EvaluationResult is an immutable snapshot produced per task by one Compute call.
type EvaluationResult struct {
	TaskName    string             `json:"task_name"`
	Metrics     map[string]float64 `json:"metrics"`
	Predictions []float64          `json:"predictions,omitempty"`
	Targets     []float64          `json:"targets,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
}
