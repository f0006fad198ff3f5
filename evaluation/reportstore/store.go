// Package reportstore persists benchmark reports.
package reportstore

import (
	"context"
	"time"

	"github.com/YuminosukeSato/genotrain/evaluation"
	"github.com/YuminosukeSato/genotrain/metrics"
)

// Store keeps evaluation reports keyed by run ID.
type Store interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, report *evaluation.Report) error
	Get(ctx context.Context, runID string) (*evaluation.Report, bool, error)
	List(ctx context.Context) ([]RunInfo, error)
	Close() error
}

// RunInfo is the listing entry of a stored report.
type RunInfo struct {
	RunID      string
	StartedAt  time.Time
	Duration   time.Duration
	NumBatches int
}

func infoOf(r *evaluation.Report) RunInfo {
	return RunInfo{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		Duration:   r.Duration,
		NumBatches: r.NumBatches,
	}
}

func cloneReport(r *evaluation.Report) *evaluation.Report {
	out := *r
	out.TaskResults = make(map[string]metrics.EvaluationResult, len(r.TaskResults))
	for name, res := range r.TaskResults {
		res.Metrics = cloneFloats(res.Metrics)
		res.Predictions = append([]float64(nil), res.Predictions...)
		res.Targets = append([]float64(nil), res.Targets...)
		out.TaskResults[name] = res
	}
	out.ComputationalMetrics = cloneFloats(r.ComputationalMetrics)
	out.SummaryMetrics = cloneFloats(r.SummaryMetrics)
	return &out
}

func cloneFloats(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
