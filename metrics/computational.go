package metrics

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// ComputationalMetrics accumulates independent efficiency series. Each Update
// may carry any subset of InferenceTime (seconds), MemoryMB and Flops.
type ComputationalMetrics struct {
	inferenceTimes []float64
	memoryMB       []float64
	flops          []float64
}

// NewComputationalMetrics creates an empty accumulator.
func NewComputationalMetrics() *ComputationalMetrics {
	return &ComputationalMetrics{}
}

// Name implements Metric.
func (m *ComputationalMetrics) Name() string { return "computational" }

// Reset implements Metric.
func (m *ComputationalMetrics) Reset() {
	m.inferenceTimes = nil
	m.memoryMB = nil
	m.flops = nil
}

// Update implements Metric.
func (m *ComputationalMetrics) Update(in Inputs) error {
	if in.InferenceTime != nil {
		m.inferenceTimes = append(m.inferenceTimes, *in.InferenceTime)
	}
	if in.MemoryMB != nil {
		m.memoryMB = append(m.memoryMB, *in.MemoryMB)
	}
	if in.Flops != nil {
		m.flops = append(m.flops, *in.Flops)
	}
	return nil
}

// Compute implements Metric. Only series with at least one sample are
// reported. Standard deviation is the population value.
func (m *ComputationalMetrics) Compute() map[string]float64 {
	out := make(map[string]float64)
	if len(m.inferenceTimes) > 0 {
		mean, std := stat.PopMeanStdDev(m.inferenceTimes, nil)
		out["avg_inference_time"] = mean
		out["std_inference_time"] = std
		out["median_inference_time"] = median(m.inferenceTimes)
		out["throughput_samples_per_sec"] = errors.SafeDivide(1, mean)
	}
	if len(m.memoryMB) > 0 {
		out["avg_memory_mb"] = stat.Mean(m.memoryMB, nil)
		out["peak_memory_mb"] = floats.Max(m.memoryMB)
	}
	if len(m.flops) > 0 {
		out["avg_flops"] = stat.Mean(m.flops, nil)
		out["total_flops"] = floats.Sum(m.flops)
	}
	return out
}

// median averages the two middle values for even-length input. x is not
// modified.
func median(x []float64) float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
