package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// PerplexityMetric accumulates summed token cross-entropy and the number of
// scored tokens. Targets equal to the ignore index are not scored.
type PerplexityMetric struct {
	ignoreIndex int
	totalLoss   float64
	totalTokens int
}

// NewPerplexityMetric creates an accumulator with the given ignore index
// (usually DefaultIgnoreIndex).
func NewPerplexityMetric(ignoreIndex int) *PerplexityMetric {
	return &PerplexityMetric{ignoreIndex: ignoreIndex}
}

// Name implements Metric.
func (m *PerplexityMetric) Name() string { return "perplexity" }

// Reset implements Metric.
func (m *PerplexityMetric) Reset() {
	m.totalLoss = 0
	m.totalTokens = 0
}

// Update implements Metric. Logits (falling back to Predictions) are viewed as
// (tokens, vocab) and Targets as (tokens).
func (m *PerplexityMetric) Update(in Inputs) error {
	logits := in.Logits
	if logits == nil {
		logits = in.Predictions
	}
	if logits == nil || in.Targets == nil {
		return errors.NewValueError("PerplexityMetric.Update", "logits and targets are required")
	}
	vocab := logits.Last()
	targets := in.Targets.Ints()
	if vocab == 0 || logits.Len() != len(targets)*vocab {
		return errors.NewDimensionError("PerplexityMetric.Update", len(targets)*vocab, logits.Len(), 0)
	}
	ignore := m.ignoreIndex
	if in.IgnoreIndex != nil {
		ignore = *in.IgnoreIndex
	}

	// validate before mutating so a bad batch leaves the state untouched
	for _, t := range targets {
		if t != ignore && (t < 0 || t >= vocab) {
			return errors.NewValueError("PerplexityMetric.Update",
				fmt.Sprintf("target %d outside vocabulary of size %d", t, vocab))
		}
	}

	var loss float64
	var tokens int
	for i, t := range targets {
		if t == ignore {
			continue
		}
		row := logits.Data[i*vocab : (i+1)*vocab]
		loss += floats.LogSumExp(row) - row[t]
		tokens++
	}
	m.totalLoss += loss
	m.totalTokens += tokens
	return nil
}

// Compute implements Metric. With no scored tokens the perplexity is +Inf and
// no cross-entropy is reported.
func (m *PerplexityMetric) Compute() map[string]float64 {
	if m.totalTokens == 0 {
		return map[string]float64{"perplexity": math.Inf(1)}
	}
	avg := m.totalLoss / float64(m.totalTokens)
	return map[string]float64{
		"perplexity":    math.Exp(avg),
		"cross_entropy": avg,
	}
}

// Tokens returns the number of tokens scored so far.
func (m *PerplexityMetric) Tokens() int { return m.totalTokens }
