// Package evaluation routes model outputs to per-task metrics and runs
// benchmark passes over a data source.
package evaluation

import (
	"github.com/YuminosukeSato/genotrain/metrics"
	"github.com/YuminosukeSato/genotrain/pkg/errors"
	"github.com/YuminosukeSato/genotrain/pkg/log"
)

// TaskType selects the metric family of a task.
type TaskType string

const (
	TaskClassification  TaskType = "classification"
	TaskRegression      TaskType = "regression"
	TaskGeneration      TaskType = "generation"
	TaskGenomicSequence TaskType = "genomic_sequence"
)

// TaskTypes lists every supported task type.
var TaskTypes = []TaskType{TaskClassification, TaskRegression, TaskGeneration, TaskGenomicSequence}

// ParseTaskType validates a type tag. The empty tag means classification.
func ParseTaskType(s string) (TaskType, error) {
	if s == "" {
		return TaskClassification, nil
	}
	for _, t := range TaskTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", errors.NewUnknownTaskTypeError("", s)
}

// TaskConfig describes one evaluation task. Zero values take the defaults
// documented per field.
type TaskConfig struct {
	// Type defaults to classification.
	Type TaskType `yaml:"type" json:"type"`
	// NumClasses defaults to 2. Classification only.
	NumClasses int `yaml:"num_classes" json:"num_classes"`
	// Average defaults to weighted. Classification only.
	Average metrics.Average `yaml:"average" json:"average"`
	// SequenceType defaults to dna. Genomic sequence only.
	SequenceType metrics.SequenceType `yaml:"sequence_type" json:"sequence_type"`
	// IgnoreIndex defaults to -100. Classification and generation.
	IgnoreIndex *int `yaml:"ignore_index" json:"ignore_index"`
}

// WithDefaults fills unset fields.
func (c TaskConfig) WithDefaults() TaskConfig {
	if c.Type == "" {
		c.Type = TaskClassification
	}
	if c.NumClasses == 0 {
		c.NumClasses = 2
	}
	if c.Average == "" {
		c.Average = metrics.AverageWeighted
	}
	if c.SequenceType == "" {
		c.SequenceType = metrics.DNA
	}
	if c.IgnoreIndex == nil {
		c.IgnoreIndex = metrics.Int(metrics.DefaultIgnoreIndex)
	}
	return c
}

// newMetric builds the metric for a task. Every TaskType has a case; an
// unrecognised tag is a configuration error.
func newMetric(name string, cfg TaskConfig, analyzer metrics.SequenceAnalyzer, logger log.Logger) (metrics.Metric, error) {
	cfg = cfg.WithDefaults()
	switch cfg.Type {
	case TaskClassification:
		m, err := metrics.NewClassificationMetrics(cfg.NumClasses,
			metrics.WithAverage(cfg.Average),
			metrics.WithIgnoreIndex(*cfg.IgnoreIndex),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "task %q", name)
		}
		return m, nil
	case TaskRegression:
		return metrics.NewRegressionMetrics(), nil
	case TaskGeneration:
		return metrics.NewPerplexityMetric(*cfg.IgnoreIndex), nil
	case TaskGenomicSequence:
		seqType, err := metrics.ParseSequenceType(string(cfg.SequenceType))
		if err != nil {
			return nil, errors.Wrapf(err, "task %q", name)
		}
		return metrics.NewGenomicSequenceMetrics(seqType, analyzer, metrics.WithSequenceLogger(logger)), nil
	default:
		return nil, errors.NewUnknownTaskTypeError(name, string(cfg.Type))
	}
}
