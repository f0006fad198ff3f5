package evaluation

import (
	"github.com/YuminosukeSato/genotrain/core/tensor"
	"github.com/YuminosukeSato/genotrain/metrics"
)

// ScopedField returns the batch field name that carries a value for one task
// only, e.g. "splice_site.labels". Scoped fields take precedence over the
// shared name when several tasks read targets from the same batch.
func ScopedField(task, field string) string {
	return task + "." + field
}

// targetTensor looks up the task-scoped names first, then the shared ones.
func targetTensor(batch Batch, task string, names ...string) *tensor.Tensor {
	scoped := make([]string, len(names))
	for i, name := range names {
		scoped[i] = ScopedField(task, name)
	}
	if t := batch.Tensor(scoped...); t != nil {
		return t
	}
	return batch.Tensor(names...)
}

// extractInputs maps a task's output fields and the batch onto metric inputs.
// The boolean is false when the required fields are absent, in which case the
// task is skipped for this batch.
func extractInputs(task string, taskType TaskType, out, batch Batch) (metrics.Inputs, bool) {
	switch taskType {
	case TaskClassification:
		pred := out.Tensor(FieldPredictions, FieldLogits)
		targets := targetTensor(batch, task, FieldLabels, FieldTargets)
		if pred == nil || targets == nil {
			return metrics.Inputs{}, false
		}
		if hasClassDim(pred, targets) {
			pred = pred.ArgMaxLast()
		}
		return metrics.Inputs{
			Predictions:   pred,
			Targets:       targets,
			Probabilities: out.Tensor(FieldProbabilities),
		}, true

	case TaskRegression:
		pred := out.Tensor(FieldPredictions)
		targets := targetTensor(batch, task, FieldTargets)
		if pred == nil || targets == nil {
			return metrics.Inputs{}, false
		}
		return metrics.Inputs{Predictions: pred, Targets: targets}, true

	case TaskGeneration:
		logits := out.Tensor(FieldLogits)
		targets := targetTensor(batch, task, FieldLabels, FieldTargets)
		if logits == nil || targets == nil {
			return metrics.Inputs{}, false
		}
		return metrics.Inputs{Logits: logits, Targets: targets}, true

	case TaskGenomicSequence:
		generated := out.Strings(FieldGenerated)
		reference := batch.Strings(ScopedField(task, FieldReference))
		if reference == nil {
			reference = batch.Strings(FieldReference)
		}
		if reference == nil {
			reference = out.Strings(FieldReference)
		}
		if generated == nil || reference == nil {
			return metrics.Inputs{}, false
		}
		return metrics.Inputs{Generated: generated, Reference: reference}, true
	}
	return metrics.Inputs{}, false
}

// hasClassDim reports whether pred carries one trailing score per class on top
// of the target shape, e.g. [B, C] against [B] or [B, L, C] against [B, L].
func hasClassDim(pred, targets *tensor.Tensor) bool {
	if pred.Dims() < 2 || pred.Last() <= 1 {
		return false
	}
	return pred.Len() == targets.Len()*pred.Last()
}
