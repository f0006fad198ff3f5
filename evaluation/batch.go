package evaluation

import (
	"context"
	"io"

	"github.com/YuminosukeSato/genotrain/core/tensor"
)

// Field names recognised when extracting metric inputs.
const (
	FieldPredictions   = "predictions"
	FieldLogits        = "logits"
	FieldProbabilities = "probabilities"
	FieldLabels        = "labels"
	FieldTargets       = "targets"
	FieldGenerated     = "generated"
	FieldReference     = "reference"
)

// Batch maps field names to values. Numeric fields live in Tensors and raw
// sequence lists in Sequences.
type Batch struct {
	Tensors   map[string]*tensor.Tensor
	Sequences map[string][]string
}

// Tensor returns the first present tensor among names, or nil.
func (b Batch) Tensor(names ...string) *tensor.Tensor {
	for _, name := range names {
		if t, ok := b.Tensors[name]; ok && t != nil {
			return t
		}
	}
	return nil
}

// Strings returns the sequence list stored under name.
func (b Batch) Strings(name string) []string {
	return b.Sequences[name]
}

// Outputs holds the model output fields per task name.
type Outputs map[string]Batch

// Model is the model under test.
type Model interface {
	// Eval switches the model to evaluation mode.
	Eval()
	// Forward runs one batch.
	Forward(ctx context.Context, batch Batch) (Outputs, error)
}

// DataSource yields batches until it returns io.EOF. It is consumed once.
type DataSource interface {
	Next(ctx context.Context) (Batch, error)
}

// SliceSource serves a fixed list of batches.
type SliceSource struct {
	batches []Batch
	pos     int
}

// NewSliceSource returns a DataSource over batches.
func NewSliceSource(batches ...Batch) *SliceSource {
	return &SliceSource{batches: batches}
}

// Next implements DataSource.
func (s *SliceSource) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if s.pos >= len(s.batches) {
		return Batch{}, io.EOF
	}
	b := s.batches[s.pos]
	s.pos++
	return b, nil
}
