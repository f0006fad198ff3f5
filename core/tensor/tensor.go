// Package tensor provides the dense float64 N-d array exchanged between model
// collaborators, metrics and checkpoints.
//
// Integer-valued data such as class labels and token ids are stored as float64
// and converted by consumers. Row-major layout; the last dimension varies
// fastest.
package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// Tensor is a dense row-major float64 array.
type Tensor struct {
	Shape []int
	Data  []float64
}

// New creates a tensor with the given shape over data. The product of shape
// must equal len(data). A nil shape denotes a 1-d tensor of len(data).
func New(data []float64, shape ...int) (*Tensor, error) {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, errors.NewValidationError("shape", "negative dimension", shape)
		}
		n *= d
	}
	if n != len(data) {
		return nil, errors.NewDimensionError("tensor.New", n, len(data), 0)
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Tensor{Shape: s, Data: data}, nil
}

// MustNew is like New but panics on a shape mismatch. Intended for tests and
// literals.
func MustNew(data []float64, shape ...int) *Tensor {
	t, err := New(data, shape...)
	if err != nil {
		panic(err)
	}
	return t
}

// FromInts builds a 1-d or shaped tensor from integer labels.
func FromInts(values []int, shape ...int) (*Tensor, error) {
	data := make([]float64, len(values))
	for i, v := range values {
		data[i] = float64(v)
	}
	return New(data, shape...)
}

// Zeros returns a zero-filled tensor.
func Zeros(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return MustNew(make([]float64, n), shape...)
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Data)
}

// Dims returns the number of dimensions.
func (t *Tensor) Dims() int {
	return len(t.Shape)
}

// Last returns the size of the last dimension, or 1 for a scalar.
func (t *Tensor) Last() int {
	if len(t.Shape) == 0 {
		return 1
	}
	return t.Shape[len(t.Shape)-1]
}

// Flatten returns the underlying data viewed as 1-d. The slice aliases t.Data.
func (t *Tensor) Flatten() []float64 {
	if t == nil {
		return nil
	}
	return t.Data
}

// Ints converts the elements to ints, rounding to nearest.
func (t *Tensor) Ints() []int {
	out := make([]int, len(t.Data))
	for i, v := range t.Data {
		out[i] = int(math.Round(v))
	}
	return out
}

// Matrix views the tensor as (N, last) where N is the product of all leading
// dimensions. The returned matrix shares storage with t.
func (t *Tensor) Matrix() *mat.Dense {
	c := t.Last()
	if c == 0 || len(t.Data) == 0 {
		return nil
	}
	return mat.NewDense(len(t.Data)/c, c, t.Data)
}

// ArgMaxLast reduces the last dimension with arg-max. The first maximum wins
// on ties.
func (t *Tensor) ArgMaxLast() *Tensor {
	c := t.Last()
	if c == 0 {
		return MustNew(nil, 0)
	}
	rows := len(t.Data) / c
	out := make([]float64, rows)
	for r := 0; r < rows; r++ {
		row := t.Data[r*c : (r+1)*c]
		best := 0
		for j := 1; j < c; j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		out[r] = float64(best)
	}
	shape := t.Shape[:len(t.Shape)-1]
	if len(shape) == 0 {
		shape = []int{1}
	}
	return MustNew(out, shape...)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	shape := make([]int, len(t.Shape))
	copy(shape, t.Shape)
	data := make([]float64, len(t.Data))
	copy(data, t.Data)
	return &Tensor{Shape: shape, Data: data}
}

// Equal reports whether a and b have the same shape and bit-identical data.
// NaN payloads compare by bits.
func Equal(a, b *Tensor) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Shape) != len(b.Shape) || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	for i := range a.Data {
		if math.Float64bits(a.Data[i]) != math.Float64bits(b.Data[i]) {
			return false
		}
	}
	return true
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}
