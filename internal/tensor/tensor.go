// Package tensor holds the dense float32 arrays that flow between network
// stages. Images are laid out NCHW (batch, channel, height, width), row-major.
package tensor

import (
	"fmt"
	"math"
	"strings"
)

// Shape is the extent of each tensor dimension, outermost first.
type Shape []int

// Elements returns the number of values a tensor of this shape holds.
func (s Shape) Elements() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether both shapes have the same rank and extents.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not alias s.
func (s Shape) Clone() Shape {
	return append(Shape(nil), s...)
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Tensor is a dense float32 array with a fixed shape.
type Tensor struct {
	shape Shape
	data  []float32
}

// New returns a zero-filled tensor.
func New(shape ...int) *Tensor {
	s := Shape(shape).Clone()
	return &Tensor{shape: s, data: make([]float32, s.Elements())}
}

// FromSlice wraps data without copying it.
func FromSlice(data []float32, shape ...int) (*Tensor, error) {
	s := Shape(shape).Clone()
	if s.Elements() != len(data) {
		return nil, &ShapeError{
			Stage: "tensor",
			Want:  s,
			Got:   Shape{len(data)},
		}
	}
	return &Tensor{shape: s, data: data}, nil
}

// Shape returns the tensor's shape. Callers must not modify it.
func (t *Tensor) Shape() Shape { return t.shape }

// Data returns the backing slice.
func (t *Tensor) Data() []float32 { return t.data }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Dim returns the extent of dimension i.
func (t *Tensor) Dim(i int) int { return t.shape[i] }

// Reshape returns a tensor sharing t's storage with a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	s := Shape(shape).Clone()
	if s.Elements() != len(t.data) {
		return nil, &ShapeError{Stage: "reshape", Want: s, Got: t.shape}
	}
	return &Tensor{shape: s, data: t.data}, nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{shape: t.shape.Clone(), data: append([]float32(nil), t.data...)}
}

// Batch returns a view of the i-th entry along the leading dimension,
// keeping a leading dimension of 1.
func (t *Tensor) Batch(i int) (*Tensor, error) {
	if len(t.shape) == 0 || i < 0 || i >= t.shape[0] {
		return nil, fmt.Errorf("batch index %d out of range for shape %v", i, t.shape)
	}
	stride := t.shape[1:].Elements()
	if len(t.shape) == 1 {
		stride = 1
	}
	s := t.shape.Clone()
	s[0] = 1
	return &Tensor{shape: s, data: t.data[i*stride : (i+1)*stride]}, nil
}

// Stack concatenates equally shaped tensors along their leading dimension.
func Stack(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("stack: no tensors")
	}
	inner := ts[0].shape[1:]
	total := 0
	for _, t := range ts {
		if !t.shape[1:].Equal(inner) {
			return nil, &ShapeError{Stage: "stack", Want: ts[0].shape, Got: t.shape}
		}
		total += t.shape[0]
	}
	data := make([]float32, 0, total*inner.Elements())
	for _, t := range ts {
		data = append(data, t.data...)
	}
	s := append(Shape{total}, inner...)
	return &Tensor{shape: s, data: data}, nil
}

// HasNonFinite reports whether any value is NaN or infinite.
func (t *Tensor) HasNonFinite() bool {
	for _, v := range t.data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return true
		}
	}
	return false
}
