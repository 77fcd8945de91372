// Package nn implements the forward pass of the network stages: convolution,
// max pooling, rectification, flattening, dense projection and dropout.
//
// Matrix products go through gonum's float32 BLAS. Stages keep no per-call
// state, so a stage may be shared by concurrent Forward calls on independent
// inputs. Dropout in training mode is the one exception to determinism.
package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

// Layer is one stage of a network.
type Layer interface {
	Name() string
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	// OutputShape reports the shape Forward would return for an input of
	// shape in, failing exactly where Forward would.
	OutputShape(in tensor.Shape) (tensor.Shape, error)
	Parameters() []*tensor.Tensor
}

// uniformFill draws every value from U(-1/sqrt(fanIn), 1/sqrt(fanIn)).
func uniformFill(data []float32, fanIn int, src rand.Source) {
	bound := 1 / math.Sqrt(float64(fanIn))
	dist := distuv.Uniform{Min: -bound, Max: bound, Src: src}
	for i := range data {
		data[i] = float32(dist.Rand())
	}
}

func mismatch(stage string, want, got tensor.Shape) error {
	return &tensor.ShapeError{Stage: stage, Want: want, Got: got.Clone()}
}

func batchOf(s tensor.Shape) int {
	if len(s) == 0 {
		return 1
	}
	return s[0]
}
