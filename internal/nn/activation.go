package nn

import (
	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

// ReLU replaces negative values with zero.
type ReLU struct{}

func (ReLU) Name() string { return "relu" }

func (ReLU) Parameters() []*tensor.Tensor { return nil }

func (ReLU) OutputShape(in tensor.Shape) (tensor.Shape, error) { return in.Clone(), nil }

func (ReLU) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := tensor.New(x.Shape()...)
	dst := out.Data()
	for i, v := range x.Data() {
		if v > 0 {
			dst[i] = v
		}
	}
	return out, nil
}

// Flatten reshapes (N, ...) into (N, features), keeping the batch dimension.
type Flatten struct{}

func (Flatten) Name() string { return "flatten" }

func (Flatten) Parameters() []*tensor.Tensor { return nil }

func (Flatten) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	if len(in) < 2 {
		return nil, mismatch("flatten", tensor.Shape{-1, -1}, in)
	}
	return tensor.Shape{in[0], in[1:].Elements()}, nil
}

func (f Flatten) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	s, err := f.OutputShape(x.Shape())
	if err != nil {
		return nil, err
	}
	return x.Reshape(s...)
}
