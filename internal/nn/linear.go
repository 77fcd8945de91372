package nn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

// Linear computes y = x·Wᵀ + b for x of shape (N, In).
// Weight is (Out, In); Bias is (Out).
type Linear struct {
	name   string
	In     int
	Out    int
	Weight *tensor.Tensor
	Bias   *tensor.Tensor
}

func NewLinear(name string, in, out int, src rand.Source) *Linear {
	l := &Linear{
		name:   name,
		In:     in,
		Out:    out,
		Weight: tensor.New(out, in),
		Bias:   tensor.New(out),
	}
	uniformFill(l.Weight.Data(), in, src)
	uniformFill(l.Bias.Data(), in, src)
	return l
}

func (l *Linear) Name() string { return l.name }

func (l *Linear) Parameters() []*tensor.Tensor { return []*tensor.Tensor{l.Weight, l.Bias} }

func (l *Linear) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	return LinearShape(l.name, in, l.In, l.Out)
}

// LinearShape is the output shape of a dense projection from in features to
// out features applied to in.
func LinearShape(stage string, in tensor.Shape, inFeatures, outFeatures int) (tensor.Shape, error) {
	if len(in) != 2 || in[1] != inFeatures {
		return nil, mismatch(stage, tensor.Shape{batchOf(in), inFeatures}, in)
	}
	return tensor.Shape{in[0], outFeatures}, nil
}

func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	outShape, err := l.OutputShape(x.Shape())
	if err != nil {
		return nil, err
	}
	n := outShape[0]
	out := tensor.New(outShape...)
	dst, bias := out.Data(), l.Bias.Data()
	for b := 0; b < n; b++ {
		copy(dst[b*l.Out:(b+1)*l.Out], bias)
	}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: n, Cols: l.In, Stride: l.In, Data: x.Data()},
		blas32.General{Rows: l.Out, Cols: l.In, Stride: l.In, Data: l.Weight.Data()},
		1,
		blas32.General{Rows: n, Cols: l.Out, Stride: l.Out, Data: dst},
	)
	return out, nil
}
