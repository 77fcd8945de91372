package nn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

// Conv2d is a stride-1, unpadded 2D convolution with bias.
// Weight is (Out, In, Kernel, Kernel); Bias is (Out).
type Conv2d struct {
	name   string
	In     int
	Out    int
	Kernel int
	Weight *tensor.Tensor
	Bias   *tensor.Tensor
}

// NewConv2d allocates a convolution with uniformly initialised parameters.
func NewConv2d(name string, in, out, kernel int, src rand.Source) *Conv2d {
	c := &Conv2d{
		name:   name,
		In:     in,
		Out:    out,
		Kernel: kernel,
		Weight: tensor.New(out, in, kernel, kernel),
		Bias:   tensor.New(out),
	}
	fanIn := in * kernel * kernel
	uniformFill(c.Weight.Data(), fanIn, src)
	uniformFill(c.Bias.Data(), fanIn, src)
	return c
}

func (c *Conv2d) Name() string { return c.name }

func (c *Conv2d) Parameters() []*tensor.Tensor { return []*tensor.Tensor{c.Weight, c.Bias} }

func (c *Conv2d) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	return ConvShape(c.name, in, c.In, c.Out, c.Kernel)
}

// ConvShape is the output shape of an unpadded stride-1 convolution with the
// given channel counts and kernel applied to in.
func ConvShape(stage string, in tensor.Shape, inCh, outCh, kernel int) (tensor.Shape, error) {
	if len(in) != 4 || in[1] != inCh || in[2] < kernel || in[3] < kernel {
		return nil, mismatch(stage, tensor.Shape{batchOf(in), inCh, kernel, kernel}, in)
	}
	return tensor.Shape{in[0], outCh, in[2] - kernel + 1, in[3] - kernel + 1}, nil
}

// Forward lowers each image with im2col and multiplies it by the weight
// matrix, one GEMM per image.
func (c *Conv2d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	outShape, err := c.OutputShape(x.Shape())
	if err != nil {
		return nil, err
	}
	n, h, w := x.Dim(0), x.Dim(2), x.Dim(3)
	oh, ow := outShape[2], outShape[3]
	k := c.Kernel
	rows := c.In * k * k
	cols := oh * ow

	out := tensor.New(outShape...)
	lowered := make([]float32, rows*cols)
	weights := blas32.General{Rows: c.Out, Cols: rows, Stride: rows, Data: c.Weight.Data()}
	bias := c.Bias.Data()

	inStride := c.In * h * w
	outStride := c.Out * cols
	for b := 0; b < n; b++ {
		img := x.Data()[b*inStride : (b+1)*inStride]
		im2col(lowered, img, c.In, h, w, k, oh, ow)

		dst := out.Data()[b*outStride : (b+1)*outStride]
		for o := 0; o < c.Out; o++ {
			row := dst[o*cols : (o+1)*cols]
			for i := range row {
				row[i] = bias[o]
			}
		}
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			weights,
			blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: lowered},
			1,
			blas32.General{Rows: c.Out, Cols: cols, Stride: cols, Data: dst},
		)
	}
	return out, nil
}

// im2col writes one row per (channel, ky, kx) tap, each holding the oh*ow
// input values that tap sees.
func im2col(dst, img []float32, channels, h, w, k, oh, ow int) {
	cols := oh * ow
	for ch := 0; ch < channels; ch++ {
		plane := img[ch*h*w : (ch+1)*h*w]
		for ky := 0; ky < k; ky++ {
			for kx := 0; kx < k; kx++ {
				row := dst[((ch*k+ky)*k+kx)*cols:]
				for y := 0; y < oh; y++ {
					src := plane[(y+ky)*w+kx:]
					copy(row[y*ow:(y+1)*ow], src[:ow])
				}
			}
		}
	}
}
