package nn

import (
	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

// MaxPool2d takes the maximum over Window×Window patches every Stride pixels.
// Trailing rows and columns that do not fill a window are dropped.
type MaxPool2d struct {
	name   string
	Window int
	Stride int
}

func NewMaxPool2d(name string, window, stride int) *MaxPool2d {
	return &MaxPool2d{name: name, Window: window, Stride: stride}
}

func (p *MaxPool2d) Name() string { return p.name }

func (p *MaxPool2d) Parameters() []*tensor.Tensor { return nil }

func (p *MaxPool2d) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	return PoolShape(p.name, in, p.Window, p.Stride)
}

// PoolShape is the output shape of a max pool over in.
func PoolShape(stage string, in tensor.Shape, window, stride int) (tensor.Shape, error) {
	if len(in) != 4 || in[2] < window || in[3] < window {
		ch := -1
		if len(in) > 1 {
			ch = in[1]
		}
		return nil, mismatch(stage, tensor.Shape{batchOf(in), ch, window, window}, in)
	}
	return tensor.Shape{
		in[0], in[1],
		(in[2]-window)/stride + 1,
		(in[3]-window)/stride + 1,
	}, nil
}

func (p *MaxPool2d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	outShape, err := p.OutputShape(x.Shape())
	if err != nil {
		return nil, err
	}
	h, w := x.Dim(2), x.Dim(3)
	oh, ow := outShape[2], outShape[3]
	planes := outShape[0] * outShape[1]

	out := tensor.New(outShape...)
	src, dst := x.Data(), out.Data()
	for pl := 0; pl < planes; pl++ {
		in := src[pl*h*w : (pl+1)*h*w]
		o := dst[pl*oh*ow : (pl+1)*oh*ow]
		for y := 0; y < oh; y++ {
			for xx := 0; xx < ow; xx++ {
				y0, x0 := y*p.Stride, xx*p.Stride
				m := in[y0*w+x0]
				for dy := 0; dy < p.Window; dy++ {
					row := in[(y0+dy)*w+x0 : (y0+dy)*w+x0+p.Window]
					for _, v := range row {
						if v > m {
							m = v
						}
					}
				}
				o[y*ow+xx] = m
			}
		}
	}
	return out, nil
}
