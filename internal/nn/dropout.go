package nn

import (
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

// Dropout zeroes each value with probability 1-Keep and scales survivors by
// 1/Keep while training. Outside training it returns its input unchanged.
type Dropout struct {
	Keep float64

	mu    sync.Mutex
	train bool
	coin  distuv.Bernoulli
}

func NewDropout(keep float64, src rand.Source) *Dropout {
	return &Dropout{Keep: keep, coin: distuv.Bernoulli{P: keep, Src: src}}
}

func (d *Dropout) Name() string { return "dropout" }

func (d *Dropout) Parameters() []*tensor.Tensor { return nil }

func (d *Dropout) OutputShape(in tensor.Shape) (tensor.Shape, error) { return in.Clone(), nil }

// Train switches between training (masking) and evaluation (identity).
func (d *Dropout) Train(on bool) {
	d.mu.Lock()
	d.train = on
	d.mu.Unlock()
}

func (d *Dropout) Training() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.train
}

func (d *Dropout) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.train || d.Keep >= 1 {
		return x, nil
	}
	out := tensor.New(x.Shape()...)
	if d.Keep <= 0 {
		return out, nil
	}
	scale := float32(1 / d.Keep)
	dst := out.Data()
	for i, v := range x.Data() {
		if d.coin.Rand() == 1 {
			dst[i] = v * scale
		}
	}
	return out, nil
}
