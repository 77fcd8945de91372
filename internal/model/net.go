package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/Brownie44l1/fkp-api/internal/monitoring"
	"github.com/Brownie44l1/fkp-api/internal/nn"
	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

// Net regresses facial keypoints from a batch of grayscale images.
//
// The stage sequence and its parameters are allocated once by NewNet and
// never change shape afterwards. Infer only reads parameters, so concurrent
// calls on independent batches are safe.
type Net struct {
	arch    Architecture
	convs   []*nn.Conv2d
	pool    *nn.MaxPool2d
	relu    nn.ReLU
	flatten nn.Flatten
	dense   []*nn.Linear
	dropout *nn.Dropout
}

// NewNet builds the keypoint network with parameters drawn from seed.
// The full network holds about 292 million float32 parameters (1.1 GiB).
func NewNet(seed uint64) *Net {
	n, err := NewNetWith(KeypointArchitecture(), seed)
	if err != nil {
		panic(fmt.Sprintf("model: keypoint architecture invalid: %v", err))
	}
	return n
}

// NewNetWith builds a network for arch. Stage i draws its parameters from
// a PCG stream keyed by (seed, i), so construction is reproducible.
func NewNetWith(arch Architecture, seed uint64) (*Net, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	stream := uint64(0)
	next := func() rand.Source {
		src := rand.NewPCG(seed, stream)
		stream++
		return src
	}

	n := &Net{arch: arch}
	for i, c := range arch.Convs {
		n.convs = append(n.convs, nn.NewConv2d(convName(i), c.In, c.Out, c.Kernel, next()))
	}
	n.pool = nn.NewMaxPool2d(poolStage, arch.Pool.Window, arch.Pool.Stride)
	for i, d := range arch.Dense {
		n.dense = append(n.dense, nn.NewLinear(denseName(i), d.In, d.Out, next()))
	}
	n.dropout = nn.NewDropout(arch.Keep, next())
	return n, nil
}

// Infer runs a (N, 1, H, W) batch through the network and returns (N, F),
// where F is the width of the last dense stage (136 for the keypoint
// network). Inputs of the wrong size fail with tensor.ErrShapeMismatch at
// the stage that cannot accept them, normally fc1.
func (n *Net) Infer(x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	for _, conv := range n.convs {
		if x, err = conv.Forward(x); err != nil {
			return nil, err
		}
		if x, err = n.relu.Forward(x); err != nil {
			return nil, err
		}
		if x, err = n.pool.Forward(x); err != nil {
			return nil, err
		}
	}
	if x, err = n.flatten.Forward(x); err != nil {
		return nil, err
	}
	monitoring.Logf("model: flattened features %v", x.Shape())

	// No activation or dropout between dense stages; keypoints are raw
	// linear outputs.
	for _, fc := range n.dense {
		if x, err = fc.Forward(x); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// Architecture returns the stage sizes the network was built from.
func (n *Net) Architecture() Architecture { return n.arch }

// Dropout returns the regularisation stage. It is constructed with the
// network but is not part of the Infer path.
func (n *Net) Dropout() *nn.Dropout { return n.dropout }

// Stages lists every stage in construction order.
func (n *Net) Stages() []nn.Layer {
	var out []nn.Layer
	for _, c := range n.convs {
		out = append(out, c)
	}
	out = append(out, n.pool)
	for _, d := range n.dense {
		out = append(out, d)
	}
	return append(out, n.dropout)
}

// ParameterCount is the total number of weight and bias values.
func (n *Net) ParameterCount() int {
	total := 0
	for _, s := range n.Stages() {
		for _, p := range s.Parameters() {
			total += len(p.Data())
		}
	}
	return total
}
