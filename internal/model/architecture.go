package model

import (
	"fmt"

	"github.com/Brownie44l1/fkp-api/internal/nn"
	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

// ConvSpec declares one convolutional stage.
type ConvSpec struct {
	In     int `json:"in"`
	Out    int `json:"out"`
	Kernel int `json:"kernel"`
}

// PoolSpec declares the downsampling stage shared by every convolution.
type PoolSpec struct {
	Window int `json:"window"`
	Stride int `json:"stride"`
}

// DenseSpec declares one fully connected stage.
type DenseSpec struct {
	In  int `json:"in"`
	Out int `json:"out"`
}

// Architecture is the fixed stage sequence of a keypoint network:
// each Conv is followed by ReLU and the shared Pool, then the features are
// flattened and passed through every Dense stage in order.
type Architecture struct {
	InputSize int         `json:"input_size"`
	Convs     []ConvSpec  `json:"convs"`
	Pool      PoolSpec    `json:"pool"`
	Dense     []DenseSpec `json:"dense"`
	// Keep is the keep-probability of the dropout stage.
	Keep float64 `json:"keep"`
}

// KeypointArchitecture is the network served by this repository:
// 224×224 grayscale in, 136 values out.
func KeypointArchitecture() Architecture {
	return Architecture{
		InputSize: 224,
		Convs: []ConvSpec{
			{In: 1, Out: 64, Kernel: 5},
			{In: 64, Out: 256, Kernel: 3},
			{In: 256, Out: 512, Kernel: 3},
			{In: 512, Out: 1024, Kernel: 3},
			{In: 1024, Out: 2048, Kernel: 3},
		},
		Pool: PoolSpec{Window: 2, Stride: 2},
		Dense: []DenseSpec{
			{In: 2048 * 5 * 5, Out: 5120},
			{In: 5120, Out: 1024},
			{In: 1024, Out: OutputSize},
		},
		Keep: 0.8,
	}
}

// CompactArchitecture has the same stage structure as KeypointArchitecture
// at 96×96 with narrow channels. Its parameters fit in a few kilobytes, which
// makes it the network of choice for smoke runs.
func CompactArchitecture() Architecture {
	return Architecture{
		InputSize: 96,
		Convs: []ConvSpec{
			{In: 1, Out: 2, Kernel: 5},
			{In: 2, Out: 4, Kernel: 3},
			{In: 4, Out: 4, Kernel: 3},
			{In: 4, Out: 8, Kernel: 3},
			{In: 8, Out: 8, Kernel: 3},
		},
		Pool: PoolSpec{Window: 2, Stride: 2},
		Dense: []DenseSpec{
			{In: 8 * 1 * 1, Out: 16},
			{In: 16, Out: 8},
			{In: 8, Out: OutputSize},
		},
		Keep: 0.8,
	}
}

// Validate checks that adjacent stages agree on channel and feature counts.
// It does not check that InputSize flattens to Dense[0].In; Trace does.
func (a Architecture) Validate() error {
	if a.InputSize <= 0 {
		return fmt.Errorf("input size must be positive, got %d", a.InputSize)
	}
	if len(a.Convs) == 0 || len(a.Dense) == 0 {
		return fmt.Errorf("architecture needs at least one convolution and one dense stage")
	}
	if a.Convs[0].In != 1 {
		return fmt.Errorf("conv1 must take a single channel, got %d", a.Convs[0].In)
	}
	for i := 1; i < len(a.Convs); i++ {
		if a.Convs[i].In != a.Convs[i-1].Out {
			return fmt.Errorf("conv%d takes %d channels but conv%d produces %d",
				i+1, a.Convs[i].In, i, a.Convs[i-1].Out)
		}
	}
	for i := 1; i < len(a.Dense); i++ {
		if a.Dense[i].In != a.Dense[i-1].Out {
			return fmt.Errorf("fc%d takes %d features but fc%d produces %d",
				i+1, a.Dense[i].In, i, a.Dense[i-1].Out)
		}
	}
	if a.Pool.Window <= 0 || a.Pool.Stride <= 0 {
		return fmt.Errorf("pool window and stride must be positive")
	}
	if a.Keep <= 0 || a.Keep > 1 {
		return fmt.Errorf("keep probability must be in (0, 1], got %v", a.Keep)
	}
	return nil
}

// OutputFeatures is the width of the final dense stage.
func (a Architecture) OutputFeatures() int {
	return a.Dense[len(a.Dense)-1].Out
}

// StageShape is the output shape of one stage.
type StageShape struct {
	Stage string       `json:"stage"`
	Shape tensor.Shape `json:"shape"`
}

// Trace propagates an input shape through the stage sequence without
// allocating parameters. On failure it returns the stages that succeeded
// together with the same ShapeMismatch error Infer would raise.
func (a Architecture) Trace(in tensor.Shape) ([]StageShape, error) {
	var trace []StageShape
	s := in
	var err error
	for i, c := range a.Convs {
		if s, err = nn.ConvShape(convName(i), s, c.In, c.Out, c.Kernel); err != nil {
			return trace, err
		}
		trace = append(trace, StageShape{Stage: convName(i), Shape: s})
		if s, err = nn.PoolShape(poolStage, s, a.Pool.Window, a.Pool.Stride); err != nil {
			return trace, err
		}
		trace = append(trace, StageShape{Stage: poolName(i), Shape: s})
	}
	if s, err = (nn.Flatten{}).OutputShape(s); err != nil {
		return trace, err
	}
	trace = append(trace, StageShape{Stage: "flatten", Shape: s})
	for i, d := range a.Dense {
		if s, err = nn.LinearShape(denseName(i), s, d.In, d.Out); err != nil {
			return trace, err
		}
		trace = append(trace, StageShape{Stage: denseName(i), Shape: s})
	}
	return trace, nil
}

// poolStage names the shared downsampling stage; trace entries number each
// of its applications.
const poolStage = "pool"

func convName(i int) string  { return fmt.Sprintf("conv%d", i+1) }
func poolName(i int) string  { return fmt.Sprintf("pool%d", i+1) }
func denseName(i int) string { return fmt.Sprintf("fc%d", i+1) }
