package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

func TestKeypointArchitectureTrace(t *testing.T) {
	arch := KeypointArchitecture()
	require.NoError(t, arch.Validate())

	trace, err := arch.Trace(tensor.Shape{1, 1, 224, 224})
	require.NoError(t, err)

	want := []StageShape{
		{Stage: "conv1", Shape: tensor.Shape{1, 64, 220, 220}},
		{Stage: "pool1", Shape: tensor.Shape{1, 64, 110, 110}},
		{Stage: "conv2", Shape: tensor.Shape{1, 256, 108, 108}},
		{Stage: "pool2", Shape: tensor.Shape{1, 256, 54, 54}},
		{Stage: "conv3", Shape: tensor.Shape{1, 512, 52, 52}},
		{Stage: "pool3", Shape: tensor.Shape{1, 512, 26, 26}},
		{Stage: "conv4", Shape: tensor.Shape{1, 1024, 24, 24}},
		{Stage: "pool4", Shape: tensor.Shape{1, 1024, 12, 12}},
		{Stage: "conv5", Shape: tensor.Shape{1, 2048, 10, 10}},
		{Stage: "pool5", Shape: tensor.Shape{1, 2048, 5, 5}},
		{Stage: "flatten", Shape: tensor.Shape{1, 51200}},
		{Stage: "fc1", Shape: tensor.Shape{1, 5120}},
		{Stage: "fc2", Shape: tensor.Shape{1, 1024}},
		{Stage: "fc3", Shape: tensor.Shape{1, 136}},
	}
	if diff := cmp.Diff(want, trace); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestKeypointArchitectureTraceBatch(t *testing.T) {
	trace, err := KeypointArchitecture().Trace(tensor.Shape{8, 1, 224, 224})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{8, 136}, trace[len(trace)-1].Shape)
}

func TestKeypointArchitectureWrongSizes(t *testing.T) {
	cases := map[int]tensor.Shape{
		256: {1, 2048 * 6 * 6},
		200: {1, 2048 * 4 * 4},
	}

	for size, got := range cases {
		trace, err := KeypointArchitecture().Trace(tensor.Shape{1, 1, size, size})
		require.ErrorIs(t, err, tensor.ErrShapeMismatch, "size %d", size)

		var se *tensor.ShapeError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "fc1", se.Stage, "size %d", size)
		assert.Equal(t, got, se.Got, "size %d", size)
		assert.Equal(t, "flatten", trace[len(trace)-1].Stage)
	}
}

func TestKeypointArchitectureAcceptedSizes(t *testing.T) {
	arch := KeypointArchitecture()
	for size := 200; size <= 270; size++ {
		trace, err := arch.Trace(tensor.Shape{1, 1, size, size})
		if size >= 224 && size <= 255 {
			require.NoError(t, err, "size %d", size)
			assert.Equal(t, tensor.Shape{1, 2048, 5, 5}, trace[9].Shape, "size %d", size)
			continue
		}
		var se *tensor.ShapeError
		require.ErrorAs(t, err, &se, "size %d", size)
		assert.Equal(t, "fc1", se.Stage, "size %d", size)
	}
}

func TestKeypointArchitectureTooSmall(t *testing.T) {
	_, err := KeypointArchitecture().Trace(tensor.Shape{1, 1, 40, 40})
	var se *tensor.ShapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "pool", se.Stage)
}

func TestCompactArchitectureTrace(t *testing.T) {
	arch := CompactArchitecture()
	require.NoError(t, arch.Validate())

	trace, err := arch.Trace(tensor.Shape{1, 1, 96, 96})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 8, 1, 1}, trace[9].Shape)
	assert.Equal(t, tensor.Shape{1, OutputSize}, trace[len(trace)-1].Shape)
	assert.Equal(t, OutputSize, arch.OutputFeatures())
}

func TestArchitectureValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Architecture)
	}{
		{"zero input", func(a *Architecture) { a.InputSize = 0 }},
		{"no convs", func(a *Architecture) { a.Convs = nil }},
		{"color input", func(a *Architecture) { a.Convs[0].In = 3 }},
		{"broken conv chain", func(a *Architecture) { a.Convs[3].In = 7 }},
		{"broken dense chain", func(a *Architecture) { a.Dense[2].In = 7 }},
		{"bad pool", func(a *Architecture) { a.Pool.Stride = 0 }},
		{"bad keep", func(a *Architecture) { a.Keep = 1.5 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			arch := KeypointArchitecture()
			tc.mutate(&arch)
			assert.Error(t, arch.Validate())
		})
	}
}
