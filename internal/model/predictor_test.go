package model

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

func TestNewPredictor(t *testing.T) {
	t.Run("compact native", func(t *testing.T) {
		p, err := NewPredictor(PredictorOptions{Backend: BackendNative, Seed: 4, Compact: true})
		require.NoError(t, err)
		defer p.Close()

		assert.Equal(t, BackendNative, p.Name())
		assert.Equal(t, 96, p.InputSize())
		out, err := p.Predict(tensor.New(1, 1, 96, 96))
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{1, OutputSize}, out.Shape())
	})

	t.Run("same seed same parameters", func(t *testing.T) {
		a, err := NewPredictor(PredictorOptions{Seed: 4, Compact: true})
		require.NoError(t, err)
		b, err := NewPredictor(PredictorOptions{Seed: 4, Compact: true})
		require.NoError(t, err)

		x := randomImages(1, 96, 1)
		outA, err := a.Predict(x)
		require.NoError(t, err)
		outB, err := b.Predict(x)
		require.NoError(t, err)
		assert.Equal(t, outA.Data(), outB.Data())
	})

	t.Run("onnx without metadata", func(t *testing.T) {
		_, err := NewPredictor(PredictorOptions{
			Backend:          BackendONNX,
			ONNXModelPath:    filepath.Join(t.TempDir(), "missing.onnx"),
			ONNXMetadataPath: filepath.Join(t.TempDir(), "missing.json"),
		})
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := NewPredictor(PredictorOptions{Backend: "tflite"})
		assert.ErrorContains(t, err, "unknown backend")
	})
}
