package model

import (
	"fmt"

	"github.com/Brownie44l1/fkp-api/internal/monitoring"
	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

// Predictor runs a (N, 1, S, S) batch and returns (N, 136) keypoint values.
type Predictor interface {
	Name() string
	// InputSize is the side length S of the square images the predictor accepts.
	InputSize() int
	Predict(x *tensor.Tensor) (*tensor.Tensor, error)
	Close()
}

// NativePredictor serves a Net built in-process.
type NativePredictor struct {
	net *Net
}

func NewNativePredictor(net *Net) *NativePredictor {
	return &NativePredictor{net: net}
}

func (p *NativePredictor) Name() string { return BackendNative }

func (p *NativePredictor) InputSize() int { return p.net.Architecture().InputSize }

func (p *NativePredictor) Predict(x *tensor.Tensor) (*tensor.Tensor, error) {
	return p.net.Infer(x)
}

// Architecture exposes the stage sizes for /model.
func (p *NativePredictor) Architecture() Architecture { return p.net.Architecture() }

// ParameterCount reports the number of parameters of the underlying Net.
func (p *NativePredictor) ParameterCount() int { return p.net.ParameterCount() }

func (p *NativePredictor) Close() {}

const (
	BackendNative = "native"
	BackendONNX   = "onnx"
)

// PredictorOptions selects and configures a backend for NewPredictor.
type PredictorOptions struct {
	Backend string
	// Seed and Compact apply to the native backend.
	Seed    uint64
	Compact bool

	ONNXModelPath    string
	ONNXMetadataPath string
	ONNXLibraryPath  string
}

// NewPredictor opens the backend named by o.Backend.
func NewPredictor(o PredictorOptions) (Predictor, error) {
	switch o.Backend {
	case BackendONNX:
		monitoring.Logf("Loading ONNX model from: %s", o.ONNXModelPath)
		return NewONNXPredictor(o.ONNXModelPath, o.ONNXMetadataPath, o.ONNXLibraryPath)
	case BackendNative, "":
		if o.Compact {
			net, err := NewNetWith(CompactArchitecture(), o.Seed)
			if err != nil {
				return nil, err
			}
			return NewNativePredictor(net), nil
		}
		monitoring.Logf("Initialising keypoint network (seed %d)", o.Seed)
		return NewNativePredictor(NewNet(o.Seed)), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", o.Backend)
	}
}
