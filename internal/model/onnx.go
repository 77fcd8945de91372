package model

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

// ONNXPredictor runs an exported keypoint network through onnxruntime.
// The session's input and output tensors are shared, so Predict calls are
// serialised.
type ONNXPredictor struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// LoadMetadata reads and checks the JSON file describing an exported network.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if md.InputName == "" {
		md.InputName = "input"
	}
	if md.OutputName == "" {
		md.OutputName = "output"
	}
	if err := md.validate(); err != nil {
		return Metadata{}, err
	}
	return md, nil
}

func (md Metadata) validate() error {
	if len(md.InputShape) != 4 || md.InputShape[1] != 1 {
		return fmt.Errorf("metadata input_shape must be [N 1 S S], got %v", md.InputShape)
	}
	if md.InputShape[2] != md.InputShape[3] || int(md.InputShape[2]) != md.ImageSize {
		return fmt.Errorf("metadata input_shape %v disagrees with image_size %d", md.InputShape, md.ImageSize)
	}
	if len(md.OutputShape) != 2 || md.OutputShape[1] != OutputSize || md.OutputShape[0] != md.InputShape[0] {
		return fmt.Errorf("metadata output_shape must be [%d %d], got %v", md.InputShape[0], OutputSize, md.OutputShape)
	}
	return nil
}

// NewONNXPredictor opens modelPath with the shapes recorded in metadataPath.
// libraryPath selects the onnxruntime shared library; empty uses the default.
func NewONNXPredictor(modelPath, metadataPath, libraryPath string) (*ONNXPredictor, error) {
	md, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{md.InputName}, []string{md.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXPredictor{
		session:      session,
		Metadata:     md,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (p *ONNXPredictor) Name() string { return BackendONNX }

func (p *ONNXPredictor) InputSize() int { return p.Metadata.ImageSize }

// Predict feeds x through the session in chunks of the exported batch size.
// A trailing partial chunk is zero-padded and its padding rows discarded.
func (p *ONNXPredictor) Predict(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkInput("onnx", x.Shape(), p.Metadata.ImageSize); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	n := x.Dim(0)
	chunk := int(p.Metadata.InputShape[0])
	perImage := p.Metadata.ImageSize * p.Metadata.ImageSize
	out := tensor.New(n, OutputSize)

	in := p.inputTensor.GetData()
	for start := 0; start < n; start += chunk {
		count := min(chunk, n-start)
		clear(in)
		copy(in, x.Data()[start*perImage:(start+count)*perImage])

		if err := p.session.Run(); err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		copy(out.Data()[start*OutputSize:(start+count)*OutputSize], p.outputTensor.GetData())
	}
	return out, nil
}

func (p *ONNXPredictor) Close() {
	if p.inputTensor != nil {
		p.inputTensor.Destroy()
	}
	if p.outputTensor != nil {
		p.outputTensor.Destroy()
	}
	if p.session != nil {
		p.session.Destroy()
	}
	ort.DestroyEnvironment()
}

// checkInput verifies x is (N, 1, size, size) with N ≥ 1.
func checkInput(stage string, s tensor.Shape, size int) error {
	if len(s) != 4 || s[0] < 1 || s[1] != 1 || s[2] != size || s[3] != size {
		return &tensor.ShapeError{Stage: stage, Want: tensor.Shape{batchDim(s), 1, size, size}, Got: s.Clone()}
	}
	return nil
}
