package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned by prediction history lookups for an unknown id.
var ErrNotFound = errors.New("prediction not found")

// Metadata describes an exported ONNX keypoint network.
type Metadata struct {
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	ImageSize   int     `json:"image_size"`
	InputName   string  `json:"input_name,omitempty"`
	OutputName  string  `json:"output_name,omitempty"`
}

// PredictionRequest carries one flattened image or a batch of them, each
// S×S grayscale values in row-major order.
type PredictionRequest struct {
	Image  []float32   `json:"image,omitempty"`
	Images [][]float32 `json:"images,omitempty"`
}

type PredictionResponse struct {
	ID        string  `json:"id"`
	Backend   string  `json:"backend"`
	ImageSize int     `json:"image_size"`
	Keypoints []Point `json:"keypoints"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

// BatchResponse wraps the per-image results of a batch request.
type BatchResponse struct {
	Predictions []*PredictionResponse `json:"predictions"`
}

// Record is a stored prediction.
type Record struct {
	ID        string        `json:"id"`
	Backend   string        `json:"backend"`
	ImageSize int           `json:"image_size"`
	Keypoints []Point       `json:"keypoints"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	CreatedAt time.Time     `json:"created_at"`
}

// Info summarises the served model for GET /model.
type Info struct {
	Backend       string       `json:"backend"`
	ImageSize     int          `json:"image_size"`
	KeypointCount int          `json:"keypoint_count"`
	OutputSize    int          `json:"output_size"`
	Parameters    int          `json:"parameters,omitempty"`
	Stages        []StageShape `json:"stages,omitempty"`
}
