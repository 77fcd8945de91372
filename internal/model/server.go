package model

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Brownie44l1/fkp-api/internal/monitoring"
	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

// Recorder persists served predictions.
type Recorder interface {
	RecordPrediction(ctx context.Context, r Record) error
}

// Server turns flat image buffers into keypoint predictions.
type Server struct {
	predictor Predictor
	recorder  Recorder
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithRecorder stores every prediction the server returns.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

func NewServer(p Predictor, opts ...Option) *Server {
	s := &Server{predictor: p, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ImageSize is the side length of the square images the server accepts.
func (s *Server) ImageSize() int { return s.predictor.InputSize() }

// Backend names the predictor in use.
func (s *Server) Backend() string { return s.predictor.Name() }

// Predict runs one S×S image given as S*S row-major grayscale values.
func (s *Server) Predict(ctx context.Context, image []float32) (*PredictionResponse, error) {
	res, err := s.PredictBatch(ctx, [][]float32{image})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// PredictBatch runs several images as one batch and returns one response
// per image, in order.
func (s *Server) PredictBatch(ctx context.Context, images [][]float32) ([]*PredictionResponse, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no images provided")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := s.ImageSize()
	batch := make([]*tensor.Tensor, len(images))
	for i, img := range images {
		t, err := tensor.FromSlice(img, 1, 1, size, size)
		if err != nil {
			return nil, fmt.Errorf("image %d: expected %d values, got %d: %w",
				i, size*size, len(img), tensor.ErrShapeMismatch)
		}
		batch[i] = t
	}
	x, err := tensor.Stack(batch...)
	if err != nil {
		return nil, err
	}

	start := s.now()
	out, err := s.predictor.Predict(x)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	elapsed := s.now().Sub(start)

	rows, err := DecodeBatch(out)
	if err != nil {
		return nil, err
	}

	responses := make([]*PredictionResponse, len(rows))
	for i, pts := range rows {
		rec := Record{
			ID:        uuid.NewString(),
			Backend:   s.predictor.Name(),
			ImageSize: size,
			Keypoints: pts,
			Elapsed:   elapsed,
			CreatedAt: s.now().UTC(),
		}
		if s.recorder != nil {
			if err := s.recorder.RecordPrediction(ctx, rec); err != nil {
				monitoring.Logf("failed to record prediction %s: %v", rec.ID, err)
			}
		}
		responses[i] = &PredictionResponse{
			ID:        rec.ID,
			Backend:   rec.Backend,
			ImageSize: size,
			Keypoints: pts,
			ElapsedMS: float64(elapsed) / float64(time.Millisecond),
		}
	}
	return responses, nil
}

// Info describes the served model. Stage shapes and parameter counts are
// reported for in-process networks only.
func (s *Server) Info() Info {
	info := Info{
		Backend:       s.predictor.Name(),
		ImageSize:     s.ImageSize(),
		KeypointCount: KeypointCount,
		OutputSize:    OutputSize,
	}
	if np, ok := s.predictor.(*NativePredictor); ok {
		arch := np.Architecture()
		info.Stages, _ = arch.Trace(tensor.Shape{1, 1, arch.InputSize, arch.InputSize})
		info.Parameters = np.ParameterCount()
	}
	return info
}

func (s *Server) Close() {
	s.predictor.Close()
}
