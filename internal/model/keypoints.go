package model

import (
	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

const (
	// KeypointCount is the number of facial landmarks the network regresses.
	KeypointCount = 68
	// OutputSize is the number of values per image: one (x, y) pair per keypoint.
	OutputSize = 2 * KeypointCount
)

// Point is one keypoint in input-image coordinates.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// DecodeKeypoints reads a row of interleaved x, y values.
func DecodeKeypoints(row []float32) ([]Point, error) {
	if len(row) != OutputSize {
		return nil, &tensor.ShapeError{
			Stage: "keypoints",
			Want:  tensor.Shape{OutputSize},
			Got:   tensor.Shape{len(row)},
		}
	}
	pts := make([]Point, KeypointCount)
	for i := range pts {
		pts[i] = Point{X: row[2*i], Y: row[2*i+1]}
	}
	return pts, nil
}

// DecodeBatch splits an (N, 136) network output into per-image keypoints.
func DecodeBatch(out *tensor.Tensor) ([][]Point, error) {
	s := out.Shape()
	if len(s) != 2 || s[1] != OutputSize {
		return nil, &tensor.ShapeError{
			Stage: "keypoints",
			Want:  tensor.Shape{batchDim(s), OutputSize},
			Got:   s.Clone(),
		}
	}
	rows := make([][]Point, s[0])
	data := out.Data()
	for i := range rows {
		pts, err := DecodeKeypoints(data[i*OutputSize : (i+1)*OutputSize])
		if err != nil {
			return nil, err
		}
		rows[i] = pts
	}
	return rows, nil
}

func batchDim(s tensor.Shape) int {
	if len(s) == 0 {
		return 1
	}
	return s[0]
}
