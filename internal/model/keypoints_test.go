package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

func TestDecodeKeypoints(t *testing.T) {
	row := make([]float32, OutputSize)
	for i := range row {
		row[i] = float32(i)
	}

	pts, err := DecodeKeypoints(row)
	require.NoError(t, err)
	require.Len(t, pts, KeypointCount)
	assert.Equal(t, Point{X: 0, Y: 1}, pts[0])
	assert.Equal(t, Point{X: 134, Y: 135}, pts[67])

	_, err = DecodeKeypoints(row[:10])
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestDecodeBatch(t *testing.T) {
	out := tensor.New(2, OutputSize)
	out.Data()[OutputSize] = 3
	out.Data()[OutputSize+1] = 4

	rows, err := DecodeBatch(out)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Point{}, rows[0][0])
	assert.Equal(t, Point{X: 3, Y: 4}, rows[1][0])

	_, err = DecodeBatch(tensor.New(2, 10))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}
