package model

import (
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fkp-api/internal/monitoring"
	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func compactNet(t *testing.T, seed uint64) *Net {
	t.Helper()
	n, err := NewNetWith(CompactArchitecture(), seed)
	require.NoError(t, err)
	return n
}

func randomImages(n, size int, seed uint64) *tensor.Tensor {
	r := rand.New(rand.NewPCG(seed, 99))
	x := tensor.New(n, 1, size, size)
	for i := range x.Data() {
		x.Data()[i] = r.Float32()
	}
	return x
}

func TestInferOutputShape(t *testing.T) {
	net := compactNet(t, 1)
	for _, n := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("batch %d", n), func(t *testing.T) {
			out, err := net.Infer(randomImages(n, 96, uint64(n)))
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{n, OutputSize}, out.Shape())
			assert.False(t, out.HasNonFinite())
		})
	}
}

func TestInferDeterministic(t *testing.T) {
	x := randomImages(2, 96, 4)

	a, err := compactNet(t, 42).Infer(x)
	require.NoError(t, err)
	b, err := compactNet(t, 42).Infer(x)
	require.NoError(t, err)
	assert.Equal(t, a.Data(), b.Data(), "same seed and input must give bit-identical output")

	net := compactNet(t, 42)
	c, err := net.Infer(x)
	require.NoError(t, err)
	d, err := net.Infer(x)
	require.NoError(t, err)
	assert.Equal(t, c.Data(), d.Data())
	assert.Equal(t, a.Data(), c.Data())

	other, err := compactNet(t, 43).Infer(x)
	require.NoError(t, err)
	assert.NotEqual(t, a.Data(), other.Data())
}

func TestInferBatchIndependence(t *testing.T) {
	net := compactNet(t, 7)
	x := randomImages(3, 96, 11)

	batched, err := net.Infer(x)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		one, err := x.Batch(i)
		require.NoError(t, err)
		single, err := net.Infer(one)
		require.NoError(t, err)

		row := batched.Data()[i*OutputSize : (i+1)*OutputSize]
		assert.InDeltaSlice(t, single.Data(), row, 1e-5, "image %d", i)
	}
}

func TestInferWrongSizeFailsAtFirstDenseStage(t *testing.T) {
	net := compactNet(t, 1)

	_, err := net.Infer(tensor.New(1, 1, 128, 128))
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	var se *tensor.ShapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "fc1", se.Stage)
	assert.Equal(t, tensor.Shape{1, 32}, se.Got)
}

func TestInferRejectsBadInputs(t *testing.T) {
	net := compactNet(t, 1)

	t.Run("three channels", func(t *testing.T) {
		_, err := net.Infer(tensor.New(1, 3, 96, 96))
		var se *tensor.ShapeError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "conv1", se.Stage)
	})

	t.Run("too small to pool", func(t *testing.T) {
		_, err := net.Infer(tensor.New(1, 1, 20, 20))
		assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
	})
}

func TestInferZeroImage(t *testing.T) {
	out, err := compactNet(t, 5).Infer(tensor.New(1, 1, 96, 96))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, OutputSize}, out.Shape())
	assert.False(t, out.HasNonFinite())
}

func TestInferDoesNotApplyDropout(t *testing.T) {
	net := compactNet(t, 9)
	x := randomImages(1, 96, 2)

	before, err := net.Infer(x)
	require.NoError(t, err)

	net.Dropout().Train(true)
	defer net.Dropout().Train(false)
	after, err := net.Infer(x)
	require.NoError(t, err)
	assert.Equal(t, before.Data(), after.Data())
}

func TestInferLogsFlattenedShape(t *testing.T) {
	prev := monitoring.Logf
	defer func() { monitoring.Logf = prev }()

	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	_, err := compactNet(t, 1).Infer(tensor.New(2, 1, 96, 96))
	require.NoError(t, err)
	assert.Equal(t, []string{"model: flattened features [2 8]"}, lines)
}

func TestInferConcurrent(t *testing.T) {
	net := compactNet(t, 3)
	x := randomImages(1, 96, 8)
	want, err := net.Infer(x)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*tensor.Tensor, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = net.Infer(x)
		}(i)
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, want.Data(), results[i].Data())
	}
}

func TestNetStages(t *testing.T) {
	net := compactNet(t, 1)

	var names []string
	for _, s := range net.Stages() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"conv1", "conv2", "conv3", "conv4", "conv5", "pool", "fc1", "fc2", "fc3", "dropout"}, names)
	assert.Equal(t, 2660, net.ParameterCount())
	assert.Equal(t, 0.8, net.Dropout().Keep)
}

func TestNewNetWithInvalidArchitecture(t *testing.T) {
	arch := CompactArchitecture()
	arch.Convs[2].In = 3
	_, err := NewNetWith(arch, 1)
	assert.Error(t, err)
}

// narrowKeypointArchitecture keeps the 224×224 spatial chain of the keypoint
// network with only a few channels per stage.
func narrowKeypointArchitecture() Architecture {
	arch := KeypointArchitecture()
	arch.Convs = []ConvSpec{
		{In: 1, Out: 2, Kernel: 5},
		{In: 2, Out: 2, Kernel: 3},
		{In: 2, Out: 2, Kernel: 3},
		{In: 2, Out: 2, Kernel: 3},
		{In: 2, Out: 4, Kernel: 3},
	}
	arch.Dense = []DenseSpec{
		{In: 4 * 5 * 5, Out: 16},
		{In: 16, Out: 8},
		{In: 8, Out: OutputSize},
	}
	return arch
}

func TestInfer224ZeroImage(t *testing.T) {
	net, err := NewNetWith(narrowKeypointArchitecture(), 1)
	require.NoError(t, err)

	out, err := net.Infer(tensor.New(1, 1, 224, 224))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, OutputSize}, out.Shape())
	assert.False(t, out.HasNonFinite())
}

func TestInfer224InputSizes(t *testing.T) {
	net, err := NewNetWith(narrowKeypointArchitecture(), 1)
	require.NoError(t, err)

	// Pooling drops a trailing odd row, so 224 through 255 all reach 5×5.
	for _, size := range []int{225, 236, 255} {
		t.Run(fmt.Sprintf("%d accepted", size), func(t *testing.T) {
			out, err := net.Infer(tensor.New(1, 1, size, size))
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{1, OutputSize}, out.Shape())
		})
	}

	for size, got := range map[int]tensor.Shape{223: {1, 4 * 4 * 4}, 256: {1, 4 * 6 * 6}} {
		t.Run(fmt.Sprintf("%d rejected", size), func(t *testing.T) {
			_, err := net.Infer(tensor.New(1, 1, size, size))
			var se *tensor.ShapeError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "fc1", se.Stage)
			assert.Equal(t, got, se.Got)
		})
	}
}

// The full network allocates about 1.1 GiB of parameters and needs several
// GFLOPs per image, so it only runs when FKP_FULL_NETWORK is set.
func TestKeypointNetFullSize(t *testing.T) {
	if testing.Short() || os.Getenv("FKP_FULL_NETWORK") == "" {
		t.Skip("set FKP_FULL_NETWORK=1 to run the full-size network")
	}

	net := NewNet(2024)
	assert.Equal(t, 292457992, net.ParameterCount())

	t.Run("zero image", func(t *testing.T) {
		out, err := net.Infer(tensor.New(1, 1, 224, 224))
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{1, OutputSize}, out.Shape())
		assert.False(t, out.HasNonFinite())
	})

	t.Run("batch of two", func(t *testing.T) {
		out, err := net.Infer(randomImages(2, 224, 1))
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{2, OutputSize}, out.Shape())
	})

	t.Run("wrong size", func(t *testing.T) {
		_, err := net.Infer(tensor.New(1, 1, 256, 256))
		var se *tensor.ShapeError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "fc1", se.Stage)
	})
}
