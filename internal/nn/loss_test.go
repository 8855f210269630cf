package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geomol-ml/geomol/internal/backend/cpu"
	"github.com/geomol-ml/geomol/internal/tensor"
)

func TestSmoothL1Loss(t *testing.T) {
	backend := cpu.New()
	criterion := NewSmoothL1Loss[*cpu.CPUBackend]()

	t.Run("QuadraticRegion", func(t *testing.T) {
		pred, err := tensor.FromSlice([]float32{0.5, 1.0}, tensor.Shape{2}, backend)
		require.NoError(t, err)
		tgt, err := tensor.FromSlice([]float32{0.0, 1.0}, tensor.Shape{2}, backend)
		require.NoError(t, err)

		loss := criterion.Forward(pred, tgt)

		// (0.5 * 0.25 + 0) / 2 = 0.0625
		assert.InDelta(t, 0.0625, loss.Item(), 1e-6)
	})

	t.Run("LinearRegion", func(t *testing.T) {
		pred, err := tensor.FromSlice([]float32{3.0}, tensor.Shape{1}, backend)
		require.NoError(t, err)
		tgt, err := tensor.FromSlice([]float32{0.0}, tensor.Shape{1}, backend)
		require.NoError(t, err)

		loss := criterion.Forward(pred, tgt)

		// |3| - 0.5 = 2.5
		assert.InDelta(t, 2.5, loss.Item(), 1e-6)
	})

	t.Run("PerfectPredictionIsZero", func(t *testing.T) {
		pred, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend)
		require.NoError(t, err)
		tgt, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend)
		require.NoError(t, err)

		loss := criterion.Forward(pred, tgt)
		assert.Zero(t, loss.Item())
	})
}

func TestCrossEntropyLoss(t *testing.T) {
	backend := cpu.New()
	criterion := NewCrossEntropyLoss[*cpu.CPUBackend](backend)

	t.Run("UniformLogits", func(t *testing.T) {
		// Uniform logits over 4 classes give loss ln(4).
		logits, err := tensor.FromSlice(make([]float32, 8), tensor.Shape{2, 4}, backend)
		require.NoError(t, err)
		targets, err := tensor.FromSlice([]int32{0, 3}, tensor.Shape{2}, backend)
		require.NoError(t, err)

		loss := criterion.Forward(logits, targets)
		assert.InDelta(t, math.Log(4), float64(loss.Item()), 1e-5)
	})

	t.Run("ConfidentCorrectIsSmall", func(t *testing.T) {
		logits, err := tensor.FromSlice([]float32{10, 0, 0}, tensor.Shape{1, 3}, backend)
		require.NoError(t, err)
		targets, err := tensor.FromSlice([]int32{0}, tensor.Shape{1}, backend)
		require.NoError(t, err)

		loss := criterion.Forward(logits, targets)
		assert.Less(t, loss.Item(), float32(0.01))
	})

	t.Run("TargetOutOfRangePanics", func(t *testing.T) {
		logits, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{1, 2}, backend)
		require.NoError(t, err)
		targets, err := tensor.FromSlice([]int32{2}, tensor.Shape{1}, backend)
		require.NoError(t, err)

		assert.Panics(t, func() {
			criterion.Forward(logits, targets)
		})
	})
}

func TestMLP_Forward(t *testing.T) {
	backend := cpu.New()
	mlp := NewMLP[*cpu.CPUBackend]([]int{4, 8, 1}, 0, backend)

	input, err := tensor.FromSlice(make([]float32, 3*4), tensor.Shape{3, 4}, backend)
	require.NoError(t, err)

	output := mlp.Forward(input)
	assert.True(t, output.Shape().Equal(tensor.Shape{3, 1}), "got shape %v", output.Shape())

	// 2 Linear layers, 2 parameters each.
	assert.Len(t, mlp.Parameters(), 4)
}

func TestMLP_StateDictRoundTrip(t *testing.T) {
	backend := cpu.New()
	src := NewMLP[*cpu.CPUBackend]([]int{2, 3, 2}, 0, backend)
	dst := NewMLP[*cpu.CPUBackend]([]int{2, 3, 2}, 0, backend)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))

	input, err := tensor.FromSlice([]float32{1, -1}, tensor.Shape{1, 2}, backend)
	require.NoError(t, err)

	assert.Equal(t, src.Forward(input).Data(), dst.Forward(input).Data())
}

func TestDropout_EvalIsIdentity(t *testing.T) {
	backend := cpu.New()
	dropout := NewDropout[*cpu.CPUBackend](0.5)

	input, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend)
	require.NoError(t, err)

	output := dropout.Forward(input)
	assert.Equal(t, input.Data(), output.Data())
}
