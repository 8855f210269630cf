package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geomol-ml/geomol/internal/backend/cpu"
	"github.com/geomol-ml/geomol/internal/tensor"
)

func TestMultiHeadAttention_Forward(t *testing.T) {
	backend := cpu.New()
	mha := NewMultiHeadAttention[*cpu.CPUBackend](8, 2, backend)

	input := tensor.Randn[float32](tensor.Shape{5, 8}, backend)
	output := mha.Forward(input)

	assert.True(t, output.Shape().Equal(tensor.Shape{5, 8}), "got shape %v", output.Shape())
}

func TestMultiHeadAttention_IndivisibleHeadsPanics(t *testing.T) {
	backend := cpu.New()
	assert.Panics(t, func() {
		NewMultiHeadAttention[*cpu.CPUBackend](8, 3, backend)
	})
}

func TestTransformerEncoderLayer_Forward(t *testing.T) {
	backend := cpu.New()
	layer := NewTransformerEncoderLayer[*cpu.CPUBackend](8, 2, 16, 0, backend)

	input := tensor.Randn[float32](tensor.Shape{3, 8}, backend)
	output := layer.Forward(input)

	assert.True(t, output.Shape().Equal(tensor.Shape{3, 8}), "got shape %v", output.Shape())
}

func TestTransformerEncoderLayer_StateDictRoundTrip(t *testing.T) {
	backend := cpu.New()
	src := NewTransformerEncoderLayer[*cpu.CPUBackend](4, 2, 8, 0, backend)
	dst := NewTransformerEncoderLayer[*cpu.CPUBackend](4, 2, 8, 0, backend)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))

	input := tensor.Randn[float32](tensor.Shape{2, 4}, backend)
	assert.Equal(t, src.Forward(input).Data(), dst.Forward(input).Data())
}
