package nn

import (
	"math"
	"testing"

	"github.com/geomol-ml/geomol/internal/backend/cpu"
	"github.com/geomol-ml/geomol/internal/tensor"
)

// TestLayerNorm_Basic tests LayerNorm forward pass with basic input.
func TestLayerNorm_Basic(t *testing.T) {
	backend := cpu.New()
	layernorm := NewLayerNorm[*cpu.CPUBackend](3, 1e-5, backend)

	// Input: [2, 3] = [[1, 2, 3], [4, 5, 6]]
	input, err := tensor.FromSlice(
		[]float32{1.0, 2.0, 3.0, 4.0, 5.0, 6.0},
		tensor.Shape{2, 3},
		backend,
	)
	if err != nil {
		t.Fatalf("Failed to create input: %v", err)
	}

	output := layernorm.Forward(input)

	// For row [1, 2, 3]: mean = 2, var = 2/3, so the normalized row is
	// [-1.2247, 0, 1.2247]. With gamma=1 and beta=0 that is the output.
	outputData := output.Data()
	expected := []float32{-1.2247, 0.0, 1.2247, -1.2247, 0.0, 1.2247}
	for i := range expected {
		if math.Abs(float64(outputData[i]-expected[i])) > 0.01 {
			t.Errorf("Element %d: got %v, expected %v", i, outputData[i], expected[i])
		}
	}
}

// TestLayerNorm_GammaBeta tests that scale and shift are applied.
func TestLayerNorm_GammaBeta(t *testing.T) {
	backend := cpu.New()
	layernorm := NewLayerNorm[*cpu.CPUBackend](2, 1e-5, backend)

	copy(layernorm.Gamma.Tensor().Data(), []float32{2, 2})
	copy(layernorm.Beta.Tensor().Data(), []float32{1, 1})

	input, _ := tensor.FromSlice([]float32{-1, 1}, tensor.Shape{1, 2}, backend)
	output := layernorm.Forward(input)

	// Normalized row is [-1, 1] (unit variance input); scaled and
	// shifted: [-1, 3].
	outputData := output.Data()
	expected := []float32{-1, 3}
	for i := range expected {
		if math.Abs(float64(outputData[i]-expected[i])) > 0.01 {
			t.Errorf("Element %d: got %v, expected %v", i, outputData[i], expected[i])
		}
	}
}
