package nn

import (
	"testing"

	"github.com/geomol-ml/geomol/internal/backend/cpu"
	"github.com/geomol-ml/geomol/internal/tensor"
)

// Float-in, float-out layers satisfy Module. Embedding does not: its
// Forward takes int32 indices.
var (
	_ Module[*cpu.CPUBackend] = (*Linear[*cpu.CPUBackend])(nil)
	_ Module[*cpu.CPUBackend] = (*MLP[*cpu.CPUBackend])(nil)
	_ Module[*cpu.CPUBackend] = (*ReLU[*cpu.CPUBackend])(nil)
	_ Module[*cpu.CPUBackend] = (*Dropout[*cpu.CPUBackend])(nil)
	_ Module[*cpu.CPUBackend] = (*LayerNorm[*cpu.CPUBackend])(nil)
)

func TestReLU_Forward(t *testing.T) {
	backend := cpu.New()
	act := NewReLU[*cpu.CPUBackend]()

	input, err := tensor.FromSlice([]float32{-1.5, 0, 2.5, -0.25}, tensor.Shape{4}, backend)
	if err != nil {
		t.Fatalf("Failed to create input: %v", err)
	}

	got := act.Forward(input).Data()
	expected := []float32{0, 0, 2.5, 0}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Element %d: got %v, expected %v", i, got[i], expected[i])
		}
	}

	if len(act.Parameters()) != 0 {
		t.Errorf("ReLU must be parameter-free, got %d parameters", len(act.Parameters()))
	}
}

func TestMLP_HiddenLayersAreRectified(t *testing.T) {
	backend := cpu.New()
	mlp := NewMLP[*cpu.CPUBackend]([]int{1, 1, 1}, 0, backend)

	// W0 = [-1], b0 = [0]: the hidden unit is negative for positive
	// input, so the activation clamps it and only the output bias
	// survives. W1 = [1], b1 = [7].
	copy(mlp.layers[0].Weight().Tensor().Data(), []float32{-1})
	copy(mlp.layers[0].Bias().Tensor().Data(), []float32{0})
	copy(mlp.layers[1].Weight().Tensor().Data(), []float32{1})
	copy(mlp.layers[1].Bias().Tensor().Data(), []float32{7})

	input, err := tensor.FromSlice([]float32{3}, tensor.Shape{1, 1}, backend)
	if err != nil {
		t.Fatalf("Failed to create input: %v", err)
	}

	got := mlp.Forward(input).Data()[0]
	if got != 7 {
		t.Errorf("Expected 7 (rectified hidden unit), got %v", got)
	}
}
