package cpu

import (
	"math"
	"testing"

	"github.com/geomol-ml/geomol/internal/tensor"
)

func TestCPUBackend_UnaryOps(t *testing.T) {
	backend := newTestBackend()

	t.Run("Exp", func(t *testing.T) {
		a := rawFloat32(t, tensor.Shape{3}, []float32{0, 1, 2})
		result := backend.Exp(a)

		expected := []float32{1, float32(math.E), float32(math.E * math.E)}
		if !float32SliceEqual(result.AsFloat32(), expected) {
			t.Errorf("Exp failed: got %v, expected %v", result.AsFloat32(), expected)
		}
	})

	t.Run("Sqrt", func(t *testing.T) {
		a := rawFloat32(t, tensor.Shape{3}, []float32{4, 9, 16})
		result := backend.Sqrt(a)

		if !float32SliceEqual(result.AsFloat32(), []float32{2, 3, 4}) {
			t.Errorf("Sqrt failed: got %v", result.AsFloat32())
		}
	})

	t.Run("Rsqrt", func(t *testing.T) {
		a := rawFloat32(t, tensor.Shape{2}, []float32{4, 16})
		result := backend.Rsqrt(a)

		if !float32SliceEqual(result.AsFloat32(), []float32{0.5, 0.25}) {
			t.Errorf("Rsqrt failed: got %v", result.AsFloat32())
		}
	})

	t.Run("ReLU", func(t *testing.T) {
		a := rawFloat32(t, tensor.Shape{5}, []float32{-2, -0.5, 0, 0.5, 2})
		result := backend.ReLU(a)

		if !float32SliceEqual(result.AsFloat32(), []float32{0, 0, 0, 0.5, 2}) {
			t.Errorf("ReLU failed: got %v", result.AsFloat32())
		}
	})
}

func TestCPUBackend_ScalarOps(t *testing.T) {
	backend := newTestBackend()

	a := rawFloat32(t, tensor.Shape{3}, []float32{1, 2, 3})

	mul := backend.MulScalar(a, float32(2))
	if !float32SliceEqual(mul.AsFloat32(), []float32{2, 4, 6}) {
		t.Errorf("MulScalar failed: got %v", mul.AsFloat32())
	}

	add := backend.AddScalar(a, float32(10))
	if !float32SliceEqual(add.AsFloat32(), []float32{11, 12, 13}) {
		t.Errorf("AddScalar failed: got %v", add.AsFloat32())
	}

	sub := backend.SubScalar(a, float32(1))
	if !float32SliceEqual(sub.AsFloat32(), []float32{0, 1, 2}) {
		t.Errorf("SubScalar failed: got %v", sub.AsFloat32())
	}

	div := backend.DivScalar(a, float32(2))
	if !float32SliceEqual(div.AsFloat32(), []float32{0.5, 1, 1.5}) {
		t.Errorf("DivScalar failed: got %v", div.AsFloat32())
	}

	t.Run("ScalarTypeMismatchPanics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("Expected panic when scalar type does not match dtype")
			}
		}()
		backend.MulScalar(a, float64(2))
	})
}

func TestCPUBackend_Softmax(t *testing.T) {
	backend := newTestBackend()

	t.Run("RowsSumToOne", func(t *testing.T) {
		a := rawFloat32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 1, 1, 1})
		result := backend.Softmax(a, -1)

		data := result.AsFloat32()
		for row := 0; row < 2; row++ {
			var sum float32
			for col := 0; col < 3; col++ {
				sum += data[row*3+col]
			}
			if diff := sum - 1; diff > 1e-5 || diff < -1e-5 {
				t.Errorf("Row %d sums to %v, expected 1", row, sum)
			}
		}

		// Uniform logits yield uniform probabilities.
		if !float32SliceEqual(data[3:6], []float32{1.0 / 3, 1.0 / 3, 1.0 / 3}) {
			t.Errorf("Uniform row failed: got %v", data[3:6])
		}
	})

	t.Run("LargeLogitsStable", func(t *testing.T) {
		a := rawFloat32(t, tensor.Shape{1, 2}, []float32{1000, 1000})
		result := backend.Softmax(a, 1)

		if !float32SliceEqual(result.AsFloat32(), []float32{0.5, 0.5}) {
			t.Errorf("Softmax overflowed: got %v", result.AsFloat32())
		}
	})
}

func TestCPUBackend_Reductions(t *testing.T) {
	backend := newTestBackend()

	t.Run("Sum", func(t *testing.T) {
		a := rawFloat32(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
		result := backend.Sum(a)

		if !float32SliceEqual(result.AsFloat32(), []float32{10}) {
			t.Errorf("Sum failed: got %v", result.AsFloat32())
		}
	})

	t.Run("MeanDimRows", func(t *testing.T) {
		// Mean over dim 0 of a (2, 3) tensor.
		a := rawFloat32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 5, 6, 7})
		result := backend.MeanDim(a, 0, false)

		if !result.Shape().Equal(tensor.Shape{3}) {
			t.Fatalf("Expected shape [3], got %v", result.Shape())
		}
		if !float32SliceEqual(result.AsFloat32(), []float32{3, 4, 5}) {
			t.Errorf("MeanDim failed: got %v", result.AsFloat32())
		}
	})

	t.Run("MeanDimKeepDim", func(t *testing.T) {
		a := rawFloat32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
		result := backend.MeanDim(a, 1, true)

		if !result.Shape().Equal(tensor.Shape{2, 1}) {
			t.Fatalf("Expected shape [2 1], got %v", result.Shape())
		}
		if !float32SliceEqual(result.AsFloat32(), []float32{2, 5}) {
			t.Errorf("MeanDim failed: got %v", result.AsFloat32())
		}
	})
}

func TestCPUBackend_Manipulation(t *testing.T) {
	backend := newTestBackend()

	t.Run("CatDim0", func(t *testing.T) {
		a := rawFloat32(t, tensor.Shape{1, 2}, []float32{1, 2})
		b := rawFloat32(t, tensor.Shape{2, 2}, []float32{3, 4, 5, 6})

		result := backend.Cat([]*tensor.RawTensor{a, b}, 0)

		if !result.Shape().Equal(tensor.Shape{3, 2}) {
			t.Fatalf("Expected shape [3 2], got %v", result.Shape())
		}
		if !float32SliceEqual(result.AsFloat32(), []float32{1, 2, 3, 4, 5, 6}) {
			t.Errorf("Cat failed: got %v", result.AsFloat32())
		}
	})

	t.Run("CatDim1", func(t *testing.T) {
		a := rawFloat32(t, tensor.Shape{2, 1}, []float32{1, 2})
		b := rawFloat32(t, tensor.Shape{2, 2}, []float32{3, 4, 5, 6})

		result := backend.Cat([]*tensor.RawTensor{a, b}, 1)

		if !result.Shape().Equal(tensor.Shape{2, 3}) {
			t.Fatalf("Expected shape [2 3], got %v", result.Shape())
		}
		if !float32SliceEqual(result.AsFloat32(), []float32{1, 3, 4, 2, 5, 6}) {
			t.Errorf("Cat failed: got %v", result.AsFloat32())
		}
	})

	t.Run("UnsqueezeSqueeze", func(t *testing.T) {
		a := rawFloat32(t, tensor.Shape{3}, []float32{1, 2, 3})

		up := backend.Unsqueeze(a, 0)
		if !up.Shape().Equal(tensor.Shape{1, 3}) {
			t.Fatalf("Unsqueeze: expected shape [1 3], got %v", up.Shape())
		}

		down := backend.Squeeze(up, 0)
		if !down.Shape().Equal(tensor.Shape{3}) {
			t.Fatalf("Squeeze: expected shape [3], got %v", down.Shape())
		}
	})

	t.Run("SqueezeNonUnitPanics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("Expected panic when squeezing a non-unit dimension")
			}
		}()
		a := rawFloat32(t, tensor.Shape{3}, []float32{1, 2, 3})
		backend.Squeeze(a, 0)
	})
}
