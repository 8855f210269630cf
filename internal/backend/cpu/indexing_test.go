package cpu

import (
	"testing"

	"github.com/geomol-ml/geomol/internal/tensor"
)

func TestCPUBackend_Embedding(t *testing.T) {
	backend := newTestBackend()

	weight := rawFloat32(t, tensor.Shape{3, 2}, []float32{
		10, 11,
		20, 21,
		30, 31,
	})
	indices := rawInt32(t, tensor.Shape{4}, []int32{2, 0, 1, 2})

	result := backend.Embedding(weight, indices)

	if !result.Shape().Equal(tensor.Shape{4, 2}) {
		t.Fatalf("Expected shape [4 2], got %v", result.Shape())
	}
	expected := []float32{30, 31, 10, 11, 20, 21, 30, 31}
	if !float32SliceEqual(result.AsFloat32(), expected) {
		t.Errorf("Embedding failed: got %v, expected %v", result.AsFloat32(), expected)
	}

	t.Run("OutOfRangePanics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("Expected panic on out-of-range index")
			}
		}()
		bad := rawInt32(t, tensor.Shape{1}, []int32{3})
		backend.Embedding(weight, bad)
	})
}

func TestCPUBackend_IndexSelect(t *testing.T) {
	backend := newTestBackend()

	x := rawFloat32(t, tensor.Shape{3, 2}, []float32{
		1, 2,
		3, 4,
		5, 6,
	})
	index := rawInt32(t, tensor.Shape{4}, []int32{1, 1, 0, 2})

	result := backend.IndexSelect(x, index)

	if !result.Shape().Equal(tensor.Shape{4, 2}) {
		t.Fatalf("Expected shape [4 2], got %v", result.Shape())
	}
	expected := []float32{3, 4, 3, 4, 1, 2, 5, 6}
	if !float32SliceEqual(result.AsFloat32(), expected) {
		t.Errorf("IndexSelect failed: got %v, expected %v", result.AsFloat32(), expected)
	}
}

func TestCPUBackend_IndexAdd(t *testing.T) {
	backend := newTestBackend()

	// Rows 0 and 2 of src both land on row 1; duplicates accumulate.
	src := rawFloat32(t, tensor.Shape{3, 2}, []float32{
		1, 2,
		10, 20,
		100, 200,
	})
	index := rawInt32(t, tensor.Shape{3}, []int32{1, 0, 1})

	result := backend.IndexAdd(4, index, src)

	if !result.Shape().Equal(tensor.Shape{4, 2}) {
		t.Fatalf("Expected shape [4 2], got %v", result.Shape())
	}
	expected := []float32{
		10, 20,
		101, 202,
		0, 0,
		0, 0,
	}
	if !float32SliceEqual(result.AsFloat32(), expected) {
		t.Errorf("IndexAdd failed: got %v, expected %v", result.AsFloat32(), expected)
	}
}

func TestCPUBackend_RepeatInterleave(t *testing.T) {
	backend := newTestBackend()

	counts := rawInt32(t, tensor.Shape{3}, []int32{2, 0, 3})
	result := backend.RepeatInterleave(counts)

	if !result.Shape().Equal(tensor.Shape{5}) {
		t.Fatalf("Expected shape [5], got %v", result.Shape())
	}
	expected := []int32{0, 0, 2, 2, 2}
	got := result.AsInt32()
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("RepeatInterleave failed: got %v, expected %v", got, expected)
			break
		}
	}
}

func TestCPUBackend_SegmentMean(t *testing.T) {
	backend := newTestBackend()

	t.Run("TwoSegments", func(t *testing.T) {
		x := rawFloat32(t, tensor.Shape{4, 2}, []float32{
			1, 2,
			3, 4,
			10, 20,
			30, 40,
		})
		segments := rawInt32(t, tensor.Shape{4}, []int32{0, 0, 1, 1})

		result := backend.SegmentMean(x, segments, 2)

		if !result.Shape().Equal(tensor.Shape{2, 2}) {
			t.Fatalf("Expected shape [2 2], got %v", result.Shape())
		}
		expected := []float32{2, 3, 20, 30}
		if !float32SliceEqual(result.AsFloat32(), expected) {
			t.Errorf("SegmentMean failed: got %v, expected %v", result.AsFloat32(), expected)
		}
	})

	t.Run("EmptySegmentStaysZero", func(t *testing.T) {
		x := rawFloat32(t, tensor.Shape{2, 1}, []float32{4, 8})
		segments := rawInt32(t, tensor.Shape{2}, []int32{0, 2})

		result := backend.SegmentMean(x, segments, 3)

		expected := []float32{4, 0, 8}
		if !float32SliceEqual(result.AsFloat32(), expected) {
			t.Errorf("SegmentMean failed: got %v, expected %v", result.AsFloat32(), expected)
		}
	})

	t.Run("SegmentOutOfRangePanics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("Expected panic on out-of-range segment id")
			}
		}()
		x := rawFloat32(t, tensor.Shape{1, 1}, []float32{1})
		segments := rawInt32(t, tensor.Shape{1}, []int32{5})
		backend.SegmentMean(x, segments, 2)
	})
}
