package cpu

import (
	"fmt"

	"github.com/geomol-ml/geomol/internal/tensor"
)

// RepeatInterleave expands per-segment counts into a segment-assignment
// vector: counts [2, 3] -> [0, 0, 1, 1, 1]. Counts must be non-negative.
func (cpu *CPUBackend) RepeatInterleave(repeats *tensor.RawTensor) *tensor.RawTensor {
	if repeats.DType() != tensor.Int32 {
		panic(fmt.Sprintf("repeat_interleave: counts must be int32, got %s", repeats.DType()))
	}
	if len(repeats.Shape()) != 1 {
		panic(fmt.Sprintf("repeat_interleave: counts must be 1D, got %v", repeats.Shape()))
	}

	counts := repeats.AsInt32()
	total := 0
	for i, c := range counts {
		if c < 0 {
			panic(fmt.Sprintf("repeat_interleave: negative count %d at position %d", c, i))
		}
		total += int(c)
	}

	result, err := tensor.NewRaw(tensor.Shape{total}, tensor.Int32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("repeat_interleave: %v", err))
	}

	dst := result.AsInt32()
	pos := 0
	for seg, c := range counts {
		for k := int32(0); k < c; k++ {
			dst[pos] = int32(seg)
			pos++
		}
	}

	return result
}

// SegmentMean averages rows per segment id: out[s] = mean of rows i
// with segments[i] == s. Segments with no rows stay zero.
func (cpu *CPUBackend) SegmentMean(x, segments *tensor.RawTensor, numSegments int) *tensor.RawTensor {
	xShape := x.Shape()
	if len(xShape) != 2 {
		panic(fmt.Sprintf("segment_mean: input must be 2D, got %v", xShape))
	}
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("segment_mean: unsupported dtype %s", x.DType()))
	}
	if segments.DType() != tensor.Int32 {
		panic(fmt.Sprintf("segment_mean: segments must be int32, got %s", segments.DType()))
	}
	if len(segments.Shape()) != 1 || segments.Shape()[0] != xShape[0] {
		panic(fmt.Sprintf("segment_mean: segments shape %v does not match input rows %d", segments.Shape(), xShape[0]))
	}

	dim := xShape[1]
	result, err := tensor.NewRaw(tensor.Shape{numSegments, dim}, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("segment_mean: %v", err))
	}

	src := x.AsFloat32()
	seg := segments.AsInt32()
	dst := result.AsFloat32()
	counts := make([]int, numSegments)

	for i, s := range seg {
		if s < 0 || int(s) >= numSegments {
			panic(fmt.Sprintf("segment_mean: segment id %d out of range [0, %d)", s, numSegments))
		}
		dstRow := dst[int(s)*dim : (int(s)+1)*dim]
		srcRow := src[i*dim : (i+1)*dim]
		for j := range dstRow {
			dstRow[j] += srcRow[j]
		}
		counts[int(s)]++
	}

	for s, c := range counts {
		if c == 0 {
			continue
		}
		inv := 1.0 / float32(c)
		row := dst[s*dim : (s+1)*dim]
		for j := range row {
			row[j] *= inv
		}
	}

	return result
}
