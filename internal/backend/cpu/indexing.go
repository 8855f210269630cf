package cpu

import (
	"fmt"

	"github.com/geomol-ml/geomol/internal/tensor"
)

// Embedding looks up rows of a [numEmbeddings, dim] weight matrix by
// integer indices. The output shape is indices.Shape() + [dim].
func (cpu *CPUBackend) Embedding(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	wShape := weight.Shape()
	if len(wShape) != 2 {
		panic(fmt.Sprintf("embedding: weight must be 2D, got %v", wShape))
	}
	if weight.DType() != tensor.Float32 {
		panic(fmt.Sprintf("embedding: unsupported weight dtype %s", weight.DType()))
	}
	if indices.DType() != tensor.Int32 {
		panic(fmt.Sprintf("embedding: indices must be int32, got %s", indices.DType()))
	}

	numEmbeddings, dim := wShape[0], wShape[1]
	outShape := append(indices.Shape().Clone(), dim)

	result, err := tensor.NewRaw(outShape, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("embedding: %v", err))
	}

	w := weight.AsFloat32()
	idx := indices.AsInt32()
	dst := result.AsFloat32()

	for i, id := range idx {
		if id < 0 || int(id) >= numEmbeddings {
			panic(fmt.Sprintf("embedding: index %d out of range [0, %d)", id, numEmbeddings))
		}
		copy(dst[i*dim:(i+1)*dim], w[int(id)*dim:(int(id)+1)*dim])
	}

	return result
}

// IndexSelect gathers rows along the leading dimension:
// out[i] = x[index[i]].
func (cpu *CPUBackend) IndexSelect(x, index *tensor.RawTensor) *tensor.RawTensor {
	xShape := x.Shape()
	if len(xShape) < 1 {
		panic("index_select: input must have at least one dimension")
	}
	if index.DType() != tensor.Int32 {
		panic(fmt.Sprintf("index_select: index must be int32, got %s", index.DType()))
	}
	if len(index.Shape()) != 1 {
		panic(fmt.Sprintf("index_select: index must be 1D, got %v", index.Shape()))
	}

	numRows := xShape[0]
	rowElems := 1
	for _, d := range xShape[1:] {
		rowElems *= d
	}

	outShape := xShape.Clone()
	outShape[0] = index.Shape()[0]

	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("index_select: %v", err))
	}

	idx := index.AsInt32()
	rowBytes := rowElems * x.DType().Size()
	src := x.Data()
	dst := result.Data()

	for i, id := range idx {
		if id < 0 || int(id) >= numRows {
			panic(fmt.Sprintf("index_select: index %d out of range [0, %d)", id, numRows))
		}
		copy(dst[i*rowBytes:(i+1)*rowBytes], src[int(id)*rowBytes:(int(id)+1)*rowBytes])
	}

	return result
}

// IndexAdd scatter-adds rows of src into a zero-initialized tensor of
// numRows rows: out[index[i]] += src[i]. Duplicate indices accumulate.
func (cpu *CPUBackend) IndexAdd(numRows int, index, src *tensor.RawTensor) *tensor.RawTensor {
	srcShape := src.Shape()
	if len(srcShape) < 1 {
		panic("index_add: src must have at least one dimension")
	}
	if index.DType() != tensor.Int32 {
		panic(fmt.Sprintf("index_add: index must be int32, got %s", index.DType()))
	}
	if len(index.Shape()) != 1 || index.Shape()[0] != srcShape[0] {
		panic(fmt.Sprintf("index_add: index shape %v does not match src rows %d", index.Shape(), srcShape[0]))
	}
	if src.DType() != tensor.Float32 {
		panic(fmt.Sprintf("index_add: unsupported dtype %s", src.DType()))
	}

	rowElems := 1
	for _, d := range srcShape[1:] {
		rowElems *= d
	}

	outShape := srcShape.Clone()
	outShape[0] = numRows

	result, err := tensor.NewRaw(outShape, src.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("index_add: %v", err))
	}

	idx := index.AsInt32()
	s := src.AsFloat32()
	dst := result.AsFloat32()

	for i, id := range idx {
		if id < 0 || int(id) >= numRows {
			panic(fmt.Sprintf("index_add: index %d out of range [0, %d)", id, numRows))
		}
		dstRow := dst[int(id)*rowElems : (int(id)+1)*rowElems]
		srcRow := s[i*rowElems : (i+1)*rowElems]
		for j := range dstRow {
			dstRow[j] += srcRow[j]
		}
	}

	return result
}
