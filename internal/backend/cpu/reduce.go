package cpu

import (
	"fmt"

	"github.com/geomol-ml/geomol/internal/tensor"
)

// Sum computes the sum of all elements, returning a scalar tensor.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result, err := tensor.NewRaw(tensor.Shape{1}, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("sum: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		var acc float32
		for _, v := range x.AsFloat32() {
			acc += v
		}
		result.AsFloat32()[0] = acc
	case tensor.Int32:
		var acc int32
		for _, v := range x.AsInt32() {
			acc += v
		}
		result.AsInt32()[0] = acc
	default:
		panic(fmt.Sprintf("sum: unsupported dtype %s", x.DType()))
	}

	return result
}

// MeanDim computes the mean along a dimension. Negative dims index
// from the end. With keepDim, the reduced dimension stays as size 1.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)

	if dim < 0 {
		dim += ndim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("mean_dim: invalid dim %d for %dD tensor", dim, ndim))
	}
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("mean_dim: unsupported dtype %s", x.DType()))
	}

	outShape := make(tensor.Shape, 0, ndim)
	for d := 0; d < ndim; d++ {
		if d == dim {
			if keepDim {
				outShape = append(outShape, 1)
			}
			continue
		}
		outShape = append(outShape, shape[d])
	}
	if len(outShape) == 0 {
		outShape = tensor.Shape{1}
	}

	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("mean_dim: %v", err))
	}

	dimSize := shape[dim]
	outer := 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	inner := 1
	for d := dim + 1; d < ndim; d++ {
		inner *= shape[d]
	}

	src := x.AsFloat32()
	dst := result.AsFloat32()
	inv := 1.0 / float32(dimSize)

	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			var acc float32
			base := o*dimSize*inner + in
			for d := 0; d < dimSize; d++ {
				acc += src[base+d*inner]
			}
			dst[o*inner+in] = acc * inv
		}
	}

	return result
}
