package cpu

import (
	"fmt"
	"math"

	"github.com/geomol-ml/geomol/internal/tensor"
)

// Softmax computes softmax along the specified dimension. Negative dims
// index from the end. The computation subtracts the per-slice max for
// numerical stability.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)

	if dim < 0 {
		dim += ndim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("softmax: invalid dim %d for %dD tensor", dim, ndim))
	}
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("softmax: unsupported dtype %s", x.DType()))
	}

	result, err := tensor.NewRaw(shape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("softmax: %v", err))
	}

	// Treat the tensor as [outer, dimSize, inner] and normalize over
	// the middle axis.
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

	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*dimSize*inner + in

			maxVal := float32(math.Inf(-1))
			for d := 0; d < dimSize; d++ {
				if v := src[base+d*inner]; v > maxVal {
					maxVal = v
				}
			}

			var sum float32
			for d := 0; d < dimSize; d++ {
				e := float32(math.Exp(float64(src[base+d*inner] - maxVal)))
				dst[base+d*inner] = e
				sum += e
			}

			for d := 0; d < dimSize; d++ {
				dst[base+d*inner] /= sum
			}
		}
	}

	return result
}
