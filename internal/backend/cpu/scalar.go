package cpu

import (
	"fmt"

	"github.com/geomol-ml/geomol/internal/tensor"
)

// MulScalar multiplies each element by a scalar value.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarOp("mul_scalar", x, scalar,
		func(v, s float32) float32 { return v * s },
		func(v, s int32) int32 { return v * s })
}

// AddScalar adds a scalar value to each element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarOp("add_scalar", x, scalar,
		func(v, s float32) float32 { return v + s },
		func(v, s int32) int32 { return v + s })
}

// SubScalar subtracts a scalar value from each element.
func (cpu *CPUBackend) SubScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarOp("sub_scalar", x, scalar,
		func(v, s float32) float32 { return v - s },
		func(v, s int32) int32 { return v - s })
}

// DivScalar divides each element by a scalar value.
func (cpu *CPUBackend) DivScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarOp("div_scalar", x, scalar,
		func(v, s float32) float32 { return v / s },
		func(v, s int32) int32 { return v / s })
}

func (cpu *CPUBackend) scalarOp(
	name string,
	x *tensor.RawTensor,
	scalar any,
	f32 func(v, s float32) float32,
	i32 func(v, s int32) int32,
) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	switch x.DType() {
	case tensor.Float32:
		s, ok := scalar.(float32)
		if !ok {
			panic(fmt.Sprintf("%s: scalar type %T does not match tensor dtype %s", name, scalar, x.DType()))
		}
		src := x.AsFloat32()
		dst := result.AsFloat32()
		for i := range dst {
			dst[i] = f32(src[i], s)
		}
	case tensor.Int32:
		s, ok := scalar.(int32)
		if !ok {
			panic(fmt.Sprintf("%s: scalar type %T does not match tensor dtype %s", name, scalar, x.DType()))
		}
		src := x.AsInt32()
		dst := result.AsInt32()
		for i := range dst {
			dst[i] = i32(src[i], s)
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, x.DType()))
	}

	return result
}
