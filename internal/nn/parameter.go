package nn

import (
	"github.com/geomol-ml/geomol/internal/tensor"
)

// Parameter represents a learnable parameter in a network.
//
// Parameters are float32 tensors owned by a module, typically weights
// and biases. They are the unit of snapshot save/load: every parameter
// appears under a dotted name in the owning model's state dict.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
}

// NewParameter creates a new parameter.
//
// The tensor should be initialized before creating the Parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}
