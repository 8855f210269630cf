// Package nn implements the neural network modules used by the geomol
// encoder and heads.
//
// Building blocks:
//   - Module interface: base interface for single-input components
//   - Parameter: named learnable parameters
//   - Linear: fully connected layer
//   - Embedding: categorical lookup table
//   - LayerNorm: layer normalization
//   - MLP: stacked Linear + ReLU
//   - Loss functions: SmoothL1, CrossEntropy
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
// The graph encoder itself does not implement Module (its forward pass
// takes several tensors); it is composed from these blocks and exposes
// the same Parameters/StateDict conventions.
package nn

import (
	"github.com/geomol-ml/geomol/internal/tensor"
)

// Module is the base interface for single-input network components.
//
// Every module must implement:
//   - Forward: compute output from input
//   - Parameters: return all learnable parameters
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all learnable parameters of this module.
	// Returns an empty slice for parameter-free modules.
	Parameters() []*Parameter[B]
}
