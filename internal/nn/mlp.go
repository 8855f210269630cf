package nn

import (
	"fmt"

	"github.com/geomol-ml/geomol/internal/tensor"
)

// MLP is a stack of Linear layers with ReLU activations and dropout
// between them. No activation follows the last layer, so the final
// projection stays linear for regression and classification heads.
//
// sizes lists the layer widths including input and output, e.g.
// {128, 256, 1} builds Linear(128, 256) + ReLU + Linear(256, 1).
type MLP[B tensor.Backend] struct {
	layers  []*Linear[B]
	act     *ReLU[B]
	dropout *Dropout[B]
}

// NewMLP creates a new MLP with the given layer widths.
func NewMLP[B tensor.Backend](sizes []int, dropout float32, backend B) *MLP[B] {
	if len(sizes) < 2 {
		panic(fmt.Sprintf("MLP: need at least input and output sizes, got %v", sizes))
	}

	layers := make([]*Linear[B], 0, len(sizes)-1)
	for i := 0; i < len(sizes)-1; i++ {
		layers = append(layers, NewLinear(sizes[i], sizes[i+1], backend))
	}

	return &MLP[B]{
		layers:  layers,
		act:     NewReLU[B](),
		dropout: NewDropout[B](dropout),
	}
}

// SetTraining toggles training mode for the dropout layers.
func (m *MLP[B]) SetTraining(training bool) {
	m.dropout.SetTraining(training)
}

// Forward applies the layer stack.
//
// Input shape: [batch, sizes[0]]
// Output shape: [batch, sizes[len(sizes)-1]]
func (m *MLP[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	h := input
	for i, layer := range m.layers {
		h = layer.Forward(h)
		if i < len(m.layers)-1 {
			h = m.dropout.Forward(m.act.Forward(h))
		}
	}
	return h
}

// Parameters returns the parameters of all layers.
func (m *MLP[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 2*len(m.layers))
	for _, layer := range m.layers {
		params = append(params, layer.Parameters()...)
	}
	return params
}

// StateDict returns a map of parameter names to raw tensors.
func (m *MLP[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, layer := range m.layers {
		MergeStateDict(stateDict, fmt.Sprintf("layers.%d", i), layer.StateDict())
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary.
func (m *MLP[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, layer := range m.layers {
		if err := layer.LoadStateDict(SubStateDict(stateDict, fmt.Sprintf("layers.%d", i))); err != nil {
			return fmt.Errorf("mlp layer %d: %w", i, err)
		}
	}
	return nil
}
