package nn

import (
	"fmt"

	"github.com/geomol-ml/geomol/internal/tensor"
)

// TransformerEncoderLayer is a pre-norm transformer encoder block:
//
//	x = x + MHA(LayerNorm(x))
//	x = x + FFN(LayerNorm(x))
//
// where FFN is Linear -> ReLU -> Linear with hidden size ffnDim.
type TransformerEncoderLayer[B tensor.Backend] struct {
	norm1 *LayerNorm[B]
	attn  *MultiHeadAttention[B]
	norm2 *LayerNorm[B]
	ffn   *MLP[B]
}

// NewTransformerEncoderLayer creates a new pre-norm encoder layer.
func NewTransformerEncoderLayer[B tensor.Backend](embedDim, numHeads, ffnDim int, dropout float32, backend B) *TransformerEncoderLayer[B] {
	return &TransformerEncoderLayer[B]{
		norm1: NewLayerNorm(embedDim, 1e-5, backend),
		attn:  NewMultiHeadAttention(embedDim, numHeads, backend),
		norm2: NewLayerNorm(embedDim, 1e-5, backend),
		ffn:   NewMLP([]int{embedDim, ffnDim, embedDim}, dropout, backend),
	}
}

// SetTraining toggles training mode for the dropout layers.
func (t *TransformerEncoderLayer[B]) SetTraining(training bool) {
	t.ffn.SetTraining(training)
}

// Forward applies the encoder layer to a [seq_len, embed_dim] sequence.
func (t *TransformerEncoderLayer[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x = x.Add(t.attn.Forward(t.norm1.Forward(x)))
	x = x.Add(t.ffn.Forward(t.norm2.Forward(x)))
	return x
}

// Parameters returns all parameters of the layer.
func (t *TransformerEncoderLayer[B]) Parameters() []*Parameter[B] {
	params := t.norm1.Parameters()
	params = append(params, t.attn.Parameters()...)
	params = append(params, t.norm2.Parameters()...)
	params = append(params, t.ffn.Parameters()...)
	return params
}

// StateDict returns a map of parameter names to raw tensors.
func (t *TransformerEncoderLayer[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	MergeStateDict(stateDict, "norm1", t.norm1.StateDict())
	MergeStateDict(stateDict, "attn", t.attn.StateDict())
	MergeStateDict(stateDict, "norm2", t.norm2.StateDict())
	MergeStateDict(stateDict, "ffn", t.ffn.StateDict())
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary.
func (t *TransformerEncoderLayer[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := t.norm1.LoadStateDict(SubStateDict(stateDict, "norm1")); err != nil {
		return fmt.Errorf("norm1: %w", err)
	}
	if err := t.attn.LoadStateDict(SubStateDict(stateDict, "attn")); err != nil {
		return fmt.Errorf("attn: %w", err)
	}
	if err := t.norm2.LoadStateDict(SubStateDict(stateDict, "norm2")); err != nil {
		return fmt.Errorf("norm2: %w", err)
	}
	if err := t.ffn.LoadStateDict(SubStateDict(stateDict, "ffn")); err != nil {
		return fmt.Errorf("ffn: %w", err)
	}
	return nil
}
