package nn

import (
	"fmt"
	"math"

	"github.com/geomol-ml/geomol/internal/tensor"
)

// MultiHeadAttention implements scaled dot-product attention with
// multiple heads over a single unbatched sequence.
//
// The downstream endpoint head attends over one sequence of endpoint
// tokens per molecule, so Forward takes a 2D [seq_len, embed_dim]
// input and the caller loops over molecules.
type MultiHeadAttention[B tensor.Backend] struct {
	embedDim int
	numHeads int
	headDim  int

	query *Linear[B]
	key   *Linear[B]
	value *Linear[B]
	out   *Linear[B]
}

// NewMultiHeadAttention creates a new multi-head attention layer.
// embedDim must be divisible by numHeads.
func NewMultiHeadAttention[B tensor.Backend](embedDim, numHeads int, backend B) *MultiHeadAttention[B] {
	if embedDim%numHeads != 0 {
		panic(fmt.Sprintf("MultiHeadAttention: embedDim %d not divisible by numHeads %d", embedDim, numHeads))
	}

	return &MultiHeadAttention[B]{
		embedDim: embedDim,
		numHeads: numHeads,
		headDim:  embedDim / numHeads,
		query:    NewLinear(embedDim, embedDim, backend),
		key:      NewLinear(embedDim, embedDim, backend),
		value:    NewLinear(embedDim, embedDim, backend),
		out:      NewLinear(embedDim, embedDim, backend),
	}
}

// Forward computes full (unmasked) self-attention.
//
// Input shape: [seq_len, embed_dim]
// Output shape: [seq_len, embed_dim]
func (m *MultiHeadAttention[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 2 || shape[1] != m.embedDim {
		panic(fmt.Sprintf("MultiHeadAttention.Forward: expected [seq, %d] input, got %v", m.embedDim, shape))
	}
	seqLen := shape[0]

	q := m.query.Forward(x) // [seq, embed]
	k := m.key.Forward(x)
	v := m.value.Forward(x)

	scale := float32(1.0 / math.Sqrt(float64(m.headDim)))

	// Per head: slice out the head's columns, attend, write back.
	concat := tensor.Zeros[float32](tensor.Shape{seqLen, m.embedDim}, x.Backend())
	for h := 0; h < m.numHeads; h++ {
		qh := m.headSlice(q, h) // [seq, head_dim]
		kh := m.headSlice(k, h)
		vh := m.headSlice(v, h)

		// scores = softmax(Q K^T / sqrt(d)) V
		scores := qh.MatMul(kh.Transpose()).MulScalar(scale).Softmax(-1)
		headOut := scores.MatMul(vh) // [seq, head_dim]

		dst := concat.Data()
		src := headOut.Data()
		for s := 0; s < seqLen; s++ {
			copy(dst[s*m.embedDim+h*m.headDim:s*m.embedDim+(h+1)*m.headDim],
				src[s*m.headDim:(s+1)*m.headDim])
		}
	}

	return m.out.Forward(concat)
}

// headSlice extracts head h's columns as a [seq, head_dim] tensor.
func (m *MultiHeadAttention[B]) headSlice(x *tensor.Tensor[float32, B], h int) *tensor.Tensor[float32, B] {
	seqLen := x.Shape()[0]
	out := tensor.Zeros[float32](tensor.Shape{seqLen, m.headDim}, x.Backend())

	src := x.Data()
	dst := out.Data()
	for s := 0; s < seqLen; s++ {
		copy(dst[s*m.headDim:(s+1)*m.headDim],
			src[s*m.embedDim+h*m.headDim:s*m.embedDim+(h+1)*m.headDim])
	}
	return out
}

// Parameters returns all projection parameters.
func (m *MultiHeadAttention[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 8)
	params = append(params, m.query.Parameters()...)
	params = append(params, m.key.Parameters()...)
	params = append(params, m.value.Parameters()...)
	params = append(params, m.out.Parameters()...)
	return params
}

// StateDict returns a map of parameter names to raw tensors.
func (m *MultiHeadAttention[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	MergeStateDict(stateDict, "query", m.query.StateDict())
	MergeStateDict(stateDict, "key", m.key.StateDict())
	MergeStateDict(stateDict, "value", m.value.StateDict())
	MergeStateDict(stateDict, "out", m.out.StateDict())
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary.
func (m *MultiHeadAttention[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for name, proj := range map[string]*Linear[B]{
		"query": m.query, "key": m.key, "value": m.value, "out": m.out,
	} {
		if err := proj.LoadStateDict(SubStateDict(stateDict, name)); err != nil {
			return fmt.Errorf("attention %s: %w", name, err)
		}
	}
	return nil
}
