package nn

import (
	"math/rand"

	"github.com/geomol-ml/geomol/internal/tensor"
)

// Dropout randomly zeroes elements with probability p during training,
// scaling survivors by 1/(1-p) (inverted dropout). In eval mode it is
// the identity.
type Dropout[B tensor.Backend] struct {
	p        float32
	training bool
}

// NewDropout creates a new Dropout layer. Layers start in eval mode.
func NewDropout[B tensor.Backend](p float32) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic("Dropout: probability must be in [0, 1)")
	}
	return &Dropout[B]{p: p}
}

// SetTraining toggles training mode.
func (d *Dropout[B]) SetTraining(training bool) {
	d.training = training
}

// Forward applies dropout to the input.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.p == 0 {
		return input
	}

	out := input.Clone()
	data := out.Data()
	scale := 1.0 / (1.0 - d.p)
	//nolint:gosec // math/rand is appropriate for dropout masks
	for i := range data {
		if rand.Float32() < d.p {
			data[i] = 0
		} else {
			data[i] *= scale
		}
	}
	return out
}

// Parameters returns an empty slice (Dropout has no parameters).
func (d *Dropout[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{}
}
