package nn

import (
	"fmt"

	"github.com/geomol-ml/geomol/internal/tensor"
)

// SmoothL1Loss computes the smooth L1 (Huber) loss between predictions
// and targets, averaged over all elements.
//
// Per element, with beta = 1:
//
//	0.5 * d^2        if |d| < 1
//	|d| - 0.5        otherwise
//
// Less sensitive to outliers than MSE; used for the geometric and
// charge regression heads.
type SmoothL1Loss[B tensor.Backend] struct{}

// NewSmoothL1Loss creates a new smooth L1 loss.
func NewSmoothL1Loss[B tensor.Backend]() *SmoothL1Loss[B] {
	return &SmoothL1Loss[B]{}
}

// Forward computes the mean smooth L1 loss.
//
// Predictions and targets must have the same number of elements.
// Returns a scalar tensor.
func (l *SmoothL1Loss[B]) Forward(predictions, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if predictions.NumElements() != targets.NumElements() {
		panic(fmt.Sprintf("SmoothL1Loss: predictions have %d elements, targets have %d",
			predictions.NumElements(), targets.NumElements()))
	}

	pred := predictions.Data()
	tgt := targets.Data()

	var acc float32
	for i := range pred {
		d := pred[i] - tgt[i]
		if d < 0 {
			d = -d
		}
		if d < 1 {
			acc += 0.5 * d * d
		} else {
			acc += d - 0.5
		}
	}
	acc /= float32(len(pred))

	result, err := tensor.FromSlice([]float32{acc}, tensor.Shape{1}, predictions.Backend())
	if err != nil {
		panic(fmt.Sprintf("SmoothL1Loss: %v", err))
	}
	return result
}
