package nn

import (
	"fmt"
	"math"

	"github.com/geomol-ml/geomol/internal/tensor"
)

// CrossEntropyLoss computes cross-entropy loss for multi-class
// classification, used by the atom-distance classification head.
//
// The implementation uses the LogSoftmax + NLLLoss decomposition with
// the log-sum-exp trick for numerical stability:
//
//	Loss = -log_probs[target]
//	where log_probs = LogSoftmax(logits)
type CrossEntropyLoss[B tensor.Backend] struct {
	backend B
}

// NewCrossEntropyLoss creates a new cross-entropy loss function.
func NewCrossEntropyLoss[B tensor.Backend](backend B) *CrossEntropyLoss[B] {
	return &CrossEntropyLoss[B]{
		backend: backend,
	}
}

// Forward computes the mean cross-entropy loss over the batch.
//
// Parameters:
//   - logits: unnormalized scores with shape [batch_size, num_classes]
//   - targets: class indices with shape [batch_size]
//
// Returns a scalar tensor.
func (c *CrossEntropyLoss[B]) Forward(
	logits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[int32, B],
) *tensor.Tensor[float32, B] {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("CrossEntropyLoss: logits must be 2D [batch_size, num_classes], got %v", shape))
	}

	batchSize := shape[0]
	numClasses := shape[1]

	targetsData := targets.Data()
	if len(targetsData) != batchSize {
		panic(fmt.Sprintf("CrossEntropyLoss: expected %d targets, got %d", batchSize, len(targetsData)))
	}

	logitsData := logits.Data()

	totalLoss := float32(0.0)
	for b := 0; b < batchSize; b++ {
		sampleLogits := logitsData[b*numClasses : (b+1)*numClasses]
		logProbs := logSoftmax(sampleLogits)

		target := int(targetsData[b])
		if target < 0 || target >= numClasses {
			panic(fmt.Sprintf("CrossEntropyLoss: target %d out of range [0, %d)", target, numClasses))
		}
		totalLoss += -logProbs[target]
	}

	result, err := tensor.FromSlice([]float32{totalLoss / float32(batchSize)}, tensor.Shape{1}, c.backend)
	if err != nil {
		panic(fmt.Sprintf("CrossEntropyLoss: %v", err))
	}
	return result
}

// logSoftmax computes log(softmax(x)) with the log-sum-exp trick.
func logSoftmax(logits []float32) []float32 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	var sumExp float64
	for _, v := range logits {
		sumExp += math.Exp(float64(v - maxLogit))
	}
	logSumExp := float32(math.Log(sumExp)) + maxLogit

	out := make([]float32, len(logits))
	for i, v := range logits {
		out[i] = v - logSumExp
	}
	return out
}
