package graph

import "fmt"

// FeatureIndexError reports a categorical feature value outside its
// field's vocabulary. The last vocabulary slot is reserved as the mask
// token, so valid values are [0, vocab_size).
type FeatureIndexError struct {
	Field     string
	Row       int
	Value     int32
	VocabSize int
}

func (e *FeatureIndexError) Error() string {
	return fmt.Sprintf("feature index out of vocabulary: field %q row %d has value %d, vocab size %d",
		e.Field, e.Row, e.Value, e.VocabSize)
}

// BatchConsistencyError reports a violated batch-count invariant, such
// as sum(num_bonds) not matching the bond tensor length.
type BatchConsistencyError struct {
	What     string
	Expected int
	Got      int
}

func (e *BatchConsistencyError) Error() string {
	return fmt.Sprintf("batch inconsistency: %s: expected %d, got %d", e.What, e.Expected, e.Got)
}

// MissingTargetError reports a pretraining task whose ground-truth
// target array is absent from the batch.
type MissingTargetError struct {
	Task   string
	Target string
}

func (e *MissingTargetError) Error() string {
	return fmt.Sprintf("missing target for task %q: %s", e.Task, e.Target)
}

// DeviceMismatchError reports input tensors residing on different
// devices within one call.
type DeviceMismatchError struct {
	Tensor string
	Want   string
	Got    string
}

func (e *DeviceMismatchError) Error() string {
	return fmt.Sprintf("device mismatch: tensor %q on %s, expected %s", e.Tensor, e.Got, e.Want)
}
