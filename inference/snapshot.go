package inference

import (
	"fmt"

	"github.com/geomol-ml/geomol/internal/nn"
	"github.com/geomol-ml/geomol/internal/serialization"
	"github.com/geomol-ml/geomol/tensor"
)

// Snapshot section prefixes. The encoder and the downstream head are
// stored side by side but load independently, so a pretrained encoder
// can back a freshly initialized head during frozen-encoder
// fine-tuning.
const (
	encoderPrefix = "compound_encoder"
	modelPrefix   = "model"
)

// SaveSnapshot writes the encoder and head state dicts into one
// snapshot file.
func SaveSnapshot(path string, encoderState, modelState map[string]*tensor.RawTensor, metadata map[string]string) error {
	combined := make(map[string]*tensor.RawTensor, len(encoderState)+len(modelState))
	nn.MergeStateDict(combined, encoderPrefix, encoderState)
	nn.MergeStateDict(combined, modelPrefix, modelState)
	return serialization.SaveStateDict(path, combined, "geomol", metadata)
}

// LoadEncoderState reads only the encoder section of a snapshot.
func LoadEncoderState(path string) (map[string]*tensor.RawTensor, error) {
	return loadSection(path, encoderPrefix)
}

// LoadModelState reads only the downstream head section of a snapshot.
func LoadModelState(path string) (map[string]*tensor.RawTensor, error) {
	return loadSection(path, modelPrefix)
}

func loadSection(path, prefix string) (map[string]*tensor.RawTensor, error) {
	stateDict, err := serialization.LoadStateDict(path)
	if err != nil {
		return nil, err
	}
	section := nn.SubStateDict(stateDict, prefix)
	if len(section) == 0 {
		return nil, fmt.Errorf("inference: snapshot %q has no %q section", path, prefix)
	}
	return section, nil
}
