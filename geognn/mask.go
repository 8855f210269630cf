package geognn

import (
	"github.com/geomol-ml/geomol/graph"
	"github.com/geomol-ml/geomol/tensor"
)

// MaskIndices names the rows to mask at each hierarchy level during
// pretraining.
type MaskIndices struct {
	Atoms     []int
	Bonds     []int
	Angles    []int
	Dihedrals []int
}

// MaskAttr returns a new batch with the indexed rows overwritten:
// categorical fields are set to their field's mask token (the reserved
// last vocabulary slot, vocab_size - 1) and continuous scalars are
// zeroed.
//
// The caller's batch is never mutated. Feature and geometry tensors
// are deep-copied before overwriting; edge indices and counts are
// shared, since masking never touches topology. The originals stay
// available as pretraining targets.
func MaskAttr[B tensor.Backend](batch *graph.Batch[B], m MaskIndices, cfg Config) *graph.Batch[B] {
	masked := *batch

	masked.AtomFeatures = maskCategorical(batch.AtomFeatures, m.Atoms, cfg.AtomFeatureDims)
	masked.BondFeatures = maskCategorical(batch.BondFeatures, m.Bonds, cfg.BondFeatureDims)
	masked.BondLengths = maskScalars(batch.BondLengths, m.Bonds)
	masked.BondAngles = maskScalars(batch.BondAngles, m.Angles)
	if batch.DihedralAngles != nil {
		masked.DihedralAngles = maskScalars(batch.DihedralAngles, m.Dihedrals)
	}

	return &masked
}

func maskCategorical[B tensor.Backend](features *tensor.Tensor[int32, B], rows []int, fieldDims []int) *tensor.Tensor[int32, B] {
	if len(rows) == 0 {
		return features
	}

	out := features.Clone()
	numFields := out.Shape()[1]
	data := out.Data()
	for _, row := range rows {
		for f, vocab := range fieldDims {
			data[row*numFields+f] = int32(vocab - 1)
		}
	}
	return out
}

func maskScalars[B tensor.Backend](values *tensor.Tensor[float32, B], rows []int) *tensor.Tensor[float32, B] {
	if len(rows) == 0 {
		return values
	}

	out := values.Clone()
	data := out.Data()
	for _, row := range rows {
		data[row] = 0
	}
	return out
}
