// Package geognn implements the hierarchical geometric graph neural
// network encoder: feature embeddings, the message-passing block, and
// the atom -> bond-angle -> angle-dihedral encoder.
package geognn

import (
	"fmt"
	"math"

	"github.com/geomol-ml/geomol/internal/nn"
	"github.com/geomol-ml/geomol/tensor"
)

// RBF expansion constants. Bond lengths live in [0, 2) Angstrom-scaled
// units, bond angles in [0, pi), dihedral angles in [-pi, pi).
const (
	rbfGamma float32 = 10.0
	rbfStep  float32 = 0.1
)

// AtomBondEmbedding sums per-field embedding lookups for a categorical
// feature matrix.
//
// For a feature matrix with F independent fields, each field f has its
// own [fieldDims[f], latentSize] table; the output is the sum of the F
// looked-up rows, so the output dimension is always latentSize. The
// last slot of every table is reserved as the mask token.
type AtomBondEmbedding[B tensor.Backend] struct {
	fieldDims []int
	tables    []*nn.Embedding[B]
}

// NewAtomBondEmbedding creates one embedding table per feature field.
func NewAtomBondEmbedding[B tensor.Backend](fieldDims []int, latentSize int, backend B) *AtomBondEmbedding[B] {
	tables := make([]*nn.Embedding[B], len(fieldDims))
	for f, vocab := range fieldDims {
		tables[f] = nn.NewEmbedding[B](vocab, latentSize, backend)
	}
	return &AtomBondEmbedding[B]{
		fieldDims: fieldDims,
		tables:    tables,
	}
}

// Forward embeds a [n, F] categorical feature matrix to [n, latentSize].
func (e *AtomBondEmbedding[B]) Forward(features *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	shape := features.Shape()
	if len(shape) != 2 || shape[1] != len(e.fieldDims) {
		panic(fmt.Sprintf("AtomBondEmbedding.Forward: expected [n, %d] features, got %v", len(e.fieldDims), shape))
	}

	var out *tensor.Tensor[float32, B]
	for f, table := range e.tables {
		col := featureColumn(features, f)
		embedded := table.Forward(col)
		if out == nil {
			out = embedded
		} else {
			out = out.Add(embedded)
		}
	}
	return out
}

// featureColumn extracts column f of a [n, F] int32 matrix as a [n]
// index tensor.
func featureColumn[B tensor.Backend](features *tensor.Tensor[int32, B], f int) *tensor.Tensor[int32, B] {
	shape := features.Shape()
	n, numFields := shape[0], shape[1]
	data := features.Data()

	col := make([]int32, n)
	for i := 0; i < n; i++ {
		col[i] = data[i*numFields+f]
	}

	out, err := tensor.FromSlice(col, tensor.Shape{n}, features.Backend())
	if err != nil {
		panic(fmt.Sprintf("featureColumn: %v", err))
	}
	return out
}

// Parameters returns all embedding tables' parameters.
func (e *AtomBondEmbedding[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, len(e.tables))
	for _, table := range e.tables {
		params = append(params, table.Parameters()...)
	}
	return params
}

// StateDict returns a map of parameter names to raw tensors.
func (e *AtomBondEmbedding[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for f, table := range e.tables {
		nn.MergeStateDict(stateDict, fmt.Sprintf("%d", f), table.StateDict())
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary.
func (e *AtomBondEmbedding[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for f, table := range e.tables {
		if err := table.LoadStateDict(nn.SubStateDict(stateDict, fmt.Sprintf("%d", f))); err != nil {
			return fmt.Errorf("field %d: %w", f, err)
		}
	}
	return nil
}

// FloatRBF expands a scalar geometric quantity into a smooth
// latentSize-dim representation: K fixed Gaussian kernels followed by a
// learned linear projection.
type FloatRBF[B tensor.Backend] struct {
	centers []float32
	gamma   float32
	linear  *nn.Linear[B]
}

// newFloatRBF creates an RBF expansion with centers spaced rbfStep
// apart over [start, end).
func newFloatRBF[B tensor.Backend](start, end float32, latentSize int, backend B) *FloatRBF[B] {
	k := int(math.Ceil(float64((end - start) / rbfStep)))
	centers := tensor.Linspace[float32](start, rbfStep, k, backend)

	return &FloatRBF[B]{
		centers: centers.Data(),
		gamma:   rbfGamma,
		linear:  nn.NewLinear(k, latentSize, backend),
	}
}

// NewBondFloatRBF creates the RBF expansion for bond lengths.
func NewBondFloatRBF[B tensor.Backend](latentSize int, backend B) *FloatRBF[B] {
	return newFloatRBF(0, 2, latentSize, backend)
}

// NewBondAngleFloatRBF creates the RBF expansion for bond angles.
func NewBondAngleFloatRBF[B tensor.Backend](latentSize int, backend B) *FloatRBF[B] {
	return newFloatRBF(0, float32(math.Pi), latentSize, backend)
}

// NewDihedralAngleFloatRBF creates the RBF expansion for dihedral angles.
func NewDihedralAngleFloatRBF[B tensor.Backend](latentSize int, backend B) *FloatRBF[B] {
	return newFloatRBF(float32(-math.Pi), float32(math.Pi), latentSize, backend)
}

// NumKernels returns the number of RBF kernels K.
func (r *FloatRBF[B]) NumKernels() int {
	return len(r.centers)
}

// Forward expands a [n] scalar tensor to [n, latentSize].
//
// Per kernel k: exp(-gamma * (x - center_k)^2), then Linear(K -> latent).
func (r *FloatRBF[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 1 {
		panic(fmt.Sprintf("FloatRBF.Forward: expected 1D scalar tensor, got %v", shape))
	}
	n := shape[0]
	k := len(r.centers)

	expanded := make([]float32, n*k)
	data := x.Data()
	for i := 0; i < n; i++ {
		for j, c := range r.centers {
			d := data[i] - c
			expanded[i*k+j] = float32(math.Exp(float64(-r.gamma * d * d)))
		}
	}

	feat, err := tensor.FromSlice(expanded, tensor.Shape{n, k}, x.Backend())
	if err != nil {
		panic(fmt.Sprintf("FloatRBF.Forward: %v", err))
	}
	return r.linear.Forward(feat)
}

// Parameters returns the projection parameters.
func (r *FloatRBF[B]) Parameters() []*nn.Parameter[B] {
	return r.linear.Parameters()
}

// StateDict returns a map of parameter names to raw tensors.
func (r *FloatRBF[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	nn.MergeStateDict(stateDict, "linear", r.linear.StateDict())
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary.
func (r *FloatRBF[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return r.linear.LoadStateDict(nn.SubStateDict(stateDict, "linear"))
}
