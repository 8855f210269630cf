// Package graph defines the batched molecular multi-graph consumed by
// the hierarchical encoder, and validates its data-contract invariants.
//
// A batch stacks several molecules into one disjoint graph at three
// coupled levels:
//
//	atom-bond graph:       atoms are nodes, bonds are edges
//	bond-angle graph:      bonds are nodes, bond angles are edges
//	angle-dihedral graph:  angles are nodes, dihedral angles are edges
//
// Edge index tensors have shape [2, E] with source indices in row 0 and
// destination indices in row 1, referencing nodes of the level below.
package graph

import (
	"github.com/geomol-ml/geomol/tensor"
)

// Batch is one batched input to the encoder.
//
// Categorical feature matrices are int32 with one column per feature
// field; geometric quantities are float32 vectors. NumBonds and
// NumAngles hold per-graph counts used to derive bond and angle batch
// assignment vectors.
//
// For molecules encoded without dihedral information, AngleDihedralEdges
// and DihedralAngles are nil.
type Batch[B tensor.Backend] struct {
	AtomBondEdges      *tensor.Tensor[int32, B] // [2, total_bonds]
	BondAngleEdges     *tensor.Tensor[int32, B] // [2, total_angles]
	AngleDihedralEdges *tensor.Tensor[int32, B] // [2, total_dihedrals], nil without dihedrals

	AtomFeatures *tensor.Tensor[int32, B] // [num_atoms, num_atom_fields]
	BondFeatures *tensor.Tensor[int32, B] // [total_bonds, num_bond_fields]

	BondLengths    *tensor.Tensor[float32, B] // [total_bonds]
	BondAngles     *tensor.Tensor[float32, B] // [total_angles]
	DihedralAngles *tensor.Tensor[float32, B] // [total_dihedrals], nil without dihedrals

	NumGraphs int
	NumBonds  *tensor.Tensor[int32, B] // [num_graphs] per-graph bond counts
	NumAngles *tensor.Tensor[int32, B] // [num_graphs] per-graph angle counts
	AtomBatch *tensor.Tensor[int32, B] // [num_atoms] graph assignment per atom
}

// NumAtoms returns the total atom count across the batch.
func (b *Batch[B]) NumAtoms() int {
	return b.AtomFeatures.Shape()[0]
}

// TotalBonds returns the total bond count across the batch.
func (b *Batch[B]) TotalBonds() int {
	return b.BondLengths.Shape()[0]
}

// TotalAngles returns the total bond-angle count across the batch.
func (b *Batch[B]) TotalAngles() int {
	return b.BondAngles.Shape()[0]
}

// TotalDihedrals returns the total dihedral count, 0 when the batch
// carries no dihedral level.
func (b *Batch[B]) TotalDihedrals() int {
	if b.DihedralAngles == nil {
		return 0
	}
	return b.DihedralAngles.Shape()[0]
}

// BondBatch derives the per-bond graph assignment vector by repeating
// each graph index NumBonds[g] times.
func (b *Batch[B]) BondBatch() *tensor.Tensor[int32, B] {
	return tensor.RepeatInterleave(b.NumBonds)
}

// AngleBatch derives the per-angle graph assignment vector by repeating
// each graph index NumAngles[g] times.
func (b *Batch[B]) AngleBatch() *tensor.Tensor[int32, B] {
	return tensor.RepeatInterleave(b.NumAngles)
}

// Validate checks the batch-count and device invariants, failing fast
// with a typed error before any compute runs. Core compute assumes a
// validated batch thereafter.
func (b *Batch[B]) Validate() error {
	if err := b.validateDevices(); err != nil {
		return err
	}

	if got := sumInt32(b.NumBonds.Data()); got != b.TotalBonds() {
		return &BatchConsistencyError{What: "sum(num_bonds) vs bond_lengths length", Expected: b.TotalBonds(), Got: got}
	}
	if got := b.BondFeatures.Shape()[0]; got != b.TotalBonds() {
		return &BatchConsistencyError{What: "bond_attr rows vs bond_lengths length", Expected: b.TotalBonds(), Got: got}
	}
	if got := b.AtomBondEdges.Shape()[1]; got != b.TotalBonds() {
		return &BatchConsistencyError{What: "atom-bond edge count vs bond_lengths length", Expected: b.TotalBonds(), Got: got}
	}

	if got := sumInt32(b.NumAngles.Data()); got != b.TotalAngles() {
		return &BatchConsistencyError{What: "sum(num_angles) vs bond_angles length", Expected: b.TotalAngles(), Got: got}
	}
	if got := b.BondAngleEdges.Shape()[1]; got != b.TotalAngles() {
		return &BatchConsistencyError{What: "bond-angle edge count vs bond_angles length", Expected: b.TotalAngles(), Got: got}
	}

	if (b.AngleDihedralEdges == nil) != (b.DihedralAngles == nil) {
		return &BatchConsistencyError{What: "angle-dihedral edges and dihedral_angles must both be present or both nil", Expected: 0, Got: 1}
	}
	if b.AngleDihedralEdges != nil {
		if got := b.AngleDihedralEdges.Shape()[1]; got != b.TotalDihedrals() {
			return &BatchConsistencyError{What: "angle-dihedral edge count vs dihedral_angles length", Expected: b.TotalDihedrals(), Got: got}
		}
	}

	if got := b.AtomBatch.Shape()[0]; got != b.NumAtoms() {
		return &BatchConsistencyError{What: "atom_batch length vs atom count", Expected: b.NumAtoms(), Got: got}
	}
	if got := b.NumBonds.Shape()[0]; got != b.NumGraphs {
		return &BatchConsistencyError{What: "num_bonds length vs num_graphs", Expected: b.NumGraphs, Got: got}
	}
	if got := b.NumAngles.Shape()[0]; got != b.NumGraphs {
		return &BatchConsistencyError{What: "num_angles length vs num_graphs", Expected: b.NumGraphs, Got: got}
	}

	// Batch assignment must be monotonically non-decreasing and
	// partition atoms into num_graphs groups.
	prev := int32(0)
	for _, g := range b.AtomBatch.Data() {
		if g < prev {
			return &BatchConsistencyError{What: "atom_batch must be monotonically non-decreasing", Expected: int(prev), Got: int(g)}
		}
		if int(g) >= b.NumGraphs {
			return &BatchConsistencyError{What: "atom_batch graph index vs num_graphs", Expected: b.NumGraphs - 1, Got: int(g)}
		}
		prev = g
	}

	return nil
}

// ValidateFeatures checks every categorical value against its field's
// vocabulary size. The mask token (vocab_size - 1) is a valid value.
func (b *Batch[B]) ValidateFeatures(atomFieldDims, bondFieldDims []int) error {
	if err := validateFields("atom", b.AtomFeatures, atomFieldDims); err != nil {
		return err
	}
	return validateFields("bond", b.BondFeatures, bondFieldDims)
}

func validateFields[B tensor.Backend](kind string, features *tensor.Tensor[int32, B], dims []int) error {
	shape := features.Shape()
	if shape[1] != len(dims) {
		return &BatchConsistencyError{What: kind + " feature field count", Expected: len(dims), Got: shape[1]}
	}
	data := features.Data()
	for row := 0; row < shape[0]; row++ {
		for f, vocab := range dims {
			v := data[row*shape[1]+f]
			if v < 0 || int(v) >= vocab {
				return &FeatureIndexError{
					Field:     kind,
					Row:       row,
					Value:     v,
					VocabSize: vocab,
				}
			}
		}
	}
	return nil
}

func (b *Batch[B]) validateDevices() error {
	want := b.AtomFeatures.Device()
	check := func(name string, dev tensor.Device) error {
		if dev != want {
			return &DeviceMismatchError{Tensor: name, Want: want.String(), Got: dev.String()}
		}
		return nil
	}

	if err := check("bond_attr", b.BondFeatures.Device()); err != nil {
		return err
	}
	if err := check("bond_lengths", b.BondLengths.Device()); err != nil {
		return err
	}
	if err := check("bond_angles", b.BondAngles.Device()); err != nil {
		return err
	}
	if b.DihedralAngles != nil {
		if err := check("dihedral_angles", b.DihedralAngles.Device()); err != nil {
			return err
		}
	}
	if err := check("atom_batch", b.AtomBatch.Device()); err != nil {
		return err
	}
	if err := check("AtomBondGraph_edges", b.AtomBondEdges.Device()); err != nil {
		return err
	}
	if err := check("BondAngleGraph_edges", b.BondAngleEdges.Device()); err != nil {
		return err
	}
	if b.AngleDihedralEdges != nil {
		if err := check("AngleDihedralGraph_edges", b.AngleDihedralEdges.Device()); err != nil {
			return err
		}
	}
	return nil
}

func sumInt32(values []int32) int {
	total := 0
	for _, v := range values {
		total += int(v)
	}
	return total
}
