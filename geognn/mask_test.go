package geognn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geomol-ml/geomol/backend/cpu"
)

func TestMaskAttr_MaskTokenValues(t *testing.T) {
	backend := cpu.New()
	cfg := testConfig()
	batch := chainBatch(t, backend)

	masked := MaskAttr(batch, MaskIndices{
		Atoms:     []int{1, 3},
		Bonds:     []int{0},
		Angles:    []int{1},
		Dihedrals: []int{0},
	}, cfg)

	// Categorical fields get the reserved last vocabulary slot.
	atoms := masked.AtomFeatures.Data()
	assert.Equal(t, int32(4), atoms[1*2+0])
	assert.Equal(t, int32(3), atoms[1*2+1])
	assert.Equal(t, int32(4), atoms[3*2+0])
	assert.Equal(t, int32(3), atoms[3*2+1])

	bonds := masked.BondFeatures.Data()
	assert.Equal(t, int32(3), bonds[0])

	// Continuous scalars go to zero.
	assert.Equal(t, float32(0), masked.BondLengths.Data()[0])
	assert.Equal(t, float32(0), masked.BondAngles.Data()[1])
	assert.Equal(t, float32(0), masked.DihedralAngles.Data()[0])

	// Untouched rows keep their values.
	assert.Equal(t, int32(1), atoms[2*2+1])
	assert.InDelta(t, 1.4, masked.BondLengths.Data()[1], 1e-6)
	assert.InDelta(t, 1.9, masked.BondAngles.Data()[0], 1e-6)
}

func TestMaskAttr_DoesNotMutateInput(t *testing.T) {
	backend := cpu.New()
	cfg := testConfig()
	batch := chainBatch(t, backend)

	atomsBefore := append([]int32(nil), batch.AtomFeatures.Data()...)
	bondsBefore := append([]int32(nil), batch.BondFeatures.Data()...)
	lengthsBefore := append([]float32(nil), batch.BondLengths.Data()...)
	anglesBefore := append([]float32(nil), batch.BondAngles.Data()...)
	dihedralsBefore := append([]float32(nil), batch.DihedralAngles.Data()...)

	_ = MaskAttr(batch, MaskIndices{
		Atoms:     []int{0, 1, 2, 3},
		Bonds:     []int{0, 1, 2},
		Angles:    []int{0, 1},
		Dihedrals: []int{0},
	}, cfg)

	assert.Equal(t, atomsBefore, batch.AtomFeatures.Data())
	assert.Equal(t, bondsBefore, batch.BondFeatures.Data())
	assert.Equal(t, lengthsBefore, batch.BondLengths.Data())
	assert.Equal(t, anglesBefore, batch.BondAngles.Data())
	assert.Equal(t, dihedralsBefore, batch.DihedralAngles.Data())
}

func TestMaskAttr_SharesTopologyAndUntouchedTensors(t *testing.T) {
	backend := cpu.New()
	cfg := testConfig()
	batch := chainBatch(t, backend)

	masked := MaskAttr(batch, MaskIndices{Bonds: []int{1}}, cfg)

	// Topology is never copied.
	assert.Same(t, batch.AtomBondEdges, masked.AtomBondEdges)
	assert.Same(t, batch.BondAngleEdges, masked.BondAngleEdges)
	assert.Same(t, batch.AngleDihedralEdges, masked.AngleDihedralEdges)
	assert.Same(t, batch.AtomBatch, masked.AtomBatch)

	// Levels with no masked rows share the original tensor.
	assert.Same(t, batch.AtomFeatures, masked.AtomFeatures)
	assert.Same(t, batch.BondAngles, masked.BondAngles)
	assert.Same(t, batch.DihedralAngles, masked.DihedralAngles)

	// Masked levels are fresh copies.
	assert.NotSame(t, batch.BondFeatures, masked.BondFeatures)
	assert.NotSame(t, batch.BondLengths, masked.BondLengths)
}

func TestMaskAttr_MaskedBatchStillEncodes(t *testing.T) {
	backend := cpu.New()
	cfg := testConfig()
	encoder := NewEncoder[*cpu.Backend](cfg, backend)
	batch := chainBatch(t, backend)

	masked := MaskAttr(batch, MaskIndices{Atoms: []int{0}, Bonds: []int{2}}, cfg)

	out, err := encoder.Encode(masked)
	require.NoError(t, err)
	assert.NotNil(t, out.GraphRepr)
}
