package pretrain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geomol-ml/geomol/backend/cpu"
	"github.com/geomol-ml/geomol/geognn"
	"github.com/geomol-ml/geomol/graph"
	"github.com/geomol-ml/geomol/tensor"
)

func encoderConfig() geognn.Config {
	return geognn.Config{
		AtomFeatureDims: []int{5, 4},
		BondFeatureDims: []int{4},
		LatentSize:      8,
		NumLayers:       1,
		DropoutRate:     0,
	}
}

func i32(t *testing.T, b *cpu.Backend, shape tensor.Shape, data []int32) *tensor.Tensor[int32, *cpu.Backend] {
	t.Helper()
	out, err := tensor.FromSlice(data, shape, b)
	require.NoError(t, err)
	return out
}

func f32(t *testing.T, b *cpu.Backend, shape tensor.Shape, data []float32) *tensor.Tensor[float32, *cpu.Backend] {
	t.Helper()
	out, err := tensor.FromSlice(data, shape, b)
	require.NoError(t, err)
	return out
}

// chainBatch builds the 4-atom chain 0-1-2-3: bonds (0,1) (1,2) (2,3),
// angles (bond0,bond1) (bond1,bond2), one dihedral over both angles.
func chainBatch(t *testing.T, b *cpu.Backend) *graph.Batch[*cpu.Backend] {
	t.Helper()
	return &graph.Batch[*cpu.Backend]{
		AtomBondEdges:      i32(t, b, tensor.Shape{2, 3}, []int32{0, 1, 2, 1, 2, 3}),
		BondAngleEdges:     i32(t, b, tensor.Shape{2, 2}, []int32{0, 1, 1, 2}),
		AngleDihedralEdges: i32(t, b, tensor.Shape{2, 1}, []int32{0, 1}),
		AtomFeatures:       i32(t, b, tensor.Shape{4, 2}, []int32{0, 1, 1, 0, 2, 1, 3, 0}),
		BondFeatures:       i32(t, b, tensor.Shape{3, 1}, []int32{0, 1, 2}),
		BondLengths:        f32(t, b, tensor.Shape{3}, []float32{1.2, 1.4, 1.1}),
		BondAngles:         f32(t, b, tensor.Shape{2}, []float32{1.9, 2.1}),
		DihedralAngles:     f32(t, b, tensor.Shape{1}, []float32{0.5}),
		NumGraphs:          1,
		NumBonds:           i32(t, b, tensor.Shape{1}, []int32{3}),
		NumAngles:          i32(t, b, tensor.Shape{1}, []int32{2}),
		AtomBatch:          i32(t, b, tensor.Shape{4}, []int32{0, 0, 0, 0}),
	}
}

func TestResolveDihedralAtoms_ChainOrder(t *testing.T) {
	backend := cpu.New()
	batch := chainBatch(t, backend)

	i, j, k, l := resolveDihedralAtoms(batch, 0)
	assert.Equal(t, [4]int32{0, 1, 2, 3}, [4]int32{i, j, k, l},
		"dihedral must resolve along the chemical path, not a permutation")
}

func TestResolveAngleAtoms_ChainOrder(t *testing.T) {
	backend := cpu.New()
	batch := chainBatch(t, backend)

	i, j, k := resolveAngleAtoms(batch, 0)
	assert.Equal(t, [3]int32{0, 1, 2}, [3]int32{i, j, k})

	i, j, k = resolveAngleAtoms(batch, 1)
	assert.Equal(t, [3]int32{1, 2, 3}, [3]int32{i, j, k})
}

func TestComputeLoss_BlrOnlyBreakdown(t *testing.T) {
	backend := cpu.New()
	encoder := geognn.NewEncoder[*cpu.Backend](encoderConfig(), backend)
	model := NewModel(encoder, Config{Tasks: []Task{Blr}}, backend)

	total, breakdown, err := model.ComputeLoss(chainBatch(t, backend), geognn.MaskIndices{Bonds: []int{1}}, nil)
	require.NoError(t, err)

	require.Len(t, breakdown, 2)
	assert.Contains(t, breakdown, "bond_length_loss")
	assert.Contains(t, breakdown, "loss")

	loss := total.Item()
	assert.False(t, math.IsNaN(float64(loss)))
	assert.False(t, math.IsInf(float64(loss), 0))
	assert.GreaterOrEqual(t, loss, float32(0))
	assert.Equal(t, breakdown["loss"], loss)
	assert.Equal(t, breakdown["bond_length_loss"], loss)
}

func TestComputeLoss_UnweightedSum(t *testing.T) {
	backend := cpu.New()
	encoder := geognn.NewEncoder[*cpu.Backend](encoderConfig(), backend)
	model := NewModel(encoder, Config{Tasks: []Task{Blr, Bar, Dar}}, backend)

	mask := geognn.MaskIndices{Bonds: []int{0, 2}, Angles: []int{1}, Dihedrals: []int{0}}
	total, breakdown, err := model.ComputeLoss(chainBatch(t, backend), mask, nil)
	require.NoError(t, err)

	require.Len(t, breakdown, 4)
	sum := breakdown["bond_length_loss"] + breakdown["bond_angle_loss"] + breakdown["dihedral_angle_loss"]
	assert.InDelta(t, sum, total.Item(), 1e-5)
	assert.InDelta(t, sum, breakdown["loss"], 1e-5)
}

func TestComputeLoss_EmptyMaskLevelContributesZero(t *testing.T) {
	backend := cpu.New()
	encoder := geognn.NewEncoder[*cpu.Backend](encoderConfig(), backend)
	model := NewModel(encoder, Config{Tasks: []Task{Blr, Dar}}, backend)

	total, breakdown, err := model.ComputeLoss(chainBatch(t, backend), geognn.MaskIndices{Bonds: []int{1}}, nil)
	require.NoError(t, err)

	assert.Equal(t, float32(0), breakdown["dihedral_angle_loss"])
	assert.Equal(t, breakdown["bond_length_loss"], total.Item())
}

func TestComputeLoss_MissingTargets(t *testing.T) {
	backend := cpu.New()
	encoder := geognn.NewEncoder[*cpu.Backend](encoderConfig(), backend)

	tests := []struct {
		task   Task
		target string
	}{
		{Cm5, "cm5_charges"},
		{Wiberg, "wiberg_bond_orders"},
	}
	for _, tc := range tests {
		t.Run(tc.task.String(), func(t *testing.T) {
			cfg := Config{Tasks: []Task{tc.task}}
			model := NewModel(encoder, cfg, backend)

			_, _, err := model.ComputeLoss(chainBatch(t, backend), geognn.MaskIndices{}, nil)
			var mte *graph.MissingTargetError
			require.ErrorAs(t, err, &mte)
			assert.Equal(t, tc.target, mte.Target)
		})
	}
}

func TestComputeLoss_ChargeAndDistanceTasks(t *testing.T) {
	backend := cpu.New()
	encoder := geognn.NewEncoder[*cpu.Backend](encoderConfig(), backend)
	model := NewModel(encoder, Config{Tasks: []Task{Adc, Cm5, Wiberg}, AdcBins: 10}, backend)

	batch := chainBatch(t, backend)
	targets := &Targets[*cpu.Backend]{
		AtomDistanceClasses: i32(t, backend, tensor.Shape{3}, []int32{2, 5, 9}),
		Cm5Charges:          f32(t, backend, tensor.Shape{4}, []float32{-0.1, 0.2, -0.05, 0.3}),
		WibergBondOrders:    f32(t, backend, tensor.Shape{3}, []float32{1.0, 1.5, 1.1}),
	}

	mask := geognn.MaskIndices{Atoms: []int{1, 2}, Bonds: []int{0, 1}}
	total, breakdown, err := model.ComputeLoss(batch, mask, targets)
	require.NoError(t, err)

	require.Len(t, breakdown, 4)
	assert.Contains(t, breakdown, "atom_distance_loss")
	assert.Contains(t, breakdown, "cm5_charge_loss")
	assert.Contains(t, breakdown, "wiberg_order_loss")
	assert.Greater(t, breakdown["atom_distance_loss"], float32(0))
	assert.GreaterOrEqual(t, total.Item(), breakdown["atom_distance_loss"])
}

func TestNewModel_HeadSizing(t *testing.T) {
	backend := cpu.New()

	tests := []struct {
		name string
		cfg  Config
		// One Linear per transition between consecutive widths, two
		// parameters (weight + bias) each.
		wantHeadParams int
	}{
		{"defaults to two hidden layers", Config{Tasks: []Task{Blr}}, 6},
		{"custom depth", Config{Tasks: []Task{Blr}, HeadHiddenSize: 16, HeadLayers: 3}, 8},
		{"single hidden layer", Config{Tasks: []Task{Blr}, HeadLayers: 1}, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoder := geognn.NewEncoder[*cpu.Backend](encoderConfig(), backend)
			model := NewModel(encoder, tc.cfg, backend)

			headParams := len(model.Parameters()) - len(encoder.Parameters())
			assert.Equal(t, tc.wantHeadParams, headParams)

			total, _, err := model.ComputeLoss(chainBatch(t, backend), geognn.MaskIndices{Bonds: []int{1}}, nil)
			require.NoError(t, err)
			assert.False(t, math.IsNaN(float64(total.Item())))
		})
	}
}

func TestConfig_RejectsNegativeHeadSizing(t *testing.T) {
	backend := cpu.New()
	encoder := geognn.NewEncoder[*cpu.Backend](encoderConfig(), backend)

	assert.Panics(t, func() {
		NewModel(encoder, Config{Tasks: []Task{Blr}, HeadHiddenSize: -1}, backend)
	})
	assert.Panics(t, func() {
		NewModel(encoder, Config{Tasks: []Task{Blr}, HeadLayers: -2}, backend)
	})
}

func TestComputeLoss_DoesNotMutateBatch(t *testing.T) {
	backend := cpu.New()
	encoder := geognn.NewEncoder[*cpu.Backend](encoderConfig(), backend)
	model := NewModel(encoder, Config{Tasks: []Task{Blr}}, backend)

	batch := chainBatch(t, backend)
	lengthsBefore := append([]float32(nil), batch.BondLengths.Data()...)
	bondsBefore := append([]int32(nil), batch.BondFeatures.Data()...)

	_, _, err := model.ComputeLoss(batch, geognn.MaskIndices{Bonds: []int{0, 1, 2}}, nil)
	require.NoError(t, err)

	assert.Equal(t, lengthsBefore, batch.BondLengths.Data())
	assert.Equal(t, bondsBefore, batch.BondFeatures.Data())
}

func TestModel_StateDictRoundTrip(t *testing.T) {
	backend := cpu.New()
	src := NewModel(geognn.NewEncoder[*cpu.Backend](encoderConfig(), backend), Config{Tasks: []Task{Blr, Bar}}, backend)
	dst := NewModel(geognn.NewEncoder[*cpu.Backend](encoderConfig(), backend), Config{Tasks: []Task{Blr, Bar}}, backend)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	require.NoError(t, dst.Encoder().LoadStateDict(src.Encoder().StateDict()))

	batch := chainBatch(t, backend)
	mask := geognn.MaskIndices{Bonds: []int{1}, Angles: []int{0}}
	_, bdSrc, err := src.ComputeLoss(batch, mask, nil)
	require.NoError(t, err)
	_, bdDst, err := dst.ComputeLoss(batch, mask, nil)
	require.NoError(t, err)

	assert.Equal(t, bdSrc, bdDst)
}
