package inference

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geomol-ml/geomol/backend/cpu"
	"github.com/geomol-ml/geomol/config"
	"github.com/geomol-ml/geomol/downstream"
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

func newTestModel(backend *cpu.Backend, numEndpoints int) *downstream.Model[*cpu.Backend] {
	encoder := geognn.NewEncoder[*cpu.Backend](encoderConfig(), backend)
	return downstream.NewModel[*cpu.Backend](encoder, downstream.Config{
		NumEndpoints: numEndpoints,
		EmbedDim:     16,
		NumHeads:     2,
		FFNDim:       32,
		NumLayers:    1,
		DropoutRate:  0,
	}, backend)
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

func TestDriver_DeScalesPredictions(t *testing.T) {
	backend := cpu.New()
	model := newTestModel(backend, 2)
	endpoints := []config.Endpoint{
		{Name: "logp", Mean: 2.0, Std: 3.0},
		{Name: "solubility", Mean: -1.0, Std: 0.5},
	}
	driver := NewDriver(model, endpoints, zap.NewNop())

	batch := chainBatch(t, backend)
	raw, err := model.Predict(batch)
	require.NoError(t, err)

	rows, err := driver.Predict(batch, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "logp", rows[0].Endpoint)
	assert.InDelta(t, float64(raw.Data()[0])*3.0+2.0, rows[0].Value, 1e-6)
	assert.Equal(t, "solubility", rows[1].Endpoint)
	assert.InDelta(t, float64(raw.Data()[1])*0.5-1.0, rows[1].Value, 1e-6)
}

func TestDriver_RunNumbersMoleculesAcrossBatches(t *testing.T) {
	backend := cpu.New()
	model := newTestModel(backend, 1)
	driver := NewDriver(model, []config.Endpoint{{Name: "logp", Std: 1}}, nil)

	rows, err := driver.Run([]*graph.Batch[*cpu.Backend]{
		chainBatch(t, backend),
		chainBatch(t, backend),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 0, rows[0].MoleculeIndex)
	assert.Equal(t, 1, rows[1].MoleculeIndex)
}

func TestDriver_EndpointCountMismatchPanics(t *testing.T) {
	backend := cpu.New()
	model := newTestModel(backend, 2)

	assert.Panics(t, func() {
		NewDriver(model, []config.Endpoint{{Name: "logp", Std: 1}}, nil)
	})
}

func TestRow_CSVRecord(t *testing.T) {
	row := Row{MoleculeIndex: 7, Endpoint: "logp", Value: 1.25}
	assert.Equal(t, []string{"molecule", "endpoint", "value"}, CSVHeader())
	assert.Equal(t, []string{"7", "logp", "1.25"}, row.CSVRecord())
}

func TestSnapshot_IndependentSections(t *testing.T) {
	backend := cpu.New()
	model := newTestModel(backend, 1)
	path := filepath.Join(t.TempDir(), "model.gmol")

	require.NoError(t, SaveSnapshot(path,
		model.Encoder().StateDict(),
		model.StateDict(),
		map[string]string{"endpoints": "logp"},
	))

	// A fresh encoder and head restored from the two sections must
	// reproduce the original predictions.
	restored := newTestModel(backend, 1)

	encoderState, err := LoadEncoderState(path)
	require.NoError(t, err)
	require.NoError(t, restored.Encoder().LoadStateDict(encoderState))

	modelState, err := LoadModelState(path)
	require.NoError(t, err)
	require.NoError(t, restored.LoadStateDict(modelState))

	batch := chainBatch(t, backend)
	want, err := model.Predict(batch)
	require.NoError(t, err)
	got, err := restored.Predict(batch)
	require.NoError(t, err)

	assert.Equal(t, want.Data(), got.Data())
}
