// Package downstream implements the endpoint-token transformer head
// that predicts scaled property values from graph representations.
//
// Each molecule becomes a sequence of endpoint tokens: the projected
// graph representation plus a learned per-endpoint embedding. The
// sequence runs through pre-norm transformer encoder layers and a
// final MLP emits one scalar per (molecule, endpoint).
package downstream

import (
	"fmt"

	"github.com/geomol-ml/geomol/geognn"
	"github.com/geomol-ml/geomol/graph"
	"github.com/geomol-ml/geomol/internal/nn"
	"github.com/geomol-ml/geomol/tensor"
)

// CompoundEncoder is the encoder surface the head consumes. Both the
// dihedral-enabled and the planar encoder satisfy it.
type CompoundEncoder[B tensor.Backend] interface {
	Encode(batch *graph.Batch[B]) (*geognn.Output[B], error)
	Config() geognn.Config
	SetTraining(training bool)
	Parameters() []*nn.Parameter[B]
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Config holds the head hyperparameters.
type Config struct {
	NumEndpoints int
	EmbedDim     int
	NumHeads     int
	FFNDim       int
	NumLayers    int
	DropoutRate  float32
	// FrozenEncoder excludes the encoder's parameters from
	// Parameters(), so fine-tuning only updates the head.
	FrozenEncoder bool
}

func (c Config) validate() {
	if c.NumEndpoints <= 0 {
		panic(fmt.Sprintf("downstream.Config: invalid endpoint count %d", c.NumEndpoints))
	}
	if c.EmbedDim <= 0 || c.NumHeads <= 0 || c.FFNDim <= 0 || c.NumLayers <= 0 {
		panic(fmt.Sprintf("downstream.Config: invalid dimensions embed=%d heads=%d ffn=%d layers=%d",
			c.EmbedDim, c.NumHeads, c.FFNDim, c.NumLayers))
	}
}

// Model is the downstream prediction model: encoder plus endpoint
// transformer head.
type Model[B tensor.Backend] struct {
	cfg     Config
	backend B

	encoder CompoundEncoder[B]

	endpointEmbedding *nn.Embedding[B]
	proj              *nn.Linear[B]
	layers            []*nn.TransformerEncoderLayer[B]
	head              *nn.MLP[B]

	endpointIndices *tensor.Tensor[int32, B]
}

// NewModel creates a downstream model over the given encoder.
func NewModel[B tensor.Backend](encoder CompoundEncoder[B], cfg Config, backend B) *Model[B] {
	cfg.validate()

	layers := make([]*nn.TransformerEncoderLayer[B], 0, cfg.NumLayers)
	for l := 0; l < cfg.NumLayers; l++ {
		layers = append(layers, nn.NewTransformerEncoderLayer(cfg.EmbedDim, cfg.NumHeads, cfg.FFNDim, cfg.DropoutRate, backend))
	}

	indices := make([]int32, cfg.NumEndpoints)
	for e := range indices {
		indices[e] = int32(e)
	}
	endpointIndices, err := tensor.FromSlice(indices, tensor.Shape{cfg.NumEndpoints}, backend)
	if err != nil {
		panic(fmt.Sprintf("downstream: %v", err))
	}

	return &Model[B]{
		cfg:               cfg,
		backend:           backend,
		encoder:           encoder,
		endpointEmbedding: nn.NewEmbedding(cfg.NumEndpoints, cfg.EmbedDim, backend),
		proj:              nn.NewLinear(encoder.Config().LatentSize, cfg.EmbedDim, backend),
		layers:            layers,
		head:              nn.NewMLP([]int{cfg.EmbedDim, cfg.EmbedDim, 1}, cfg.DropoutRate, backend),
		endpointIndices:   endpointIndices,
	}
}

// Config returns the head hyperparameters.
func (m *Model[B]) Config() Config {
	return m.cfg
}

// Encoder returns the wrapped encoder.
func (m *Model[B]) Encoder() CompoundEncoder[B] {
	return m.encoder
}

// SetTraining toggles training mode on the encoder and the head.
func (m *Model[B]) SetTraining(training bool) {
	m.encoder.SetTraining(training)
	for _, layer := range m.layers {
		layer.SetTraining(training)
	}
	m.head.SetTraining(training)
}

// Predict encodes the batch and runs the endpoint head, returning one
// scaled value per (molecule, endpoint) as [num_graphs, num_endpoints].
func (m *Model[B]) Predict(batch *graph.Batch[B]) (*tensor.Tensor[float32, B], error) {
	out, err := m.encoder.Encode(batch)
	if err != nil {
		return nil, err
	}

	projected := m.proj.Forward(out.GraphRepr)
	endpointTokens := m.endpointEmbedding.Forward(m.endpointIndices)

	results := make([]float32, 0, batch.NumGraphs*m.cfg.NumEndpoints)
	for g := 0; g < batch.NumGraphs; g++ {
		idx, err := tensor.FromSlice([]int32{int32(g)}, tensor.Shape{1}, m.backend)
		if err != nil {
			return nil, fmt.Errorf("downstream: %w", err)
		}

		// One token per endpoint: shared molecule projection plus the
		// endpoint's own embedding.
		x := endpointTokens.Add(projected.IndexSelect(idx))
		for _, layer := range m.layers {
			x = layer.Forward(x)
		}
		results = append(results, m.head.Forward(x).Data()...)
	}

	pred, err := tensor.FromSlice(results, tensor.Shape{batch.NumGraphs, m.cfg.NumEndpoints}, m.backend)
	if err != nil {
		return nil, fmt.Errorf("downstream: %w", err)
	}
	return pred, nil
}

// Parameters returns the head parameters, prepended with the encoder
// parameters unless the encoder is frozen.
func (m *Model[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	if !m.cfg.FrozenEncoder {
		params = m.encoder.Parameters()
	}
	params = append(params, m.endpointEmbedding.Parameters()...)
	params = append(params, m.proj.Parameters()...)
	for _, layer := range m.layers {
		params = append(params, layer.Parameters()...)
	}
	params = append(params, m.head.Parameters()...)
	return params
}

// StateDict returns the head parameters. The encoder snapshots
// separately so the two load independently.
func (m *Model[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	nn.MergeStateDict(stateDict, "endpoint_embedding", m.endpointEmbedding.StateDict())
	nn.MergeStateDict(stateDict, "proj", m.proj.StateDict())
	for l, layer := range m.layers {
		nn.MergeStateDict(stateDict, fmt.Sprintf("layers.%d", l), layer.StateDict())
	}
	nn.MergeStateDict(stateDict, "head", m.head.StateDict())
	return stateDict
}

// LoadStateDict loads the head parameters.
func (m *Model[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := m.endpointEmbedding.LoadStateDict(nn.SubStateDict(stateDict, "endpoint_embedding")); err != nil {
		return fmt.Errorf("endpoint_embedding: %w", err)
	}
	if err := m.proj.LoadStateDict(nn.SubStateDict(stateDict, "proj")); err != nil {
		return fmt.Errorf("proj: %w", err)
	}
	for l, layer := range m.layers {
		prefix := fmt.Sprintf("layers.%d", l)
		if err := layer.LoadStateDict(nn.SubStateDict(stateDict, prefix)); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	if err := m.head.LoadStateDict(nn.SubStateDict(stateDict, "head")); err != nil {
		return fmt.Errorf("head: %w", err)
	}
	return nil
}
