package geognn

import (
	"fmt"

	"github.com/geomol-ml/geomol/internal/nn"
	"github.com/geomol-ml/geomol/tensor"
)

// Block is the reusable message-passing unit shared by all three
// hierarchy levels. It is graph-topology-agnostic: it only depends on
// the (node, edge, edge_index, batch) contract.
//
// Forward computes, per directed edge (src -> dst):
//
//	msg = ReLU(h_node[src] + h_edge)
//
// aggregates messages per destination by sum (permutation-invariant up
// to float summation order), adds the node's own features, and applies
// an update MLP (latent -> 2*latent -> latent), LayerNorm, a per-graph
// 1/sqrt(n) size normalization, an optional ReLU, dropout, and a
// residual connection.
//
// The final ReLU is suppressed when lastAct is false, leaving the last
// layer's projection linear for the regression heads.
type Block[B tensor.Backend] struct {
	latentSize int
	lastAct    bool

	mlp     *nn.MLP[B]
	norm    *nn.LayerNorm[B]
	dropout *nn.Dropout[B]
}

// NewBlock creates a new message-passing block.
func NewBlock[B tensor.Backend](latentSize int, dropoutRate float32, lastAct bool, backend B) *Block[B] {
	return &Block[B]{
		latentSize: latentSize,
		lastAct:    lastAct,
		mlp:        nn.NewMLP([]int{latentSize, 2 * latentSize, latentSize}, dropoutRate, backend),
		norm:       nn.NewLayerNorm(latentSize, 1e-5, backend),
		dropout:    nn.NewDropout[B](dropoutRate),
	}
}

// SetTraining toggles training mode for the dropout layers.
func (b *Block[B]) SetTraining(training bool) {
	b.mlp.SetTraining(training)
	b.dropout.SetTraining(training)
}

// Forward produces updated node hidden states.
//
// Shapes:
//   - nodeHidden: [N, latent]
//   - edgeHidden: [E, latent]
//   - edges: [2, E] int32, row 0 source, row 1 destination
//   - nodeBatch: [N] int32 graph assignment, ids in [0, numGraphs)
//
// Returns [N, latent].
func (b *Block[B]) Forward(
	nodeHidden, edgeHidden *tensor.Tensor[float32, B],
	edges *tensor.Tensor[int32, B],
	nodeBatch *tensor.Tensor[int32, B],
	numGraphs int,
) *tensor.Tensor[float32, B] {
	numNodes := nodeHidden.Shape()[0]
	if edges.Shape()[0] != 2 {
		panic(fmt.Sprintf("Block.Forward: edges must be [2, E], got %v", edges.Shape()))
	}
	if edges.Shape()[1] != edgeHidden.Shape()[0] {
		panic(fmt.Sprintf("Block.Forward: %d edges but %d edge features", edges.Shape()[1], edgeHidden.Shape()[0]))
	}

	src := edgeEndpoints(edges, 0)
	dst := edgeEndpoints(edges, 1)

	// msg = ReLU(h_src + h_edge), summed into destinations.
	messages := nodeHidden.IndexSelect(src).Add(edgeHidden).ReLU()
	aggregated := tensor.IndexAdd(numNodes, dst, messages)

	h := b.mlp.Forward(aggregated.Add(nodeHidden))
	h = b.norm.Forward(h)
	h = h.Mul(graphSizeNorm(nodeBatch, numGraphs, numNodes, nodeHidden.Backend()))

	if b.lastAct {
		h = h.ReLU()
	}
	h = b.dropout.Forward(h)

	// Residual.
	return h.Add(nodeHidden)
}

// edgeEndpoints extracts row r (0 = source, 1 = destination) of a
// [2, E] edge index tensor as a [E] index vector.
func edgeEndpoints[B tensor.Backend](edges *tensor.Tensor[int32, B], r int) *tensor.Tensor[int32, B] {
	numEdges := edges.Shape()[1]
	data := edges.Data()

	row := make([]int32, numEdges)
	copy(row, data[r*numEdges:(r+1)*numEdges])

	out, err := tensor.FromSlice(row, tensor.Shape{numEdges}, edges.Backend())
	if err != nil {
		panic(fmt.Sprintf("edgeEndpoints: %v", err))
	}
	return out
}

// graphSizeNorm builds the per-node [N, 1] scaling tensor 1/sqrt(n_g),
// where n_g is the node count of the node's graph.
func graphSizeNorm[B tensor.Backend](nodeBatch *tensor.Tensor[int32, B], numGraphs, numNodes int, backend B) *tensor.Tensor[float32, B] {
	ones := tensor.Ones[float32](tensor.Shape{numNodes, 1}, backend)
	counts := tensor.IndexAdd(numGraphs, nodeBatch, ones) // [G, 1]
	return counts.Rsqrt().IndexSelect(nodeBatch)          // [N, 1]
}

// Parameters returns all learnable parameters of the block.
func (b *Block[B]) Parameters() []*nn.Parameter[B] {
	params := b.mlp.Parameters()
	params = append(params, b.norm.Parameters()...)
	return params
}

// StateDict returns a map of parameter names to raw tensors.
func (b *Block[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	nn.MergeStateDict(stateDict, "mlp", b.mlp.StateDict())
	nn.MergeStateDict(stateDict, "norm", b.norm.StateDict())
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary.
func (b *Block[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := b.mlp.LoadStateDict(nn.SubStateDict(stateDict, "mlp")); err != nil {
		return fmt.Errorf("mlp: %w", err)
	}
	if err := b.norm.LoadStateDict(nn.SubStateDict(stateDict, "norm")); err != nil {
		return fmt.Errorf("norm: %w", err)
	}
	return nil
}
