package geognn

import (
	"fmt"

	"github.com/geomol-ml/geomol/graph"
	"github.com/geomol-ml/geomol/internal/nn"
	"github.com/geomol-ml/geomol/tensor"
)

// PlanarEncoder is the dihedral-free encoder variant: a two-level
// hierarchy of atom-bond and bond-angle passes. It owns no dihedral
// RBF tables and no angle-dihedral blocks, and its outputs carry nil
// angle and dihedral representations.
//
// Angle features are never message-passed here, so each layer embeds
// the raw bond angles at its own RBF table; there is no initial angle
// embedding to propagate.
type PlanarEncoder[B tensor.Backend] struct {
	cfg     Config
	backend B

	initAtomEmbedding *AtomBondEmbedding[B]
	initBondEmbedding *AtomBondEmbedding[B]
	initBondRBF       *FloatRBF[B]

	atomBondBlocks  []*Block[B]
	bondEmbeddings  []*AtomBondEmbedding[B]
	bondRBFs        []*FloatRBF[B]
	bondAngleBlocks []*Block[B]
	bondAngleRBFs   []*FloatRBF[B]
}

// NewPlanarEncoder creates a dihedral-free hierarchical encoder.
func NewPlanarEncoder[B tensor.Backend](cfg Config, backend B) *PlanarEncoder[B] {
	cfg.validate()

	e := &PlanarEncoder[B]{
		cfg:               cfg,
		backend:           backend,
		initAtomEmbedding: NewAtomBondEmbedding(cfg.AtomFeatureDims, cfg.LatentSize, backend),
		initBondEmbedding: NewAtomBondEmbedding(cfg.BondFeatureDims, cfg.LatentSize, backend),
		initBondRBF:       NewBondFloatRBF(cfg.LatentSize, backend),
	}

	for l := 0; l < cfg.NumLayers; l++ {
		lastAct := l != cfg.NumLayers-1
		e.atomBondBlocks = append(e.atomBondBlocks, NewBlock(cfg.LatentSize, cfg.DropoutRate, lastAct, backend))
		e.bondEmbeddings = append(e.bondEmbeddings, NewAtomBondEmbedding(cfg.BondFeatureDims, cfg.LatentSize, backend))
		e.bondRBFs = append(e.bondRBFs, NewBondFloatRBF(cfg.LatentSize, backend))
		e.bondAngleBlocks = append(e.bondAngleBlocks, NewBlock(cfg.LatentSize, cfg.DropoutRate, lastAct, backend))
		e.bondAngleRBFs = append(e.bondAngleRBFs, NewBondAngleFloatRBF(cfg.LatentSize, backend))
	}

	return e
}

// Config returns the encoder hyperparameters.
func (e *PlanarEncoder[B]) Config() Config {
	return e.cfg
}

// SetTraining toggles training mode for all dropout layers.
func (e *PlanarEncoder[B]) SetTraining(training bool) {
	for l := 0; l < e.cfg.NumLayers; l++ {
		e.atomBondBlocks[l].SetTraining(training)
		e.bondAngleBlocks[l].SetTraining(training)
	}
}

// Encode runs the two-level forward pass on a validated batch. The
// batch's dihedral level, if present, is ignored.
func (e *PlanarEncoder[B]) Encode(batch *graph.Batch[B]) (*Output[B], error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if err := batch.ValidateFeatures(e.cfg.AtomFeatureDims, e.cfg.BondFeatureDims); err != nil {
		return nil, err
	}

	atomBatch := batch.AtomBatch
	bondBatch := batch.BondBatch()

	nodeHidden := e.initAtomEmbedding.Forward(batch.AtomFeatures)
	edgeHidden := e.initBondEmbedding.Forward(batch.BondFeatures).Add(e.initBondRBF.Forward(batch.BondLengths))

	for l := 0; l < e.cfg.NumLayers; l++ {
		nodeHidden = e.atomBondBlocks[l].Forward(nodeHidden, edgeHidden, batch.AtomBondEdges, atomBatch, batch.NumGraphs)

		// Bond and angle features are re-embedded at this layer's own
		// tables, not carried over from the previous block input.
		curEdgeHidden := e.bondEmbeddings[l].Forward(batch.BondFeatures).Add(e.bondRBFs[l].Forward(batch.BondLengths))
		curAngleHidden := e.bondAngleRBFs[l].Forward(batch.BondAngles)
		edgeHidden = e.bondAngleBlocks[l].Forward(curEdgeHidden, curAngleHidden, batch.BondAngleEdges, bondBatch, batch.NumGraphs)
	}

	return &Output[B]{
		NodeRepr:  nodeHidden,
		EdgeRepr:  edgeHidden,
		GraphRepr: nodeHidden.SegmentMean(atomBatch, batch.NumGraphs),
	}, nil
}

// Parameters returns all learnable parameters.
func (e *PlanarEncoder[B]) Parameters() []*nn.Parameter[B] {
	params := e.initAtomEmbedding.Parameters()
	params = append(params, e.initBondEmbedding.Parameters()...)
	params = append(params, e.initBondRBF.Parameters()...)
	for l := 0; l < e.cfg.NumLayers; l++ {
		params = append(params, e.atomBondBlocks[l].Parameters()...)
		params = append(params, e.bondEmbeddings[l].Parameters()...)
		params = append(params, e.bondRBFs[l].Parameters()...)
		params = append(params, e.bondAngleBlocks[l].Parameters()...)
		params = append(params, e.bondAngleRBFs[l].Parameters()...)
	}
	return params
}

// StateDict returns a map of parameter names to raw tensors.
func (e *PlanarEncoder[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	nn.MergeStateDict(stateDict, "init_atom_embedding", e.initAtomEmbedding.StateDict())
	nn.MergeStateDict(stateDict, "init_bond_embedding", e.initBondEmbedding.StateDict())
	nn.MergeStateDict(stateDict, "init_bond_rbf", e.initBondRBF.StateDict())
	for l := 0; l < e.cfg.NumLayers; l++ {
		nn.MergeStateDict(stateDict, fmt.Sprintf("atom_bond_blocks.%d", l), e.atomBondBlocks[l].StateDict())
		nn.MergeStateDict(stateDict, fmt.Sprintf("bond_embeddings.%d", l), e.bondEmbeddings[l].StateDict())
		nn.MergeStateDict(stateDict, fmt.Sprintf("bond_rbfs.%d", l), e.bondRBFs[l].StateDict())
		nn.MergeStateDict(stateDict, fmt.Sprintf("bond_angle_blocks.%d", l), e.bondAngleBlocks[l].StateDict())
		nn.MergeStateDict(stateDict, fmt.Sprintf("bond_angle_rbfs.%d", l), e.bondAngleRBFs[l].StateDict())
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary.
func (e *PlanarEncoder[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	modules := []namedModule{
		{"init_atom_embedding", e.initAtomEmbedding},
		{"init_bond_embedding", e.initBondEmbedding},
		{"init_bond_rbf", e.initBondRBF},
	}
	for l := 0; l < e.cfg.NumLayers; l++ {
		modules = append(modules,
			namedModule{fmt.Sprintf("atom_bond_blocks.%d", l), e.atomBondBlocks[l]},
			namedModule{fmt.Sprintf("bond_embeddings.%d", l), e.bondEmbeddings[l]},
			namedModule{fmt.Sprintf("bond_rbfs.%d", l), e.bondRBFs[l]},
			namedModule{fmt.Sprintf("bond_angle_blocks.%d", l), e.bondAngleBlocks[l]},
			namedModule{fmt.Sprintf("bond_angle_rbfs.%d", l), e.bondAngleRBFs[l]},
		)
	}
	return loadNamedModules(stateDict, modules)
}
