package geognn

import (
	"fmt"

	"github.com/geomol-ml/geomol/graph"
	"github.com/geomol-ml/geomol/internal/nn"
	"github.com/geomol-ml/geomol/tensor"
)

// Config holds the encoder hyperparameters.
type Config struct {
	AtomFeatureDims []int   // vocabulary size per atom feature field
	BondFeatureDims []int   // vocabulary size per bond feature field
	LatentSize      int     // hidden dimension of every representation
	NumLayers       int     // number of message-passing layers
	DropoutRate     float32 // dropout inside blocks
}

func (c Config) validate() {
	if len(c.AtomFeatureDims) == 0 || len(c.BondFeatureDims) == 0 {
		panic("geognn.Config: atom and bond feature dims must be non-empty")
	}
	if c.LatentSize <= 0 || c.NumLayers <= 0 {
		panic(fmt.Sprintf("geognn.Config: invalid latent size %d or layer count %d", c.LatentSize, c.NumLayers))
	}
}

// Output bundles the encoder's representations for one batch.
//
// AngleRepr and DihedralRepr are nil for the planar (dihedral-free)
// encoder variant.
type Output[B tensor.Backend] struct {
	NodeRepr     *tensor.Tensor[float32, B] // [num_atoms, latent]
	EdgeRepr     *tensor.Tensor[float32, B] // [total_bonds, latent]
	AngleRepr    *tensor.Tensor[float32, B] // [total_angles, latent] or nil
	DihedralRepr *tensor.Tensor[float32, B] // [total_dihedrals, latent] or nil
	GraphRepr    *tensor.Tensor[float32, B] // [num_graphs, latent]
}

// Encoder is the three-level hierarchical encoder: per layer it runs an
// atom-bond pass, a bond-angle pass, and an angle-dihedral pass,
// re-embedding the raw geometric inputs at each layer's own tables.
//
// The dihedral-free variant is a separate type, PlanarEncoder; the two
// are distinct construction-time configurations, not a runtime flag.
type Encoder[B tensor.Backend] struct {
	cfg     Config
	backend B

	initAtomEmbedding *AtomBondEmbedding[B]
	initBondEmbedding *AtomBondEmbedding[B]
	initBondRBF       *FloatRBF[B]
	initBondAngleRBF  *FloatRBF[B]

	atomBondBlocks      []*Block[B]
	bondEmbeddings      []*AtomBondEmbedding[B]
	bondRBFs            []*FloatRBF[B]
	bondAngleBlocks     []*Block[B]
	bondAngleRBFs       []*FloatRBF[B]
	dihedralRBFs        []*FloatRBF[B]
	angleDihedralBlocks []*Block[B]
}

// NewEncoder creates a dihedral-enabled hierarchical encoder.
func NewEncoder[B tensor.Backend](cfg Config, backend B) *Encoder[B] {
	cfg.validate()

	e := &Encoder[B]{
		cfg:               cfg,
		backend:           backend,
		initAtomEmbedding: NewAtomBondEmbedding(cfg.AtomFeatureDims, cfg.LatentSize, backend),
		initBondEmbedding: NewAtomBondEmbedding(cfg.BondFeatureDims, cfg.LatentSize, backend),
		initBondRBF:       NewBondFloatRBF(cfg.LatentSize, backend),
		initBondAngleRBF:  NewBondAngleFloatRBF(cfg.LatentSize, backend),
	}

	for l := 0; l < cfg.NumLayers; l++ {
		lastAct := l != cfg.NumLayers-1
		e.atomBondBlocks = append(e.atomBondBlocks, NewBlock(cfg.LatentSize, cfg.DropoutRate, lastAct, backend))
		e.bondEmbeddings = append(e.bondEmbeddings, NewAtomBondEmbedding(cfg.BondFeatureDims, cfg.LatentSize, backend))
		e.bondRBFs = append(e.bondRBFs, NewBondFloatRBF(cfg.LatentSize, backend))
		e.bondAngleBlocks = append(e.bondAngleBlocks, NewBlock(cfg.LatentSize, cfg.DropoutRate, lastAct, backend))
		e.bondAngleRBFs = append(e.bondAngleRBFs, NewBondAngleFloatRBF(cfg.LatentSize, backend))
		e.dihedralRBFs = append(e.dihedralRBFs, NewDihedralAngleFloatRBF(cfg.LatentSize, backend))
		e.angleDihedralBlocks = append(e.angleDihedralBlocks, NewBlock(cfg.LatentSize, cfg.DropoutRate, lastAct, backend))
	}

	return e
}

// Config returns the encoder hyperparameters.
func (e *Encoder[B]) Config() Config {
	return e.cfg
}

// SetTraining toggles training mode for all dropout layers.
func (e *Encoder[B]) SetTraining(training bool) {
	for l := 0; l < e.cfg.NumLayers; l++ {
		e.atomBondBlocks[l].SetTraining(training)
		e.bondAngleBlocks[l].SetTraining(training)
		e.angleDihedralBlocks[l].SetTraining(training)
	}
}

// Encode runs the hierarchical forward pass on a validated batch.
//
// The batch must carry the angle-dihedral level; encoding planar
// batches is the PlanarEncoder's job.
func (e *Encoder[B]) Encode(batch *graph.Batch[B]) (*Output[B], error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if err := batch.ValidateFeatures(e.cfg.AtomFeatureDims, e.cfg.BondFeatureDims); err != nil {
		return nil, err
	}
	if batch.DihedralAngles == nil {
		return nil, &graph.BatchConsistencyError{What: "dihedral level required by encoder", Expected: 1, Got: 0}
	}

	atomBatch := batch.AtomBatch
	bondBatch := batch.BondBatch()
	angleBatch := batch.AngleBatch()

	nodeHidden := e.initAtomEmbedding.Forward(batch.AtomFeatures)
	edgeHidden := e.initBondEmbedding.Forward(batch.BondFeatures).Add(e.initBondRBF.Forward(batch.BondLengths))
	angleHidden := e.initBondAngleRBF.Forward(batch.BondAngles)

	var dihedralHidden *tensor.Tensor[float32, B]
	for l := 0; l < e.cfg.NumLayers; l++ {
		nodeHidden = e.atomBondBlocks[l].Forward(nodeHidden, edgeHidden, batch.AtomBondEdges, atomBatch, batch.NumGraphs)

		// Bond features are re-embedded at this layer's own tables,
		// not carried over from the previous block input.
		curEdgeHidden := e.bondEmbeddings[l].Forward(batch.BondFeatures).Add(e.bondRBFs[l].Forward(batch.BondLengths))
		edgeHidden = e.bondAngleBlocks[l].Forward(curEdgeHidden, angleHidden, batch.BondAngleEdges, bondBatch, batch.NumGraphs)

		curAngleHidden := e.bondAngleRBFs[l].Forward(batch.BondAngles)
		dihedralHidden = e.dihedralRBFs[l].Forward(batch.DihedralAngles)
		angleHidden = e.angleDihedralBlocks[l].Forward(curAngleHidden, dihedralHidden, batch.AngleDihedralEdges, angleBatch, batch.NumGraphs)
	}

	// The dihedral representation is never message-passed; it is the
	// last layer's RBF embedding.
	return &Output[B]{
		NodeRepr:     nodeHidden,
		EdgeRepr:     edgeHidden,
		AngleRepr:    angleHidden,
		DihedralRepr: dihedralHidden,
		GraphRepr:    nodeHidden.SegmentMean(atomBatch, batch.NumGraphs),
	}, nil
}

// Parameters returns all learnable parameters.
func (e *Encoder[B]) Parameters() []*nn.Parameter[B] {
	params := e.initAtomEmbedding.Parameters()
	params = append(params, e.initBondEmbedding.Parameters()...)
	params = append(params, e.initBondRBF.Parameters()...)
	params = append(params, e.initBondAngleRBF.Parameters()...)
	for l := 0; l < e.cfg.NumLayers; l++ {
		params = append(params, e.atomBondBlocks[l].Parameters()...)
		params = append(params, e.bondEmbeddings[l].Parameters()...)
		params = append(params, e.bondRBFs[l].Parameters()...)
		params = append(params, e.bondAngleBlocks[l].Parameters()...)
		params = append(params, e.bondAngleRBFs[l].Parameters()...)
		params = append(params, e.dihedralRBFs[l].Parameters()...)
		params = append(params, e.angleDihedralBlocks[l].Parameters()...)
	}
	return params
}

// StateDict returns a map of parameter names to raw tensors.
func (e *Encoder[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	nn.MergeStateDict(stateDict, "init_atom_embedding", e.initAtomEmbedding.StateDict())
	nn.MergeStateDict(stateDict, "init_bond_embedding", e.initBondEmbedding.StateDict())
	nn.MergeStateDict(stateDict, "init_bond_rbf", e.initBondRBF.StateDict())
	nn.MergeStateDict(stateDict, "init_bond_angle_rbf", e.initBondAngleRBF.StateDict())
	for l := 0; l < e.cfg.NumLayers; l++ {
		nn.MergeStateDict(stateDict, fmt.Sprintf("atom_bond_blocks.%d", l), e.atomBondBlocks[l].StateDict())
		nn.MergeStateDict(stateDict, fmt.Sprintf("bond_embeddings.%d", l), e.bondEmbeddings[l].StateDict())
		nn.MergeStateDict(stateDict, fmt.Sprintf("bond_rbfs.%d", l), e.bondRBFs[l].StateDict())
		nn.MergeStateDict(stateDict, fmt.Sprintf("bond_angle_blocks.%d", l), e.bondAngleBlocks[l].StateDict())
		nn.MergeStateDict(stateDict, fmt.Sprintf("bond_angle_rbfs.%d", l), e.bondAngleRBFs[l].StateDict())
		nn.MergeStateDict(stateDict, fmt.Sprintf("dihedral_rbfs.%d", l), e.dihedralRBFs[l].StateDict())
		nn.MergeStateDict(stateDict, fmt.Sprintf("angle_dihedral_blocks.%d", l), e.angleDihedralBlocks[l].StateDict())
	}
	return stateDict
}

// namedModule pairs a state-dict prefix with the module stored there.
type namedModule struct {
	name   string
	module nn.StateDictModule
}

func loadNamedModules(stateDict map[string]*tensor.RawTensor, modules []namedModule) error {
	for _, entry := range modules {
		if err := entry.module.LoadStateDict(nn.SubStateDict(stateDict, entry.name)); err != nil {
			return fmt.Errorf("%s: %w", entry.name, err)
		}
	}
	return nil
}

// LoadStateDict loads parameters from a state dictionary.
func (e *Encoder[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	modules := []namedModule{
		{"init_atom_embedding", e.initAtomEmbedding},
		{"init_bond_embedding", e.initBondEmbedding},
		{"init_bond_rbf", e.initBondRBF},
		{"init_bond_angle_rbf", e.initBondAngleRBF},
	}
	for l := 0; l < e.cfg.NumLayers; l++ {
		modules = append(modules,
			namedModule{fmt.Sprintf("atom_bond_blocks.%d", l), e.atomBondBlocks[l]},
			namedModule{fmt.Sprintf("bond_embeddings.%d", l), e.bondEmbeddings[l]},
			namedModule{fmt.Sprintf("bond_rbfs.%d", l), e.bondRBFs[l]},
			namedModule{fmt.Sprintf("bond_angle_blocks.%d", l), e.bondAngleBlocks[l]},
			namedModule{fmt.Sprintf("bond_angle_rbfs.%d", l), e.bondAngleRBFs[l]},
			namedModule{fmt.Sprintf("dihedral_rbfs.%d", l), e.dihedralRBFs[l]},
			namedModule{fmt.Sprintf("angle_dihedral_blocks.%d", l), e.angleDihedralBlocks[l]},
		)
	}
	return loadNamedModules(stateDict, modules)
}
