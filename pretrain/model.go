package pretrain

import (
	"fmt"

	"github.com/geomol-ml/geomol/geognn"
	"github.com/geomol-ml/geomol/graph"
	"github.com/geomol-ml/geomol/internal/nn"
	"github.com/geomol-ml/geomol/tensor"
)

// Config selects the active tasks and sizes the heads.
type Config struct {
	Tasks []Task
	// AdcBins is the number of distance bins for the Adc task; the
	// head emits AdcBins + 3 logits to cover the underflow, overflow,
	// and masked-distance slots.
	AdcBins     int
	HeadDropout float32
	// HeadHiddenSize is the width of each hidden layer in the task
	// heads. Zero means the encoder's latent size.
	HeadHiddenSize int
	// HeadLayers is the number of hidden layers per head. Zero means 2.
	HeadLayers int
}

func (c Config) validate() {
	if len(c.Tasks) == 0 {
		panic("pretrain.Config: at least one task required")
	}
	if c.HeadHiddenSize < 0 {
		panic(fmt.Sprintf("pretrain.Config: negative HeadHiddenSize %d", c.HeadHiddenSize))
	}
	if c.HeadLayers < 0 {
		panic(fmt.Sprintf("pretrain.Config: negative HeadLayers %d", c.HeadLayers))
	}
	seen := make(map[Task]bool, len(c.Tasks))
	for _, task := range c.Tasks {
		if task < 0 || task >= numTasks {
			panic(fmt.Sprintf("pretrain.Config: unknown task %d", task))
		}
		if seen[task] {
			panic(fmt.Sprintf("pretrain.Config: duplicate task %s", task))
		}
		seen[task] = true
		if task == Adc && c.AdcBins <= 0 {
			panic("pretrain.Config: Adc task requires AdcBins > 0")
		}
	}
}

// Model wraps a dihedral-enabled encoder with one MLP head per active
// task and computes the masked pretraining loss. The task set is fixed
// at construction.
//
// The planar encoder variant has no dihedral level to mask, so it is
// not accepted here.
type Model[B tensor.Backend] struct {
	cfg     Config
	backend B

	encoder *geognn.Encoder[B]
	heads   map[Task]*nn.MLP[B]

	smoothL1     *nn.SmoothL1Loss[B]
	crossEntropy *nn.CrossEntropyLoss[B]
}

// NewModel creates a pretraining model over the given encoder.
func NewModel[B tensor.Backend](encoder *geognn.Encoder[B], cfg Config, backend B) *Model[B] {
	cfg.validate()

	latent := encoder.Config().LatentSize
	hidden := cfg.HeadHiddenSize
	if hidden == 0 {
		hidden = latent
	}
	depth := cfg.HeadLayers
	if depth == 0 {
		depth = 2
	}

	heads := make(map[Task]*nn.MLP[B], len(cfg.Tasks))
	for _, task := range cfg.Tasks {
		spec := taskSpecs[task]
		outDim := 1
		if spec.classifies {
			outDim = cfg.AdcBins + 3
		}
		sizes := make([]int, 0, depth+2)
		sizes = append(sizes, spec.arity*latent)
		for i := 0; i < depth; i++ {
			sizes = append(sizes, hidden)
		}
		sizes = append(sizes, outDim)
		heads[task] = nn.NewMLP(sizes, cfg.HeadDropout, backend)
	}

	return &Model[B]{
		cfg:          cfg,
		backend:      backend,
		encoder:      encoder,
		heads:        heads,
		smoothL1:     nn.NewSmoothL1Loss[B](),
		crossEntropy: nn.NewCrossEntropyLoss(backend),
	}
}

// Encoder returns the wrapped encoder.
func (m *Model[B]) Encoder() *geognn.Encoder[B] {
	return m.encoder
}

// SetTraining toggles training mode on the encoder and all heads.
func (m *Model[B]) SetTraining(training bool) {
	m.encoder.SetTraining(training)
	for _, head := range m.heads {
		head.SetTraining(training)
	}
}

// ComputeLoss masks the batch, encodes it, and evaluates every active
// task against the unmasked originals. It returns the total loss (the
// unweighted sum over tasks) and a breakdown map holding one entry per
// active task plus the total under "loss".
//
// Tasks whose mask level has no masked rows contribute zero and still
// appear in the breakdown.
func (m *Model[B]) ComputeLoss(
	batch *graph.Batch[B],
	mask geognn.MaskIndices,
	targets *Targets[B],
) (*tensor.Tensor[float32, B], map[string]float32, error) {
	for _, task := range m.cfg.Tasks {
		if err := m.checkTarget(task, targets); err != nil {
			return nil, nil, err
		}
	}

	masked := geognn.MaskAttr(batch, mask, m.encoder.Config())
	out, err := m.encoder.Encode(masked)
	if err != nil {
		return nil, nil, err
	}

	breakdown := make(map[string]float32, len(m.cfg.Tasks)+1)
	total := zeroLoss(m.backend)
	for _, task := range m.cfg.Tasks {
		loss := m.taskLoss(task, batch, mask, targets, out.NodeRepr)
		if loss == nil {
			breakdown[task.LossKey()] = 0
			continue
		}
		breakdown[task.LossKey()] = loss.Item()
		total = total.Add(loss)
	}
	breakdown["loss"] = total.Item()

	return total, breakdown, nil
}

func (m *Model[B]) checkTarget(task Task, targets *Targets[B]) error {
	spec := taskSpecs[task]
	if spec.target == "" {
		return nil
	}
	missing := targets == nil
	if !missing {
		switch task {
		case Adc:
			missing = targets.AtomDistanceClasses == nil
		case Cm5:
			missing = targets.Cm5Charges == nil
		case Espc:
			missing = targets.EspcCharges == nil
		case Hirshfeld:
			missing = targets.HirshfeldCharges == nil
		case Npa:
			missing = targets.NpaCharges == nil
		case Wiberg:
			missing = targets.WibergBondOrders == nil
		}
	}
	if missing {
		return &graph.MissingTargetError{Task: spec.name, Target: spec.target}
	}
	return nil
}

// taskLoss evaluates one task over its masked rows, or returns nil when
// nothing is masked at that level.
func (m *Model[B]) taskLoss(
	task Task,
	batch *graph.Batch[B],
	mask geognn.MaskIndices,
	targets *Targets[B],
	nodeRepr *tensor.Tensor[float32, B],
) *tensor.Tensor[float32, B] {
	head := m.heads[task]

	switch task {
	case Blr:
		if len(mask.Bonds) == 0 {
			return nil
		}
		pred := head.Forward(m.bondPairInput(batch, mask.Bonds, nodeRepr))
		return m.smoothL1.Forward(pred, m.gatherFloat(batch.BondLengths, mask.Bonds))

	case Bar:
		if len(mask.Angles) == 0 {
			return nil
		}
		atoms := make([][]int32, 3)
		for _, a := range mask.Angles {
			i, j, k := resolveAngleAtoms(batch, a)
			atoms[0] = append(atoms[0], i)
			atoms[1] = append(atoms[1], j)
			atoms[2] = append(atoms[2], k)
		}
		pred := head.Forward(m.concatAtoms(nodeRepr, atoms))
		return m.smoothL1.Forward(pred, m.gatherFloat(batch.BondAngles, mask.Angles))

	case Dar:
		if len(mask.Dihedrals) == 0 {
			return nil
		}
		atoms := make([][]int32, 4)
		for _, d := range mask.Dihedrals {
			i, j, k, l := resolveDihedralAtoms(batch, d)
			atoms[0] = append(atoms[0], i)
			atoms[1] = append(atoms[1], j)
			atoms[2] = append(atoms[2], k)
			atoms[3] = append(atoms[3], l)
		}
		pred := head.Forward(m.concatAtoms(nodeRepr, atoms))
		return m.smoothL1.Forward(pred, m.gatherFloat(batch.DihedralAngles, mask.Dihedrals))

	case Adc:
		if len(mask.Bonds) == 0 {
			return nil
		}
		logits := head.Forward(m.bondPairInput(batch, mask.Bonds, nodeRepr))
		return m.crossEntropy.Forward(logits, m.gatherInt(targets.AtomDistanceClasses, mask.Bonds))

	case Cm5, Espc, Hirshfeld, Npa:
		if len(mask.Atoms) == 0 {
			return nil
		}
		pred := head.Forward(m.concatAtoms(nodeRepr, [][]int32{toInt32(mask.Atoms)}))
		return m.smoothL1.Forward(pred, m.gatherFloat(m.chargeTarget(task, targets), mask.Atoms))

	case Wiberg:
		if len(mask.Bonds) == 0 {
			return nil
		}
		pred := head.Forward(m.bondPairInput(batch, mask.Bonds, nodeRepr))
		return m.smoothL1.Forward(pred, m.gatherFloat(targets.WibergBondOrders, mask.Bonds))
	}
	panic(fmt.Sprintf("pretrain: unhandled task %s", task))
}

func (m *Model[B]) chargeTarget(task Task, targets *Targets[B]) *tensor.Tensor[float32, B] {
	switch task {
	case Cm5:
		return targets.Cm5Charges
	case Espc:
		return targets.EspcCharges
	case Hirshfeld:
		return targets.HirshfeldCharges
	case Npa:
		return targets.NpaCharges
	}
	panic(fmt.Sprintf("pretrain: %s is not a charge task", task))
}

// bondPairInput builds the [n, 2*latent] head input for the masked
// bonds' (i, j) atom pairs.
func (m *Model[B]) bondPairInput(batch *graph.Batch[B], bonds []int, nodeRepr *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	atoms := make([][]int32, 2)
	for _, b := range bonds {
		i, j := resolveBondAtoms(batch, b)
		atoms[0] = append(atoms[0], i)
		atoms[1] = append(atoms[1], j)
	}
	return m.concatAtoms(nodeRepr, atoms)
}

// concatAtoms gathers one atom representation per position list and
// concatenates them feature-wise into [n, arity*latent].
func (m *Model[B]) concatAtoms(nodeRepr *tensor.Tensor[float32, B], positions [][]int32) *tensor.Tensor[float32, B] {
	parts := make([]*tensor.Tensor[float32, B], 0, len(positions))
	for _, indices := range positions {
		idx, err := tensor.FromSlice(indices, tensor.Shape{len(indices)}, m.backend)
		if err != nil {
			panic(fmt.Sprintf("pretrain: %v", err))
		}
		parts = append(parts, nodeRepr.IndexSelect(idx))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return tensor.Cat(parts, 1)
}

func (m *Model[B]) gatherFloat(src *tensor.Tensor[float32, B], rows []int) *tensor.Tensor[float32, B] {
	data := src.Data()
	picked := make([]float32, len(rows))
	for n, row := range rows {
		picked[n] = data[row]
	}
	out, err := tensor.FromSlice(picked, tensor.Shape{len(rows)}, m.backend)
	if err != nil {
		panic(fmt.Sprintf("pretrain: %v", err))
	}
	return out
}

func (m *Model[B]) gatherInt(src *tensor.Tensor[int32, B], rows []int) *tensor.Tensor[int32, B] {
	data := src.Data()
	picked := make([]int32, len(rows))
	for n, row := range rows {
		picked[n] = data[row]
	}
	out, err := tensor.FromSlice(picked, tensor.Shape{len(rows)}, m.backend)
	if err != nil {
		panic(fmt.Sprintf("pretrain: %v", err))
	}
	return out
}

func toInt32(rows []int) []int32 {
	out := make([]int32, len(rows))
	for n, row := range rows {
		out[n] = int32(row)
	}
	return out
}

func zeroLoss[B tensor.Backend](backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](tensor.Shape{1}, backend)
}

// Parameters returns the encoder parameters followed by the head
// parameters, in task order.
func (m *Model[B]) Parameters() []*nn.Parameter[B] {
	params := m.encoder.Parameters()
	for _, task := range m.cfg.Tasks {
		params = append(params, m.heads[task].Parameters()...)
	}
	return params
}

// StateDict returns the head parameters under "heads.<task>". The
// encoder keeps its own state dict so the two snapshot independently.
func (m *Model[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, task := range m.cfg.Tasks {
		nn.MergeStateDict(stateDict, fmt.Sprintf("heads.%s", task), m.heads[task].StateDict())
	}
	return stateDict
}

// LoadStateDict loads the head parameters.
func (m *Model[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for _, task := range m.cfg.Tasks {
		prefix := fmt.Sprintf("heads.%s", task)
		if err := m.heads[task].LoadStateDict(nn.SubStateDict(stateDict, prefix)); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	return nil
}
