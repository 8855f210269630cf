// Package pretrain implements the masked-attribute pretraining heads
// and loss computation over the hierarchical encoder.
//
// Each task regresses or classifies a geometric or charge property
// from the concatenated representations of the atoms it spans. Bond,
// angle, and dihedral tasks recover their atom tuples by walking the
// edge-index tables backward through the hierarchy.
package pretrain

// Task identifies one pretraining objective.
type Task int

const (
	// Blr regresses masked bond lengths from atom pairs.
	Blr Task = iota
	// Bar regresses masked bond angles from atom triples.
	Bar
	// Dar regresses masked dihedral angles from atom quadruples.
	Dar
	// Adc classifies binned atom-pair distances.
	Adc
	// Cm5 regresses CM5 partial charges per atom.
	Cm5
	// Espc regresses ESP partial charges per atom.
	Espc
	// Hirshfeld regresses Hirshfeld partial charges per atom.
	Hirshfeld
	// Npa regresses NPA partial charges per atom.
	Npa
	// Wiberg regresses Wiberg bond orders from atom pairs.
	Wiberg

	numTasks
)

// taskSpec is the static description of one task: its head input arity
// in atom representations, its breakdown key, and whether it is a
// classification task.
type taskSpec struct {
	name       string
	lossKey    string
	target     string // target array name, empty when sourced from batch geometry
	arity      int
	classifies bool
}

var taskSpecs = [numTasks]taskSpec{
	Blr:       {name: "Blr", lossKey: "bond_length_loss", arity: 2},
	Bar:       {name: "Bar", lossKey: "bond_angle_loss", arity: 3},
	Dar:       {name: "Dar", lossKey: "dihedral_angle_loss", arity: 4},
	Adc:       {name: "Adc", lossKey: "atom_distance_loss", target: "atom_distance_classes", arity: 2, classifies: true},
	Cm5:       {name: "Cm5", lossKey: "cm5_charge_loss", target: "cm5_charges", arity: 1},
	Espc:      {name: "Espc", lossKey: "espc_charge_loss", target: "espc_charges", arity: 1},
	Hirshfeld: {name: "Hirshfeld", lossKey: "hirshfeld_charge_loss", target: "hirshfeld_charges", arity: 1},
	Npa:       {name: "Npa", lossKey: "npa_charge_loss", target: "npa_charges", arity: 1},
	Wiberg:    {name: "Wiberg", lossKey: "wiberg_order_loss", target: "wiberg_bond_orders", arity: 2},
}

func (t Task) String() string {
	if t < 0 || t >= numTasks {
		return "Unknown"
	}
	return taskSpecs[t].name
}

// LossKey returns the task's key in the loss breakdown map.
func (t Task) LossKey() string {
	return taskSpecs[t].lossKey
}
