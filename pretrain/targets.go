package pretrain

import "github.com/geomol-ml/geomol/tensor"

// Targets carries the ground-truth arrays the batch loader supplies for
// the charge and distance tasks. The geometric tasks (Blr, Bar, Dar)
// read their targets from the unmasked batch itself.
//
// A nil field is a missing target; ComputeLoss reports it as a
// graph.MissingTargetError when the corresponding task is active.
type Targets[B tensor.Backend] struct {
	AtomDistanceClasses *tensor.Tensor[int32, B]   // [total_bonds] distance bin per bond
	Cm5Charges          *tensor.Tensor[float32, B] // [num_atoms]
	EspcCharges         *tensor.Tensor[float32, B] // [num_atoms]
	HirshfeldCharges    *tensor.Tensor[float32, B] // [num_atoms]
	NpaCharges          *tensor.Tensor[float32, B] // [num_atoms]
	WibergBondOrders    *tensor.Tensor[float32, B] // [total_bonds]
}
