package pretrain

import (
	"github.com/geomol-ml/geomol/graph"
	"github.com/geomol-ml/geomol/tensor"
)

// edgeEnds returns the (src, dst) endpoints of column col in a [2, E]
// edge-index tensor.
func edgeEnds[B tensor.Backend](edges *tensor.Tensor[int32, B], col int) (int32, int32) {
	numEdges := edges.Shape()[1]
	data := edges.Data()
	return data[col], data[numEdges+col]
}

// resolveBondAtoms maps a bond index to its (i, j) atom endpoints.
func resolveBondAtoms[B tensor.Backend](batch *graph.Batch[B], bond int) (int32, int32) {
	return edgeEnds(batch.AtomBondEdges, bond)
}

// resolveAngleAtoms maps a bond-angle index to the (i, j, k) atoms of
// the two bonds it joins: (i, j) from the first bond and k as the far
// end of the second.
func resolveAngleAtoms[B tensor.Backend](batch *graph.Batch[B], angle int) (int32, int32, int32) {
	bondA, bondB := edgeEnds(batch.BondAngleEdges, angle)
	i, j := resolveBondAtoms(batch, int(bondA))
	_, k := resolveBondAtoms(batch, int(bondB))
	return i, j, k
}

// resolveDihedralAtoms maps a dihedral index to the (i, j, k, l) atoms
// along its chemical path: the dihedral joins two angles sharing a
// middle bond, so (i, j) come from the first angle's first bond and
// (k, l) from the second angle's second bond.
func resolveDihedralAtoms[B tensor.Backend](batch *graph.Batch[B], dihedral int) (int32, int32, int32, int32) {
	angleA, angleB := edgeEnds(batch.AngleDihedralEdges, dihedral)
	bondFirst, _ := edgeEnds(batch.BondAngleEdges, int(angleA))
	_, bondLast := edgeEnds(batch.BondAngleEdges, int(angleB))
	i, j := resolveBondAtoms(batch, int(bondFirst))
	k, l := resolveBondAtoms(batch, int(bondLast))
	return i, j, k, l
}
