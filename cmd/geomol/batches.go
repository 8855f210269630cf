package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/geomol-ml/geomol/backend/cpu"
	"github.com/geomol-ml/geomol/graph"
	"github.com/geomol-ml/geomol/tensor"
)

// batchFile is the pre-featurized batch input: the featurization
// pipeline (external to geomol) emits one JSON document holding the
// edge tables, feature matrices, and geometry arrays per batch.
type batchFile struct {
	Batches []batchJSON `json:"batches"`
}

type batchJSON struct {
	AtomBondEdges      [2][]int32 `json:"atom_bond_edges"`
	BondAngleEdges     [2][]int32 `json:"bond_angle_edges"`
	AngleDihedralEdges [2][]int32 `json:"angle_dihedral_edges,omitempty"`
	AtomFeatures       [][]int32  `json:"atom_features"`
	BondFeatures       [][]int32  `json:"bond_features"`
	BondLengths        []float32  `json:"bond_lengths"`
	BondAngles         []float32  `json:"bond_angles"`
	DihedralAngles     []float32  `json:"dihedral_angles,omitempty"`
	NumGraphs          int        `json:"num_graphs"`
	NumBonds           []int32    `json:"num_bonds"`
	NumAngles          []int32    `json:"num_angles"`
	AtomBatch          []int32    `json:"atom_batch"`
}

// loadBatches reads and converts a batch input file.
func loadBatches(path string, backend *cpu.Backend) ([]*graph.Batch[*cpu.Backend], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batches: %w", err)
	}

	var file batchFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse batches %q: %w", path, err)
	}
	if len(file.Batches) == 0 {
		return nil, fmt.Errorf("batches %q: no batches", path)
	}

	batches := make([]*graph.Batch[*cpu.Backend], 0, len(file.Batches))
	for n, b := range file.Batches {
		batch, err := b.toBatch(backend)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", n, err)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func (b batchJSON) toBatch(backend *cpu.Backend) (*graph.Batch[*cpu.Backend], error) {
	batch := &graph.Batch[*cpu.Backend]{NumGraphs: b.NumGraphs}

	var err error
	if batch.AtomBondEdges, err = edgeTensor(b.AtomBondEdges, backend); err != nil {
		return nil, fmt.Errorf("atom_bond_edges: %w", err)
	}
	if batch.BondAngleEdges, err = edgeTensor(b.BondAngleEdges, backend); err != nil {
		return nil, fmt.Errorf("bond_angle_edges: %w", err)
	}
	if len(b.AngleDihedralEdges[0]) > 0 || b.DihedralAngles != nil {
		if batch.AngleDihedralEdges, err = edgeTensor(b.AngleDihedralEdges, backend); err != nil {
			return nil, fmt.Errorf("angle_dihedral_edges: %w", err)
		}
		if batch.DihedralAngles, err = vector(b.DihedralAngles, backend); err != nil {
			return nil, fmt.Errorf("dihedral_angles: %w", err)
		}
	}
	if batch.AtomFeatures, err = matrix(b.AtomFeatures, backend); err != nil {
		return nil, fmt.Errorf("atom_features: %w", err)
	}
	if batch.BondFeatures, err = matrix(b.BondFeatures, backend); err != nil {
		return nil, fmt.Errorf("bond_features: %w", err)
	}
	if batch.BondLengths, err = vector(b.BondLengths, backend); err != nil {
		return nil, fmt.Errorf("bond_lengths: %w", err)
	}
	if batch.BondAngles, err = vector(b.BondAngles, backend); err != nil {
		return nil, fmt.Errorf("bond_angles: %w", err)
	}
	if batch.NumBonds, err = vector(b.NumBonds, backend); err != nil {
		return nil, fmt.Errorf("num_bonds: %w", err)
	}
	if batch.NumAngles, err = vector(b.NumAngles, backend); err != nil {
		return nil, fmt.Errorf("num_angles: %w", err)
	}
	if batch.AtomBatch, err = vector(b.AtomBatch, backend); err != nil {
		return nil, fmt.Errorf("atom_batch: %w", err)
	}

	return batch, batch.Validate()
}

func edgeTensor(edges [2][]int32, backend *cpu.Backend) (*tensor.Tensor[int32, *cpu.Backend], error) {
	if len(edges[0]) != len(edges[1]) {
		return nil, fmt.Errorf("src row has %d entries, dst row %d", len(edges[0]), len(edges[1]))
	}
	flat := make([]int32, 0, 2*len(edges[0]))
	flat = append(flat, edges[0]...)
	flat = append(flat, edges[1]...)
	return tensor.FromSlice(flat, tensor.Shape{2, len(edges[0])}, backend)
}

func matrix(rows [][]int32, backend *cpu.Backend) (*tensor.Tensor[int32, *cpu.Backend], error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty matrix")
	}
	width := len(rows[0])
	flat := make([]int32, 0, len(rows)*width)
	for n, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d fields, expected %d", n, len(row), width)
		}
		flat = append(flat, row...)
	}
	return tensor.FromSlice(flat, tensor.Shape{len(rows), width}, backend)
}

func vector[T tensor.DType](values []T, backend *cpu.Backend) (*tensor.Tensor[T, *cpu.Backend], error) {
	return tensor.FromSlice(values, tensor.Shape{len(values)}, backend)
}
