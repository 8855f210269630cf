// Package inference runs the downstream model over batched molecules
// and turns scaled predictions back into physical endpoint values.
package inference

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/geomol-ml/geomol/config"
	"github.com/geomol-ml/geomol/downstream"
	"github.com/geomol-ml/geomol/graph"
	"github.com/geomol-ml/geomol/tensor"
)

// Row is one de-scaled prediction for a (molecule, endpoint) pair.
// MoleculeIndex counts molecules across all batches of a Run.
type Row struct {
	MoleculeIndex int
	Endpoint      string
	Value         float64
}

// CSVHeader returns the column names matching Row.CSVRecord.
func CSVHeader() []string {
	return []string{"molecule", "endpoint", "value"}
}

// CSVRecord renders the row for a CSV writer.
func (r Row) CSVRecord() []string {
	return []string{
		strconv.Itoa(r.MoleculeIndex),
		r.Endpoint,
		strconv.FormatFloat(r.Value, 'g', -1, 64),
	}
}

// Driver runs the model batch by batch and de-scales each endpoint
// with its training-set mean and std.
type Driver[B tensor.Backend] struct {
	model     *downstream.Model[B]
	endpoints []config.Endpoint
	logger    *zap.Logger
}

// NewDriver creates a driver. The endpoint list must match the model's
// endpoint count; a nil logger disables logging.
func NewDriver[B tensor.Backend](model *downstream.Model[B], endpoints []config.Endpoint, logger *zap.Logger) *Driver[B] {
	if len(endpoints) != model.Config().NumEndpoints {
		panic(fmt.Sprintf("inference: %d endpoint statuses for a model with %d endpoints",
			len(endpoints), model.Config().NumEndpoints))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver[B]{
		model:     model,
		endpoints: endpoints,
		logger:    logger,
	}
}

// Predict runs one batch and returns de-scaled rows. Molecule indices
// start at moleculeOffset.
func (d *Driver[B]) Predict(batch *graph.Batch[B], moleculeOffset int) ([]Row, error) {
	pred, err := d.model.Predict(batch)
	if err != nil {
		return nil, err
	}

	data := pred.Data()
	rows := make([]Row, 0, batch.NumGraphs*len(d.endpoints))
	for g := 0; g < batch.NumGraphs; g++ {
		for e, ep := range d.endpoints {
			scaled := float64(data[g*len(d.endpoints)+e])
			rows = append(rows, Row{
				MoleculeIndex: moleculeOffset + g,
				Endpoint:      ep.Name,
				Value:         scaled*ep.Std + ep.Mean,
			})
		}
	}

	d.logger.Debug("predicted batch",
		zap.Int("molecules", batch.NumGraphs),
		zap.Int("endpoints", len(d.endpoints)))
	return rows, nil
}

// Run predicts every batch in order, numbering molecules continuously
// across batches.
func (d *Driver[B]) Run(batches []*graph.Batch[B]) ([]Row, error) {
	d.model.SetTraining(false)

	var rows []Row
	offset := 0
	for n, batch := range batches {
		batchRows, err := d.Predict(batch, offset)
		if err != nil {
			return nil, fmt.Errorf("inference: batch %d: %w", n, err)
		}
		rows = append(rows, batchRows...)
		offset += batch.NumGraphs
	}

	d.logger.Info("inference complete",
		zap.Int("batches", len(batches)),
		zap.Int("molecules", offset),
		zap.Int("rows", len(rows)))
	return rows, nil
}
