package main

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geomol-ml/geomol/backend/cpu"
	"github.com/geomol-ml/geomol/config"
	"github.com/geomol-ml/geomol/downstream"
	"github.com/geomol-ml/geomol/geognn"
	"github.com/geomol-ml/geomol/inference"
)

type inferOptions struct {
	configPath   string
	snapshotPath string
	inputPath    string
	outputPath   string
}

func newInferCommand(root *rootOptions) *cobra.Command {
	opts := &inferOptions{}

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Predict endpoint values for pre-featurized molecule batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfer(root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "model configuration file (JSON)")
	f.StringVarP(&opts.snapshotPath, "snapshot", "s", "", "parameter snapshot (.gmol)")
	f.StringVarP(&opts.inputPath, "input", "i", "", "batch input file (JSON)")
	f.StringVarP(&opts.outputPath, "output", "o", "", "output CSV path (default: stdout)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("snapshot")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runInfer(root *rootOptions, opts *inferOptions) error {
	logger, err := newLogger(root.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	backend := cpu.New()
	model := buildModel(cfg, backend)
	if err := restoreSnapshot(model, opts.snapshotPath); err != nil {
		return err
	}
	logger.Info("model restored",
		zap.String("snapshot", opts.snapshotPath),
		zap.Int("endpoints", len(cfg.Endpoints)),
		zap.Bool("without_dihedral", cfg.Model.WithoutDihedral))

	batches, err := loadBatches(opts.inputPath, backend)
	if err != nil {
		return err
	}

	driver := inference.NewDriver(model, cfg.Endpoints, logger)
	rows, err := driver.Run(batches)
	if err != nil {
		return err
	}

	return writeCSV(opts.outputPath, rows)
}

// buildModel assembles the encoder variant the config names and the
// endpoint head on top of it.
func buildModel(cfg *config.Config, backend *cpu.Backend) *downstream.Model[*cpu.Backend] {
	encoderCfg := geognn.Config{
		AtomFeatureDims: cfg.Model.AtomFeatureDims,
		BondFeatureDims: cfg.Model.BondFeatureDims,
		LatentSize:      cfg.Model.LatentSize,
		NumLayers:       cfg.Model.NumLayers,
		DropoutRate:     cfg.Model.DropoutRate,
	}

	var encoder downstream.CompoundEncoder[*cpu.Backend]
	if cfg.Model.WithoutDihedral {
		encoder = geognn.NewPlanarEncoder(encoderCfg, backend)
	} else {
		encoder = geognn.NewEncoder(encoderCfg, backend)
	}

	return downstream.NewModel(encoder, downstream.Config{
		NumEndpoints:  len(cfg.Endpoints),
		EmbedDim:      cfg.Head.EmbedDim,
		NumHeads:      cfg.Head.NumHeads,
		FFNDim:        cfg.Head.FFNDim,
		NumLayers:     cfg.Head.NumLayers,
		DropoutRate:   cfg.Head.DropoutRate,
		FrozenEncoder: cfg.Head.FrozenEncoder,
	}, backend)
}

func restoreSnapshot(model *downstream.Model[*cpu.Backend], path string) error {
	encoderState, err := inference.LoadEncoderState(path)
	if err != nil {
		return err
	}
	if err := model.Encoder().LoadStateDict(encoderState); err != nil {
		return fmt.Errorf("load encoder state: %w", err)
	}

	modelState, err := inference.LoadModelState(path)
	if err != nil {
		return err
	}
	if err := model.LoadStateDict(modelState); err != nil {
		return fmt.Errorf("load model state: %w", err)
	}
	return nil
}

func writeCSV(path string, rows []inference.Row) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	w := csv.NewWriter(out)
	if err := w.Write(inference.CSVHeader()); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row.CSVRecord()); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
