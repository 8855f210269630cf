// Package config loads the geomol inference configuration: feature
// vocabularies, model hyperparameters, and the endpoint statuses used
// to de-scale predictions.
package config

import (
	"fmt"
)

// ModelConfig sizes the hierarchical encoder.
type ModelConfig struct {
	AtomFeatureDims []int   `mapstructure:"atom_feature_dims" json:"atom_feature_dims"`
	BondFeatureDims []int   `mapstructure:"bond_feature_dims" json:"bond_feature_dims"`
	LatentSize      int     `mapstructure:"latent_size" json:"latent_size"`
	NumLayers       int     `mapstructure:"num_layers" json:"num_layers"`
	DropoutRate     float32 `mapstructure:"dropout_rate" json:"dropout_rate"`
	WithoutDihedral bool    `mapstructure:"without_dihedral" json:"without_dihedral"`
}

// HeadConfig sizes the downstream endpoint transformer.
type HeadConfig struct {
	EmbedDim      int     `mapstructure:"embed_dim" json:"embed_dim"`
	NumHeads      int     `mapstructure:"num_heads" json:"num_heads"`
	FFNDim        int     `mapstructure:"ffn_dim" json:"ffn_dim"`
	NumLayers     int     `mapstructure:"num_layers" json:"num_layers"`
	DropoutRate   float32 `mapstructure:"dropout_rate" json:"dropout_rate"`
	FrozenEncoder bool    `mapstructure:"frozen_encoder" json:"frozen_encoder"`
}

// Endpoint is one predicted property with the training-set statistics
// that de-scale the model output back to physical units.
type Endpoint struct {
	Name string  `mapstructure:"name" json:"name"`
	Mean float64 `mapstructure:"mean" json:"mean"`
	Std  float64 `mapstructure:"std" json:"std"`
}

// Config is the full inference configuration.
type Config struct {
	Model     ModelConfig `mapstructure:"model" json:"model"`
	Head      HeadConfig  `mapstructure:"head" json:"head"`
	Endpoints []Endpoint  `mapstructure:"endpoints" json:"endpoints"`
}

// ApplyDefaults fills unset numeric fields with the standard model
// sizes.
func ApplyDefaults(cfg *Config) {
	if cfg.Model.LatentSize == 0 {
		cfg.Model.LatentSize = 128
	}
	if cfg.Model.NumLayers == 0 {
		cfg.Model.NumLayers = 4
	}
	if cfg.Head.EmbedDim == 0 {
		cfg.Head.EmbedDim = 128
	}
	if cfg.Head.NumHeads == 0 {
		cfg.Head.NumHeads = 4
	}
	if cfg.Head.FFNDim == 0 {
		cfg.Head.FFNDim = 256
	}
	if cfg.Head.NumLayers == 0 {
		cfg.Head.NumLayers = 2
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if len(c.Model.AtomFeatureDims) == 0 {
		return fmt.Errorf("config: model.atom_feature_dims must be non-empty")
	}
	if len(c.Model.BondFeatureDims) == 0 {
		return fmt.Errorf("config: model.bond_feature_dims must be non-empty")
	}
	for i, dim := range c.Model.AtomFeatureDims {
		if dim < 2 {
			return fmt.Errorf("config: atom feature field %d has vocab size %d, need at least a value and the mask token", i, dim)
		}
	}
	for i, dim := range c.Model.BondFeatureDims {
		if dim < 2 {
			return fmt.Errorf("config: bond feature field %d has vocab size %d, need at least a value and the mask token", i, dim)
		}
	}
	if c.Model.LatentSize <= 0 || c.Model.NumLayers <= 0 {
		return fmt.Errorf("config: invalid model sizes latent=%d layers=%d", c.Model.LatentSize, c.Model.NumLayers)
	}
	if c.Head.EmbedDim%c.Head.NumHeads != 0 {
		return fmt.Errorf("config: head.embed_dim %d not divisible by head.num_heads %d", c.Head.EmbedDim, c.Head.NumHeads)
	}
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("config: at least one endpoint required")
	}
	seen := make(map[string]bool, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("config: endpoint with empty name")
		}
		if seen[ep.Name] {
			return fmt.Errorf("config: duplicate endpoint %q", ep.Name)
		}
		seen[ep.Name] = true
		if ep.Std <= 0 {
			return fmt.Errorf("config: endpoint %q has non-positive std %g", ep.Name, ep.Std)
		}
	}
	return nil
}
