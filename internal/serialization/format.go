// Package serialization implements the .gmol parameter snapshot format.
//
// A snapshot file holds a named mapping of parameter tensors:
//
//	magic "GMOL" | version uint32 | header size uint64 | JSON header |
//	padding to 64-byte alignment | raw tensor data
//
// The JSON header lists every tensor's name, dtype, shape, and offset
// into the data section. Encoder and downstream-model parameters are
// stored under separate name prefixes so either can be loaded
// independently (frozen-encoder fine-tuning).
package serialization

import (
	"time"

	"github.com/geomol-ml/geomol/internal/tensor"
)

// Format constants.
const (
	MagicBytes      = "GMOL"
	FormatVersion   = 1
	HeaderAlignment = 64 // Align tensor data to 64 bytes
)

// Data type string constants for serialization.
const (
	DTypeFloat32 = "float32"
	DTypeFloat64 = "float64"
	DTypeInt32   = "int32"
	DTypeInt64   = "int64"
)

// Header represents the JSON header in a .gmol file.
type Header struct {
	FormatVersion int               `json:"format_version"` // Version of the .gmol format
	ModelType     string            `json:"model_type"`     // Type of model (e.g., "Encoder", "PretrainModel")
	CreatedAt     time.Time         `json:"created_at"`     // When the file was created
	Tensors       []TensorMeta      `json:"tensors"`        // Tensor metadata
	Metadata      map[string]string `json:"metadata"`       // Custom metadata
}

// TensorMeta describes a tensor in the .gmol file.
type TensorMeta struct {
	Name   string `json:"name"`   // Tensor name (e.g., "compound_encoder.init_atom_embedding.0.weight")
	DType  string `json:"dtype"`  // Data type (e.g., "float32")
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Offset in the data section
	Size   int64  `json:"size"`   // Size in bytes
}

// dtypeToString converts tensor.DataType to its string representation.
func dtypeToString(dt tensor.DataType) string {
	switch dt {
	case tensor.Float32:
		return DTypeFloat32
	case tensor.Float64:
		return DTypeFloat64
	case tensor.Int32:
		return DTypeInt32
	case tensor.Int64:
		return DTypeInt64
	default:
		return "unknown"
	}
}

// stringToDtype converts a string representation to tensor.DataType.
func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeFloat64:
		return tensor.Float64, true
	case DTypeInt32:
		return tensor.Int32, true
	case DTypeInt64:
		return tensor.Int64, true
	default:
		return 0, false
	}
}
