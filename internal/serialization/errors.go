package serialization

import "errors"

// Snapshot format errors.
var (
	ErrInvalidMagic       = errors.New("invalid magic bytes, not a .gmol file")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrHeaderTooLarge     = errors.New("header size exceeds limit")
	ErrTensorNotFound     = errors.New("tensor not found in snapshot")
	ErrCorruptedData      = errors.New("tensor data section corrupted")
)
