package nn

import (
	"fmt"

	"github.com/geomol-ml/geomol/internal/tensor"
)

// StateDictModule is implemented by modules whose parameters can be
// exported to and restored from a named-tensor mapping.
type StateDictModule interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// MergeStateDict copies src entries into dst under the given dotted
// prefix: dst[prefix+"."+k] = src[k].
func MergeStateDict(dst map[string]*tensor.RawTensor, prefix string, src map[string]*tensor.RawTensor) {
	for k, v := range src {
		dst[prefix+"."+k] = v
	}
}

// SubStateDict extracts the entries under a dotted prefix, with the
// prefix stripped.
func SubStateDict(stateDict map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	sub := make(map[string]*tensor.RawTensor)
	p := prefix + "."
	for k, v := range stateDict {
		if len(k) > len(p) && k[:len(p)] == p {
			sub[k[len(p):]] = v
		}
	}
	return sub
}

// loadParam validates shape and dtype, then copies the snapshot data
// into the live parameter.
func loadParam[B tensor.Backend](name string, p *Parameter[B], stateDict map[string]*tensor.RawTensor) error {
	raw, ok := stateDict[name]
	if !ok {
		return fmt.Errorf("missing %s in state dict", name)
	}
	if !raw.Shape().Equal(p.Tensor().Shape()) {
		return fmt.Errorf("%s shape mismatch: expected %v, got %v", name, p.Tensor().Shape(), raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		return fmt.Errorf("%s dtype mismatch: expected float32, got %v", name, raw.DType())
	}
	copy(p.Tensor().Data(), raw.AsFloat32())
	return nil
}
