package layers

import (
	"fmt"
	"sort"

	"github.com/born-ml/born/tensor"
)

// checkEntry validates that stateDict[key] exists and matches shape and dtype.
func checkEntry(stateDict map[string]*tensor.RawTensor, key string, shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	raw, ok := stateDict[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	if !raw.Shape().Equal(shape) {
		return nil, fmt.Errorf("%w: %s: expected %v, got %v", ErrShapeMismatch, key, shape, raw.Shape())
	}
	if raw.DType() != dtype {
		return nil, fmt.Errorf("%w: %s: expected %v, got %v", ErrDTypeMismatch, key, dtype, raw.DType())
	}
	return raw, nil
}

// loadInto copies stateDict[key] into dst after validating shape and dtype.
func loadInto[B tensor.Backend](dst *tensor.Tensor[float32, B], stateDict map[string]*tensor.RawTensor, key string) error {
	raw, err := checkEntry(stateDict, key, dst.Shape(), tensor.Float32)
	if err != nil {
		return err
	}
	copy(dst.Data(), raw.AsFloat32())
	return nil
}

// ValidateStateDict checks that every entry of want is present in got with
// the same shape and dtype. Keys are checked in sorted order; extra keys in
// got are ignored.
func ValidateStateDict(want, got map[string]*tensor.RawTensor) error {
	keys := make([]string, 0, len(want))
	for key := range want {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := checkEntry(got, key, want[key].Shape(), want[key].DType()); err != nil {
			return err
		}
	}
	return nil
}

// MergeStateDict copies every entry of src into dst.
func MergeStateDict(dst, src map[string]*tensor.RawTensor) {
	for name, raw := range src {
		dst[name] = raw
	}
}
