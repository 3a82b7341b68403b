package layers

import "errors"

// Common errors.
var (
	// ErrConfiguration reports an invalid construction-time argument.
	ErrConfiguration = errors.New("invalid configuration")

	ErrMissingKey    = errors.New("missing key in state dict")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrDTypeMismatch = errors.New("dtype mismatch")
)
