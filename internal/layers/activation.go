package layers

import (
	"fmt"

	"github.com/born-ml/born/tensor"
)

// ReLUBackend is an interface for backends that support ReLU natively.
//
// The autodiff backend implements it and records the op on its tape.
type ReLUBackend interface {
	ReLU(*tensor.RawTensor) *tensor.RawTensor
}

// Activation names an activation fused after batch normalization.
type Activation string

// Supported activations.
const (
	ActNone Activation = ""
	ActReLU Activation = "relu"
)

// ParseActivation validates an activation name.
func ParseActivation(name string) (Activation, error) {
	switch Activation(name) {
	case ActNone, ActReLU:
		return Activation(name), nil
	default:
		return ActNone, fmt.Errorf("%w: unsupported activation %q", ErrConfiguration, name)
	}
}

// ReLU applies f(x) = max(0, x).
//
// Backends without a native ReLU (the plain CPU backend) fall back to
// Where(x > 0, x, 0), so inference runs without the autodiff decorator.
func ReLU[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := x.Backend()
	if reluBackend, ok := any(backend).(ReLUBackend); ok {
		return tensor.New[float32, B](reluBackend.ReLU(x.Raw()), backend)
	}

	zeros := tensor.Zeros[float32](x.Shape(), backend)
	return tensor.Where(x.Greater(zeros), x, zeros)
}

func applyActivation[B tensor.Backend](act Activation, x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	switch act {
	case ActReLU:
		return ReLU(x)
	default:
		return x
	}
}
