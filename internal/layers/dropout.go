package layers

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// DropoutMode selects where the keep-probability scaling happens.
type DropoutMode int

const (
	// DownscaleInInfer masks without rescaling during training and
	// multiplies by (1-p) during inference.
	DownscaleInInfer DropoutMode = iota

	// UpscaleInTrain masks and divides by (1-p) during training and is
	// the identity during inference.
	UpscaleInTrain
)

// String returns the mode name.
func (m DropoutMode) String() string {
	switch m {
	case DownscaleInInfer:
		return "downscale_in_infer"
	case UpscaleInTrain:
		return "upscale_in_train"
	default:
		return fmt.Sprintf("DropoutMode(%d)", int(m))
	}
}

// Dropout zeroes elements with probability p during training.
type Dropout[B tensor.Backend] struct {
	p        float32
	mode     DropoutMode
	training bool
	backend  B
}

// NewDropout creates a dropout layer. p must be in [0, 1].
func NewDropout[B tensor.Backend](p float32, mode DropoutMode, backend B) (*Dropout[B], error) {
	if p < 0 || p > 1 {
		return nil, fmt.Errorf("%w: dropout probability %g out of [0, 1]", ErrConfiguration, p)
	}
	if mode != DownscaleInInfer && mode != UpscaleInTrain {
		return nil, fmt.Errorf("%w: unknown dropout mode %v", ErrConfiguration, mode)
	}
	return &Dropout[B]{p: p, mode: mode, backend: backend}, nil
}

// Forward applies dropout according to the mode and the training flag.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training {
		if d.mode == DownscaleInInfer {
			return input.MulScalar(1 - d.p)
		}
		return input
	}

	if d.p == 0 {
		return input
	}

	threshold := tensor.Full[float32](input.Shape(), d.p, d.backend)
	keep := tensor.Rand[float32](input.Shape(), d.backend).GreaterEqual(threshold).Float32()
	output := keep.Mul(input)

	if d.mode == UpscaleInTrain && d.p < 1 {
		output = output.MulScalar(1 / (1 - d.p))
	}
	return output
}

// SetTraining switches between masking and inference scaling.
func (d *Dropout[B]) SetTraining(training bool) {
	d.training = training
}

// Parameters returns nil (dropout has no trainable parameters).
func (d *Dropout[B]) Parameters() []*nn.Parameter[B] {
	return nil
}

// StateDict returns an empty map.
func (d *Dropout[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (d *Dropout[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}

// P returns the drop probability.
func (d *Dropout[B]) P() float32 {
	return d.p
}

// Mode returns the scaling mode.
func (d *Dropout[B]) Mode() DropoutMode {
	return d.mode
}

// String returns a string representation of the layer.
func (d *Dropout[B]) String() string {
	return fmt.Sprintf("Dropout(p=%g, mode=%s)", d.p, d.mode)
}
