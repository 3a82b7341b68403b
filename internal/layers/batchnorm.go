package layers

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Batch normalization defaults used throughout the backbone.
const (
	DefaultBNEpsilon  float32 = 1e-3
	DefaultBNMomentum float32 = 0.99
)

// BatchNorm2D normalizes a [N, C, H, W] tensor per channel.
//
// Formula: Y = gamma * (X - mean) / sqrt(var + eps) + beta
//
// In training mode mean and var are the batch statistics over N, H and W,
// and the moving statistics are updated as
//
//	moving = momentum*moving + (1-momentum)*batch
//
// In inference mode the moving statistics are used. The optional activation
// is applied to the normalized output.
//
// StateDict keys:
//
//	<name>/BatchNorm/gamma
//	<name>/BatchNorm/beta
//	<name>/BatchNorm/moving_mean
//	<name>/BatchNorm/moving_variance
type BatchNorm2D[B tensor.Backend] struct {
	numChannels int
	epsilon     float32
	momentum    float32
	act         Activation
	training    bool
	name        string

	gamma *nn.Parameter[B] // [C]
	beta  *nn.Parameter[B] // [C]

	movingMean     *tensor.Tensor[float32, B] // [C], not trainable
	movingVariance *tensor.Tensor[float32, B] // [C], not trainable

	backend B
}

// NewBatchNorm2D creates a batch normalization layer with the backbone's
// default epsilon (1e-3) and momentum (0.99).
//
// Gamma and the moving variance start at ones, beta and the moving mean at zeros.
// act must be ActNone or ActReLU.
func NewBatchNorm2D[B tensor.Backend](numChannels int, act Activation, name string, backend B) (*BatchNorm2D[B], error) {
	if numChannels <= 0 {
		return nil, fmt.Errorf("%w: %s: invalid channels %d", ErrConfiguration, name, numChannels)
	}
	act, err := ParseActivation(string(act))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	shape := tensor.Shape{numChannels}
	return &BatchNorm2D[B]{
		numChannels:    numChannels,
		epsilon:        DefaultBNEpsilon,
		momentum:       DefaultBNMomentum,
		act:            act,
		name:           name,
		gamma:          nn.NewParameter(name+"/BatchNorm/gamma", tensor.Ones[float32](shape, backend)),
		beta:           nn.NewParameter(name+"/BatchNorm/beta", tensor.Zeros[float32](shape, backend)),
		movingMean:     tensor.Zeros[float32](shape, backend),
		movingVariance: tensor.Ones[float32](shape, backend),
		backend:        backend,
	}, nil
}

// Forward normalizes the input and applies the activation.
func (bn *BatchNorm2D[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != bn.numChannels {
		panic(fmt.Sprintf("batchnorm2d: input channels %d != expected %d", shape[1], bn.numChannels))
	}

	// Keep x intact: backends may reuse a uniquely owned left operand in place.
	defer x.Raw().ForceNonUnique()()

	var mean, variance *tensor.Tensor[float32, B]
	if bn.training {
		mean = bn.channelMean(x)
		centered := x.Sub(mean)
		variance = bn.channelMean(centered.Mul(centered))
		bn.updateMovingStats(mean, variance)
	} else {
		mean = bn.movingMean.Reshape(1, bn.numChannels, 1, 1)
		variance = bn.movingVariance.Reshape(1, bn.numChannels, 1, 1)
	}

	invStd := tensor.New[float32, B](bn.backend.Rsqrt(variance.AddScalar(bn.epsilon).Raw()), bn.backend)

	gamma := bn.gamma.Tensor().Reshape(1, bn.numChannels, 1, 1)
	beta := bn.beta.Tensor().Reshape(1, bn.numChannels, 1, 1)

	y := x.Sub(mean).Mul(invStd).Mul(gamma).Add(beta)
	return applyActivation(bn.act, y)
}

// channelMean reduces [N, C, H, W] to [1, C, 1, 1].
func (bn *BatchNorm2D[B]) channelMean(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	raw := bn.backend.MeanDim(x.Raw(), 3, true)
	raw = bn.backend.MeanDim(raw, 2, true)
	raw = bn.backend.MeanDim(raw, 0, true)
	return tensor.New[float32, B](raw, bn.backend)
}

func (bn *BatchNorm2D[B]) updateMovingStats(mean, variance *tensor.Tensor[float32, B]) {
	batchMean := mean.Detach().Data()
	batchVar := variance.Detach().Data()
	movingMean := bn.movingMean.Data()
	movingVar := bn.movingVariance.Data()

	for c := 0; c < bn.numChannels; c++ {
		movingMean[c] = bn.momentum*movingMean[c] + (1-bn.momentum)*batchMean[c]
		movingVar[c] = bn.momentum*movingVar[c] + (1-bn.momentum)*batchVar[c]
	}
}

// SetTraining switches between batch and moving statistics.
func (bn *BatchNorm2D[B]) SetTraining(training bool) {
	bn.training = training
}

// Parameters returns gamma and beta. Moving statistics are buffers.
func (bn *BatchNorm2D[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{bn.gamma, bn.beta}
}

// StateDict returns parameters and moving statistics.
func (bn *BatchNorm2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		bn.name + "/BatchNorm/gamma":           bn.gamma.Tensor().Raw(),
		bn.name + "/BatchNorm/beta":            bn.beta.Tensor().Raw(),
		bn.name + "/BatchNorm/moving_mean":     bn.movingMean.Raw(),
		bn.name + "/BatchNorm/moving_variance": bn.movingVariance.Raw(),
	}
}

// LoadStateDict loads parameters and moving statistics.
func (bn *BatchNorm2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	targets := []struct {
		key string
		dst *tensor.Tensor[float32, B]
	}{
		{bn.name + "/BatchNorm/gamma", bn.gamma.Tensor()},
		{bn.name + "/BatchNorm/beta", bn.beta.Tensor()},
		{bn.name + "/BatchNorm/moving_mean", bn.movingMean},
		{bn.name + "/BatchNorm/moving_variance", bn.movingVariance},
	}
	for _, target := range targets {
		if err := loadInto(target.dst, stateDict, target.key); err != nil {
			return err
		}
	}
	return nil
}

// NumChannels returns the number of normalized channels.
func (bn *BatchNorm2D[B]) NumChannels() int {
	return bn.numChannels
}

// Activation returns the fused activation.
func (bn *BatchNorm2D[B]) Activation() Activation {
	return bn.act
}

// Epsilon returns the numerical stability constant.
func (bn *BatchNorm2D[B]) Epsilon() float32 {
	return bn.epsilon
}

// Momentum returns the moving statistics momentum.
func (bn *BatchNorm2D[B]) Momentum() float32 {
	return bn.momentum
}

// String returns a string representation of the layer.
func (bn *BatchNorm2D[B]) String() string {
	act := string(bn.act)
	if act == "" {
		act = "none"
	}
	return fmt.Sprintf("BatchNorm2D(num_channels=%d, epsilon=%g, momentum=%g, act=%s)",
		bn.numChannels, bn.epsilon, bn.momentum, act)
}
