package layers

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// ConvBN is a bias-free 2D convolution followed by batch normalization
// and an optional activation.
//
// StateDict keys: "<name>/weights" plus the BatchNorm2D keys under <name>.
type ConvBN[B tensor.Backend] struct {
	conv *nn.Conv2D[B]
	bn   *BatchNorm2D[B]
	name string
}

// NewConvBN creates a convolution + batch-norm unit.
func NewConvBN[B tensor.Backend](
	inChannels, outChannels int,
	kernelSize, stride, padding int,
	act Activation,
	name string,
	backend B,
) (*ConvBN[B], error) {
	bn, err := NewBatchNorm2D(outChannels, act, name, backend)
	if err != nil {
		return nil, err
	}
	return &ConvBN[B]{
		conv: nn.NewConv2D(inChannels, outChannels, kernelSize, kernelSize, stride, padding, false, backend),
		bn:   bn,
		name: name,
	}, nil
}

// Forward applies conv, batch norm and the activation.
func (c *ConvBN[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return c.bn.Forward(c.conv.Forward(input))
}

// SetTraining switches the batch norm mode.
func (c *ConvBN[B]) SetTraining(training bool) {
	c.bn.SetTraining(training)
}

// Parameters returns the conv weight, gamma and beta.
func (c *ConvBN[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 3)
	params = append(params, c.conv.Parameters()...)
	params = append(params, c.bn.Parameters()...)
	return params
}

// StateDict returns the conv weight and batch norm state.
func (c *ConvBN[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := c.bn.StateDict()
	stateDict[c.name+"/weights"] = c.weight().Raw()
	return stateDict
}

// LoadStateDict loads the conv weight and batch norm state.
func (c *ConvBN[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadInto(c.weight(), stateDict, c.name+"/weights"); err != nil {
		return err
	}
	return c.bn.LoadStateDict(stateDict)
}

func (c *ConvBN[B]) weight() *tensor.Tensor[float32, B] {
	return c.conv.Parameters()[0].Tensor()
}

// InChannels returns the number of input channels.
func (c *ConvBN[B]) InChannels() int {
	return c.conv.InChannels()
}

// OutChannels returns the number of output channels.
func (c *ConvBN[B]) OutChannels() int {
	return c.conv.OutChannels()
}

// Stride returns the convolution stride.
func (c *ConvBN[B]) Stride() int {
	return c.conv.Stride()
}

// Name returns the checkpoint name prefix.
func (c *ConvBN[B]) Name() string {
	return c.name
}

// String returns a string representation of the layer.
func (c *ConvBN[B]) String() string {
	return fmt.Sprintf("ConvBN(%s, %s)", c.conv.String(), c.bn.String())
}
