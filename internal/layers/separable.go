package layers

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// SeparableConv is a depthwise convolution + batch norm followed by a 1x1
// pointwise convolution + batch norm. When act is set, both batch norms
// apply it.
//
// StateDict keys:
//
//	<name>/depthwise/weights
//	<name>/depthwise/BatchNorm/...
//	<name>/pointwise/weights
//	<name>/pointwise/BatchNorm/...
type SeparableConv[B tensor.Backend] struct {
	depthwise *DepthwiseConv2D[B]
	bn1       *BatchNorm2D[B]
	pointwise *nn.Conv2D[B]
	bn2       *BatchNorm2D[B]
	name      string
}

// NewSeparableConv creates a separable convolution.
func NewSeparableConv[B tensor.Backend](
	inChannels, outChannels int,
	stride, kernelSize, dilation int,
	act Activation,
	name string,
	backend B,
) (*SeparableConv[B], error) {
	bn1, err := NewBatchNorm2D(inChannels, act, name+"/depthwise", backend)
	if err != nil {
		return nil, err
	}
	bn2, err := NewBatchNorm2D(outChannels, act, name+"/pointwise", backend)
	if err != nil {
		return nil, err
	}
	return &SeparableConv[B]{
		depthwise: NewDepthwiseConv2D(inChannels, kernelSize, stride, dilation, name+"/depthwise", backend),
		bn1:       bn1,
		pointwise: nn.NewConv2D(inChannels, outChannels, 1, 1, 1, 0, false, backend),
		bn2:       bn2,
		name:      name,
	}, nil
}

// Forward applies depthwise, bn1, pointwise, bn2.
func (s *SeparableConv[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x := s.depthwise.Forward(input)
	x = s.bn1.Forward(x)
	x = s.pointwise.Forward(x)
	return s.bn2.Forward(x)
}

// SetTraining switches both batch norms.
func (s *SeparableConv[B]) SetTraining(training bool) {
	s.bn1.SetTraining(training)
	s.bn2.SetTraining(training)
}

// Parameters returns all trainable parameters.
func (s *SeparableConv[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 6)
	params = append(params, s.depthwise.Parameters()...)
	params = append(params, s.bn1.Parameters()...)
	params = append(params, s.pointwise.Parameters()...)
	params = append(params, s.bn2.Parameters()...)
	return params
}

// StateDict returns the state of both stages.
func (s *SeparableConv[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := s.depthwise.StateDict()
	MergeStateDict(stateDict, s.bn1.StateDict())
	MergeStateDict(stateDict, s.bn2.StateDict())
	stateDict[s.name+"/pointwise/weights"] = s.pointwiseWeight().Raw()
	return stateDict
}

// LoadStateDict loads the state of both stages.
func (s *SeparableConv[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := s.depthwise.LoadStateDict(stateDict); err != nil {
		return err
	}
	if err := s.bn1.LoadStateDict(stateDict); err != nil {
		return err
	}
	if err := loadInto(s.pointwiseWeight(), stateDict, s.name+"/pointwise/weights"); err != nil {
		return err
	}
	return s.bn2.LoadStateDict(stateDict)
}

func (s *SeparableConv[B]) pointwiseWeight() *tensor.Tensor[float32, B] {
	return s.pointwise.Parameters()[0].Tensor()
}

// Stride returns the depthwise stride.
func (s *SeparableConv[B]) Stride() int {
	return s.depthwise.Stride()
}

// Dilation returns the depthwise dilation.
func (s *SeparableConv[B]) Dilation() int {
	return s.depthwise.Dilation()
}

// OutChannels returns the pointwise output channels.
func (s *SeparableConv[B]) OutChannels() int {
	return s.pointwise.OutChannels()
}

// Activation returns the activation applied inside both stages.
func (s *SeparableConv[B]) Activation() Activation {
	return s.bn1.Activation()
}

// String returns a string representation of the layer.
func (s *SeparableConv[B]) String() string {
	return fmt.Sprintf("SeparableConv(%s, %s)", s.depthwise.String(), s.pointwise.String())
}
