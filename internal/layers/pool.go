package layers

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// GlobalAvgPool2D averages each channel over its spatial extent
// (adaptive average pooling to 1x1). It has no learnable parameters.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, 1, 1]
type GlobalAvgPool2D[B tensor.Backend] struct {
	backend B
}

// NewGlobalAvgPool2D creates a global average pooling layer.
func NewGlobalAvgPool2D[B tensor.Backend](backend B) *GlobalAvgPool2D[B] {
	return &GlobalAvgPool2D[B]{backend: backend}
}

// Forward performs the pooling.
func (p *GlobalAvgPool2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if len(input.Shape()) != 4 {
		panic(fmt.Sprintf("global_avg_pool2d: expected 4D input [N,C,H,W], got %dD", len(input.Shape())))
	}

	raw := p.backend.MeanDim(input.Raw(), 3, true)
	raw = p.backend.MeanDim(raw, 2, true)
	return tensor.New[float32, B](raw, p.backend)
}

// Parameters returns nil (pooling has no trainable parameters).
func (p *GlobalAvgPool2D[B]) Parameters() []*nn.Parameter[B] {
	return nil
}

// StateDict returns an empty map.
func (p *GlobalAvgPool2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (p *GlobalAvgPool2D[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}

// SetTraining is a no-op.
func (p *GlobalAvgPool2D[B]) SetTraining(bool) {}

// String returns a string representation of the layer.
func (p *GlobalAvgPool2D[B]) String() string {
	return "GlobalAvgPool2D(output_size=1)"
}
