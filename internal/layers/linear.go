package layers

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Classifier is the fully connected head: Born's Linear with checkpoint
// names "<prefix>_weights" and "<prefix>_bias".
//
// The weight is stored and loaded as [out, in]. Checkpoints laid out as
// [in, out] must be transposed by the weight loader before LoadStateDict.
type Classifier[B tensor.Backend] struct {
	fc     *nn.Linear[B]
	prefix string
}

// NewClassifier creates the head.
func NewClassifier[B tensor.Backend](inFeatures, outFeatures int, prefix string, backend B) *Classifier[B] {
	return &Classifier[B]{
		fc:     nn.NewLinear(inFeatures, outFeatures, backend),
		prefix: prefix,
	}
}

// Forward computes x @ W.T + b for x of shape [batch, in].
func (c *Classifier[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return c.fc.Forward(input)
}

// SetTraining is a no-op.
func (c *Classifier[B]) SetTraining(bool) {}

// Parameters returns weight and bias.
func (c *Classifier[B]) Parameters() []*nn.Parameter[B] {
	return c.fc.Parameters()
}

// StateDict returns weight and bias under the checkpoint names.
func (c *Classifier[B]) StateDict() map[string]*tensor.RawTensor {
	inner := c.fc.StateDict()
	return map[string]*tensor.RawTensor{
		c.prefix + "_weights": inner["weight"],
		c.prefix + "_bias":    inner["bias"],
	}
}

// LoadStateDict loads weight ([out, in]) and bias ([out]).
func (c *Classifier[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	params := c.fc.Parameters()
	if err := loadInto(params[0].Tensor(), stateDict, c.prefix+"_weights"); err != nil {
		return err
	}
	return loadInto(params[1].Tensor(), stateDict, c.prefix+"_bias")
}

// InFeatures returns the number of input features.
func (c *Classifier[B]) InFeatures() int {
	return c.fc.InFeatures()
}

// OutFeatures returns the number of classes.
func (c *Classifier[B]) OutFeatures() int {
	return c.fc.OutFeatures()
}

// String returns a string representation of the layer.
func (c *Classifier[B]) String() string {
	return fmt.Sprintf("Linear(in=%d, out=%d)", c.fc.InFeatures(), c.fc.OutFeatures())
}
