// Package layers implements the convolution + batch-normalization building
// blocks of the Xception-DeepLab backbone on top of Born tensors.
//
// Every layer carries the checkpoint name it was constructed with. StateDict
// keys are fully qualified ("<name>/weights", "<name>/BatchNorm/gamma", ...),
// so composite modules merge the maps of their children without prefixing.
package layers

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Layer is a Born module whose behavior differs between training and
// inference (batch statistics, dropout masks).
type Layer[B tensor.Backend] interface {
	nn.Module[B]

	// SetTraining switches between training and inference behavior.
	SetTraining(training bool)
}
