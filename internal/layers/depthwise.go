package layers

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// DepthwiseConv2D convolves every input channel with its own kernel
// (groups = channels), without bias.
//
// Input shape:  [batch, channels, height, width]
// Weight shape: [channels, 1, kernel, kernel]
// Output shape: [batch, channels, out_h, out_w]
//
// Padding is kernel/2*dilation, which keeps the spatial size for stride 1.
// Born's Conv2D has no groups or dilation arguments, so the layer splits
// the input per channel and runs Backend.Conv2D on each slice; dilation is
// expressed by inserting dilation-1 zero rows and columns between kernel taps.
type DepthwiseConv2D[B tensor.Backend] struct {
	channels   int
	kernelSize int
	stride     int
	dilation   int
	padding    int
	name       string

	weight *nn.Parameter[B] // [channels, 1, kernel, kernel]

	backend B
}

// NewDepthwiseConv2D creates a depthwise convolution with Xavier initialization.
func NewDepthwiseConv2D[B tensor.Backend](channels, kernelSize, stride, dilation int, name string, backend B) *DepthwiseConv2D[B] {
	if channels <= 0 {
		panic(fmt.Sprintf("depthwise_conv2d: invalid channels %d", channels))
	}
	if kernelSize <= 0 || stride <= 0 || dilation <= 0 {
		panic(fmt.Sprintf("depthwise_conv2d: invalid kernel=%d stride=%d dilation=%d", kernelSize, stride, dilation))
	}

	fan := kernelSize * kernelSize
	weight := nn.Xavier(fan, fan, tensor.Shape{channels, 1, kernelSize, kernelSize}, backend)

	return &DepthwiseConv2D[B]{
		channels:   channels,
		kernelSize: kernelSize,
		stride:     stride,
		dilation:   dilation,
		padding:    kernelSize / 2 * dilation,
		name:       name,
		weight:     nn.NewParameter(name+"/weights", weight),
		backend:    backend,
	}
}

// Forward performs the per-channel convolution.
func (d *DepthwiseConv2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("depthwise_conv2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != d.channels {
		panic(fmt.Sprintf("depthwise_conv2d: input channels %d != expected %d", shape[1], d.channels))
	}

	kernels := d.dilatedKernel().Chunk(d.channels, 0)
	inputs := input.Chunk(d.channels, 1)

	outputs := make([]*tensor.Tensor[float32, B], d.channels)
	for c := range inputs {
		raw := d.backend.Conv2D(inputs[c].Raw(), kernels[c].Raw(), d.stride, d.padding)
		outputs[c] = tensor.New[float32, B](raw, d.backend)
	}

	return tensor.Cat(outputs, 1)
}

// dilatedKernel returns the weight with dilation-1 zeros between taps:
// [C, 1, k, k] -> [C, 1, (k-1)*dilation+1, (k-1)*dilation+1].
func (d *DepthwiseConv2D[B]) dilatedKernel() *tensor.Tensor[float32, B] {
	w := d.weight.Tensor()
	if d.dilation == 1 || d.kernelSize == 1 {
		return w
	}

	gap := d.dilation - 1
	k := d.kernelSize

	zeroCols := tensor.Zeros[float32](tensor.Shape{d.channels, 1, k, gap}, d.backend)
	w = interleave(w.Chunk(k, 3), zeroCols, 3)

	extent := (k-1)*d.dilation + 1
	zeroRows := tensor.Zeros[float32](tensor.Shape{d.channels, 1, gap, extent}, d.backend)
	return interleave(w.Chunk(k, 2), zeroRows, 2)
}

// interleave concatenates parts along dim with sep between neighbors.
func interleave[B tensor.Backend](parts []*tensor.Tensor[float32, B], sep *tensor.Tensor[float32, B], dim int) *tensor.Tensor[float32, B] {
	joined := make([]*tensor.Tensor[float32, B], 0, 2*len(parts)-1)
	for i, part := range parts {
		if i > 0 {
			joined = append(joined, sep)
		}
		joined = append(joined, part)
	}
	return tensor.Cat(joined, dim)
}

// Parameters returns the depthwise kernel.
func (d *DepthwiseConv2D[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{d.weight}
}

// StateDict returns the kernel under "<name>/weights".
func (d *DepthwiseConv2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{d.name + "/weights": d.weight.Tensor().Raw()}
}

// LoadStateDict loads the kernel.
func (d *DepthwiseConv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadInto(d.weight.Tensor(), stateDict, d.name+"/weights")
}

// Stride returns the stride.
func (d *DepthwiseConv2D[B]) Stride() int {
	return d.stride
}

// Dilation returns the dilation.
func (d *DepthwiseConv2D[B]) Dilation() int {
	return d.dilation
}

// Padding returns the padding.
func (d *DepthwiseConv2D[B]) Padding() int {
	return d.padding
}

// ComputeOutputSize computes output spatial dimensions for given input size.
func (d *DepthwiseConv2D[B]) ComputeOutputSize(inputH, inputW int) [2]int {
	extent := (d.kernelSize-1)*d.dilation + 1
	outH := (inputH+2*d.padding-extent)/d.stride + 1
	outW := (inputW+2*d.padding-extent)/d.stride + 1
	return [2]int{outH, outW}
}

// String returns a string representation of the layer.
func (d *DepthwiseConv2D[B]) String() string {
	return fmt.Sprintf("DepthwiseConv2D(channels=%d, kernel_size=%d, stride=%d, padding=%d, dilation=%d)",
		d.channels, d.kernelSize, d.stride, d.padding, d.dilation)
}
