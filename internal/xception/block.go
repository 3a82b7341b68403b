package xception

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/xception/internal/layers"
)

const repeatNumber = 3

// Broadcast3 expands a single value to three, or returns a copy of a
// three-element slice. Any other length is a configuration error.
func Broadcast3(values []int) ([]int, error) {
	return checkData(values, repeatNumber)
}

// BlockConfig describes one XceptionBlock.
//
// OutChannels, Strides and FilterSizes hold either one value (broadcast to
// the three separable convolutions) or exactly three.
type BlockConfig struct {
	InChannels  int
	OutChannels []int
	Strides     []int
	FilterSizes []int
	Dilation    int

	// SkipConv selects a 1x1 projected skip instead of the identity.
	SkipConv bool
	// HasSkip adds the skip path to the block output.
	HasSkip bool
	// ActivationInSeparable applies ReLU inside each separable convolution
	// instead of before it.
	ActivationInSeparable bool

	Name string
}

// DefaultBlockConfig returns a config with 3x3 filters, dilation 1, a
// projected skip and pre-activation.
func DefaultBlockConfig(inChannels int, outChannels, strides []int, name string) BlockConfig {
	return BlockConfig{
		InChannels:  inChannels,
		OutChannels: outChannels,
		Strides:     strides,
		FilterSizes: []int{3},
		Dilation:    1,
		SkipConv:    true,
		HasSkip:     true,
		Name:        name,
	}
}

// SkipKind describes the skip path of a block.
type SkipKind int

// Skip path kinds.
const (
	SkipNone SkipKind = iota
	SkipIdentity
	SkipProjected
)

// String returns the kind name.
func (k SkipKind) String() string {
	switch k {
	case SkipNone:
		return "none"
	case SkipIdentity:
		return "identity"
	case SkipProjected:
		return "projected"
	default:
		return fmt.Sprintf("SkipKind(%d)", int(k))
	}
}

// Block is three chained separable convolutions with an optional identity
// or projected residual.
type Block[B tensor.Backend] struct {
	inChannels  int
	outChannels []int
	strides     []int
	filterSizes []int
	dilation    int
	skip        SkipKind
	actInSep    bool
	name        string

	sep      [repeatNumber]*layers.SeparableConv[B]
	shortcut *layers.ConvBN[B] // nil unless skip == SkipProjected
}

// NewBlock validates cfg and builds the block. All validation happens
// before any parameter is allocated.
func NewBlock[B tensor.Backend](cfg BlockConfig, backend B) (*Block[B], error) {
	if cfg.InChannels <= 0 {
		return nil, fmt.Errorf("%w: %s: invalid input channels %d", ErrConfiguration, cfg.Name, cfg.InChannels)
	}

	outChannels, err := Broadcast3(cfg.OutChannels)
	if err != nil {
		return nil, fmt.Errorf("%s: output channels: %w", cfg.Name, err)
	}
	strides, err := Broadcast3(cfg.Strides)
	if err != nil {
		return nil, fmt.Errorf("%s: strides: %w", cfg.Name, err)
	}
	filters := cfg.FilterSizes
	if len(filters) == 0 {
		filters = []int{3}
	}
	filterSizes, err := Broadcast3(filters)
	if err != nil {
		return nil, fmt.Errorf("%s: filter sizes: %w", cfg.Name, err)
	}

	dilation := cfg.Dilation
	if dilation == 0 {
		dilation = 1
	}
	if dilation < 0 {
		return nil, fmt.Errorf("%w: %s: invalid dilation %d", ErrConfiguration, cfg.Name, dilation)
	}
	for i := 0; i < repeatNumber; i++ {
		if outChannels[i] <= 0 || strides[i] <= 0 || filterSizes[i] <= 0 {
			return nil, fmt.Errorf("%w: %s: separable_conv%d: channels=%d stride=%d filter=%d",
				ErrConfiguration, cfg.Name, i+1, outChannels[i], strides[i], filterSizes[i])
		}
	}

	skip := SkipNone
	switch {
	case cfg.HasSkip && cfg.SkipConv:
		skip = SkipProjected
	case cfg.HasSkip:
		if cfg.InChannels != outChannels[repeatNumber-1] || strides[repeatNumber-1] != 1 {
			return nil, fmt.Errorf("%w: %s: identity skip needs matching shapes (in=%d out=%d stride=%d)",
				ErrConfiguration, cfg.Name, cfg.InChannels, outChannels[repeatNumber-1], strides[repeatNumber-1])
		}
		skip = SkipIdentity
	}

	act := layers.ActNone
	if cfg.ActivationInSeparable {
		act = layers.ActReLU
	}

	b := &Block[B]{
		inChannels:  cfg.InChannels,
		outChannels: outChannels,
		strides:     strides,
		filterSizes: filterSizes,
		dilation:    dilation,
		skip:        skip,
		actInSep:    cfg.ActivationInSeparable,
		name:        cfg.Name,
	}

	in := cfg.InChannels
	for i := 0; i < repeatNumber; i++ {
		sep, err := layers.NewSeparableConv(
			in, outChannels[i],
			strides[i], filterSizes[i], dilation,
			act,
			fmt.Sprintf("%s/separable_conv%d", cfg.Name, i+1),
			backend,
		)
		if err != nil {
			return nil, err
		}
		b.sep[i] = sep
		in = outChannels[i]
	}

	if skip == SkipProjected {
		b.shortcut, err = layers.NewConvBN(
			cfg.InChannels, outChannels[repeatNumber-1],
			1, strides[repeatNumber-1], 0,
			layers.ActNone,
			cfg.Name+"/shortcut",
			backend,
		)
		if err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Forward runs the main path and adds the skip path when present.
func (b *Block[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x := input
	for _, sep := range b.sep {
		if !b.actInSep {
			x = layers.ReLU(x)
		}
		x = sep.Forward(x)
	}

	switch b.skip {
	case SkipProjected:
		return x.Add(b.shortcut.Forward(input))
	case SkipIdentity:
		return x.Add(input)
	default:
		return x
	}
}

// SetTraining switches every batch norm in the block.
func (b *Block[B]) SetTraining(training bool) {
	for _, sep := range b.sep {
		sep.SetTraining(training)
	}
	if b.shortcut != nil {
		b.shortcut.SetTraining(training)
	}
}

// Parameters returns all trainable parameters.
func (b *Block[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, sep := range b.sep {
		params = append(params, sep.Parameters()...)
	}
	if b.shortcut != nil {
		params = append(params, b.shortcut.Parameters()...)
	}
	return params
}

// StateDict returns the state of all sub-layers.
func (b *Block[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, sep := range b.sep {
		layers.MergeStateDict(stateDict, sep.StateDict())
	}
	if b.shortcut != nil {
		layers.MergeStateDict(stateDict, b.shortcut.StateDict())
	}
	return stateDict
}

// LoadStateDict loads the state of all sub-layers. Nothing is written
// unless every entry is present with the expected shape and dtype.
func (b *Block[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := layers.ValidateStateDict(b.StateDict(), stateDict); err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}
	for _, sep := range b.sep {
		if err := sep.LoadStateDict(stateDict); err != nil {
			return err
		}
	}
	if b.shortcut != nil {
		return b.shortcut.LoadStateDict(stateDict)
	}
	return nil
}

// InChannels returns the input channel count.
func (b *Block[B]) InChannels() int { return b.inChannels }

// OutChannels returns the three output channel counts.
func (b *Block[B]) OutChannels() []int { return append([]int(nil), b.outChannels...) }

// Strides returns the three separable convolution strides.
func (b *Block[B]) Strides() []int { return append([]int(nil), b.strides...) }

// FilterSizes returns the three separable convolution kernel sizes.
func (b *Block[B]) FilterSizes() []int { return append([]int(nil), b.filterSizes...) }

// Dilation returns the depthwise dilation.
func (b *Block[B]) Dilation() int { return b.dilation }

// Skip returns the skip path kind.
func (b *Block[B]) Skip() SkipKind { return b.skip }

// ActivationInSeparable reports whether ReLU runs inside the separable convs.
func (b *Block[B]) ActivationInSeparable() bool { return b.actInSep }

// Name returns the checkpoint name prefix.
func (b *Block[B]) Name() string { return b.name }

// String returns a string representation of the block.
func (b *Block[B]) String() string {
	return fmt.Sprintf("XceptionBlock(%s, in=%d, out=%v, strides=%v, dilation=%d, skip=%s, act_in_sep=%v)",
		b.name, b.inChannels, b.outChannels, b.strides, b.dilation, b.skip, b.actInSep)
}
