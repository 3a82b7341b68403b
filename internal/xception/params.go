// Package xception builds the Xception-DeepLab backbone: the per-variant
// bottleneck tables, the three-separable-conv XceptionBlock and the
// entry/middle/exit flow topology with output-stride bookkeeping.
package xception

import (
	"fmt"

	"github.com/born-ml/xception/internal/layers"
)

// ErrConfiguration reports an invalid construction-time argument.
var ErrConfiguration = layers.ErrConfiguration

// Variant names a supported backbone depth.
type Variant string

// Supported variants.
const (
	Xception41 Variant = "xception_41"
	Xception65 Variant = "xception_65"
	Xception71 Variant = "xception_71"
)

// Variants returns all supported variants in depth order.
func Variants() []Variant {
	return []Variant{Xception41, Xception65, Xception71}
}

// EntryFlowParams describes the entry flow: per-block strides and output channels.
type EntryFlowParams struct {
	BlockNum int
	Strides  []int
	Channels []int
}

// MiddleFlowParams describes the middle flow: a uniform stride and channel count.
type MiddleFlowParams struct {
	BlockNum int
	Stride   int
	Channels int
}

// ExitFlowParams describes the exit flow: two blocks with a channel triple each.
type ExitFlowParams struct {
	BlockNum int
	Strides  []int
	Channels [][]int
}

// BottleneckParams is the structural table row of one variant.
type BottleneckParams struct {
	Entry  EntryFlowParams
	Middle MiddleFlowParams
	Exit   ExitFlowParams
}

// GenBottleneckParams returns the table row for backbone.
func GenBottleneckParams(backbone string) (BottleneckParams, error) {
	exit := ExitFlowParams{
		BlockNum: 2,
		Strides:  []int{2, 1},
		Channels: [][]int{{728, 1024, 1024}, {1536, 1536, 2048}},
	}

	switch Variant(backbone) {
	case Xception65:
		return BottleneckParams{
			Entry:  EntryFlowParams{BlockNum: 3, Strides: []int{2, 2, 2}, Channels: []int{128, 256, 728}},
			Middle: MiddleFlowParams{BlockNum: 16, Stride: 1, Channels: 728},
			Exit:   exit,
		}, nil
	case Xception41:
		return BottleneckParams{
			Entry:  EntryFlowParams{BlockNum: 3, Strides: []int{2, 2, 2}, Channels: []int{128, 256, 728}},
			Middle: MiddleFlowParams{BlockNum: 8, Stride: 1, Channels: 728},
			Exit:   exit,
		}, nil
	case Xception71:
		return BottleneckParams{
			Entry:  EntryFlowParams{BlockNum: 5, Strides: []int{2, 1, 2, 1, 2}, Channels: []int{128, 256, 256, 728, 728}},
			Middle: MiddleFlowParams{BlockNum: 16, Stride: 1, Channels: 728},
			Exit:   exit,
		}, nil
	default:
		return BottleneckParams{}, fmt.Errorf(
			"%w: xception backbone only supports xception_41/xception_65/xception_71, got %q",
			ErrConfiguration, backbone)
	}
}

// checkData broadcasts a single value to number entries, or validates that
// data already has exactly number entries.
func checkData(data []int, number int) ([]int, error) {
	switch len(data) {
	case 1:
		out := make([]int, number)
		for i := range out {
			out[i] = data[0]
		}
		return out, nil
	case number:
		return append([]int(nil), data...), nil
	default:
		return nil, fmt.Errorf("%w: expected 1 or %d values, got %d", ErrConfiguration, number, len(data))
	}
}

// stagePlan is a stage descriptor normalized to one entry per block.
type stagePlan struct {
	strides  []int
	channels [][]int
}

func (p EntryFlowParams) plan() (stagePlan, error) {
	strides, err := checkData(p.Strides, p.BlockNum)
	if err != nil {
		return stagePlan{}, fmt.Errorf("entry flow strides: %w", err)
	}
	chns, err := checkData(p.Channels, p.BlockNum)
	if err != nil {
		return stagePlan{}, fmt.Errorf("entry flow channels: %w", err)
	}
	return stagePlan{strides: strides, channels: scalarTriples(chns)}, nil
}

func (p MiddleFlowParams) plan() (stagePlan, error) {
	strides, err := checkData([]int{p.Stride}, p.BlockNum)
	if err != nil {
		return stagePlan{}, fmt.Errorf("middle flow strides: %w", err)
	}
	chns, err := checkData([]int{p.Channels}, p.BlockNum)
	if err != nil {
		return stagePlan{}, fmt.Errorf("middle flow channels: %w", err)
	}
	return stagePlan{strides: strides, channels: scalarTriples(chns)}, nil
}

func (p ExitFlowParams) plan() (stagePlan, error) {
	if p.BlockNum != 2 {
		return stagePlan{}, fmt.Errorf("%w: exit flow needs exactly 2 blocks, got %d", ErrConfiguration, p.BlockNum)
	}
	strides, err := checkData(p.Strides, p.BlockNum)
	if err != nil {
		return stagePlan{}, fmt.Errorf("exit flow strides: %w", err)
	}
	if len(p.Channels) != p.BlockNum {
		return stagePlan{}, fmt.Errorf("%w: exit flow channels: expected %d triples, got %d",
			ErrConfiguration, p.BlockNum, len(p.Channels))
	}
	chns := make([][]int, p.BlockNum)
	for i, c := range p.Channels {
		if chns[i], err = Broadcast3(c); err != nil {
			return stagePlan{}, fmt.Errorf("exit flow block%d channels: %w", i+1, err)
		}
	}
	return stagePlan{strides: strides, channels: chns}, nil
}

func scalarTriples(chns []int) [][]int {
	out := make([][]int, len(chns))
	for i, c := range chns {
		out[i] = []int{c, c, c}
	}
	return out
}
