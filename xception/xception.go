// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package xception

import (
	"context"

	"github.com/born-ml/born/tensor"

	"github.com/born-ml/xception/internal/xception"
)

// ErrConfiguration is returned for invalid backbones, block configurations
// and pretrained selectors.
var ErrConfiguration = xception.ErrConfiguration

// Variant names a backbone depth.
type Variant = xception.Variant

// Backbone variants.
const (
	Xception41 = xception.Xception41
	Xception65 = xception.Xception65
	Xception71 = xception.Xception71
)

// Topology defaults.
const (
	DefaultClassDim     = xception.DefaultClassDim
	DefaultOutputStride = xception.DefaultOutputStride
)

// Model is the Xception-DeepLab classifier.
//
// Input:  [batch, 3, height, width]
// Output: [batch, class_dim] logits.
type Model[B tensor.Backend] = xception.Model[B]

// Block is one XceptionBlock.
type Block[B tensor.Backend] = xception.Block[B]

// BlockConfig describes one XceptionBlock.
type BlockConfig = xception.BlockConfig

// SkipKind describes the skip path of a block.
type SkipKind = xception.SkipKind

// StridePoint records the stride bookkeeping of one block.
type StridePoint = xception.StridePoint

// BottleneckParams is the per-stage layout of a backbone.
type BottleneckParams = xception.BottleneckParams

// Options configures the factory functions.
type Options[B tensor.Backend] = xception.Options[B]

// WeightLoader loads weights into a module from a local path or a URL.
type WeightLoader[B tensor.Backend] = xception.WeightLoader[B]

// Variants returns the supported backbones.
func Variants() []Variant {
	return xception.Variants()
}

// GenBottleneckParams returns the stage layout of backbone.
//
// Example:
//
//	params, err := xception.GenBottleneckParams("xception_65")
//	// params.Middle.BlockNum == 16
func GenBottleneckParams(backbone string) (BottleneckParams, error) {
	return xception.GenBottleneckParams(backbone)
}

// Broadcast3 expands a single value to three, or copies a three-element slice.
func Broadcast3(values []int) ([]int, error) {
	return xception.Broadcast3(values)
}

// DefaultBlockConfig returns a config with 3x3 filters, dilation 1, a
// projected skip and pre-activation.
func DefaultBlockConfig(inChannels int, outChannels, strides []int, name string) BlockConfig {
	return xception.DefaultBlockConfig(inChannels, outChannels, strides, name)
}

// NewBlock builds an XceptionBlock.
func NewBlock[B tensor.Backend](cfg BlockConfig, backend B) (*Block[B], error) {
	return xception.NewBlock(cfg, backend)
}

// NewModel builds a randomly initialized model without loading weights.
func NewModel[B tensor.Backend](backbone string, classDim int, backend B) (*Model[B], error) {
	return xception.NewModel(backbone, classDim, backend)
}

// New builds variant and applies opts.Pretrained.
func New[B tensor.Backend](ctx context.Context, variant Variant, backend B, opts Options[B]) (*Model[B], error) {
	return xception.New(ctx, variant, backend, opts)
}

// Xception41Deeplab builds the 41-layer backbone.
func Xception41Deeplab[B tensor.Backend](ctx context.Context, backend B, opts Options[B]) (*Model[B], error) {
	return xception.New(ctx, Xception41, backend, opts)
}

// Xception65Deeplab builds the 65-layer backbone.
func Xception65Deeplab[B tensor.Backend](ctx context.Context, backend B, opts Options[B]) (*Model[B], error) {
	return xception.New(ctx, Xception65, backend, opts)
}

// Xception71Deeplab builds the 71-layer backbone. No pretrained URL is
// registered for it, so Pretrained: true fails with ErrConfiguration.
func Xception71Deeplab[B tensor.Backend](ctx context.Context, backend B, opts Options[B]) (*Model[B], error) {
	return xception.New(ctx, Xception71, backend, opts)
}

// LoadPretrained applies a pretrained selector to an existing model.
func LoadPretrained[B tensor.Backend](ctx context.Context, model *Model[B], pretrained any, useSSLD bool, loader WeightLoader[B]) error {
	return xception.LoadPretrained(ctx, model, pretrained, useSSLD, loader)
}

// ModelURL returns the registered pretrained URL of variant.
func ModelURL(variant Variant) (string, bool) {
	url, ok := xception.ModelURLs[variant]
	return url, ok
}
