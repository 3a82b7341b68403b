// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package xception

import (
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/xception/internal/weights"
)

// Weight loading errors.
var (
	ErrNotFound          = weights.ErrNotFound
	ErrUnsupportedFormat = weights.ErrUnsupportedFormat
	ErrNoFetcher         = weights.ErrNoFetcher
	ErrLayout            = weights.ErrLayout
)

// MetaTransposed is the safetensors metadata key listing the 2D tensors
// stored as [in, out].
const MetaTransposed = weights.MetaTransposed

// Fetcher makes the file behind a URL available locally and returns its path.
type Fetcher = weights.Fetcher

// Loader is the default WeightLoader.
type Loader[B tensor.Backend] = weights.Loader[B]

// Compile-time check that Loader implements WeightLoader.
var _ WeightLoader[tensor.Backend] = (*Loader[tensor.Backend])(nil)

// NewLoader creates a loader reading ".safetensors" files.
// fetch may be nil, in which case loading by URL fails with ErrNoFetcher.
func NewLoader[B tensor.Backend](backend B, fetch Fetcher) *Loader[B] {
	return weights.NewLoader(backend, fetch)
}

// Save writes a model's state dict to a ".safetensors" file. A path
// without extension gets ".safetensors".
func Save[B tensor.Backend](model *Model[B], path string) error {
	return weights.Save[B](model, path, string(model.Backbone()))
}
