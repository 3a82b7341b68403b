// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package xception provides the Xception-DeepLab image classification
// backbones (Xception-41, -65 and -71) built on Born layers.
//
// # Overview
//
// A model is a stem of two strided convolutions, an entry flow, a middle
// flow and a two-block exit flow of XceptionBlocks (three separable
// convolutions with an optional residual), followed by dropout, global
// average pooling and a linear classifier. The accumulated downsampling
// factor is capped at 32: a block whose stride would exceed the cap runs
// with stride 1 instead.
//
// # Basic Usage
//
//	import (
//	    "context"
//
//	    "github.com/born-ml/born/backend/cpu"
//	    "github.com/born-ml/born/tensor"
//	    "github.com/born-ml/xception/xception"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    model, err := xception.Xception65Deeplab(context.Background(), backend, xception.Options[*cpu.Backend]{})
//	    if err != nil {
//	        panic(err)
//	    }
//
//	    x := tensor.Randn[float32](tensor.Shape{1, 3, 224, 224}, backend)
//	    logits := model.Forward(x) // [1, 1000]
//	}
//
// # Pretrained Weights
//
// Options.Pretrained selects the weights:
//   - nil or false: random initialization
//   - true: the variant's registered URL (Xception-41 and -65 only),
//     fetched through the loader's Fetcher
//   - string: a local ".safetensors" file; the extension may be omitted
//
// Any other type is rejected with ErrConfiguration.
//
// The registered URLs serve PaddlePaddle ".pdparams" checkpoints, which are
// not read here. A Fetcher used with Pretrained: true must return the path
// of a converted ".safetensors" file; anything else fails with
// ErrUnsupportedFormat. Converted checkpoints that keep the classifier
// weight as [in, out] list it under the "transposed" metadata key, or are
// loaded with Loader.WithTransposed("fc_weights").
package xception
