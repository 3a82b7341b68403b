package xception

import (
	"context"
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/xception/internal/weights"
)

// ModelURLs maps variants to their published ImageNet weights. The files
// are PaddlePaddle ".pdparams" checkpoints, which the default loader does
// not read: the loader's Fetcher must return a converted ".safetensors"
// file for Pretrained: true to succeed.
var ModelURLs = map[Variant]string{
	Xception41: "https://paddle-imagenet-models-name.bj.bcebos.com/dygraph/Xception41_deeplab_pretrained.pdparams",
	Xception65: "https://paddle-imagenet-models-name.bj.bcebos.com/dygraph/Xception65_deeplab_pretrained.pdparams",
}

// WeightLoader loads weights into a module from a local path or a URL.
type WeightLoader[B tensor.Backend] interface {
	LoadPath(ctx context.Context, module nn.Module[B], path string) error
	LoadURL(ctx context.Context, module nn.Module[B], url string, useSSLD bool) error
}

// Options configures the factory functions.
type Options[B tensor.Backend] struct {
	// Pretrained is nil or false (no loading), true (load the variant's
	// registered URL) or a string path. Any other value is rejected.
	Pretrained any
	// UseSSLD selects the distilled weights when loading from URL.
	UseSSLD bool
	// ClassDim defaults to DefaultClassDim.
	ClassDim int
	// Loader defaults to weights.NewLoader(backend, nil).
	Loader WeightLoader[B]
}

// New builds variant and applies opts.Pretrained.
func New[B tensor.Backend](ctx context.Context, variant Variant, backend B, opts Options[B]) (*Model[B], error) {
	classDim := opts.ClassDim
	if classDim == 0 {
		classDim = DefaultClassDim
	}

	model, err := NewModel(string(variant), classDim, backend)
	if err != nil {
		return nil, err
	}

	loader := opts.Loader
	if loader == nil {
		loader = weights.NewLoader(backend, nil)
	}
	if err := LoadPretrained(ctx, model, opts.Pretrained, opts.UseSSLD, loader); err != nil {
		return nil, err
	}
	return model, nil
}

// LoadPretrained dispatches on the type of pretrained. The type is checked
// before the loader is touched.
func LoadPretrained[B tensor.Backend](
	ctx context.Context,
	model *Model[B],
	pretrained any,
	useSSLD bool,
	loader WeightLoader[B],
) error {
	switch source := pretrained.(type) {
	case nil:
		return nil
	case bool:
		if !source {
			return nil
		}
		url, ok := ModelURLs[model.Backbone()]
		if !ok {
			return fmt.Errorf("%w: no pretrained weights registered for %s", ErrConfiguration, model.Backbone())
		}
		if loader == nil {
			return fmt.Errorf("%w: no weight loader", ErrConfiguration)
		}
		return loader.LoadURL(ctx, model, url, useSSLD)
	case string:
		if loader == nil {
			return fmt.Errorf("%w: no weight loader", ErrConfiguration)
		}
		return loader.LoadPath(ctx, model, source)
	default:
		return fmt.Errorf("%w: pretrained type %T is not available, use string or bool", ErrConfiguration, pretrained)
	}
}
