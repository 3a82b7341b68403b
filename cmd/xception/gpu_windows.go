//go:build windows

package main

import (
	"context"
	"errors"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/webgpu"
)

func inferGPU(ctx context.Context, f *inferFlags) error {
	if !webgpu.IsAvailable() {
		return errors.New("webgpu is not available on this system")
	}
	gpu, err := webgpu.New()
	if err != nil {
		return err
	}
	defer gpu.Release()

	if f.autodiff {
		return runInfer(ctx, autodiff.New(gpu), f)
	}
	return runInfer(ctx, gpu, f)
}
