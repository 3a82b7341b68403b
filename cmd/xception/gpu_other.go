//go:build !windows

package main

import (
	"context"
	"errors"
)

func inferGPU(context.Context, *inferFlags) error {
	return errors.New("the webgpu backend is only built on windows")
}
