package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/xception/internal/report"
	"github.com/born-ml/xception/xception"
)

// modelFlags are shared by every command that builds a model.
type modelFlags struct {
	variant    string
	classes    int
	pretrained string
	ssld       bool
}

func (f *modelFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.variant, "variant", string(xception.Xception65), "Backbone: xception_41, xception_65 or xception_71")
	fs.IntVar(&f.classes, "classes", xception.DefaultClassDim, "Number of output classes")
	fs.StringVar(&f.pretrained, "pretrained", "", "Weights: a .safetensors path, or true/false for the registered URL")
	fs.BoolVar(&f.ssld, "ssld", false, "Use the distilled weights when loading from URL")
}

// selector converts the -pretrained flag to the value Options.Pretrained expects.
func (f *modelFlags) selector() any {
	switch f.pretrained {
	case "":
		return nil
	case "true":
		return true
	case "false":
		return false
	default:
		return f.pretrained
	}
}

func buildModel[B tensor.Backend](ctx context.Context, backend B, f *modelFlags) (*xception.Model[B], error) {
	return xception.New(ctx, xception.Variant(f.variant), backend, xception.Options[B]{
		Pretrained: f.selector(),
		UseSSLD:    f.ssld,
		ClassDim:   f.classes,
	})
}

func summaryCmd(args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	var mf modelFlags
	fs.StringVar(&mf.variant, "variant", string(xception.Xception65), "Backbone: xception_41, xception_65 or xception_71")
	fs.IntVar(&mf.classes, "classes", xception.DefaultClassDim, "Number of output classes")
	verbose := fs.Bool("v", false, "Print every layer")
	if err := fs.Parse(args); err != nil {
		return err
	}

	model, err := xception.NewModel(mf.variant, mf.classes, cpu.New())
	if err != nil {
		return err
	}

	fmt.Printf("%s  class_dim=%d  output_stride=%d\n\n", model.Backbone(), model.ClassDim(), model.OutputStride())
	fmt.Printf("%-12s %-6s %-10s %-10s %-12s\n", "stage", "block", "requested", "effective", "accumulated")
	for _, p := range model.StrideTrace() {
		fmt.Printf("%-12s %-6d %-10d %-10d %-12d\n", p.Stage, p.Block, p.Requested, p.Effective, p.Accumulated)
	}
	fmt.Printf("\nfinal stride: %d\n", model.FinalStride())
	fmt.Printf("feature channels: %d\n", model.FeatureChannels())
	fmt.Printf("parameters: %d\n\n", model.NumParameters())

	fmt.Println("weight statistics:")
	for _, s := range report.StageStats(model.StateDict()) {
		fmt.Printf("  %s\n", s)
	}

	if *verbose {
		fmt.Printf("\n%s", model)
	}
	return nil
}

type inferFlags struct {
	modelFlags
	size     int
	batch    int
	topk     int
	backend  string
	autodiff bool
}

func inferCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("infer", flag.ExitOnError)
	var f inferFlags
	f.register(fs)
	fs.IntVar(&f.size, "size", 224, "Input height and width")
	fs.IntVar(&f.batch, "batch", 1, "Batch size")
	fs.IntVar(&f.topk, "topk", 5, "Number of classes to print per sample")
	fs.StringVar(&f.backend, "backend", "cpu", "Backend: cpu or webgpu")
	fs.BoolVar(&f.autodiff, "autodiff", false, "Wrap the backend with autodiff")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if f.size <= 0 || f.batch <= 0 {
		return fmt.Errorf("invalid input size %d or batch %d", f.size, f.batch)
	}

	switch f.backend {
	case "cpu":
		if f.autodiff {
			return runInfer(ctx, autodiff.New(cpu.New()), &f)
		}
		return runInfer(ctx, cpu.New(), &f)
	case "webgpu":
		return inferGPU(ctx, &f)
	default:
		return fmt.Errorf("unknown backend %q (use cpu or webgpu)", f.backend)
	}
}

func runInfer[B tensor.Backend](ctx context.Context, backend B, f *inferFlags) error {
	model, err := buildModel(ctx, backend, &f.modelFlags)
	if err != nil {
		return err
	}

	fmt.Printf("%s on %s: input [%d, 3, %d, %d]\n", model.Backbone(), backend.Name(), f.batch, f.size, f.size)

	x := tensor.Randn[float32](tensor.Shape{f.batch, 3, f.size, f.size}, backend)
	start := time.Now()
	logits := model.Forward(x)
	elapsed := time.Since(start)

	fmt.Printf("output %v in %v\n", logits.Shape(), elapsed.Round(time.Millisecond))

	data := logits.Data()
	for n := 0; n < f.batch; n++ {
		row := data[n*model.ClassDim() : (n+1)*model.ClassDim()]
		fmt.Printf("sample %d:\n", n)
		for _, p := range report.TopK(row, f.topk) {
			fmt.Printf("  %s\n", p)
		}
	}
	return nil
}

func exportCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var mf modelFlags
	mf.register(fs)
	out := fs.String("out", "", "Output .safetensors file (default <variant>.safetensors)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	model, err := buildModel(ctx, cpu.New(), &mf)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = mf.variant + ".safetensors"
	}
	if err := xception.Save(model, path); err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	fmt.Printf("wrote %d tensors (%d parameters) to %s\n", len(model.StateDict()), model.NumParameters(), path)
	return nil
}
