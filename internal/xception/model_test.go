package xception

import (
	"testing"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/xception/internal/layers"
)

func TestNewModel_StrideTrace(t *testing.T) {
	backend := cpu.New()

	for _, variant := range Variants() {
		t.Run(string(variant), func(t *testing.T) {
			model, err := NewModel(string(variant), DefaultClassDim, backend)
			require.NoError(t, err)

			for _, p := range model.StrideTrace() {
				assert.LessOrEqual(t, p.Accumulated, DefaultOutputStride, "%s block%d", p.Stage, p.Block)
				assert.Contains(t, []int{1, p.Requested}, p.Effective)
			}
			assert.Equal(t, 32, model.FinalStride())
			assert.Equal(t, 2048, model.FeatureChannels())
			assert.Equal(t, model.ExitFlow()[1].OutChannels()[2], model.FeatureChannels())
		})
	}
}

// TestNewModel_ExitStrideClipped checks that the exit flow's stride-2
// request is clipped once the entry flow has reached the cap.
func TestNewModel_ExitStrideClipped(t *testing.T) {
	model, err := NewModel("xception_65", 10, cpu.New())
	require.NoError(t, err)

	trace := model.StrideTrace()
	require.Len(t, trace, 3+16+2)

	assert.Equal(t, []int{4, 8, 16}, []int{trace[0].Accumulated, trace[1].Accumulated, trace[2].Accumulated})

	exit1 := trace[3+16]
	assert.Equal(t, exitFlowStage, exit1.Stage)
	assert.Equal(t, 2, exit1.Requested)
	assert.Equal(t, 2, exit1.Effective)
	assert.Equal(t, 32, exit1.Accumulated)
}

func TestNewModel_Topology(t *testing.T) {
	backend := cpu.New()

	tests := []struct {
		variant string
		entry   int
		middle  int
	}{
		{"xception_41", 3, 8},
		{"xception_65", 3, 16},
		{"xception_71", 5, 16},
	}
	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			model, err := NewModel(tt.variant, 7, backend)
			require.NoError(t, err)

			assert.Len(t, model.EntryFlow(), tt.entry)
			assert.Len(t, model.MiddleFlow(), tt.middle)
			assert.Equal(t, 7, model.ClassDim())
			assert.Equal(t, Variant(tt.variant), model.Backbone())

			for _, block := range model.EntryFlow() {
				assert.Equal(t, SkipProjected, block.Skip())
				assert.False(t, block.ActivationInSeparable())
			}
			for _, block := range model.MiddleFlow() {
				assert.Equal(t, SkipNone, block.Skip())
				assert.Equal(t, []int{728, 728, 728}, block.OutChannels())
			}

			exit := model.ExitFlow()
			assert.Equal(t, SkipProjected, exit[0].Skip())
			assert.Equal(t, []int{728, 1024, 1024}, exit[0].OutChannels())
			assert.Equal(t, SkipNone, exit[1].Skip())
			assert.Equal(t, 2, exit[1].Dilation())
			assert.True(t, exit[1].ActivationInSeparable())
			assert.Equal(t, []int{1536, 1536, 2048}, exit[1].OutChannels())
		})
	}
}

func TestNewModel_Errors(t *testing.T) {
	backend := cpu.New()

	_, err := NewModel("xception_99", DefaultClassDim, backend)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewModel("xception_41", 0, backend)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestModel_StateDictNames(t *testing.T) {
	model, err := NewModel("xception_41", 5, cpu.New())
	require.NoError(t, err)

	sd := model.StateDict()
	for _, key := range []string{
		"xception_41/entry_flow/conv1/weights",
		"xception_41/entry_flow/conv1/BatchNorm/moving_mean",
		"xception_41/entry_flow/conv2/weights",
		"xception_41/entry_flow/block1/separable_conv1/depthwise/weights",
		"xception_41/entry_flow/block1/shortcut/weights",
		"xception_41/middle_flow/block8/separable_conv3/pointwise/BatchNorm/beta",
		"xception_41/exit_flow/block1/shortcut/BatchNorm/moving_variance",
		"xception_41/exit_flow/block2/separable_conv3/pointwise/weights",
		"fc_weights",
		"fc_bias",
	} {
		assert.Contains(t, sd, key)
	}
	assert.NotContains(t, sd, "xception_41/middle_flow/block1/shortcut/weights")
	assert.NotContains(t, sd, "xception_41/exit_flow/block2/shortcut/weights")

	assert.Equal(t, tensor.Shape{5, 2048}, sd["fc_weights"].Shape())
	assert.Equal(t, tensor.Shape{32, 3, 3, 3}, sd["xception_41/entry_flow/conv1/weights"].Shape())

	err = model.LoadStateDict(map[string]*tensor.RawTensor{})
	assert.ErrorIs(t, err, layers.ErrMissingKey)
}

func TestModel_LoadStateDictIsAtomic(t *testing.T) {
	backend := cpu.New()
	src, err := NewModel("xception_41", 5, backend)
	require.NoError(t, err)
	dst, err := NewModel("xception_41", 5, backend)
	require.NoError(t, err)

	const stem = "xception_41/entry_flow/conv1/weights"
	before := append([]float32(nil), dst.StateDict()[stem].AsFloat32()...)

	t.Run("shape mismatch in the head", func(t *testing.T) {
		sd := make(map[string]*tensor.RawTensor)
		layers.MergeStateDict(sd, src.StateDict())
		sd["fc_bias"] = tensor.Zeros[float32](tensor.Shape{6}, backend).Raw()

		err := dst.LoadStateDict(sd)
		assert.ErrorIs(t, err, layers.ErrShapeMismatch)
		assert.Equal(t, before, dst.StateDict()[stem].AsFloat32())
	})

	t.Run("missing exit flow key", func(t *testing.T) {
		sd := make(map[string]*tensor.RawTensor)
		layers.MergeStateDict(sd, src.StateDict())
		delete(sd, "xception_41/exit_flow/block2/separable_conv3/pointwise/BatchNorm/moving_variance")

		err := dst.LoadStateDict(sd)
		assert.ErrorIs(t, err, layers.ErrMissingKey)
		assert.Equal(t, before, dst.StateDict()[stem].AsFloat32())
	})

	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	assert.Equal(t, src.StateDict()[stem].AsFloat32(), dst.StateDict()[stem].AsFloat32())
}

func TestModel_SetTraining(t *testing.T) {
	model, err := NewModel("xception_41", 3, cpu.New())
	require.NoError(t, err)

	assert.False(t, model.Training())
	model.SetTraining(true)
	assert.True(t, model.Training())
	assert.Greater(t, model.NumParameters(), 0)
}

func TestModel_ForwardSmall(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping forward pass in short mode")
	}

	backend := cpu.New()
	model, err := NewModel("xception_41", 10, backend)
	require.NoError(t, err)

	x := tensor.Randn[float32](tensor.Shape{2, 3, 32, 32}, backend)
	logits := model.Forward(x)
	assert.Equal(t, tensor.Shape{2, 10}, logits.Shape())
}

func TestModel_Forward224(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 224x224 forward pass in short mode")
	}

	backend := cpu.New()
	model, err := NewModel("xception_65", DefaultClassDim, backend)
	require.NoError(t, err)

	x := tensor.Randn[float32](tensor.Shape{1, 3, 224, 224}, backend)
	assert.Equal(t, tensor.Shape{1, DefaultClassDim}, model.Forward(x).Shape())
}

func TestModel_ForwardPanicsOnBadInput(t *testing.T) {
	backend := cpu.New()
	model, err := NewModel("xception_41", 10, backend)
	require.NoError(t, err)

	assert.Panics(t, func() {
		model.Forward(tensor.Zeros[float32](tensor.Shape{1, 1, 32, 32}, backend))
	})
}
