package xception_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/born-ml/born/backend/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/xception/xception"
)

func TestFactories(t *testing.T) {
	backend := cpu.New()
	ctx := context.Background()
	opts := xception.Options[*cpu.Backend]{ClassDim: 3}

	factories := map[xception.Variant]func(context.Context, *cpu.Backend, xception.Options[*cpu.Backend]) (*xception.Model[*cpu.Backend], error){
		xception.Xception41: xception.Xception41Deeplab[*cpu.Backend],
		xception.Xception65: xception.Xception65Deeplab[*cpu.Backend],
		xception.Xception71: xception.Xception71Deeplab[*cpu.Backend],
	}
	for variant, factory := range factories {
		model, err := factory(ctx, backend, opts)
		require.NoError(t, err, variant)
		assert.Equal(t, variant, model.Backbone())
		assert.Equal(t, 3, model.ClassDim())
	}
}

func TestModelURL(t *testing.T) {
	url, ok := xception.ModelURL(xception.Xception65)
	assert.True(t, ok)
	assert.Contains(t, url, "Xception65_deeplab_pretrained")

	_, ok = xception.ModelURL(xception.Xception71)
	assert.False(t, ok)
}

func TestXception71PretrainedTrue(t *testing.T) {
	_, err := xception.Xception71Deeplab(context.Background(), cpu.New(), xception.Options[*cpu.Backend]{Pretrained: true})
	assert.ErrorIs(t, err, xception.ErrConfiguration)
}

func TestSaveAndLoad(t *testing.T) {
	backend := cpu.New()
	ctx := context.Background()

	model, err := xception.NewModel("xception_41", 2, backend)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "x41")
	require.NoError(t, xception.Save(model, path))
	assert.FileExists(t, path+".safetensors")
	assert.ErrorIs(t, xception.Save(model, path+".born"), xception.ErrUnsupportedFormat)

	loaded, err := xception.Xception41Deeplab(ctx, backend, xception.Options[*cpu.Backend]{
		ClassDim:   2,
		Pretrained: path,
		Loader:     xception.NewLoader(backend, nil),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StateDict()["fc_bias"].AsFloat32(), loaded.StateDict()["fc_bias"].AsFloat32())
}

func TestGenBottleneckParams(t *testing.T) {
	params, err := xception.GenBottleneckParams("xception_65")
	require.NoError(t, err)
	assert.Equal(t, 16, params.Middle.BlockNum)

	_, err = xception.GenBottleneckParams("resnet_50")
	assert.ErrorIs(t, err, xception.ErrConfiguration)
}
