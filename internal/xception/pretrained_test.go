package xception

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/xception/internal/weights"
)

type Backend = *cpu.Backend

// recordingLoader records calls instead of touching the filesystem.
type recordingLoader struct {
	paths []string
	urls  []string
	ssld  []bool
	err   error
}

func (l *recordingLoader) LoadPath(_ context.Context, _ nn.Module[Backend], path string) error {
	l.paths = append(l.paths, path)
	return l.err
}

func (l *recordingLoader) LoadURL(_ context.Context, _ nn.Module[Backend], url string, useSSLD bool) error {
	l.urls = append(l.urls, url)
	l.ssld = append(l.ssld, useSSLD)
	return l.err
}

func TestNew_NoPretrained(t *testing.T) {
	backend := cpu.New()

	for _, pretrained := range []any{nil, false} {
		loader := &recordingLoader{}
		model, err := New(context.Background(), Xception41, backend, Options[Backend]{
			Pretrained: pretrained,
			Loader:     loader,
		})
		require.NoError(t, err)
		assert.Equal(t, DefaultClassDim, model.ClassDim())
		assert.Empty(t, loader.paths)
		assert.Empty(t, loader.urls)
	}
}

func TestNew_PretrainedPath(t *testing.T) {
	loader := &recordingLoader{}
	model, err := New(context.Background(), Xception65, cpu.New(), Options[Backend]{
		Pretrained: "/weights/xception65",
		ClassDim:   21,
		Loader:     loader,
	})
	require.NoError(t, err)

	assert.Equal(t, 21, model.ClassDim())
	assert.Equal(t, []string{"/weights/xception65"}, loader.paths)
	assert.Empty(t, loader.urls)
}

func TestNew_PretrainedURL(t *testing.T) {
	for _, variant := range []Variant{Xception41, Xception65} {
		t.Run(string(variant), func(t *testing.T) {
			loader := &recordingLoader{}
			_, err := New(context.Background(), variant, cpu.New(), Options[Backend]{
				Pretrained: true,
				UseSSLD:    true,
				Loader:     loader,
			})
			require.NoError(t, err)

			require.Len(t, loader.urls, 1)
			assert.Equal(t, ModelURLs[variant], loader.urls[0])
			assert.Equal(t, []bool{true}, loader.ssld)
			assert.Empty(t, loader.paths)
		})
	}
}

func TestNew_Xception71HasNoURL(t *testing.T) {
	loader := &recordingLoader{}
	_, err := New(context.Background(), Xception71, cpu.New(), Options[Backend]{
		Pretrained: true,
		Loader:     loader,
	})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Empty(t, loader.urls)
}

func TestNew_UnsupportedPretrainedType(t *testing.T) {
	for _, pretrained := range []any{123, 1.5, []string{"a"}} {
		loader := &recordingLoader{}
		_, err := New(context.Background(), Xception41, cpu.New(), Options[Backend]{
			Pretrained: pretrained,
			Loader:     loader,
		})
		require.ErrorIs(t, err, ErrConfiguration)
		assert.Contains(t, err.Error(), "use string or bool")
		assert.Empty(t, loader.paths)
		assert.Empty(t, loader.urls)
	}
}

func TestNew_LoaderErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(context.Background(), Xception41, cpu.New(), Options[Backend]{
		Pretrained: "model.safetensors",
		Loader:     &recordingLoader{err: boom},
	})
	assert.ErrorIs(t, err, boom)
}

func TestNew_DefaultLoaderWithoutFetcher(t *testing.T) {
	_, err := New(context.Background(), Xception65, cpu.New(), Options[Backend]{Pretrained: true})
	assert.ErrorIs(t, err, weights.ErrNoFetcher)
}

func TestNew_DefaultLoaderRoundTrip(t *testing.T) {
	backend := cpu.New()
	ctx := context.Background()

	src, err := New(ctx, Xception41, backend, Options[Backend]{ClassDim: 4})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "x41.safetensors")
	require.NoError(t, weights.Save[Backend](src, path, string(src.Backbone())))

	dst, err := New(ctx, Xception41, backend, Options[Backend]{ClassDim: 4, Pretrained: path})
	require.NoError(t, err)

	want := src.StateDict()
	got := dst.StateDict()
	require.Len(t, got, len(want))
	for _, key := range []string{
		"fc_weights",
		"xception_41/entry_flow/conv1/weights",
		"xception_41/exit_flow/block2/separable_conv3/pointwise/BatchNorm/moving_variance",
	} {
		assert.Equal(t, want[key].AsFloat32(), got[key].AsFloat32(), key)
	}
}

func TestNew_PretrainedURLNeedsConvertedFile(t *testing.T) {
	dir := t.TempDir()
	var fetched []string
	fetch := func(_ context.Context, url string) (string, error) {
		fetched = append(fetched, url)
		path := filepath.Join(dir, filepath.Base(url))
		return path, os.WriteFile(path, []byte("paddle"), 0o600)
	}

	backend := cpu.New()
	_, err := New(context.Background(), Xception41, backend, Options[Backend]{
		Pretrained: true,
		Loader:     weights.NewLoader(backend, fetch),
	})
	assert.ErrorIs(t, err, weights.ErrUnsupportedFormat)
	assert.Equal(t, []string{ModelURLs[Xception41]}, fetched)
}
