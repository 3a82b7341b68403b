// Package weights loads and stores the parameters of Born modules as
// safetensors files.
//
// Files are read with Born's loader.OpenModel and written by Save. Remote
// weights go through a caller-supplied Fetcher that turns a URL into a local
// file; downloading, caching and converting foreign checkpoint formats are
// the fetcher's business.
package weights

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/born-ml/born/loader"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Format is an on-disk weight format.
type Format int

// Supported formats.
const (
	FormatUnknown Format = iota
	FormatSafeTensors
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatSafeTensors:
		return "safetensors"
	default:
		return "unknown"
	}
}

// Extension is the file extension of FormatSafeTensors.
const Extension = ".safetensors"

// DetectFormat returns the format implied by the file extension.
func DetectFormat(path string) Format {
	if strings.EqualFold(filepath.Ext(path), Extension) {
		return FormatSafeTensors
	}
	return FormatUnknown
}

// ResolvePath returns path if it is a regular file, otherwise path with
// the ".safetensors" extension appended if that file exists.
func ResolvePath(path string) (string, error) {
	for _, candidate := range []string{path, path + Extension} {
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, path)
}

// SSLDURL rewrites a pretrained URL to its distilled variant.
func SSLDURL(url string) string {
	return strings.ReplaceAll(url, "_pretrained", "_ssld_pretrained")
}

// Fetcher makes the weights behind url available as a local safetensors
// file and returns its path.
type Fetcher func(ctx context.Context, url string) (string, error)

// Loader loads weights for modules running on backend.
type Loader[B tensor.Backend] struct {
	backend    B
	fetch      Fetcher
	transposed []string
}

// NewLoader creates a loader. fetch may be nil, in which case LoadURL fails
// with ErrNoFetcher.
func NewLoader[B tensor.Backend](backend B, fetch Fetcher) *Loader[B] {
	return &Loader[B]{backend: backend, fetch: fetch}
}

// WithTransposed returns a copy of l that transposes the named 2D tensors
// on load, in addition to those listed under MetaTransposed in the file.
// Use it for checkpoints that store linear weights as [in, out].
func (l *Loader[B]) WithTransposed(names ...string) *Loader[B] {
	out := *l
	out.transposed = append(append([]string(nil), l.transposed...), names...)
	return &out
}

// LoadPath loads the safetensors file at path into module.
func (l *Loader[B]) LoadPath(ctx context.Context, module nn.Module[B], path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resolved, err := ResolvePath(path)
	if err != nil {
		return err
	}
	if DetectFormat(resolved) != FormatSafeTensors {
		return fmt.Errorf("%w: %s (expected %s)", ErrUnsupportedFormat, resolved, Extension)
	}

	stateDict, err := l.read(module, resolved)
	if err != nil {
		return err
	}
	if err := module.LoadStateDict(stateDict); err != nil {
		return fmt.Errorf("load %s: %w", resolved, err)
	}
	return nil
}

// LoadURL fetches url (rewritten for SSLD when useSSLD is set) and loads it.
func (l *Loader[B]) LoadURL(ctx context.Context, module nn.Module[B], url string, useSSLD bool) error {
	if useSSLD {
		url = SSLDURL(url)
	}
	if l.fetch == nil {
		return fmt.Errorf("%w: %s", ErrNoFetcher, url)
	}

	path, err := l.fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	return l.LoadPath(ctx, module, path)
}

// read loads every tensor of the file that module.StateDict names, applying
// the configured and recorded transpositions.
func (l *Loader[B]) read(module nn.Module[B], path string) (map[string]*tensor.RawTensor, error) {
	reader, err := loader.OpenModel(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = reader.Close()
	}()

	available := make(map[string]bool)
	for _, name := range reader.TensorNames() {
		available[name] = true
	}

	transpose := make(map[string]bool)
	for _, name := range l.transposed {
		transpose[name] = true
	}
	if listed, ok := reader.Metadata()[MetaTransposed].(string); ok {
		for _, name := range splitList(listed) {
			transpose[name] = true
		}
	}

	names := make([]string, 0)
	for name := range module.StateDict() {
		names = append(names, name)
	}
	sort.Strings(names)

	stateDict := make(map[string]*tensor.RawTensor, len(names))
	for _, name := range names {
		if !available[name] {
			continue
		}
		raw, err := reader.LoadTensor(name, l.backend)
		if err != nil {
			return nil, fmt.Errorf("load tensor %s: %w", name, err)
		}
		if transpose[name] {
			if len(raw.Shape()) != 2 {
				return nil, fmt.Errorf("%w: %s: cannot transpose %dD tensor", ErrLayout, name, len(raw.Shape()))
			}
			raw = l.backend.Transpose(raw, 1, 0)
		}
		stateDict[name] = raw
	}
	return stateDict, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
