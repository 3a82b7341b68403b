package weights

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Metadata keys written by Save.
const (
	MetaModel    = "model"
	MetaBackbone = "backbone"
	// MetaTransposed lists, comma separated, the 2D tensors stored as
	// [in, out] that must be transposed on load.
	MetaTransposed = "transposed"
)

// safetensors dtype names.
var dtypeNames = map[tensor.DataType]string{
	tensor.Float32: "F32",
	tensor.Float64: "F64",
	tensor.Int32:   "I32",
	tensor.Int64:   "I64",
	tensor.Uint8:   "U8",
	tensor.Bool:    "BOOL",
}

type headerEntry struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Save writes module's state dict to a safetensors file tagged with the
// backbone name. A path without extension gets ".safetensors".
func Save[B tensor.Backend](module nn.Module[B], path, backbone string) error {
	if filepath.Ext(path) == "" {
		path += Extension
	}
	if DetectFormat(path) != FormatSafeTensors {
		return fmt.Errorf("%w: %s (expected %s)", ErrUnsupportedFormat, path, Extension)
	}
	return WriteSafeTensors(path, module.StateDict(), map[string]string{
		MetaModel:    "XceptionDeeplab",
		MetaBackbone: backbone,
	})
}

// WriteSafeTensors writes stateDict in the safetensors layout: an 8-byte
// little-endian header length, a JSON header and the tensor bytes in key order.
func WriteSafeTensors(path string, stateDict map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}
	var offset int64
	for _, name := range names {
		raw := stateDict[name]
		dtype, ok := dtypeNames[raw.DType()]
		if !ok {
			return fmt.Errorf("%w: %s: dtype %v", ErrUnsupportedFormat, name, raw.DType())
		}
		size := int64(raw.ByteSize())
		header[name] = headerEntry{
			DType:       dtype,
			Shape:       append([]int{}, raw.Shape()...),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriter(file)

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerBytes))); err != nil {
		_ = file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := w.Write(headerBytes); err != nil {
		_ = file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, name := range names {
		if _, err := w.Write(stateDict[name].Data()[:stateDict[name].ByteSize()]); err != nil {
			_ = file.Close()
			return fmt.Errorf("write %s: %s: %w", path, name, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}
