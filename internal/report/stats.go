package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/born/tensor"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WeightStats summarizes a group of weight tensors.
type WeightStats struct {
	Group   string
	Tensors int
	Count   int
	Mean    float64
	StdDev  float64
	Min     float64
	Max     float64
}

// String returns a one-line representation.
func (s WeightStats) String() string {
	return fmt.Sprintf("%-12s tensors=%-4d params=%-9d mean=%+.5f std=%.5f min=%+.4f max=%+.4f",
		s.Group, s.Tensors, s.Count, s.Mean, s.StdDev, s.Min, s.Max)
}

// Group order used by StageStats.
var groupOrder = []string{"stem", "entry_flow", "middle_flow", "exit_flow", "head"}

// GroupOf maps a checkpoint key to its stage group.
func GroupOf(key string) string {
	switch {
	case strings.HasPrefix(key, "fc_"):
		return "head"
	case strings.Contains(key, "/entry_flow/conv"):
		return "stem"
	case strings.Contains(key, "/entry_flow/"):
		return "entry_flow"
	case strings.Contains(key, "/middle_flow/"):
		return "middle_flow"
	case strings.Contains(key, "/exit_flow/"):
		return "exit_flow"
	default:
		return "other"
	}
}

// StageStats computes statistics of the convolution and linear weights
// (keys ending in "weights") per stage. Batch norm entries are skipped.
func StageStats(stateDict map[string]*tensor.RawTensor) []WeightStats {
	values := make(map[string][]float64)
	counts := make(map[string]int)

	keys := make([]string, 0, len(stateDict))
	for key := range stateDict {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !strings.HasSuffix(key, "weights") {
			continue
		}
		raw := stateDict[key]
		if raw.DType() != tensor.Float32 {
			continue
		}
		group := GroupOf(key)
		for _, v := range raw.AsFloat32() {
			values[group] = append(values[group], float64(v))
		}
		counts[group]++
	}

	groups := append([]string(nil), groupOrder...)
	if _, ok := values["other"]; ok {
		groups = append(groups, "other")
	}

	out := make([]WeightStats, 0, len(groups))
	for _, group := range groups {
		data := values[group]
		if len(data) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(data, nil)
		out = append(out, WeightStats{
			Group:   group,
			Tensors: counts[group],
			Count:   len(data),
			Mean:    mean,
			StdDev:  std,
			Min:     floats.Min(data),
			Max:     floats.Max(data),
		})
	}
	return out
}
