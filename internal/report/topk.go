// Package report turns model outputs and weights into printable summaries.
package report

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Prediction is one ranked class.
type Prediction struct {
	Class       int
	Logit       float64
	Probability float64
}

// String returns a one-line representation.
func (p Prediction) String() string {
	return fmt.Sprintf("class %d: p=%.4f (logit %.4f)", p.Class, p.Probability, p.Logit)
}

// Softmax converts logits to probabilities.
func Softmax(logits []float32) []float64 {
	probs := make([]float64, len(logits))
	if len(logits) == 0 {
		return probs
	}
	for i, v := range logits {
		probs[i] = float64(v)
	}

	maxLogit := floats.Max(probs)
	for i := range probs {
		probs[i] = math.Exp(probs[i] - maxLogit)
	}
	floats.Scale(1/floats.Sum(probs), probs)
	return probs
}

// TopK returns the k most probable classes of one logit row, best first.
// k is clamped to len(logits).
func TopK(logits []float32, k int) []Prediction {
	if k > len(logits) {
		k = len(logits)
	}
	if k <= 0 {
		return nil
	}

	probs := Softmax(logits)
	sorted := append([]float64(nil), probs...)
	inds := make([]int, len(sorted))
	floats.Argsort(sorted, inds) // ascending

	out := make([]Prediction, 0, k)
	for i := len(inds) - 1; i >= len(inds)-k; i-- {
		class := inds[i]
		out = append(out, Prediction{
			Class:       class,
			Logit:       float64(logits[class]),
			Probability: probs[class],
		})
	}
	return out
}
