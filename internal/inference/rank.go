package inference

import (
	"math"
	"sort"

	"breedserve/pkg/types"
)

// TopK is the number of ranked predictions returned.
const TopK = 5

// Softmax converts raw scores into probabilities. It is numerically stable
// for large logits.
func Softmax(scores []float32) []float64 {
	if len(scores) == 0 {
		return nil
	}
	maxv := float64(scores[0])
	for _, s := range scores[1:] {
		if float64(s) > maxv {
			maxv = float64(s)
		}
	}
	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(float64(s) - maxv)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Rank orders probabilities descending and keeps the first k distinct labels.
// Ties break on the lower class index so results are deterministic.
func Rank(probs []float64, label func(int) string, k int) []types.BreedPrediction {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })

	out := make([]types.BreedPrediction, 0, k)
	seen := make(map[string]bool, k)
	for _, i := range idx {
		if len(out) == k {
			break
		}
		l := label(i)
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, types.BreedPrediction{Label: l, Confidence: clamp01(probs[i])})
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
