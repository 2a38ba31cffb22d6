package rfm

import (
	"math"
	"sort"
)

// ScoreResult carries the ordinal scores for one metric. Bins reports how
// many buckets the metric actually split into; callers can detect collapsed
// scoring through Degenerate instead of it failing the pipeline.
type ScoreResult struct {
	Scores []int
	Bins   int
}

// Degenerate reports whether scoring collapsed to a single bucket.
func (r ScoreResult) Degenerate() bool {
	return r.Bins <= 1
}

// QuantileScore bins values into up to k equal-population buckets and
// returns ordinal scores in [1, k']. k' shrinks to the number of distinct
// values so sparse metrics never fail the cut. Ties are broken by input
// order through a rank pre-pass, matching first-occurrence ranking. For
// lower-is-better metrics (recency) the labels are reversed so the smallest
// value earns the highest score. A constant column scores everyone 1.
func QuantileScore(values []float64, k int, lowerIsBetter bool) ScoreResult {
	n := len(values)
	if n == 0 {
		return ScoreResult{}
	}

	bins := k
	if d := distinctCount(values); d < bins {
		bins = d
	}
	if bins <= 1 {
		scores := make([]int, n)
		for i := range scores {
			scores[i] = 1
		}
		return ScoreResult{Scores: scores, Bins: 1}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return lessValue(values[order[a]], values[order[b]])
	})

	scores := make([]int, n)
	for rank, idx := range order {
		// equal-population bucket of the 1-based rank
		score := 1 + rank*bins/n
		if lowerIsBetter {
			score = bins + 1 - score
		}
		scores[idx] = score
	}
	return ScoreResult{Scores: scores, Bins: bins}
}

func distinctCount(values []float64) int {
	seen := make(map[float64]struct{}, len(values))
	nan := 0
	for _, v := range values {
		if math.IsNaN(v) {
			nan = 1
			continue
		}
		seen[v] = struct{}{}
	}
	return len(seen) + nan
}

// lessValue orders NaN before every number so unparseable metrics land in
// the worst ascending bucket.
func lessValue(a, b float64) bool {
	if math.IsNaN(a) {
		return !math.IsNaN(b)
	}
	if math.IsNaN(b) {
		return false
	}
	return a < b
}
