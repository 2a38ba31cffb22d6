package rfm

import (
	"math"
	"testing"
)

func TestQuantileScoreRecencyDirection(t *testing.T) {
	res := QuantileScore([]float64{10, 20, 30, 40}, 4, true)
	want := []int{4, 3, 2, 1}
	for i, s := range res.Scores {
		if s != want[i] {
			t.Fatalf("recency scores %v, want %v", res.Scores, want)
		}
	}
	if res.Bins != 4 {
		t.Fatalf("expected 4 bins, got %d", res.Bins)
	}
}

func TestQuantileScoreAscendingDirection(t *testing.T) {
	res := QuantileScore([]float64{10, 20, 30, 40}, 4, false)
	want := []int{1, 2, 3, 4}
	for i, s := range res.Scores {
		if s != want[i] {
			t.Fatalf("ascending scores %v, want %v", res.Scores, want)
		}
	}
}

func TestQuantileScoreConstantColumn(t *testing.T) {
	res := QuantileScore([]float64{5, 5, 5, 5}, 4, false)
	for _, s := range res.Scores {
		if s != 1 {
			t.Fatalf("constant column must score 1 everywhere, got %v", res.Scores)
		}
	}
	if !res.Degenerate() {
		t.Fatal("constant column must be reported as degenerate")
	}
}

func TestQuantileScoreReducesBinsToDistinctValues(t *testing.T) {
	res := QuantileScore([]float64{1, 1, 2, 2, 2, 1}, 4, false)
	if res.Bins != 2 {
		t.Fatalf("expected 2 bins for 2 distinct values, got %d", res.Bins)
	}
	for _, s := range res.Scores {
		if s < 1 || s > 2 {
			t.Fatalf("score out of range: %v", res.Scores)
		}
	}
	if res.Degenerate() {
		t.Fatal("two buckets is not degenerate")
	}
}

func TestQuantileScoreTiesBrokenByInputOrder(t *testing.T) {
	// four equal values, two bins: the first two seen land in the lower bin
	res := QuantileScore([]float64{7, 7, 7, 9}, 2, false)
	if res.Scores[0] != 1 || res.Scores[1] != 1 {
		t.Fatalf("earlier rows must rank first on ties, got %v", res.Scores)
	}
	if res.Scores[3] != 2 {
		t.Fatalf("largest value must land in the top bin, got %v", res.Scores)
	}
}

func TestQuantileScoreBounds(t *testing.T) {
	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3.5}
	res := QuantileScore(values, 4, false)
	if len(res.Scores) != len(values) {
		t.Fatalf("every row must receive a score")
	}
	for _, s := range res.Scores {
		if s < 1 || s > 4 {
			t.Fatalf("score %d out of [1,4]", s)
		}
	}
}

func TestQuantileScoreMonotonic(t *testing.T) {
	values := []float64{100, 50, 75, 25, 10}
	res := QuantileScore(values, 4, true)
	for i := range values {
		for j := range values {
			if values[i] < values[j] && res.Scores[i] < res.Scores[j] {
				t.Fatalf("smaller recency must never score below larger: %v -> %v", values, res.Scores)
			}
		}
	}
}

func TestQuantileScoreNaNRanksWorst(t *testing.T) {
	res := QuantileScore([]float64{math.NaN(), 10, 20, 30}, 4, false)
	if res.Scores[0] != 1 {
		t.Fatalf("NaN must land in the lowest ascending bucket, got %v", res.Scores)
	}
}

func TestQuantileScoreEmpty(t *testing.T) {
	res := QuantileScore(nil, 4, false)
	if len(res.Scores) != 0 || res.Bins != 0 {
		t.Fatalf("unexpected result for empty input: %+v", res)
	}
}
