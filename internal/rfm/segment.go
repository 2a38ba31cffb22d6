package rfm

import "fmt"

// Segment is a human-facing customer segment label.
type Segment string

const (
	SegmentLoyal       Segment = "Loyal Customers"
	SegmentNew         Segment = "New Customers"
	SegmentHibernating Segment = "Hibernating"
	SegmentChurned     Segment = "Churned"
	SegmentHighValue   Segment = "High Value"
)

// String implements fmt.Stringer.
func (s Segment) String() string {
	return string(s)
}

// ScoredCustomer is a CustomerRFM with ordinal scores attached. Two
// composite conventions exist in this domain and both are carried: the
// summed score drives the rule thresholds, the concatenated code is the
// classic "434"-style identifier.
type ScoredCustomer struct {
	CustomerRFM

	R int `json:"r"`
	F int `json:"f"`
	M int `json:"m"`

	CompositeSum  int     `json:"rfm_score"`
	CompositeCode string  `json:"rfm_code"`
	Segment       Segment `json:"segment"`
}

// ScoreDiagnostics reports, per metric, how many buckets scoring produced.
type ScoreDiagnostics struct {
	Recency   MetricDiagnostic `json:"recency"`
	Frequency MetricDiagnostic `json:"frequency"`
	Monetary  MetricDiagnostic `json:"monetary"`
}

type MetricDiagnostic struct {
	BinsUsed   int  `json:"bins_used"`
	Degenerate bool `json:"degenerate"`
}

func diagnostic(r ScoreResult) MetricDiagnostic {
	return MetricDiagnostic{BinsUsed: r.Bins, Degenerate: r.Degenerate()}
}

// Score attaches quantile scores and rule-based segments to the customers.
// Recency is scored lower-is-better; frequency and monetary higher-is-better.
func Score(customers []CustomerRFM, bins int) ([]ScoredCustomer, ScoreDiagnostics) {
	n := len(customers)
	recency := make([]float64, n)
	frequency := make([]float64, n)
	monetary := make([]float64, n)
	for i, c := range customers {
		recency[i] = float64(c.Recency)
		frequency[i] = float64(c.Frequency)
		monetary[i] = c.Monetary
	}

	rScores := QuantileScore(recency, bins, true)
	fScores := QuantileScore(frequency, bins, false)
	mScores := QuantileScore(monetary, bins, false)

	out := make([]ScoredCustomer, n)
	for i, c := range customers {
		r, f, m := rScores.Scores[i], fScores.Scores[i], mScores.Scores[i]
		sum := r + f + m
		out[i] = ScoredCustomer{
			CustomerRFM:   c,
			R:             r,
			F:             f,
			M:             m,
			CompositeSum:  sum,
			CompositeCode: fmt.Sprintf("%d%d%d", r, f, m),
			Segment:       RuleSegment(sum),
		}
	}

	diags := ScoreDiagnostics{
		Recency:   diagnostic(rScores),
		Frequency: diagnostic(fScores),
		Monetary:  diagnostic(mScores),
	}
	return out, diags
}

// RuleSegment maps a summed composite score to its segment. With the
// default four bins the composite lives in [3,12].
func RuleSegment(composite int) Segment {
	switch {
	case composite >= 9:
		return SegmentLoyal
	case composite >= 6:
		return SegmentNew
	case composite >= 4:
		return SegmentHibernating
	default:
		return SegmentChurned
	}
}
