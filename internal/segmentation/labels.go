package segmentation

import "github.com/crmlytics/backend/internal/rfm"

// rankLabels derives the label for each cluster from its centroid, in a
// fixed priority order over the clusters that remain unlabelled:
//
//	High Value:  highest mean monetary
//	Hibernating: highest mean recency (longest inactive)
//	Loyal:       highest mean frequency
//	New:         the remainder
//
// With fewer than four clusters the later labels simply go unused.
func rankLabels(summaries []ClusterSummary) map[int]rfm.Segment {
	labels := make(map[int]rfm.Segment, len(summaries))
	remaining := make([]ClusterSummary, len(summaries))
	copy(remaining, summaries)

	pick := func(better func(a, b ClusterSummary) bool) (int, bool) {
		if len(remaining) == 0 {
			return 0, false
		}
		best := 0
		for i := 1; i < len(remaining); i++ {
			if better(remaining[i], remaining[best]) {
				best = i
			}
		}
		cluster := remaining[best].Cluster
		remaining = append(remaining[:best], remaining[best+1:]...)
		return cluster, true
	}

	if c, ok := pick(func(a, b ClusterSummary) bool { return a.MeanMonetary > b.MeanMonetary }); ok {
		labels[c] = rfm.SegmentHighValue
	}
	if c, ok := pick(func(a, b ClusterSummary) bool { return a.MeanRecency > b.MeanRecency }); ok {
		labels[c] = rfm.SegmentHibernating
	}
	if c, ok := pick(func(a, b ClusterSummary) bool { return a.MeanFrequency > b.MeanFrequency }); ok {
		labels[c] = rfm.SegmentLoyal
	}
	// everything left, including clusters past the fourth, reads as new
	for _, s := range remaining {
		labels[s.Cluster] = rfm.SegmentNew
	}
	return labels
}
