package segmentation

import (
	"gonum.org/v1/gonum/stat"

	"github.com/crmlytics/backend/internal/rfm"
	pkgerrors "github.com/crmlytics/backend/pkg/errors"
)

const maxIterations = 100

// Options tunes the clustering run. The seed pins initialization so the
// same input always yields the same assignments.
type Options struct {
	Clusters int
	Seed     int64
	Restarts int
}

// Assignment maps one customer onto a cluster and its derived label.
type Assignment struct {
	CustomerID string      `json:"customer_id"`
	Cluster    int         `json:"cluster"`
	Segment    rfm.Segment `json:"segment"`
}

// ClusterSummary describes one cluster in raw RFM units.
type ClusterSummary struct {
	Cluster       int         `json:"cluster"`
	Label         rfm.Segment `json:"label"`
	Size          int         `json:"size"`
	MeanRecency   float64     `json:"mean_recency"`
	MeanFrequency float64     `json:"mean_frequency"`
	MeanMonetary  float64     `json:"mean_monetary"`
}

// Result is a full clustering outcome.
type Result struct {
	Assignments []Assignment     `json:"assignments"`
	Clusters    []ClusterSummary `json:"clusters"`
	Inertia     float64          `json:"inertia"`
}

// Assign standardizes the raw RFM metrics to zero mean and unit variance,
// clusters customers with k-means, and labels each cluster by ranking its
// centroid rather than by cluster index: cluster ids are an artifact of
// initialization and carry no meaning of their own. The cluster count is
// reduced when there are fewer customers than requested clusters.
func Assign(customers []rfm.CustomerRFM, opts Options) (*Result, error) {
	if len(customers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no customers to segment")
	}
	if opts.Clusters < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cluster count must be positive")
	}

	k := opts.Clusters
	if len(customers) < k {
		k = len(customers)
	}
	restarts := opts.Restarts
	if restarts < 1 {
		restarts = 1
	}

	points := standardize(customers)
	assign, _, inertia := runKMeans(points, kmeansConfig{
		K:        k,
		Seed:     opts.Seed,
		Restarts: restarts,
		MaxIter:  maxIterations,
	})

	summaries := summarize(customers, assign, k)
	labels := rankLabels(summaries)
	for i := range summaries {
		summaries[i].Label = labels[summaries[i].Cluster]
	}

	assignments := make([]Assignment, len(customers))
	for i, c := range customers {
		assignments[i] = Assignment{
			CustomerID: c.CustomerID,
			Cluster:    assign[i],
			Segment:    labels[assign[i]],
		}
	}

	return &Result{
		Assignments: assignments,
		Clusters:    summaries,
		Inertia:     inertia,
	}, nil
}

// standardize z-scores the three metrics column-wise. A constant column
// maps to zeros instead of dividing by a zero deviation.
func standardize(customers []rfm.CustomerRFM) [][]float64 {
	n := len(customers)
	cols := [3][]float64{
		make([]float64, n),
		make([]float64, n),
		make([]float64, n),
	}
	for i, c := range customers {
		cols[0][i] = float64(c.Recency)
		cols[1][i] = float64(c.Frequency)
		cols[2][i] = c.Monetary
	}

	points := make([][]float64, n)
	for i := range points {
		points[i] = make([]float64, 3)
	}
	for d, col := range cols {
		mean := stat.Mean(col, nil)
		sigma := stat.StdDev(col, nil)
		for i, v := range col {
			if sigma > 0 {
				points[i][d] = (v - mean) / sigma
			}
		}
	}
	return points
}

func summarize(customers []rfm.CustomerRFM, assign []int, k int) []ClusterSummary {
	summaries := make([]ClusterSummary, k)
	for c := range summaries {
		summaries[c].Cluster = c
	}
	for i, c := range customers {
		s := &summaries[assign[i]]
		s.Size++
		s.MeanRecency += float64(c.Recency)
		s.MeanFrequency += float64(c.Frequency)
		s.MeanMonetary += c.Monetary
	}
	for c := range summaries {
		if summaries[c].Size == 0 {
			continue
		}
		n := float64(summaries[c].Size)
		summaries[c].MeanRecency /= n
		summaries[c].MeanFrequency /= n
		summaries[c].MeanMonetary /= n
	}
	return summaries
}
