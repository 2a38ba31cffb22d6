package segmentation

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/crmlytics/backend/internal/rfm"
)

// fourGroups builds well separated customers: big spenders, frequent
// buyers, long-inactive, and recent low spenders.
func fourGroups() []rfm.CustomerRFM {
	var customers []rfm.CustomerRFM
	for i := 0; i < 5; i++ {
		customers = append(customers,
			rfm.CustomerRFM{CustomerID: fmt.Sprintf("big-%d", i), Recency: 20 + i, Frequency: 10, Monetary: 50000 + float64(i)},
			rfm.CustomerRFM{CustomerID: fmt.Sprintf("freq-%d", i), Recency: 10 + i, Frequency: 80 + i, Monetary: 2000},
			rfm.CustomerRFM{CustomerID: fmt.Sprintf("idle-%d", i), Recency: 300 + i, Frequency: 2, Monetary: 100},
			rfm.CustomerRFM{CustomerID: fmt.Sprintf("new-%d", i), Recency: 1 + i, Frequency: 1, Monetary: 50},
		)
	}
	return customers
}

func TestAssignDeterministicUnderFixedSeed(t *testing.T) {
	customers := fourGroups()
	opts := Options{Clusters: 4, Seed: 42, Restarts: 10}

	first, err := Assign(customers, opts)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	second, err := Assign(customers, opts)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	if !reflect.DeepEqual(first.Assignments, second.Assignments) {
		t.Fatal("same seed and input must produce identical assignments")
	}
	if first.Inertia != second.Inertia {
		t.Fatalf("inertia changed across runs: %v vs %v", first.Inertia, second.Inertia)
	}
}

func TestAssignLabelsByCentroidRanking(t *testing.T) {
	customers := fourGroups()
	result, err := Assign(customers, Options{Clusters: 4, Seed: 42, Restarts: 10})
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	bySegment := map[rfm.Segment][]string{}
	for _, a := range result.Assignments {
		bySegment[a.Segment] = append(bySegment[a.Segment], a.CustomerID)
	}

	for _, id := range bySegment[rfm.SegmentHighValue] {
		if id[:3] != "big" {
			t.Fatalf("high value cluster should hold the big spenders, got %v", bySegment[rfm.SegmentHighValue])
		}
	}
	for _, id := range bySegment[rfm.SegmentHibernating] {
		if id[:4] != "idle" {
			t.Fatalf("hibernating cluster should hold the idle customers, got %v", bySegment[rfm.SegmentHibernating])
		}
	}

	allowed := map[rfm.Segment]bool{
		rfm.SegmentLoyal:       true,
		rfm.SegmentNew:         true,
		rfm.SegmentHibernating: true,
		rfm.SegmentHighValue:   true,
	}
	for _, a := range result.Assignments {
		if !allowed[a.Segment] {
			t.Fatalf("segment %q outside the clustering vocabulary", a.Segment)
		}
	}
}

func TestAssignReducesClustersToCustomerCount(t *testing.T) {
	customers := []rfm.CustomerRFM{
		{CustomerID: "a", Recency: 1, Frequency: 1, Monetary: 10},
		{CustomerID: "b", Recency: 100, Frequency: 9, Monetary: 900},
	}

	result, err := Assign(customers, Options{Clusters: 4, Seed: 42, Restarts: 5})
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if len(result.Clusters) != 2 {
		t.Fatalf("expected cluster count reduced to 2, got %d", len(result.Clusters))
	}
	if result.Assignments[0].Cluster == result.Assignments[1].Cluster {
		t.Fatal("two distinct customers with two clusters must separate")
	}
}

func TestAssignRejectsEmptyInput(t *testing.T) {
	if _, err := Assign(nil, Options{Clusters: 4, Seed: 42, Restarts: 1}); err == nil {
		t.Fatal("expected error for empty customer list")
	}
}

func TestAssignSingleCustomer(t *testing.T) {
	result, err := Assign([]rfm.CustomerRFM{{CustomerID: "only", Recency: 5, Frequency: 2, Monetary: 42}}, Options{Clusters: 4, Seed: 1, Restarts: 3})
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if len(result.Clusters) != 1 || result.Assignments[0].Cluster != 0 {
		t.Fatalf("single customer must form a single cluster, got %+v", result)
	}
}

func TestRankLabelsPriority(t *testing.T) {
	summaries := []ClusterSummary{
		{Cluster: 0, MeanRecency: 5, MeanFrequency: 50, MeanMonetary: 1000},
		{Cluster: 1, MeanRecency: 400, MeanFrequency: 1, MeanMonetary: 50},
		{Cluster: 2, MeanRecency: 30, MeanFrequency: 8, MeanMonetary: 90000},
		{Cluster: 3, MeanRecency: 2, MeanFrequency: 1, MeanMonetary: 30},
	}

	labels := rankLabels(summaries)
	if labels[2] != rfm.SegmentHighValue {
		t.Fatalf("cluster 2 should be high value, got %q", labels[2])
	}
	if labels[1] != rfm.SegmentHibernating {
		t.Fatalf("cluster 1 should be hibernating, got %q", labels[1])
	}
	if labels[0] != rfm.SegmentLoyal {
		t.Fatalf("cluster 0 should be loyal, got %q", labels[0])
	}
	if labels[3] != rfm.SegmentNew {
		t.Fatalf("cluster 3 should be new, got %q", labels[3])
	}
}
