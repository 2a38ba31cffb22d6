package forecast

import (
	"sort"
	"time"

	"github.com/crmlytics/backend/internal/dataset"
)

// Point is one monthly observation or prediction.
type Point struct {
	Period time.Time `json:"-"`
	Value  float64   `json:"value"`
}

// MonthlyRevenue rolls the table up into one revenue total per calendar
// month. Months inside the observed span with no transactions appear as
// zeros so the series keeps a regular monthly cadence for model fitting.
// Rows with invalid dates cannot be placed and are skipped.
func MonthlyRevenue(t dataset.Table) []Point {
	totals := map[time.Time]float64{}
	for _, row := range t.Rows {
		if !row.DateValid {
			continue
		}
		totals[monthOf(row.InvoiceDate)] += row.Revenue
	}
	if len(totals) == 0 {
		return nil
	}

	months := make([]time.Time, 0, len(totals))
	for m := range totals {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	var out []Point
	for m := months[0]; !m.After(months[len(months)-1]); m = m.AddDate(0, 1, 0) {
		out = append(out, Point{Period: m, Value: totals[m]})
	}
	return out
}

// FuturePeriods labels the next `steps` calendar months after the last
// historical period.
func FuturePeriods(last time.Time, steps int) []time.Time {
	out := make([]time.Time, steps)
	month := monthOf(last)
	for i := range out {
		month = month.AddDate(0, 1, 0)
		out[i] = month
	}
	return out
}

func monthOf(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
}
