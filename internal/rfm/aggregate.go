package rfm

import (
	"math"
	"sort"
	"time"

	"github.com/crmlytics/backend/internal/dataset"
)

// CustomerRFM is one customer's recency / frequency / monetary summary.
// Recency counts whole days between the reference timestamp and the
// customer's latest invoice. Frequency counts distinct invoices. Monetary
// sums revenue and can go negative when returns dominate.
type CustomerRFM struct {
	CustomerID   string  `json:"customer_id"`
	CustomerName string  `json:"customer_name,omitempty"`
	Recency      int     `json:"recency"`
	Frequency    int     `json:"frequency"`
	Monetary     float64 `json:"monetary"`
}

// Aggregate collapses the table into one CustomerRFM per customer, sorted by
// customer id. Rows without a customer id are ignored. Rows with invalid
// dates still contribute to frequency and monetary; a customer whose rows
// all have invalid dates is dropped because recency cannot be computed.
// NaN revenue is excluded from the monetary sum so one unparseable cell
// never poisons the customer total.
func Aggregate(t dataset.Table, reference time.Time) []CustomerRFM {
	type group struct {
		name     string
		last     time.Time
		hasLast  bool
		invoices map[string]struct{}
		monetary float64
	}

	groups := map[string]*group{}
	for _, row := range t.Rows {
		if row.CustomerID == "" {
			continue
		}
		g, ok := groups[row.CustomerID]
		if !ok {
			g = &group{invoices: map[string]struct{}{}}
			groups[row.CustomerID] = g
		}
		if g.name == "" && row.CustomerName != "" {
			g.name = row.CustomerName
		}
		if row.InvoiceID != "" {
			g.invoices[row.InvoiceID] = struct{}{}
		}
		if !math.IsNaN(row.Revenue) {
			g.monetary += row.Revenue
		}
		if row.DateValid && (!g.hasLast || row.InvoiceDate.After(g.last)) {
			g.last = row.InvoiceDate
			g.hasLast = true
		}
	}

	out := make([]CustomerRFM, 0, len(groups))
	for id, g := range groups {
		if !g.hasLast {
			continue
		}
		frequency := len(g.invoices)
		if frequency == 0 {
			frequency = 1
		}
		out = append(out, CustomerRFM{
			CustomerID:   id,
			CustomerName: g.name,
			Recency:      wholeDays(reference.Sub(g.last)),
			Frequency:    frequency,
			Monetary:     g.monetary,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}

// LastPurchases returns each customer's latest parseable invoice date,
// sorted by customer id.
func LastPurchases(t dataset.Table) []LastPurchase {
	latest := map[string]time.Time{}
	for _, row := range t.Rows {
		if row.CustomerID == "" || !row.DateValid {
			continue
		}
		if cur, ok := latest[row.CustomerID]; !ok || row.InvoiceDate.After(cur) {
			latest[row.CustomerID] = row.InvoiceDate
		}
	}

	out := make([]LastPurchase, 0, len(latest))
	for id, ts := range latest {
		out = append(out, LastPurchase{CustomerID: id, LastPurchase: ts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}

// LastPurchase pairs a customer with their latest invoice date.
type LastPurchase struct {
	CustomerID   string
	LastPurchase time.Time
}

func wholeDays(d time.Duration) int {
	return int(d.Hours() / 24)
}
