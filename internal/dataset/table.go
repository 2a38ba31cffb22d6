package dataset

import (
	"strings"
	"time"
)

// Transaction is one sales line item. DateValid marks whether InvoiceDate
// parsed; rows with an invalid date stay in the table but are excluded
// from time-based aggregates. An empty CustomerID keeps the row out of
// customer-level aggregates.
type Transaction struct {
	CustomerID   string
	CustomerName string
	InvoiceID    string
	InvoiceDate  time.Time
	DateValid    bool
	Description  string
	Category     string
	Quantity     float64
	UnitPrice    float64
	Country      string
	Revenue      float64
}

// Columns records which optional columns the uploaded file carried.
// Reports depending on an absent column are omitted rather than failing.
type Columns struct {
	HasCategory     bool `json:"has_category"`
	HasCountry      bool `json:"has_country"`
	HasCustomerName bool `json:"has_customer_name"`
	HasDescription  bool `json:"has_description"`
}

// Table is the validated in-memory transaction table every report is
// computed from.
type Table struct {
	Rows    []Transaction
	Columns Columns
}

// Filter bounds a table by invoice date and country before a pipeline run.
// Zero time bounds are open; an empty country matches everything. Rows with
// invalid dates are kept only when no date bound is set, since they cannot
// be placed inside a range.
type Filter struct {
	From    time.Time
	To      time.Time
	Country string
}

// Apply returns a new table holding the rows that match the filter.
func (t Table) Apply(f Filter) Table {
	country := strings.TrimSpace(f.Country)
	out := Table{Columns: t.Columns}
	for _, row := range t.Rows {
		if country != "" && !strings.EqualFold(row.Country, country) {
			continue
		}
		if !f.From.IsZero() || !f.To.IsZero() {
			if !row.DateValid {
				continue
			}
			if !f.From.IsZero() && row.InvoiceDate.Before(f.From) {
				continue
			}
			if !f.To.IsZero() && row.InvoiceDate.After(f.To) {
				continue
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// MaxInvoiceDate returns the latest parseable invoice date in the table.
func (t Table) MaxInvoiceDate() (time.Time, bool) {
	var max time.Time
	found := false
	for _, row := range t.Rows {
		if !row.DateValid {
			continue
		}
		if !found || row.InvoiceDate.After(max) {
			max = row.InvoiceDate
			found = true
		}
	}
	return max, found
}

// DeriveRevenue returns a copy of the table with revenue populated as
// unit price times quantity. Signs are preserved so returns subtract, and
// NaN inputs propagate into NaN revenue.
func DeriveRevenue(t Table) Table {
	out := Table{
		Rows:    make([]Transaction, len(t.Rows)),
		Columns: t.Columns,
	}
	for i, row := range t.Rows {
		row.Revenue = row.UnitPrice * row.Quantity
		out.Rows[i] = row
	}
	return out
}
