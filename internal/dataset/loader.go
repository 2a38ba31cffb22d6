package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	pkgerrors "github.com/crmlytics/backend/pkg/errors"
)

// Column keys after header normalization.
const (
	colCustomerID   = "customerid"
	colCustomerName = "customername"
	colInvoiceID    = "invoiceno"
	colInvoiceDate  = "invoicedate"
	colDescription  = "description"
	colCategory     = "category"
	colQuantity     = "quantity"
	colUnitPrice    = "unitprice"
	colCountry      = "country"
)

var requiredColumns = []string{colCustomerID, colInvoiceID, colInvoiceDate, colQuantity, colUnitPrice}

var columnAliases = map[string]string{
	"customerid":       colCustomerID,
	"customer":         colCustomerID,
	"customername":     colCustomerName,
	"invoiceno":        colInvoiceID,
	"invoiceid":        colInvoiceID,
	"invoice":          colInvoiceID,
	"invoicedate":      colInvoiceDate,
	"invoicetimestamp": colInvoiceDate,
	"description":      colDescription,
	"product":          colDescription,
	"category":         colCategory,
	"quantity":         colQuantity,
	"qty":              colQuantity,
	"unitprice":        colUnitPrice,
	"price":            colUnitPrice,
	"country":          colCountry,
}

// Invoice date layouts tried in order. The first matches the retail export
// this system was built for (day-first with minutes).
var dateLayouts = []string{
	"02-01-2006 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"1/2/2006 15:04",
	"2006-01-02",
}

// LoadStats summarizes what happened while parsing an upload.
type LoadStats struct {
	TotalRows         int `json:"total_rows"`
	SkippedRows       int `json:"skipped_rows"`
	InvalidDates      int `json:"invalid_dates"`
	MissingCustomerID int `json:"missing_customer_id"`
}

// ParseCSV reads an uploaded CSV into a Table. Missing required columns or
// an empty body fail fast; bad cells degrade row by row instead: an
// unparseable timestamp marks the row DateValid=false, unparseable numerics
// become NaN, and a blank customer id keeps the row out of customer-level
// aggregates downstream.
func ParseCSV(r io.Reader) (Table, LoadStats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return Table{}, LoadStats{}, pkgerrors.New(pkgerrors.CodeValidation, "empty upload")
	}
	if err != nil {
		return Table{}, LoadStats{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "reading csv header")
	}

	index, err := resolveHeader(header)
	if err != nil {
		return Table{}, LoadStats{}, err
	}

	table := Table{
		Columns: Columns{
			HasCategory:     index.has(colCategory),
			HasCountry:      index.has(colCountry),
			HasCustomerName: index.has(colCustomerName),
			HasDescription:  index.has(colDescription),
		},
	}
	var stats LoadStats

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.SkippedRows++
			continue
		}
		stats.TotalRows++

		row := Transaction{
			CustomerID:   index.get(record, colCustomerID),
			CustomerName: index.get(record, colCustomerName),
			InvoiceID:    index.get(record, colInvoiceID),
			Description:  index.get(record, colDescription),
			Category:     index.get(record, colCategory),
			Country:      index.get(record, colCountry),
			Quantity:     parseFloat(index.get(record, colQuantity)),
			UnitPrice:    parseFloat(index.get(record, colUnitPrice)),
		}
		if row.CustomerID == "" {
			stats.MissingCustomerID++
		}
		if ts, ok := parseDate(index.get(record, colInvoiceDate)); ok {
			row.InvoiceDate = ts
			row.DateValid = true
		} else {
			stats.InvalidDates++
		}
		table.Rows = append(table.Rows, row)
	}

	if len(table.Rows) == 0 {
		return Table{}, stats, pkgerrors.New(pkgerrors.CodeValidation, "upload contains no data rows")
	}
	return table, stats, nil
}

type headerIndex map[string]int

func resolveHeader(header []string) (headerIndex, error) {
	index := headerIndex{}
	for i, name := range header {
		key, ok := columnAliases[normalizeColumn(name)]
		if !ok {
			continue
		}
		if _, seen := index[key]; !seen {
			index[key] = i
		}
	}

	var missing []string
	var merr error
	for _, col := range requiredColumns {
		if !index.has(col) {
			missing = append(missing, col)
			merr = multierr.Append(merr, fmt.Errorf("missing required column %q", col))
		}
	}
	if merr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, merr, "missing required columns").
			WithDetails(map[string]any{"columns": missing})
	}
	return index, nil
}

func (h headerIndex) has(key string) bool {
	_, ok := h[key]
	return ok
}

func (h headerIndex) get(record []string, key string) string {
	i, ok := h[key]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func normalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "")
	name = strings.ReplaceAll(name, "_", "")
	// strip a UTF-8 BOM on the first column of some exports
	return strings.TrimPrefix(name, "\uFEFF")
}

func parseFloat(value string) float64 {
	if value == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func parseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
