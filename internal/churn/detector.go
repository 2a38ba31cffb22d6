package churn

import (
	"sort"
	"time"

	"github.com/crmlytics/backend/internal/rfm"
)

// Record flags one customer as churned or active relative to a reference
// date. A customer has churned when strictly more days than the threshold
// passed since their last purchase.
type Record struct {
	CustomerID            string    `json:"customer_id"`
	LastPurchase          time.Time `json:"last_purchase"`
	DaysSinceLastPurchase int       `json:"days_since_last_purchase"`
	Churned               bool      `json:"churned"`
}

// Detect evaluates every customer's last purchase against the threshold.
// Customers without a parseable last purchase never reach here; they are
// excluded upstream. Output is sorted by customer id.
func Detect(lastPurchases []rfm.LastPurchase, reference time.Time, thresholdDays int) []Record {
	out := make([]Record, 0, len(lastPurchases))
	for _, lp := range lastPurchases {
		days := int(reference.Sub(lp.LastPurchase).Hours() / 24)
		out = append(out, Record{
			CustomerID:            lp.CustomerID,
			LastPurchase:          lp.LastPurchase,
			DaysSinceLastPurchase: days,
			Churned:               days > thresholdDays,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}

// Rate returns the share of churned customers in percent.
func Rate(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	churned := 0
	for _, r := range records {
		if r.Churned {
			churned++
		}
	}
	return float64(churned) / float64(len(records)) * 100
}

// MonthlyRate groups customers by the calendar month of their last
// purchase and reports, per month, how many of them are churned as of the
// reference date the records were built with.
type MonthlyRate struct {
	Month     time.Time `json:"-"`
	Customers int       `json:"customers"`
	Rate      float64   `json:"rate"`
}

func MonthlyRates(records []Record) []MonthlyRate {
	type bucket struct {
		customers int
		churned   int
	}
	buckets := map[time.Time]*bucket{}
	for _, r := range records {
		month := time.Date(r.LastPurchase.Year(), r.LastPurchase.Month(), 1, 0, 0, 0, 0, time.UTC)
		b, ok := buckets[month]
		if !ok {
			b = &bucket{}
			buckets[month] = b
		}
		b.customers++
		if r.Churned {
			b.churned++
		}
	}

	out := make([]MonthlyRate, 0, len(buckets))
	for month, b := range buckets {
		out = append(out, MonthlyRate{
			Month:     month,
			Customers: b.customers,
			Rate:      float64(b.churned) / float64(b.customers) * 100,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}
