package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/crmlytics/backend/internal/churn"
	"github.com/crmlytics/backend/internal/rfm"
	"github.com/crmlytics/backend/internal/segmentation"
)

// Params are the filter knobs shared by every report. A zero Reference
// means "the latest invoice date of the filtered table"; callers that need
// reproducible output pass it explicitly.
type Params struct {
	From      time.Time
	To        time.Time
	Country   string
	Reference time.Time
}

// MonthlyKPI is one month of overview aggregates.
type MonthlyKPI struct {
	Month     string  `json:"month"`
	Revenue   float64 `json:"revenue"`
	Orders    int     `json:"orders"`
	Customers int     `json:"customers"`
}

// CategoryRevenue ranks one product category by revenue and quantity sold.
type CategoryRevenue struct {
	Category string  `json:"category"`
	Revenue  float64 `json:"revenue"`
	Quantity float64 `json:"quantity"`
}

// ProductQuantity ranks one product by units sold.
type ProductQuantity struct {
	Product  string  `json:"product"`
	Quantity float64 `json:"quantity"`
	Revenue  float64 `json:"revenue"`
}

// CountryCategory is the best-selling category within one country.
type CountryCategory struct {
	Country  string  `json:"country"`
	Category string  `json:"category"`
	Revenue  float64 `json:"revenue"`
}

// OverviewReport carries the dashboard KPIs. Category, product, and
// country rollups are present only when the uploaded file carried those
// columns.
type OverviewReport struct {
	DatasetID string `json:"dataset_id"`

	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
	Customers     int             `json:"customers"`
	Orders        int             `json:"orders"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`

	Monthly []MonthlyKPI `json:"monthly"`

	RevenueByCategory    []CategoryRevenue `json:"revenue_by_category,omitempty"`
	TopProducts          []ProductQuantity `json:"top_products,omitempty"`
	TopCategoryByCountry []CountryCategory `json:"top_category_by_country,omitempty"`
}

// SegmentSummary aggregates the customers that fell into one rule-based
// segment.
type SegmentSummary struct {
	Segment      rfm.Segment `json:"segment"`
	Customers    int         `json:"customers"`
	AvgRecency   float64     `json:"avg_recency"`
	AvgFrequency float64     `json:"avg_frequency"`
	AvgMonetary  float64     `json:"avg_monetary"`
}

// RFMReport is the scored customer base with rule-based segments.
type RFMReport struct {
	DatasetID string    `json:"dataset_id"`
	Reference time.Time `json:"reference"`

	Customers    []rfm.ScoredCustomer `json:"customers"`
	Diagnostics  rfm.ScoreDiagnostics `json:"diagnostics"`
	Segments     []SegmentSummary     `json:"segments"`
	TopCustomers []rfm.ScoredCustomer `json:"top_customers"`
}

// SegmentationReport is the k-means clustering outcome.
type SegmentationReport struct {
	DatasetID string    `json:"dataset_id"`
	Reference time.Time `json:"reference"`

	Assignments []segmentation.Assignment     `json:"assignments"`
	Clusters    []segmentation.ClusterSummary `json:"clusters"`
	Inertia     float64                       `json:"inertia"`
}

// AtRiskCustomer is a churned customer worth a retention effort, ranked by
// how long they have been inactive.
type AtRiskCustomer struct {
	CustomerID            string          `json:"customer_id"`
	CustomerName          string          `json:"customer_name,omitempty"`
	LastPurchase          time.Time       `json:"last_purchase"`
	DaysSinceLastPurchase int             `json:"days_since_last_purchase"`
	LifetimeValue         decimal.Decimal `json:"lifetime_value"`
}

// MonthlyChurnRate is the churn share of customers whose last purchase
// fell in one month.
type MonthlyChurnRate struct {
	Month     string  `json:"month"`
	Customers int     `json:"customers"`
	Rate      float64 `json:"rate"`
}

// ChurnReport flags inactive customers against the threshold.
type ChurnReport struct {
	DatasetID     string    `json:"dataset_id"`
	Reference     time.Time `json:"reference"`
	ThresholdDays int       `json:"threshold_days"`

	Records     []churn.Record     `json:"records"`
	RatePercent float64            `json:"rate_percent"`
	Monthly     []MonthlyChurnRate `json:"monthly"`
	TopAtRisk   []AtRiskCustomer   `json:"top_at_risk"`
}

// SeriesPoint is one labelled observation or prediction. Revenue series
// label calendar months; the CLV pseudo-series labels ordinal positions.
type SeriesPoint struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

// ForecastReport is the fitted projection for one metric.
type ForecastReport struct {
	DatasetID string `json:"dataset_id"`
	Metric    string `json:"metric"`
	ModelUsed string `json:"model_used"`
	FellBack  bool   `json:"fell_back"`

	History  []SeriesPoint `json:"history"`
	Forecast []SeriesPoint `json:"forecast"`

	// populated for the revenue metric only
	ProjectedRevenue *decimal.Decimal `json:"projected_revenue,omitempty"`
	ProjectedProfit  *decimal.Decimal `json:"projected_profit,omitempty"`
}

// ForecastInput selects the metric, horizon, and model family for a
// forecast run. Zero values fall back to the configured defaults.
type ForecastInput struct {
	Metric string
	Steps  int
	Model  string
}

const (
	MetricRevenue = "revenue"
	MetricCLV     = "clv"
)
