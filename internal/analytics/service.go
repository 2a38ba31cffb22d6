package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crmlytics/backend/internal/churn"
	"github.com/crmlytics/backend/internal/dataset"
	"github.com/crmlytics/backend/internal/forecast"
	"github.com/crmlytics/backend/internal/rfm"
	"github.com/crmlytics/backend/internal/segmentation"
	"github.com/crmlytics/backend/pkg/config"
	pkgerrors "github.com/crmlytics/backend/pkg/errors"
	"github.com/crmlytics/backend/pkg/logger"
	"github.com/crmlytics/backend/pkg/metrics"
)

const topListSize = 10

// Service computes analytics reports from cached datasets. Every call
// recomputes from the parsed table; the cache is the only state.
type Service interface {
	Overview(ctx context.Context, datasetID string, p Params) (*OverviewReport, error)
	RFM(ctx context.Context, datasetID string, p Params, bins int) (*RFMReport, error)
	Segments(ctx context.Context, datasetID string, p Params, clusters int) (*SegmentationReport, error)
	Churn(ctx context.Context, datasetID string, p Params, thresholdDays int) (*ChurnReport, error)
	Forecast(ctx context.Context, datasetID string, p Params, in ForecastInput) (*ForecastReport, error)
}

type service struct {
	cache   *dataset.Cache
	cfg     config.AnalyticsConfig
	log     *logger.Logger
	metrics *metrics.ReportMetrics
}

// NewService builds the report service on top of the dataset cache.
func NewService(cache *dataset.Cache, cfg config.AnalyticsConfig, log *logger.Logger, m *metrics.ReportMetrics) Service {
	return &service{cache: cache, cfg: cfg, log: log, metrics: m}
}

// table resolves the dataset, applies the filters, and derives revenue.
// The reference timestamp defaults to the latest invoice date of the
// filtered table; reports that need one fail when no row has a valid date.
func (s *service) table(ctx context.Context, datasetID string, p Params, needReference bool) (dataset.Table, time.Time, error) {
	entry, ok := s.cache.Get(datasetID)
	if !ok {
		return dataset.Table{}, time.Time{}, pkgerrors.New(pkgerrors.CodeNotFound, "dataset not found").
			WithDetails(map[string]any{"dataset_id": datasetID})
	}

	table := dataset.DeriveRevenue(entry.Table.Apply(dataset.Filter{
		From:    p.From,
		To:      p.To,
		Country: p.Country,
	}))
	if len(table.Rows) == 0 {
		return dataset.Table{}, time.Time{}, pkgerrors.New(pkgerrors.CodeUnprocessable, "no transactions match the filters")
	}

	reference := p.Reference
	if reference.IsZero() {
		max, found := table.MaxInvoiceDate()
		if !found && needReference {
			return dataset.Table{}, time.Time{}, pkgerrors.New(pkgerrors.CodeUnprocessable, "no valid invoice dates to anchor the report")
		}
		reference = max
	}
	return table, reference, nil
}

func (s *service) observe(ctx context.Context, report string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.IncReportBuild(report, outcome)
	s.metrics.ObserveReportDuration(report, time.Since(start))
	if err != nil {
		s.log.Error(ctx, fmt.Sprintf("%s report failed", report), err)
	}
}

func (s *service) Overview(ctx context.Context, datasetID string, p Params) (rep *OverviewReport, err error) {
	ctx = s.log.WithReport(s.log.WithDatasetID(ctx, datasetID), "overview")
	start := time.Now()
	defer func() { s.observe(ctx, "overview", start, err) }()

	table, _, err := s.table(ctx, datasetID, p, false)
	if err != nil {
		return nil, err
	}

	var totalRevenue float64
	customers := map[string]struct{}{}
	orders := map[string]struct{}{}
	type monthAgg struct {
		revenue   float64
		orders    map[string]struct{}
		customers map[string]struct{}
	}
	months := map[time.Time]*monthAgg{}

	for _, row := range table.Rows {
		if !math.IsNaN(row.Revenue) {
			totalRevenue += row.Revenue
		}
		if row.CustomerID != "" {
			customers[row.CustomerID] = struct{}{}
		}
		if row.InvoiceID != "" {
			orders[row.InvoiceID] = struct{}{}
		}
		if !row.DateValid {
			continue
		}
		month := time.Date(row.InvoiceDate.Year(), row.InvoiceDate.Month(), 1, 0, 0, 0, 0, time.UTC)
		agg, ok := months[month]
		if !ok {
			agg = &monthAgg{orders: map[string]struct{}{}, customers: map[string]struct{}{}}
			months[month] = agg
		}
		if !math.IsNaN(row.Revenue) {
			agg.revenue += row.Revenue
		}
		if row.InvoiceID != "" {
			agg.orders[row.InvoiceID] = struct{}{}
		}
		if row.CustomerID != "" {
			agg.customers[row.CustomerID] = struct{}{}
		}
	}

	monthly := make([]MonthlyKPI, 0, len(months))
	for month, agg := range months {
		monthly = append(monthly, MonthlyKPI{
			Month:     month.Format("2006-01"),
			Revenue:   agg.revenue,
			Orders:    len(agg.orders),
			Customers: len(agg.customers),
		})
	}
	sort.Slice(monthly, func(i, j int) bool { return monthly[i].Month < monthly[j].Month })

	revenue := decimal.NewFromFloat(totalRevenue).Round(2)
	avgOrder := decimal.Zero
	if len(orders) > 0 {
		avgOrder = revenue.Div(decimal.NewFromInt(int64(len(orders)))).Round(2)
	}

	report := &OverviewReport{
		DatasetID:     datasetID,
		TotalRevenue:  revenue,
		TotalProfit:   revenue.Mul(decimal.NewFromFloat(s.cfg.ProfitMargin)).Round(2),
		Customers:     len(customers),
		Orders:        len(orders),
		AvgOrderValue: avgOrder,
		Monthly:       monthly,
	}
	if table.Columns.HasCategory {
		report.RevenueByCategory = revenueByCategory(table)
	}
	if table.Columns.HasDescription {
		report.TopProducts = topProductsByQuantity(table, topListSize)
	}
	if table.Columns.HasCategory && table.Columns.HasCountry {
		report.TopCategoryByCountry = topCategoryByCountry(table)
	}
	return report, nil
}

func (s *service) RFM(ctx context.Context, datasetID string, p Params, bins int) (rep *RFMReport, err error) {
	ctx = s.log.WithReport(s.log.WithDatasetID(ctx, datasetID), "rfm")
	start := time.Now()
	defer func() { s.observe(ctx, "rfm", start, err) }()

	if bins < 1 {
		bins = s.cfg.ScoreBins
	}

	table, reference, err := s.table(ctx, datasetID, p, true)
	if err != nil {
		return nil, err
	}

	customers := rfm.Aggregate(table, reference)
	if len(customers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnprocessable, "no customers with valid transactions")
	}

	scored, diagnostics := rfm.Score(customers, bins)
	return &RFMReport{
		DatasetID:    datasetID,
		Reference:    reference,
		Customers:    scored,
		Diagnostics:  diagnostics,
		Segments:     summarizeSegments(scored),
		TopCustomers: topByComposite(scored, topListSize),
	}, nil
}

func (s *service) Segments(ctx context.Context, datasetID string, p Params, clusters int) (rep *SegmentationReport, err error) {
	ctx = s.log.WithReport(s.log.WithDatasetID(ctx, datasetID), "segments")
	start := time.Now()
	defer func() { s.observe(ctx, "segments", start, err) }()

	if clusters < 1 {
		clusters = s.cfg.Clusters
	}

	table, reference, err := s.table(ctx, datasetID, p, true)
	if err != nil {
		return nil, err
	}

	customers := rfm.Aggregate(table, reference)
	if len(customers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnprocessable, "no customers with valid transactions")
	}

	result, err := segmentation.Assign(customers, segmentation.Options{
		Clusters: clusters,
		Seed:     s.cfg.ClusterSeed,
		Restarts: s.cfg.ClusterRestarts,
	})
	if err != nil {
		return nil, err
	}

	return &SegmentationReport{
		DatasetID:   datasetID,
		Reference:   reference,
		Assignments: result.Assignments,
		Clusters:    result.Clusters,
		Inertia:     result.Inertia,
	}, nil
}

func (s *service) Churn(ctx context.Context, datasetID string, p Params, thresholdDays int) (rep *ChurnReport, err error) {
	ctx = s.log.WithReport(s.log.WithDatasetID(ctx, datasetID), "churn")
	start := time.Now()
	defer func() { s.observe(ctx, "churn", start, err) }()

	if thresholdDays < 1 {
		thresholdDays = s.cfg.ChurnThresholdDays
	}

	table, reference, err := s.table(ctx, datasetID, p, true)
	if err != nil {
		return nil, err
	}

	lastPurchases := rfm.LastPurchases(table)
	if len(lastPurchases) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnprocessable, "no customers with valid transactions")
	}

	records := churn.Detect(lastPurchases, reference, thresholdDays)

	monthlyRates := churn.MonthlyRates(records)
	monthly := make([]MonthlyChurnRate, len(monthlyRates))
	for i, m := range monthlyRates {
		monthly[i] = MonthlyChurnRate{
			Month:     m.Month.Format("2006-01"),
			Customers: m.Customers,
			Rate:      m.Rate,
		}
	}

	return &ChurnReport{
		DatasetID:     datasetID,
		Reference:     reference,
		ThresholdDays: thresholdDays,
		Records:       records,
		RatePercent:   churn.Rate(records),
		Monthly:       monthly,
		TopAtRisk:     topAtRisk(table, records, reference, topListSize),
	}, nil
}

func (s *service) Forecast(ctx context.Context, datasetID string, p Params, in ForecastInput) (rep *ForecastReport, err error) {
	ctx = s.log.WithReport(s.log.WithDatasetID(ctx, datasetID), "forecast")
	start := time.Now()
	defer func() { s.observe(ctx, "forecast", start, err) }()

	metric := in.Metric
	if metric == "" {
		metric = MetricRevenue
	}
	if metric != MetricRevenue && metric != MetricCLV {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown forecast metric").
			WithDetails(map[string]any{"metric": metric})
	}
	steps := in.Steps
	if steps < 1 {
		steps = s.cfg.ForecastSteps
	}
	family := forecast.Family(in.Model)
	if in.Model != "" && !family.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown model family").
			WithDetails(map[string]any{"model": in.Model})
	}

	table, reference, err := s.table(ctx, datasetID, p, true)
	if err != nil {
		return nil, err
	}

	var history []SeriesPoint
	var values []float64
	var futureLabels []string

	switch metric {
	case MetricRevenue:
		series := forecast.MonthlyRevenue(table)
		if len(series) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeUnprocessable, "no dated transactions to build a series")
		}
		values = make([]float64, len(series))
		history = make([]SeriesPoint, len(series))
		for i, pt := range series {
			values[i] = pt.Value
			history[i] = SeriesPoint{Period: pt.Period.Format("2006-01"), Value: pt.Value}
		}
		for _, month := range forecast.FuturePeriods(series[len(series)-1].Period, steps) {
			futureLabels = append(futureLabels, month.Format("2006-01"))
		}
	case MetricCLV:
		// the customer base ordered by id is treated as a pseudo-series,
		// so periods are ordinal positions rather than calendar months
		customers := rfm.Aggregate(table, reference)
		if len(customers) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeUnprocessable, "no customers with valid transactions")
		}
		values = make([]float64, len(customers))
		history = make([]SeriesPoint, len(customers))
		for i, c := range customers {
			values[i] = c.Monetary
			history[i] = SeriesPoint{Period: fmt.Sprintf("%d", i+1), Value: c.Monetary}
		}
		for i := 0; i < steps; i++ {
			futureLabels = append(futureLabels, fmt.Sprintf("%d", len(customers)+i+1))
		}
	}

	model, outcome, err := forecast.Fit(values, family, forecast.ARIMAOrder{
		P: s.cfg.ARIMAP,
		D: s.cfg.ARIMAD,
		Q: s.cfg.ARIMAQ,
	})
	if err != nil {
		return nil, err
	}

	predicted := model.Forecast(steps)
	points := make([]SeriesPoint, steps)
	projected := 0.0
	for i, v := range predicted {
		points[i] = SeriesPoint{Period: futureLabels[i], Value: v}
		projected += v
	}

	report := &ForecastReport{
		DatasetID: datasetID,
		Metric:    metric,
		ModelUsed: outcome.ModelUsed,
		FellBack:  outcome.FellBack,
		History:   history,
		Forecast:  points,
	}
	if metric == MetricRevenue {
		revenue := decimal.NewFromFloat(projected).Round(2)
		profit := revenue.Mul(decimal.NewFromFloat(s.cfg.ProfitMargin)).Round(2)
		report.ProjectedRevenue = &revenue
		report.ProjectedProfit = &profit
	}
	return report, nil
}

func summarizeSegments(scored []rfm.ScoredCustomer) []SegmentSummary {
	type agg struct {
		n         int
		recency   float64
		frequency float64
		monetary  float64
	}
	bySegment := map[rfm.Segment]*agg{}
	for _, c := range scored {
		a, ok := bySegment[c.Segment]
		if !ok {
			a = &agg{}
			bySegment[c.Segment] = a
		}
		a.n++
		a.recency += float64(c.Recency)
		a.frequency += float64(c.Frequency)
		a.monetary += c.Monetary
	}

	out := make([]SegmentSummary, 0, len(bySegment))
	for segment, a := range bySegment {
		out = append(out, SegmentSummary{
			Segment:      segment,
			Customers:    a.n,
			AvgRecency:   a.recency / float64(a.n),
			AvgFrequency: a.frequency / float64(a.n),
			AvgMonetary:  a.monetary / float64(a.n),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Customers > out[j].Customers })
	return out
}

func topByComposite(scored []rfm.ScoredCustomer, n int) []rfm.ScoredCustomer {
	top := make([]rfm.ScoredCustomer, len(scored))
	copy(top, scored)
	sort.SliceStable(top, func(i, j int) bool {
		if top[i].CompositeSum != top[j].CompositeSum {
			return top[i].CompositeSum > top[j].CompositeSum
		}
		return top[i].Monetary > top[j].Monetary
	})
	if len(top) > n {
		top = top[:n]
	}
	return top
}

func topAtRisk(table dataset.Table, records []churn.Record, reference time.Time, n int) []AtRiskCustomer {
	lifetime := map[string]float64{}
	names := map[string]string{}
	for _, row := range table.Rows {
		if row.CustomerID == "" || math.IsNaN(row.Revenue) {
			continue
		}
		lifetime[row.CustomerID] += row.Revenue
		if names[row.CustomerID] == "" && row.CustomerName != "" {
			names[row.CustomerID] = row.CustomerName
		}
	}

	var out []AtRiskCustomer
	for _, r := range records {
		if !r.Churned {
			continue
		}
		out = append(out, AtRiskCustomer{
			CustomerID:            r.CustomerID,
			CustomerName:          names[r.CustomerID],
			LastPurchase:          r.LastPurchase,
			DaysSinceLastPurchase: r.DaysSinceLastPurchase,
			LifetimeValue:         decimal.NewFromFloat(lifetime[r.CustomerID]).Round(2),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DaysSinceLastPurchase > out[j].DaysSinceLastPurchase
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func revenueByCategory(table dataset.Table) []CategoryRevenue {
	type agg struct {
		revenue  float64
		quantity float64
	}
	byCategory := map[string]*agg{}
	for _, row := range table.Rows {
		if row.Category == "" || math.IsNaN(row.Revenue) {
			continue
		}
		a, ok := byCategory[row.Category]
		if !ok {
			a = &agg{}
			byCategory[row.Category] = a
		}
		a.revenue += row.Revenue
		if !math.IsNaN(row.Quantity) {
			a.quantity += row.Quantity
		}
	}

	out := make([]CategoryRevenue, 0, len(byCategory))
	for category, a := range byCategory {
		out = append(out, CategoryRevenue{Category: category, Revenue: a.revenue, Quantity: a.quantity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revenue > out[j].Revenue })
	return out
}

func topProductsByQuantity(table dataset.Table, n int) []ProductQuantity {
	type agg struct {
		quantity float64
		revenue  float64
	}
	byProduct := map[string]*agg{}
	for _, row := range table.Rows {
		if row.Description == "" || math.IsNaN(row.Quantity) {
			continue
		}
		a, ok := byProduct[row.Description]
		if !ok {
			a = &agg{}
			byProduct[row.Description] = a
		}
		a.quantity += row.Quantity
		if !math.IsNaN(row.Revenue) {
			a.revenue += row.Revenue
		}
	}

	out := make([]ProductQuantity, 0, len(byProduct))
	for product, a := range byProduct {
		out = append(out, ProductQuantity{Product: product, Quantity: a.quantity, Revenue: a.revenue})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Product < out[j].Product
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func topCategoryByCountry(table dataset.Table) []CountryCategory {
	byCountry := map[string]map[string]float64{}
	for _, row := range table.Rows {
		if row.Country == "" || row.Category == "" || math.IsNaN(row.Revenue) {
			continue
		}
		categories, ok := byCountry[row.Country]
		if !ok {
			categories = map[string]float64{}
			byCountry[row.Country] = categories
		}
		categories[row.Category] += row.Revenue
	}

	out := make([]CountryCategory, 0, len(byCountry))
	for country, categories := range byCountry {
		best := CountryCategory{Country: country}
		for category, revenue := range categories {
			if best.Category == "" || revenue > best.Revenue ||
				(revenue == best.Revenue && category < best.Category) {
				best.Category = category
				best.Revenue = revenue
			}
		}
		out = append(out, best)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
	return out
}
