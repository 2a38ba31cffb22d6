package analytics

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/crmlytics/backend/internal/dataset"
	"github.com/crmlytics/backend/pkg/config"
	pkgerrors "github.com/crmlytics/backend/pkg/errors"
	"github.com/crmlytics/backend/pkg/logger"
	"github.com/crmlytics/backend/pkg/metrics"
)

func testConfig() config.AnalyticsConfig {
	return config.AnalyticsConfig{
		ScoreBins:          4,
		ChurnThresholdDays: 90,
		Clusters:           4,
		ClusterSeed:        42,
		ClusterRestarts:    10,
		ForecastSteps:      6,
		ARIMAP:             2,
		ARIMAD:             1,
		ARIMAQ:             2,
		ProfitMargin:       0.3,
	}
}

func newTestService(t *testing.T, csv string) (Service, string) {
	t.Helper()
	cache := dataset.NewCache(4)
	entry, _, err := cache.Load([]byte(csv))
	if err != nil {
		t.Fatalf("loading dataset: %v", err)
	}
	log := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	svc := NewService(cache, testConfig(), log, metrics.NewReportMetrics(prometheus.NewRegistry()))
	return svc, entry.ID
}

// scenarioCSV builds three months of activity for ten customers. Customers
// 1-5 buy in every month; customers 6-10 only appear in the first month,
// so they sit well past a 90-day churn threshold by the final invoice date.
func scenarioCSV() string {
	var b strings.Builder
	b.WriteString("CustomerID,CustomerName,InvoiceNo,InvoiceDate,Description,Category,Quantity,UnitPrice,Country\n")
	months := []string{"2024-01", "2024-02", "2024-03"}
	invoice := 1000
	for m, month := range months {
		for c := 1; c <= 10; c++ {
			if c > 5 && m > 0 {
				continue
			}
			invoice++
			// active customers grow their ticket month over month
			price := float64(10 + c + 5*m)
			fmt.Fprintf(&b, "C%02d,Customer %02d,INV%d,%s-15 10:00:00,Widget,Gadgets,%d,%.2f,Portugal\n",
				c, c, invoice, month, 2, price)
		}
	}
	// a later anchor purchase fixes the dataset max date
	fmt.Fprintf(&b, "C01,Customer 01,INV9999,2024-06-20 09:30:00,Widget,Gadgets,1,25.00,Spain\n")
	return b.String()
}

func TestOverviewReport(t *testing.T) {
	svc, id := newTestService(t, scenarioCSV())

	report, err := svc.Overview(context.Background(), id, Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Customers != 10 {
		t.Fatalf("expected 10 customers, got %d", report.Customers)
	}
	if report.Orders != 21 {
		t.Fatalf("expected 21 orders, got %d", report.Orders)
	}
	if report.TotalRevenue.IsZero() || report.TotalRevenue.IsNegative() {
		t.Fatalf("expected positive revenue, got %s", report.TotalRevenue)
	}
	wantProfit := report.TotalRevenue.Mul(decimal.NewFromFloat(0.3)).Round(2)
	if !report.TotalProfit.Equal(wantProfit) {
		t.Fatalf("profit %s, want %s", report.TotalProfit, wantProfit)
	}
	// jan through jun inclusive, gap months absent from the map-based kpis
	if len(report.Monthly) != 4 {
		t.Fatalf("expected 4 active months, got %d", len(report.Monthly))
	}
	if report.Monthly[0].Month != "2024-01" || report.Monthly[0].Customers != 10 {
		t.Fatalf("unexpected first month: %+v", report.Monthly[0])
	}
	if len(report.RevenueByCategory) != 1 || report.RevenueByCategory[0].Category != "Gadgets" {
		t.Fatalf("unexpected category rollup: %+v", report.RevenueByCategory)
	}
	if len(report.TopCategoryByCountry) != 2 {
		t.Fatalf("expected rollups for 2 countries, got %+v", report.TopCategoryByCountry)
	}
	// 20 rows of 2 units plus the single-unit anchor purchase
	if len(report.TopProducts) != 1 || report.TopProducts[0].Product != "Widget" {
		t.Fatalf("unexpected product rollup: %+v", report.TopProducts)
	}
	if report.TopProducts[0].Quantity != 41 {
		t.Fatalf("expected 41 units of Widget, got %v", report.TopProducts[0].Quantity)
	}
}

func TestOverviewTopProductsRanked(t *testing.T) {
	csv := "CustomerID,InvoiceNo,InvoiceDate,Description,Quantity,UnitPrice\n" +
		"C01,INV1,2024-01-10 10:00:00,Mug,3,4.00\n" +
		"C02,INV2,2024-01-11 10:00:00,Lamp,8,12.00\n" +
		"C01,INV3,2024-01-12 10:00:00,Mug,2,4.00\n" +
		"C03,INV4,2024-01-13 10:00:00,Lamp,bad,12.00\n"
	svc, id := newTestService(t, csv)

	report, err := svc.Overview(context.Background(), id, Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.TopProducts) != 2 {
		t.Fatalf("expected 2 products, got %+v", report.TopProducts)
	}
	if report.TopProducts[0].Product != "Lamp" || report.TopProducts[0].Quantity != 8 {
		t.Fatalf("products not ranked by units sold: %+v", report.TopProducts)
	}
	if report.TopProducts[1].Quantity != 5 {
		t.Fatalf("expected 5 mugs, got %v", report.TopProducts[1].Quantity)
	}
	// the file has no category or country columns so those rollups stay off
	if report.RevenueByCategory != nil || report.TopCategoryByCountry != nil {
		t.Fatal("expected category and country rollups to be absent")
	}
}

func TestOverviewCountryFilter(t *testing.T) {
	svc, id := newTestService(t, scenarioCSV())

	report, err := svc.Overview(context.Background(), id, Params{Country: "spain"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Customers != 1 || report.Orders != 1 {
		t.Fatalf("expected the single spanish order, got %d customers / %d orders", report.Customers, report.Orders)
	}
}

func TestRFMReport(t *testing.T) {
	svc, id := newTestService(t, scenarioCSV())

	report, err := svc.RFM(context.Background(), id, Params{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Customers) != 10 {
		t.Fatalf("expected 10 scored customers, got %d", len(report.Customers))
	}
	if report.Reference.IsZero() {
		t.Fatal("expected the reference to default to the dataset max date")
	}

	byID := map[string]int{}
	for i, c := range report.Customers {
		byID[c.CustomerID] = i
	}
	anchor := report.Customers[byID["C01"]]
	idle := report.Customers[byID["C07"]]
	if anchor.Recency >= idle.Recency {
		t.Fatalf("anchor customer should be more recent: %d vs %d", anchor.Recency, idle.Recency)
	}
	if anchor.CompositeSum < idle.CompositeSum {
		t.Fatalf("anchor composite %d should not trail idle composite %d", anchor.CompositeSum, idle.CompositeSum)
	}
	if anchor.CompositeCode != fmt.Sprintf("%d%d%d", anchor.R, anchor.F, anchor.M) {
		t.Fatalf("composite code %q does not match scores", anchor.CompositeCode)
	}

	if len(report.TopCustomers) != 10 {
		t.Fatalf("expected all 10 in the top list, got %d", len(report.TopCustomers))
	}
	for i := 1; i < len(report.TopCustomers); i++ {
		if report.TopCustomers[i].CompositeSum > report.TopCustomers[i-1].CompositeSum {
			t.Fatal("top customers not sorted by composite score")
		}
	}

	total := 0
	for _, s := range report.Segments {
		total += s.Customers
	}
	if total != 10 {
		t.Fatalf("segment summaries cover %d customers, want 10", total)
	}
}

func TestSegmentsReportDeterministic(t *testing.T) {
	svc, id := newTestService(t, scenarioCSV())

	first, err := svc.Segments(context.Background(), id, Params{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Segments(context.Background(), id, Params{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.Assignments) != 10 {
		t.Fatalf("expected 10 assignments, got %d", len(first.Assignments))
	}
	for i := range first.Assignments {
		if first.Assignments[i] != second.Assignments[i] {
			t.Fatalf("assignment %d changed between runs: %+v vs %+v",
				i, first.Assignments[i], second.Assignments[i])
		}
	}
	if first.Inertia != second.Inertia {
		t.Fatalf("inertia changed between runs: %v vs %v", first.Inertia, second.Inertia)
	}
}

func TestChurnReport(t *testing.T) {
	svc, id := newTestService(t, scenarioCSV())

	report, err := svc.Churn(context.Background(), id, Params{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ThresholdDays != 90 {
		t.Fatalf("expected the default threshold, got %d", report.ThresholdDays)
	}
	churned := map[string]bool{}
	for _, r := range report.Records {
		churned[r.CustomerID] = r.Churned
	}
	// reference is 2024-06-20; customers 6-10 last bought on 2024-01-15
	for _, idle := range []string{"C06", "C07", "C08", "C09", "C10"} {
		if !churned[idle] {
			t.Errorf("expected %s churned", idle)
		}
	}
	if churned["C01"] {
		t.Error("the anchor customer purchased in june and must not be churned")
	}
	// customers 2-5 last bought 2024-03-15, well past 90 days by june 20
	if !churned["C02"] {
		t.Error("expected C02 churned")
	}
	if report.RatePercent != 90 {
		t.Fatalf("expected 90%% churn rate, got %v", report.RatePercent)
	}

	if len(report.TopAtRisk) == 0 {
		t.Fatal("expected at-risk customers")
	}
	first := report.TopAtRisk[0]
	if first.DaysSinceLastPurchase < report.TopAtRisk[len(report.TopAtRisk)-1].DaysSinceLastPurchase {
		t.Fatal("at-risk list not sorted by days inactive")
	}
	if !first.LifetimeValue.IsPositive() {
		t.Fatalf("expected a positive lifetime value, got %s", first.LifetimeValue)
	}
}

func TestChurnExplicitReference(t *testing.T) {
	svc, id := newTestService(t, scenarioCSV())

	reference := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	report, err := svc.Churn(context.Background(), id, Params{Reference: reference}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	churned := 0
	for _, r := range report.Records {
		if r.Churned {
			churned++
		}
	}
	// only the one-month customers are past 90 days on 2024-05-20
	if churned != 5 {
		t.Fatalf("expected 5 churned at the explicit reference, got %d", churned)
	}
}

func TestForecastRevenue(t *testing.T) {
	svc, id := newTestService(t, scenarioCSV())

	report, err := svc.Forecast(context.Background(), id, Params{}, ForecastInput{Metric: MetricRevenue, Steps: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Forecast) != 4 {
		t.Fatalf("expected 4 forecast points, got %d", len(report.Forecast))
	}
	// history spans jan through jun with gap months zero-filled
	if len(report.History) != 6 {
		t.Fatalf("expected 6 history months, got %d", len(report.History))
	}
	if report.Forecast[0].Period != "2024-07" || report.Forecast[3].Period != "2024-10" {
		t.Fatalf("forecast periods not consecutive months: %+v", report.Forecast)
	}
	if report.ModelUsed == "" {
		t.Fatal("expected the fitted model to be reported")
	}
	if report.ProjectedRevenue == nil || report.ProjectedProfit == nil {
		t.Fatal("expected revenue projections for the revenue metric")
	}
	wantProfit := report.ProjectedRevenue.Mul(decimal.NewFromFloat(0.3)).Round(2)
	if !report.ProjectedProfit.Equal(wantProfit) {
		t.Fatalf("profit %s, want %s", report.ProjectedProfit, wantProfit)
	}
}

func TestForecastCLV(t *testing.T) {
	svc, id := newTestService(t, scenarioCSV())

	report, err := svc.Forecast(context.Background(), id, Params{}, ForecastInput{Metric: MetricCLV, Steps: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.History) != 10 {
		t.Fatalf("expected one history point per customer, got %d", len(report.History))
	}
	if len(report.Forecast) != 3 {
		t.Fatalf("expected 3 forecast points, got %d", len(report.Forecast))
	}
	if report.Forecast[0].Period != "11" {
		t.Fatalf("expected ordinal continuation, got %q", report.Forecast[0].Period)
	}
	if report.ProjectedRevenue != nil || report.ProjectedProfit != nil {
		t.Fatal("projections apply to the revenue metric only")
	}
}

func TestForecastUnknownMetric(t *testing.T) {
	svc, id := newTestService(t, scenarioCSV())

	_, err := svc.Forecast(context.Background(), id, Params{}, ForecastInput{Metric: "units"})
	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReportsUnknownDataset(t *testing.T) {
	svc, _ := newTestService(t, scenarioCSV())

	_, err := svc.Overview(context.Background(), "deadbeefdeadbeef", Params{})
	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReportsEmptyAfterFilter(t *testing.T) {
	svc, id := newTestService(t, scenarioCSV())

	_, err := svc.Overview(context.Background(), id, Params{Country: "Atlantis"})
	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != pkgerrors.CodeUnprocessable {
		t.Fatalf("expected unprocessable, got %v", err)
	}
}
