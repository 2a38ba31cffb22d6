package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load with defaults failed: %v", err)
	}
	if cfg.Analytics.ScoreBins != 4 {
		t.Fatalf("expected 4 score bins, got %d", cfg.Analytics.ScoreBins)
	}
	if cfg.Analytics.ChurnThresholdDays != 90 {
		t.Fatalf("expected 90 day churn threshold, got %d", cfg.Analytics.ChurnThresholdDays)
	}
	if cfg.Analytics.Clusters != 4 {
		t.Fatalf("expected 4 clusters, got %d", cfg.Analytics.Clusters)
	}
	if cfg.Analytics.ForecastSteps != 6 {
		t.Fatalf("expected 6 forecast steps, got %d", cfg.Analytics.ForecastSteps)
	}
	if cfg.Analytics.ARIMAP != 2 || cfg.Analytics.ARIMAD != 1 || cfg.Analytics.ARIMAQ != 2 {
		t.Fatalf("unexpected ARIMA order (%d,%d,%d)", cfg.Analytics.ARIMAP, cfg.Analytics.ARIMAD, cfg.Analytics.ARIMAQ)
	}
	if !cfg.App.IsDev() {
		t.Fatalf("expected dev env by default, got %q", cfg.App.Env)
	}
}

func TestAnalyticsValidate(t *testing.T) {
	a := AnalyticsConfig{ScoreBins: 4, Clusters: 4, ClusterRestarts: 10, ForecastSteps: 6, ProfitMargin: 0.3}
	if err := a.validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	a.ScoreBins = 0
	if err := a.validate(); err == nil {
		t.Fatal("expected error for zero score bins")
	}

	a.ScoreBins = 4
	a.ProfitMargin = 1.5
	if err := a.validate(); err == nil {
		t.Fatal("expected error for out-of-range profit margin")
	}
}
