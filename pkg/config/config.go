package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "crmlytics"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App       AppConfig
	Upload    UploadConfig
	Cache     CacheConfig
	Analytics AnalyticsConfig
	CORS      CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Analytics.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CRMLYTICS_APP_ENV" default:"dev"`
	Port         string `envconfig:"CRMLYTICS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CRMLYTICS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CRMLYTICS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type UploadConfig struct {
	// MaxBytes bounds the raw CSV body accepted on dataset upload.
	MaxBytes int64 `envconfig:"CRMLYTICS_UPLOAD_MAX_BYTES" default:"33554432"`
}

type CacheConfig struct {
	// MaxDatasets bounds how many parsed datasets stay resident; least
	// recently used entries are evicted past this.
	MaxDatasets int `envconfig:"CRMLYTICS_CACHE_MAX_DATASETS" default:"16"`
}

// AnalyticsConfig carries the tunables of the analytics pipeline. Every
// report endpoint may override the relevant knob per request; these are the
// defaults applied when the caller does not.
type AnalyticsConfig struct {
	ScoreBins          int     `envconfig:"CRMLYTICS_SCORE_BINS" default:"4"`
	ChurnThresholdDays int     `envconfig:"CRMLYTICS_CHURN_THRESHOLD_DAYS" default:"90"`
	Clusters           int     `envconfig:"CRMLYTICS_CLUSTERS" default:"4"`
	ClusterSeed        int64   `envconfig:"CRMLYTICS_CLUSTER_SEED" default:"42"`
	ClusterRestarts    int     `envconfig:"CRMLYTICS_CLUSTER_RESTARTS" default:"10"`
	ForecastSteps      int     `envconfig:"CRMLYTICS_FORECAST_STEPS" default:"6"`
	ARIMAP             int     `envconfig:"CRMLYTICS_ARIMA_P" default:"2"`
	ARIMAD             int     `envconfig:"CRMLYTICS_ARIMA_D" default:"1"`
	ARIMAQ             int     `envconfig:"CRMLYTICS_ARIMA_Q" default:"2"`
	ProfitMargin       float64 `envconfig:"CRMLYTICS_PROFIT_MARGIN" default:"0.3"`
}

func (a AnalyticsConfig) validate() error {
	if a.ScoreBins < 1 {
		return fmt.Errorf("score bins must be positive, got %d", a.ScoreBins)
	}
	if a.ChurnThresholdDays < 0 {
		return fmt.Errorf("churn threshold must be non-negative, got %d", a.ChurnThresholdDays)
	}
	if a.Clusters < 1 {
		return fmt.Errorf("cluster count must be positive, got %d", a.Clusters)
	}
	if a.ClusterRestarts < 1 {
		return fmt.Errorf("cluster restarts must be positive, got %d", a.ClusterRestarts)
	}
	if a.ForecastSteps < 1 {
		return fmt.Errorf("forecast steps must be positive, got %d", a.ForecastSteps)
	}
	if a.ARIMAP < 0 || a.ARIMAD < 0 || a.ARIMAQ < 0 {
		return fmt.Errorf("arima order components must be non-negative")
	}
	if a.ProfitMargin < 0 || a.ProfitMargin > 1 {
		return fmt.Errorf("profit margin must be within [0,1], got %v", a.ProfitMargin)
	}
	return nil
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CRMLYTICS_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}
