package analytics

import (
	"net/http"
	"strings"

	"github.com/crmlytics/backend/api/responses"
	"github.com/crmlytics/backend/api/validators"
	"github.com/crmlytics/backend/internal/analytics"
	"github.com/crmlytics/backend/pkg/logger"
)

func Overview(service analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		params, err := reportParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		report, err := service.Overview(ctx, datasetID(r), params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func RFM(service analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		params, err := reportParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		bins, err := validators.ParseQueryInt(r, "bins", 0, 1, 10)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		report, err := service.RFM(ctx, datasetID(r), params, bins)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func Segments(service analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		params, err := reportParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		clusters, err := validators.ParseQueryInt(r, "clusters", 0, 1, 20)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		report, err := service.Segments(ctx, datasetID(r), params, clusters)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func Churn(service analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		params, err := reportParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		threshold, err := validators.ParseQueryInt(r, "threshold_days", 0, 1, 3650)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		report, err := service.Churn(ctx, datasetID(r), params, threshold)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

type forecastQuery struct {
	Metric string `json:"metric" validate:"omitempty,oneof=revenue clv"`
	Model  string `json:"model" validate:"omitempty,oneof=auto arima smoothing"`
	Steps  int    `json:"steps" validate:"omitempty,min=1,max=24"`
}

func Forecast(service analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		params, err := reportParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		steps, err := validators.ParseQueryInt(r, "steps", 0, 1, 24)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		query := forecastQuery{
			Metric: strings.TrimSpace(r.URL.Query().Get("metric")),
			Model:  strings.TrimSpace(r.URL.Query().Get("model")),
			Steps:  steps,
		}
		if err := validators.ValidateStruct(query); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		report, err := service.Forecast(ctx, datasetID(r), params, analytics.ForecastInput{
			Metric: query.Metric,
			Model:  query.Model,
			Steps:  query.Steps,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
