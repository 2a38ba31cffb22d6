package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crmlytics/backend/api/controllers"
	analyticscontrollers "github.com/crmlytics/backend/api/controllers/analytics"
	"github.com/crmlytics/backend/api/middleware"
	"github.com/crmlytics/backend/internal/analytics"
	"github.com/crmlytics/backend/internal/dataset"
	"github.com/crmlytics/backend/pkg/config"
	"github.com/crmlytics/backend/pkg/logger"
	"github.com/crmlytics/backend/pkg/metrics"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	cache *dataset.Cache,
	analyticsService analytics.Service,
	reportMetrics *metrics.ReportMetrics,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/healthz", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg))
	})
	r.Get("/ping", controllers.Ping())
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/datasets", func(r chi.Router) {
		r.Post("/", controllers.UploadDataset(cache, cfg.Upload.MaxBytes, logg, reportMetrics))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", controllers.GetDataset(cache, logg))
			r.Delete("/", controllers.DeleteDataset(cache, logg, reportMetrics))

			r.Route("/reports", func(r chi.Router) {
				r.Get("/overview", analyticscontrollers.Overview(analyticsService, logg))
				r.Get("/rfm", analyticscontrollers.RFM(analyticsService, logg))
				r.Get("/segments", analyticscontrollers.Segments(analyticsService, logg))
				r.Get("/churn", analyticscontrollers.Churn(analyticsService, logg))
				r.Get("/forecast", analyticscontrollers.Forecast(analyticsService, logg))
			})
		})
	})

	return r
}
