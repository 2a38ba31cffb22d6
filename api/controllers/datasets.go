package controllers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crmlytics/backend/api/responses"
	"github.com/crmlytics/backend/internal/dataset"
	pkgerrors "github.com/crmlytics/backend/pkg/errors"
	"github.com/crmlytics/backend/pkg/logger"
	"github.com/crmlytics/backend/pkg/metrics"
)

// DatasetSummary is the payload returned on upload and on summary reads.
type DatasetSummary struct {
	ID       string            `json:"id"`
	Rows     int               `json:"rows"`
	Stats    dataset.LoadStats `json:"stats"`
	Columns  dataset.Columns   `json:"columns"`
	SpanFrom *time.Time        `json:"span_from,omitempty"`
	SpanTo   *time.Time        `json:"span_to,omitempty"`
	LoadedAt time.Time         `json:"loaded_at"`
	CacheHit bool              `json:"cache_hit"`
}

func summarize(entry *dataset.Entry, hit bool) DatasetSummary {
	summary := DatasetSummary{
		ID:       entry.ID,
		Rows:     len(entry.Table.Rows),
		Stats:    entry.Stats,
		Columns:  entry.Table.Columns,
		LoadedAt: entry.LoadedAt,
		CacheHit: hit,
	}
	if max, ok := entry.Table.MaxInvoiceDate(); ok {
		min := max
		for _, row := range entry.Table.Rows {
			if row.DateValid && row.InvoiceDate.Before(min) {
				min = row.InvoiceDate
			}
		}
		summary.SpanFrom = &min
		summary.SpanTo = &max
	}
	return summary
}

// UploadDataset parses a raw CSV body into the cache. Re-uploading
// identical bytes resolves to the same dataset id.
func UploadDataset(cache *dataset.Cache, maxBytes int64, logg *logger.Logger, m *metrics.ReportMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				m.IncDatasetLoad("too_large")
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodePayloadTooLarge, "upload exceeds the size limit").
					WithDetails(map[string]any{"max_bytes": tooLarge.Limit}))
				return
			}
			m.IncDatasetLoad("error")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reading upload"))
			return
		}
		if len(body) == 0 {
			m.IncDatasetLoad("error")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "empty upload body"))
			return
		}

		entry, hit, err := cache.Load(body)
		if err != nil {
			m.IncDatasetLoad("error")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome := "loaded"
		if hit {
			outcome = "cache_hit"
		}
		m.IncDatasetLoad(outcome)
		m.SetDatasetsCached(cache.Len())

		ctx = logg.WithDatasetID(ctx, entry.ID)
		logg.Info(ctx, "dataset.loaded")

		status := http.StatusCreated
		if hit {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, summarize(entry, hit))
	}
}

func GetDataset(cache *dataset.Cache, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")

		entry, ok := cache.Get(id)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "dataset not found").
				WithDetails(map[string]any{"dataset_id": id}))
			return
		}
		responses.WriteSuccess(w, summarize(entry, true))
	}
}

func DeleteDataset(cache *dataset.Cache, logg *logger.Logger, m *metrics.ReportMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")

		if !cache.Invalidate(id) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "dataset not found").
				WithDetails(map[string]any{"dataset_id": id}))
			return
		}
		m.SetDatasetsCached(cache.Len())

		ctx = logg.WithDatasetID(ctx, id)
		logg.Info(ctx, "dataset.invalidated")
		responses.WriteSuccess(w, map[string]string{"id": id, "status": "deleted"})
	}
}
