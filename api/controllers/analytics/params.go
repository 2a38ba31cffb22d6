package analytics

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/crmlytics/backend/api/validators"
	"github.com/crmlytics/backend/internal/analytics"
	pkgerrors "github.com/crmlytics/backend/pkg/errors"
)

func datasetID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// reportParams parses the filter parameters shared by every report
// endpoint: from, to, country, and the optional reference override.
func reportParams(r *http.Request) (analytics.Params, error) {
	from, err := validators.ParseQueryTime(r, "from")
	if err != nil {
		return analytics.Params{}, err
	}
	to, err := validators.ParseQueryTime(r, "to")
	if err != nil {
		return analytics.Params{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return analytics.Params{}, pkgerrors.New(pkgerrors.CodeValidation, "to must not precede from")
	}
	reference, err := validators.ParseQueryTime(r, "reference")
	if err != nil {
		return analytics.Params{}, err
	}

	return analytics.Params{
		From:      from,
		To:        to,
		Country:   strings.TrimSpace(r.URL.Query().Get("country")),
		Reference: reference,
	}, nil
}
