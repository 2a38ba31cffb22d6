package forecast

import (
	"math"

	pkgerrors "github.com/crmlytics/backend/pkg/errors"
)

// Family selects a model strategy by name.
type Family string

const (
	FamilyAuto      Family = "auto"
	FamilyARIMA     Family = "arima"
	FamilySmoothing Family = "smoothing"
)

// IsValid reports whether the family is recognized.
func (f Family) IsValid() bool {
	switch f {
	case FamilyAuto, FamilyARIMA, FamilySmoothing:
		return true
	}
	return false
}

// FittedModel projects future values, one per requested step.
type FittedModel interface {
	Forecast(steps int) []float64
}

// Outcome reports which model actually fit and whether a simpler family
// had to stand in for the requested one.
type Outcome struct {
	ModelUsed string `json:"model_used"`
	FellBack  bool   `json:"fell_back"`
}

const (
	modelARIMA          = "arima"
	modelSeasonalHW     = "holt_winters_seasonal"
	modelTrendSmoothing = "holt_trend"
	modelConstant       = "constant"

	seasonalPeriod     = 3
	minSeasonalHistory = 2 * seasonalPeriod
	minTrendHistory    = 2
)

// Fit chooses and fits a model for the monthly series. The selection is
// decided once here, not per call site: an explicit family wins; auto uses
// ARIMA when the history covers at least two seasonal cycles and
// exponential smoothing otherwise. Failures degrade down the chain
// (ARIMA -> seasonal smoothing -> trend smoothing); fewer than two points
// cannot fit anything and ends the forecast stage with an error, leaving
// other reports untouched. A zero-variance series fits a constant model,
// which is valid, not an error.
func Fit(values []float64, family Family, order ARIMAOrder) (FittedModel, Outcome, error) {
	if len(values) < minTrendHistory {
		return nil, Outcome{}, pkgerrors.New(pkgerrors.CodeUnprocessable, "series too short to fit a forecast model").
			WithDetails(map[string]any{"observations": len(values), "minimum": minTrendHistory})
	}

	if hasNaN(values) {
		return nil, Outcome{}, pkgerrors.New(pkgerrors.CodeUnprocessable, "series contains non-numeric values")
	}

	if isConstant(values) {
		return constantModel(values[0]), Outcome{ModelUsed: modelConstant}, nil
	}

	switch family {
	case FamilyARIMA, FamilyAuto, "":
		if family == FamilyAuto || family == "" {
			if len(values) < minSeasonalHistory {
				return fitSmoothing(values, false)
			}
		}
		model, err := fitARIMA(values, order)
		if err == nil {
			return model, Outcome{ModelUsed: modelARIMA}, nil
		}
		fitted, outcome, serr := fitSmoothing(values, true)
		if serr != nil {
			return nil, Outcome{}, serr
		}
		return fitted, outcome, nil
	case FamilySmoothing:
		return fitSmoothing(values, false)
	default:
		return nil, Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown model family").
			WithDetails(map[string]any{"family": string(family)})
	}
}

// fitSmoothing picks seasonal Holt-Winters when the history is long enough
// and additive-trend smoothing otherwise.
func fitSmoothing(values []float64, fellBack bool) (FittedModel, Outcome, error) {
	if len(values) >= minSeasonalHistory {
		model, err := fitHoltWinters(values, seasonalPeriod)
		if err == nil {
			return model, Outcome{ModelUsed: modelSeasonalHW, FellBack: fellBack}, nil
		}
		fellBack = true
	}
	model, err := fitHoltTrend(values)
	if err != nil {
		return nil, Outcome{}, pkgerrors.Wrap(pkgerrors.CodeUnprocessable, err, "forecast model could not fit")
	}
	return model, Outcome{ModelUsed: modelTrendSmoothing, FellBack: fellBack}, nil
}

type constant float64

func constantModel(v float64) FittedModel {
	return constant(v)
}

func (c constant) Forecast(steps int) []float64 {
	out := make([]float64, steps)
	for i := range out {
		out[i] = float64(c)
	}
	return out
}

func isConstant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
