package forecast

import (
	"fmt"
	"math"
)

// smoothing parameters are grid-searched over these values; the fit is a
// deterministic SSE minimization, no random restarts.
var smoothingGrid = []float64{0.1, 0.3, 0.5, 0.7, 0.9}

type holtTrendModel struct {
	level float64
	trend float64
}

// fitHoltTrend fits additive-trend exponential smoothing, selecting alpha
// and beta by one-step squared error.
func fitHoltTrend(values []float64) (FittedModel, error) {
	if len(values) < minTrendHistory {
		return nil, fmt.Errorf("trend smoothing needs at least %d observations", minTrendHistory)
	}

	best := holtTrendModel{}
	bestSSE := math.Inf(1)
	for _, alpha := range smoothingGrid {
		for _, beta := range smoothingGrid {
			level := values[0]
			trend := values[1] - values[0]
			sse := 0.0
			for t := 1; t < len(values); t++ {
				pred := level + trend
				diff := values[t] - pred
				sse += diff * diff
				newLevel := alpha*values[t] + (1-alpha)*(level+trend)
				trend = beta*(newLevel-level) + (1-beta)*trend
				level = newLevel
			}
			if sse < bestSSE {
				bestSSE = sse
				best = holtTrendModel{level: level, trend: trend}
			}
		}
	}
	return &best, nil
}

func (m *holtTrendModel) Forecast(steps int) []float64 {
	out := make([]float64, steps)
	for h := 1; h <= steps; h++ {
		out[h-1] = m.level + float64(h)*m.trend
	}
	return out
}

type holtWintersModel struct {
	level    float64
	trend    float64
	seasonal []float64
	observed int
}

// fitHoltWinters fits additive Holt-Winters with an additive seasonal
// component, grid-searching alpha, beta, and gamma.
func fitHoltWinters(values []float64, period int) (FittedModel, error) {
	if len(values) < 2*period {
		return nil, fmt.Errorf("seasonal smoothing needs at least %d observations", 2*period)
	}

	var best *holtWintersModel
	bestSSE := math.Inf(1)
	for _, alpha := range smoothingGrid {
		for _, beta := range smoothingGrid {
			for _, gamma := range smoothingGrid {
				model, sse := runHoltWinters(values, period, alpha, beta, gamma)
				if sse < bestSSE {
					bestSSE = sse
					best = model
				}
			}
		}
	}
	if best == nil || math.IsNaN(bestSSE) {
		return nil, fmt.Errorf("seasonal smoothing did not converge")
	}
	return best, nil
}

func runHoltWinters(values []float64, period int, alpha, beta, gamma float64) (*holtWintersModel, float64) {
	level := mean(values[:period])
	trend := (mean(values[period:2*period]) - level) / float64(period)
	seasonal := make([]float64, period)
	for i := 0; i < period; i++ {
		seasonal[i] = values[i] - level
	}

	sse := 0.0
	for t := 0; t < len(values); t++ {
		idx := t % period
		pred := level + trend + seasonal[idx]
		diff := values[t] - pred
		if t >= period {
			// skip the warm-up cycle that initialization trivially matches
			sse += diff * diff
		}
		newLevel := alpha*(values[t]-seasonal[idx]) + (1-alpha)*(level+trend)
		newTrend := beta*(newLevel-level) + (1-beta)*trend
		seasonal[idx] = gamma*(values[t]-newLevel) + (1-gamma)*seasonal[idx]
		level = newLevel
		trend = newTrend
	}

	return &holtWintersModel{
		level:    level,
		trend:    trend,
		seasonal: seasonal,
		observed: len(values),
	}, sse
}

func (m *holtWintersModel) Forecast(steps int) []float64 {
	period := len(m.seasonal)
	out := make([]float64, steps)
	for h := 1; h <= steps; h++ {
		out[h-1] = m.level + float64(h)*m.trend + m.seasonal[(m.observed+h-1)%period]
	}
	return out
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
