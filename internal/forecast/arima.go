package forecast

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ARIMAOrder is the (p, d, q) order of an autoregressive integrated
// moving-average model.
type ARIMAOrder struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`
}

func (o ARIMAOrder) String() string {
	return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q)
}

type arimaModel struct {
	order     ARIMAOrder
	intercept float64
	ar        []float64
	ma        []float64

	// state needed to roll the recursion forward from the end of the
	// observed series
	recent    []float64 // last p differenced values, most recent last
	residuals []float64 // last q residuals, most recent last
	tails     []float64 // last value at each integration level 0..d-1
}

// fitARIMA estimates an ARIMA(p,d,q) by the Hannan-Rissanen two-stage
// least-squares procedure: a long autoregression supplies residual
// estimates, then the differenced series is regressed on its own lags and
// the residual lags. Short or degenerate series make the regressions
// unsolvable and surface as an error so the caller can fall back.
func fitARIMA(values []float64, order ARIMAOrder) (FittedModel, error) {
	p, d, q := order.P, order.D, order.Q
	if p == 0 && q == 0 {
		return nil, fmt.Errorf("arima order %s has no ar or ma terms", order)
	}

	z, tails := difference(values, d)

	longLag := p + q
	if longLag < 1 {
		longLag = 1
	}
	if len(z) < 2*longLag+2 {
		return nil, fmt.Errorf("arima%s needs more observations, have %d", order, len(values))
	}

	residuals, err := longARResiduals(z, longLag)
	if err != nil {
		return nil, err
	}

	// second stage: z[t] ~ 1 + z[t-1..t-p] + e[t-1..t-q]
	start := p
	if longLag+q > start {
		start = longLag + q
	}
	rows := len(z) - start
	cols := 1 + p + q
	if rows < cols {
		return nil, fmt.Errorf("arima%s regression underdetermined", order)
	}

	X := mat.NewDense(rows, cols, nil)
	y := mat.NewVecDense(rows, nil)
	for t := start; t < len(z); t++ {
		row := t - start
		X.Set(row, 0, 1)
		for i := 1; i <= p; i++ {
			X.Set(row, i, z[t-i])
		}
		for j := 1; j <= q; j++ {
			X.Set(row, p+j, residuals[t-j])
		}
		y.SetVec(row, z[t])
	}

	coef, err := olsSolve(X, y)
	if err != nil {
		return nil, fmt.Errorf("arima%s could not be estimated: %w", order, err)
	}

	model := &arimaModel{
		order:     order,
		intercept: coef[0],
		ar:        coef[1 : 1+p],
		ma:        coef[1+p:],
		tails:     tails,
	}

	if p > 0 {
		model.recent = append([]float64(nil), z[len(z)-p:]...)
	}
	if q > 0 {
		model.residuals = append([]float64(nil), residuals[len(residuals)-q:]...)
	}
	return model, nil
}

// Forecast rolls the ARMA recursion forward on the differenced scale with
// future shocks at zero, then re-integrates to the original scale.
func (m *arimaModel) Forecast(steps int) []float64 {
	recent := append([]float64(nil), m.recent...)
	residuals := append([]float64(nil), m.residuals...)
	tails := append([]float64(nil), m.tails...)

	out := make([]float64, steps)
	for s := 0; s < steps; s++ {
		zhat := m.intercept
		for i, phi := range m.ar {
			zhat += phi * recent[len(recent)-1-i]
		}
		for j, theta := range m.ma {
			zhat += theta * residuals[len(residuals)-1-j]
		}

		if len(recent) > 0 {
			recent = append(recent[1:], zhat)
		}
		if len(residuals) > 0 {
			residuals = append(residuals[1:], 0)
		}

		out[s] = integrate(tails, zhat)
	}
	return out
}

// difference applies d first differences and keeps the last value at every
// integration level so forecasts can be mapped back.
func difference(values []float64, d int) ([]float64, []float64) {
	z := append([]float64(nil), values...)
	tails := make([]float64, 0, d)
	for level := 0; level < d; level++ {
		tails = append(tails, z[len(z)-1])
		next := make([]float64, len(z)-1)
		for i := 1; i < len(z); i++ {
			next[i-1] = z[i] - z[i-1]
		}
		z = next
	}
	return z, tails
}

// integrate adds one differenced-scale forecast back through the
// integration levels, updating the tails in place.
func integrate(tails []float64, zhat float64) float64 {
	v := zhat
	for i := len(tails) - 1; i >= 0; i-- {
		v = tails[i] + v
		tails[i] = v
	}
	return v
}

// longARResiduals fits a high-order autoregression by least squares and
// returns its residuals, with zeros padding the warm-up prefix.
func longARResiduals(z []float64, lag int) ([]float64, error) {
	rows := len(z) - lag
	cols := lag + 1
	if rows < cols {
		return nil, fmt.Errorf("not enough observations for lag-%d autoregression", lag)
	}

	X := mat.NewDense(rows, cols, nil)
	y := mat.NewVecDense(rows, nil)
	for t := lag; t < len(z); t++ {
		row := t - lag
		X.Set(row, 0, 1)
		for i := 1; i <= lag; i++ {
			X.Set(row, i, z[t-i])
		}
		y.SetVec(row, z[t])
	}

	coef, err := olsSolve(X, y)
	if err != nil {
		return nil, err
	}

	residuals := make([]float64, len(z))
	for t := lag; t < len(z); t++ {
		pred := coef[0]
		for i := 1; i <= lag; i++ {
			pred += coef[i] * z[t-i]
		}
		residuals[t] = z[t] - pred
	}
	return residuals, nil
}

func olsSolve(X *mat.Dense, y *mat.VecDense) ([]float64, error) {
	var qr mat.QR
	qr.Factorize(X)

	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, y); err != nil {
		return nil, fmt.Errorf("least squares solve: %w", err)
	}

	_, cols := X.Dims()
	out := make([]float64, cols)
	for i := range out {
		out[i] = sol.At(i, 0)
	}
	return out, nil
}
