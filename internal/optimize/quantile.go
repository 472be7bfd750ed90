package optimize

import (
	"math"
	"sort"

	"sleepanalysis/internal/errors"
)

// standardizer centers and scales feature columns with statistics fixed at
// training time.
type standardizer struct {
	means []float64
	stds  []float64
}

func fitStandardizer(X [][]float64) standardizer {
	p := len(X[0])
	s := standardizer{means: make([]float64, p), stds: make([]float64, p)}
	n := float64(len(X))
	for j := 0; j < p; j++ {
		sum := 0.0
		for i := range X {
			sum += X[i][j]
		}
		s.means[j] = sum / n

		sumSq := 0.0
		for i := range X {
			d := X[i][j] - s.means[j]
			sumSq += d * d
		}
		s.stds[j] = math.Sqrt(sumSq / n)
		if s.stds[j] == 0 {
			s.stds[j] = 1
		}
	}
	return s
}

func (s standardizer) transformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.means[j]) / s.stds[j]
	}
	return out
}

func (s standardizer) transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i := range X {
		out[i] = s.transformRow(X[i])
	}
	return out
}

// quantileModel is a linear model w·x + b fitted to minimize the pinball
// loss at a fixed quantile.
type quantileModel struct {
	Tau       float64
	Weights   []float64
	Intercept float64
}

func (m quantileModel) predict(row []float64) float64 {
	out := m.Intercept
	for j, w := range m.Weights {
		out += w * row[j]
	}
	return out
}

// fitQuantile fits a linear quantile model by bounded full-batch subgradient
// descent on the pinball loss, warm-started at the unconditional quantile.
// Deterministic: no randomness, fixed iteration count.
func fitQuantile(X [][]float64, y []float64, tau float64) (quantileModel, error) {
	n := len(X)
	if n == 0 || n != len(y) {
		return quantileModel{}, errors.InvalidInput("quantile fit requires matching X and y")
	}
	p := len(X[0])

	m := quantileModel{
		Tau:       tau,
		Weights:   make([]float64, p),
		Intercept: unconditionalQuantile(y, tau),
	}

	// Scale the step size to the response spread so convergence speed does
	// not depend on the metric's units.
	spread := responseSpread(y)
	if spread == 0 {
		return m, nil // constant response: the intercept is already exact
	}

	const iterations = 400
	for it := 0; it < iterations; it++ {
		step := 0.05 * spread / (1 + 0.05*float64(it))

		gradW := make([]float64, p)
		gradB := 0.0
		for i := 0; i < n; i++ {
			residual := y[i] - m.predict(X[i])
			// Pinball subgradient: -tau below the residual, (1-tau) above.
			var g float64
			if residual > 0 {
				g = -tau
			} else {
				g = 1 - tau
			}
			for j := 0; j < p; j++ {
				gradW[j] += g * X[i][j]
			}
			gradB += g
		}

		scale := step / float64(n)
		for j := 0; j < p; j++ {
			m.Weights[j] -= scale * gradW[j]
		}
		m.Intercept -= scale * gradB
	}

	for _, w := range m.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return quantileModel{}, errors.New(errors.CodeInternalError, "quantile fit diverged")
		}
	}
	return m, nil
}

func unconditionalQuantile(y []float64, tau float64) float64 {
	sorted := make([]float64, len(y))
	copy(sorted, y)
	sort.Float64s(sorted)
	idx := int(tau * float64(len(sorted)-1))
	return sorted[idx]
}

func responseSpread(y []float64) float64 {
	lo, hi := y[0], y[0]
	for _, v := range y {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}
