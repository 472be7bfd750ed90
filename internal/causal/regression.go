package causal

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"sleepanalysis/internal/errors"
)

// olsFit solves least squares for y = X*beta with an implicit leading
// intercept column. rows is the design matrix without the intercept.
func olsFit(rows [][]float64, y []float64) ([]float64, error) {
	n := len(rows)
	if n == 0 || n != len(y) {
		return nil, errors.InvalidInput("regression design and response length mismatch")
	}
	p := len(rows[0]) + 1
	if n < p {
		return nil, errors.InsufficientData("fewer rows than regression coefficients")
	}

	X := mat.NewDense(n, p, nil)
	for i, row := range rows {
		X.Set(i, 0, 1)
		for j, v := range row {
			X.Set(i, j+1, v)
		}
	}

	var qr mat.QR
	qr.Factorize(X)

	beta := mat.NewVecDense(p, nil)
	if err := qr.SolveVecTo(beta, false, mat.NewVecDense(n, y)); err != nil {
		return nil, errors.Wrap(err, "least squares solve failed")
	}

	coefs := make([]float64, p)
	for i := 0; i < p; i++ {
		coefs[i] = beta.AtVec(i)
		if math.IsNaN(coefs[i]) || math.IsInf(coefs[i], 0) {
			return nil, errors.New(errors.CodeInternalError, "regression produced non-finite coefficients")
		}
	}
	return coefs, nil
}

// predict evaluates an olsFit model (intercept-first coefficients) at a row.
func predict(coefs []float64, row []float64) float64 {
	out := coefs[0]
	for j, v := range row {
		out += coefs[j+1] * v
	}
	return out
}

// meanImpute replaces NaN entries of each column with that column's mean
// over the non-missing rows. Columns with no observed values become zero.
func meanImpute(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	p := len(rows[0])
	for j := 0; j < p; j++ {
		sum, count := 0.0, 0
		for i := range rows {
			if !math.IsNaN(rows[i][j]) {
				sum += rows[i][j]
				count++
			}
		}
		fill := 0.0
		if count > 0 {
			fill = sum / float64(count)
		}
		for i := range rows {
			if math.IsNaN(rows[i][j]) {
				rows[i][j] = fill
			}
		}
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// pearson computes the Pearson correlation of two equal-length series,
// returning 0 when either side is constant.
func pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	mx, my := mean(x), mean(y)
	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return sxy / math.Sqrt(sxx*syy)
}
