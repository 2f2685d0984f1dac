package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ElasticNetConfig controls the coordinate-descent fit. Alpha is the overall
// penalty strength; L1Ratio blends lasso (1) against ridge (0).
type ElasticNetConfig struct {
	Alpha   float64
	L1Ratio float64
	MaxIter int
	Tol     float64
}

func (c ElasticNetConfig) normalized() ElasticNetConfig {
	if c.Alpha < 0 {
		c.Alpha = 0
	}
	if c.L1Ratio < 0 {
		c.L1Ratio = 0
	}
	if c.L1Ratio > 1 {
		c.L1Ratio = 1
	}
	if c.MaxIter <= 0 {
		c.MaxIter = 1000
	}
	if c.Tol <= 0 {
		c.Tol = 1e-6
	}
	return c
}

// ElasticNet fits y ~ intercept + X*beta by cyclic coordinate descent on
// standardized predictors, then reports coefficients on the original scale.
// Constant predictor columns keep a zero coefficient rather than failing.
func ElasticNet(rows [][]float64, y []float64, cfg ElasticNetConfig) (beta []float64, intercept float64, err error) {
	cfg = cfg.normalized()

	n := len(rows)
	if n == 0 || n != len(y) {
		return nil, 0, fmt.Errorf("mismatched sample sizes: %d rows, %d targets", n, len(y))
	}
	p := len(rows[0])
	if p == 0 {
		return nil, 0, fmt.Errorf("empty predictor row")
	}

	// Standardize columns; a zero-variance column is left out of descent.
	colMean := make([]float64, p)
	colStd := make([]float64, p)
	cols := make([][]float64, p)
	for j := 0; j < p; j++ {
		cols[j] = make([]float64, n)
	}
	for i, row := range rows {
		if len(row) != p {
			return nil, 0, fmt.Errorf("ragged row %d: %d values, expected %d", i, len(row), p)
		}
		for j, v := range row {
			cols[j][i] = v
		}
	}
	for j := 0; j < p; j++ {
		colMean[j] = floats.Sum(cols[j]) / float64(n)
		var ss float64
		for i := range cols[j] {
			cols[j][i] -= colMean[j]
			ss += cols[j][i] * cols[j][i]
		}
		colStd[j] = math.Sqrt(ss / float64(n))
		if colStd[j] > 0 {
			floats.Scale(1/colStd[j], cols[j])
		}
	}

	yMean := floats.Sum(y) / float64(n)
	resid := make([]float64, n)
	for i := range y {
		resid[i] = y[i] - yMean
	}

	l1 := cfg.Alpha * cfg.L1Ratio
	l2 := cfg.Alpha * (1 - cfg.L1Ratio)
	scaled := make([]float64, p)

	for iter := 0; iter < cfg.MaxIter; iter++ {
		var maxDelta float64
		for j := 0; j < p; j++ {
			if colStd[j] == 0 {
				continue
			}
			old := scaled[j]
			// Partial residual correlation; standardized columns make the
			// per-coordinate denominator 1 + l2.
			rho := floats.Dot(cols[j], resid)/float64(n) + old
			next := softThreshold(rho, l1) / (1 + l2)
			if next == old {
				continue
			}
			floats.AddScaled(resid, old-next, cols[j])
			scaled[j] = next
			if d := math.Abs(next - old); d > maxDelta {
				maxDelta = d
			}
		}
		if maxDelta < cfg.Tol {
			break
		}
	}

	beta = make([]float64, p)
	intercept = yMean
	for j := 0; j < p; j++ {
		if colStd[j] == 0 {
			continue
		}
		beta[j] = scaled[j] / colStd[j]
		intercept -= beta[j] * colMean[j]
	}
	return beta, intercept, nil
}

func softThreshold(v, gamma float64) float64 {
	switch {
	case v > gamma:
		return v - gamma
	case v < -gamma:
		return v + gamma
	default:
		return 0
	}
}
