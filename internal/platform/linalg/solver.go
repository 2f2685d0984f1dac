package linalg

import (
	"errors"
	"fmt"
	"math"
)

// ErrSingular is returned when the normal equations have no unique solution,
// typically a collinear or constant predictor column.
var ErrSingular = errors.New("design matrix is singular")

// Solver fits ordinary least squares y ~ X*beta. Rows hold one sample per
// entry; callers include the intercept column themselves.
type Solver interface {
	Solve(rows [][]float64, y []float64) ([]float64, error)
}

// NormalEquationsSolver solves the closed-form normal equations
// (X'X)beta = X'y with Gaussian elimination. The regression here has three
// coefficients, so there is no need for a factorization library on the hot
// path, and the arithmetic stays auditable.
type NormalEquationsSolver struct{}

func (NormalEquationsSolver) Solve(rows [][]float64, y []float64) ([]float64, error) {
	n := len(rows)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("mismatched sample sizes: %d rows, %d targets", n, len(y))
	}
	p := len(rows[0])
	if p == 0 {
		return nil, fmt.Errorf("empty predictor row")
	}
	if n < p {
		return nil, fmt.Errorf("underdetermined system: %d samples for %d coefficients", n, p)
	}

	// Accumulate X'X and X'y.
	xtx := make([][]float64, p)
	for i := range xtx {
		xtx[i] = make([]float64, p)
	}
	xty := make([]float64, p)
	for i, row := range rows {
		if len(row) != p {
			return nil, fmt.Errorf("ragged row %d: %d values, expected %d", i, len(row), p)
		}
		for j := 0; j < p; j++ {
			xty[j] += row[j] * y[i]
			for k := j; k < p; k++ {
				xtx[j][k] += row[j] * row[k]
			}
		}
	}
	for j := 0; j < p; j++ {
		for k := 0; k < j; k++ {
			xtx[j][k] = xtx[k][j]
		}
	}

	return solveGaussian(xtx, xty)
}

// solveGaussian runs elimination with partial pivoting in place.
func solveGaussian(a [][]float64, b []float64) ([]float64, error) {
	p := len(b)
	for col := 0; col < p; col++ {
		pivot := col
		for r := col + 1; r < p; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, ErrSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < p; r++ {
			factor := a[r][col] / a[col][col]
			if factor == 0 {
				continue
			}
			for c := col; c < p; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	beta := make([]float64, p)
	for row := p - 1; row >= 0; row-- {
		sum := b[row]
		for c := row + 1; c < p; c++ {
			sum -= a[row][c] * beta[c]
		}
		beta[row] = sum / a[row][row]
	}
	return beta, nil
}
