package linalg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// QRSolver is the gonum-backed least-squares path. It avoids forming X'X,
// so it stays stable on wider or poorly conditioned designs where the
// closed-form solver is not appropriate.
type QRSolver struct{}

func (QRSolver) Solve(rows [][]float64, y []float64) ([]float64, error) {
	n := len(rows)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("mismatched sample sizes: %d rows, %d targets", n, len(y))
	}
	p := len(rows[0])
	if n < p {
		return nil, fmt.Errorf("underdetermined system: %d samples for %d coefficients", n, p)
	}

	x := mat.NewDense(n, p, nil)
	for i, row := range rows {
		if len(row) != p {
			return nil, fmt.Errorf("ragged row %d: %d values, expected %d", i, len(row), p)
		}
		x.SetRow(i, row)
	}
	target := mat.NewDense(n, 1, y)

	var qr mat.QR
	qr.Factorize(x)

	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, target); err != nil {
		return nil, ErrSingular
	}

	beta := make([]float64, p)
	for j := 0; j < p; j++ {
		beta[j] = sol.At(j, 0)
	}
	return beta, nil
}
