package forecasters

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"cropbot/src/utils/errors"
)

// ridgeSolve solves (XᵀX + λI) w = Xᵀy. λ = 0 gives plain least squares.
// A singular normal matrix surfaces as ErrNumericDivergence.
func ridgeSolve(X *mat.Dense, y *mat.VecDense, lambda float64) (*mat.VecDense, error) {
	_, cols := X.Dims()

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	for i := 0; i < cols; i++ {
		xtx.Set(i, i, xtx.At(i, i)+lambda)
	}

	var xty mat.VecDense
	xty.MulVec(X.T(), y)

	var w mat.VecDense
	if err := w.SolveVec(&xtx, &xty); err != nil {
		return nil, errors.WrapE(errors.ErrNumericDivergence, err)
	}
	for i := 0; i < w.Len(); i++ {
		if math.IsNaN(w.AtVec(i)) || math.IsInf(w.AtVec(i), 0) {
			return nil, errors.Wrap(errors.ErrNumericDivergence, "non-finite regression weight")
		}
	}
	return &w, nil
}

// residualStd is the sample standard deviation of y - Xw.
func residualStd(X *mat.Dense, y *mat.VecDense, w *mat.VecDense) float64 {
	rows, _ := X.Dims()
	if rows < 2 {
		return 0
	}

	var fitted mat.VecDense
	fitted.MulVec(X, w)

	var sum float64
	for i := 0; i < rows; i++ {
		r := y.AtVec(i) - fitted.AtVec(i)
		sum += r * r
	}
	return math.Sqrt(sum / float64(rows-1))
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
