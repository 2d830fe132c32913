package regression

import (
	"math"

	"github.com/w-h-a/caus/internal/causerr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// OLS fits y = intercept + X b by ordinary least squares.
// X: n x p design matrix (no constant column, OLS adds it when intercept is set)
// y: response, length n
// Returns: the fit, or SingularDesignMatrix when n is smaller than the number
// of parameters or the design is rank-deficient
func OLS(X *mat.Dense, y []float64, intercept bool) (*Fit, error) {
	n, p := X.Dims()
	if len(y) != n {
		return nil, causerr.InvalidConfiguration("regression.ols", "response has %d rows, design has %d", len(y), n)
	}

	m := p
	if intercept {
		m++
	}
	if m == 0 {
		return nil, causerr.SingularDesignMatrix("regression.ols", "no regressors")
	}
	if n < m {
		return nil, causerr.SingularDesignMatrix("regression.ols", "%d rows for %d parameters", n, m)
	}

	D := withIntercept(X, intercept)

	// Rank check on the SVD, then solve the full-rank problem
	var svd mat.SVD
	if ok := svd.Factorize(D, mat.SVDThin); !ok {
		return nil, causerr.UpstreamComputation("regression.ols", "SVD factorization failed")
	}
	rank := svd.Rank(rcond)
	if rank < m {
		return nil, causerr.SingularDesignMatrix("regression.ols", "design rank %d < %d parameters", rank, m)
	}

	var B mat.Dense
	svd.SolveTo(&B, mat.NewDense(n, 1, append([]float64(nil), y...)), rank)

	beta := mat.Col(nil, 0, &B)
	for _, b := range beta {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil, causerr.UpstreamComputation("regression.ols", "non-finite coefficient")
		}
	}

	// Residuals and fit quality
	var yhat mat.VecDense
	yhat.MulVec(D, mat.NewVecDense(m, beta))

	resid := make([]float64, n)
	for i := range resid {
		resid[i] = y[i] - yhat.AtVec(i)
	}
	rss := floats.Dot(resid, resid)

	mean := stat.Mean(y, nil)
	tss := 0.0
	for _, v := range y {
		tss += (v - mean) * (v - mean)
	}
	r2 := math.NaN()
	if tss > 0 {
		r2 = 1 - rss/tss
	}

	fit := &Fit{
		Residuals: resid,
		RSS:       rss,
		RSquared:  r2,
		N:         n,
	}
	if intercept {
		fit.Intercept = beta[0]
		fit.Coefficients = beta[1:]
	} else {
		fit.Coefficients = beta
	}

	return fit, nil
}

// Residualize regresses every column of Y on a constant plus the columns of Z
// and returns the residual matrix. Z may be nil, in which case the columns
// are only demeaned. Collinear columns in Z are fine: the solution uses the
// numerical rank, like the minimum-norm fallback of the VAR estimator.
func Residualize(Z *mat.Dense, Y *mat.Dense) (*mat.Dense, error) {
	n, c := Y.Dims()

	if Z == nil {
		out := mat.DenseCopyOf(Y)
		for j := 0; j < c; j++ {
			col := mat.Col(nil, j, Y)
			mean := stat.Mean(col, nil)
			for i := 0; i < n; i++ {
				out.Set(i, j, col[i]-mean)
			}
		}
		return out, nil
	}

	if zr, _ := Z.Dims(); zr != n {
		return nil, causerr.InvalidConfiguration("regression.residualize", "conditioning set has %d rows, response has %d", zr, n)
	}

	D := withIntercept(Z, true)

	var svd mat.SVD
	if ok := svd.Factorize(D, mat.SVDThin); !ok {
		return nil, causerr.UpstreamComputation("regression.residualize", "SVD factorization failed")
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		return mat.DenseCopyOf(Y), nil
	}

	// B minimizes ||Y - D B|| with minimum norm
	var B mat.Dense
	svd.SolveTo(&B, Y, rank)

	var fitted mat.Dense
	fitted.Mul(D, &B)

	var resid mat.Dense
	resid.Sub(Y, &fitted)

	return &resid, nil
}

// AIC is Akaike's information criterion for a Gaussian linear model with k
// estimated coefficients.
func AIC(rss float64, n, k int) float64 {
	if n <= 0 {
		return math.Inf(1)
	}
	if rss <= 0 {
		rss = math.SmallestNonzeroFloat64
	}
	return float64(n)*math.Log(rss/float64(n)) + 2*float64(k)
}

// ColumnsToDense packs equal-length columns into an n x len(cols) matrix.
func ColumnsToDense(cols [][]float64) *mat.Dense {
	if len(cols) == 0 {
		return nil
	}
	n := len(cols[0])
	out := mat.NewDense(n, len(cols), nil)
	for j, col := range cols {
		out.SetCol(j, col)
	}
	return out
}

// withIntercept prepends a column of ones when intercept is set.
func withIntercept(X *mat.Dense, intercept bool) *mat.Dense {
	n, p := X.Dims()
	if !intercept {
		return mat.DenseCopyOf(X)
	}
	D := mat.NewDense(n, p+1, nil)
	for i := 0; i < n; i++ {
		D.Set(i, 0, 1)
		for j := 0; j < p; j++ {
			D.Set(i, j+1, X.At(i, j))
		}
	}
	return D
}
