// Package regression implements the least-squares routines shared by the
// independence tests and the structural model estimator.
//
// OLS is strict: a design that is underdetermined or rank-deficient is an
// error. Residualize is tolerant: it projects out the span of the
// conditioning columns even when they are collinear, which is all a partial
// correlation needs.
package regression

// Singular values below rcond times the largest one count as zero.
const rcond = 1e-10

// Fit holds the results of an ordinary least squares regression.
type Fit struct {
	// One coefficient per column of X, in column order
	Coefficients []float64
	// Zero when the fit has no intercept
	Intercept float64
	// y - yhat, one per row
	Residuals []float64
	// Residual sum of squares
	RSS float64
	// Coefficient of determination, NaN when y is constant
	RSquared float64
	// Rows used
	N int
}
