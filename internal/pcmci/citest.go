package pcmci

import (
	"math"

	"github.com/w-h-a/caus/internal/causerr"
	"github.com/w-h-a/caus/internal/regression"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Partial correlations are clamped away from +-1 so atanh stays finite.
const maxAbsCorr = 1 - 1e-12

// ParCorr tests conditional independence by partial correlation.
type ParCorr struct{}

// Test reports whether x and y are dependent given z at level alpha.
// x, y: equal-length series, NaN marks a missing value
// z: conditioning series, each the same length as x
// Steps: drop incomplete rows, regress x and y on z, correlate the residuals,
// then turn r into a Fisher z statistic scaled by sqrt(n - |z| - 3) and a
// two-sided normal p-value.
func (ParCorr) Test(x, y []float64, z [][]float64, alpha float64) (TestResult, error) {
	n0 := len(x)
	if len(y) != n0 {
		return TestResult{}, causerr.InvalidConfiguration("citest", "x has %d rows, y has %d", n0, len(y))
	}
	for i, col := range z {
		if len(col) != n0 {
			return TestResult{}, causerr.InvalidConfiguration("citest", "conditioning series %d has %d rows, want %d", i, len(col), n0)
		}
	}

	// 1. Keep only complete rows
	rows := make([]int, 0, n0)
	for t := 0; t < n0; t++ {
		if math.IsNaN(x[t]) || math.IsNaN(y[t]) {
			continue
		}
		complete := true
		for _, col := range z {
			if math.IsNaN(col[t]) {
				complete = false
				break
			}
		}
		if complete {
			rows = append(rows, t)
		}
	}

	n, k := len(rows), len(z)
	if n <= k+2 {
		return TestResult{}, causerr.InsufficientData("citest", "%d usable rows for %d conditioning variables", n, k)
	}

	// 2. Pack x, y and z into matrices over the kept rows
	XY := mat.NewDense(n, 2, nil)
	var Z *mat.Dense
	if k > 0 {
		Z = mat.NewDense(n, k, nil)
	}
	for r, t := range rows {
		XY.Set(r, 0, x[t])
		XY.Set(r, 1, y[t])
		for c, col := range z {
			Z.Set(r, c, col[t])
		}
	}

	// 3. Residualize both on the conditioning set
	R, err := regression.Residualize(Z, XY)
	if err != nil {
		return TestResult{}, err
	}

	// 4. Partial correlation of the residuals
	corr := stat.Correlation(mat.Col(nil, 0, R), mat.Col(nil, 1, R), nil)
	if math.IsNaN(corr) || math.IsInf(corr, 0) {
		return TestResult{}, causerr.UpstreamComputation("citest", "partial correlation is not finite (constant residuals?)")
	}
	corr = math.Max(-maxAbsCorr, math.Min(maxAbsCorr, corr))

	// 5. Fisher z statistic and two-sided p-value
	statistic := 0.0
	if df := n - k - 3; df > 0 {
		statistic = math.Atanh(corr) * math.Sqrt(float64(df))
	}
	if math.IsNaN(statistic) || math.IsInf(statistic, 0) {
		return TestResult{}, causerr.UpstreamComputation("citest", "test statistic is not finite")
	}

	pValue := 2 * distuv.UnitNormal.Survival(math.Abs(statistic))
	if pValue > 1 {
		pValue = 1
	}
	if pValue < 0 {
		pValue = 0
	}

	return TestResult{
		Dependent:   pValue < alpha,
		PValue:      pValue,
		Statistic:   statistic,
		PartialCorr: corr,
		N:           n,
	}, nil
}
