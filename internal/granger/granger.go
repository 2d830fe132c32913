// Package granger runs Granger causality F-tests for every ordered pair of
// variables. Each test conditions on lags 1..p of all variables, the cause
// included only in the unrestricted model, and serves as the baseline the
// discovered graph is compared against. Unlike the conditional search it
// never conditions on contemporaneous values or on a reduced parent set.
package granger

import (
	"context"
	"fmt"
	"math"

	"github.com/w-h-a/caus/internal/causerr"
	"github.com/w-h-a/caus/internal/dataset"
	"github.com/w-h-a/caus/internal/regression"
	"gonum.org/v1/gonum/stat/distuv"
)

// Result holds the outcome of one cause -> effect test.
type Result struct {
	Cause      string
	Effect     string
	FStatistic float64
	PValue     float64
	Lags       int
	// Rows used after dropping incomplete ones
	N           int
	Significant bool
}

// Test checks whether lags 1..lags of cause improve the fit of effect beyond
// lags 1..lags of every other variable, including effect itself.
// Returns: the F statistic with (lags, N - params) degrees of freedom and its
// p-value; Significant is p < alpha
func Test(ds *dataset.Dataset, cause, effect, lags int, alpha float64) (*Result, error) {
	if ds == nil {
		return nil, causerr.InvalidConfiguration("granger", "no dataset")
	}
	K := ds.NumVars()
	if cause < 0 || cause >= K || effect < 0 || effect >= K {
		return nil, causerr.InvalidConfiguration("granger", "variable out of range: cause %d, effect %d", cause, effect)
	}
	if cause == effect {
		return nil, causerr.InvalidConfiguration("granger", "cause and effect cannot be the same")
	}
	if lags < 1 {
		return nil, causerr.InvalidConfiguration("granger", "lags must be >= 1, got %d", lags)
	}
	if ds.Len() <= lags {
		return nil, causerr.InsufficientData("granger", "not enough observations for %d lags, T = %d", lags, ds.Len())
	}

	// 1. Response and lag blocks [x_{t-1,*}, ..., x_{t-p,*}] on rows t >= lags
	y, err := ds.Lagged(effect, 0, lags)
	if err != nil {
		return nil, err
	}
	var full, restricted [][]float64
	for l := 1; l <= lags; l++ {
		for k := 0; k < K; k++ {
			col, err := ds.Lagged(k, l, lags)
			if err != nil {
				return nil, err
			}
			full = append(full, col)
			if k != cause {
				restricted = append(restricted, col)
			}
		}
	}

	// 2. Same complete rows for both fits
	rows := completeRows(y, full)
	yy := pick(y, rows)
	n := len(yy)
	params := len(full) + 1
	dof := n - params
	if dof <= 0 {
		return nil, causerr.InsufficientData("granger", "%d complete rows for %d parameters", n, params)
	}

	fitU, err := regression.OLS(regression.ColumnsToDense(pickAll(full, rows)), yy, true)
	if err != nil {
		return nil, fmt.Errorf("unrestricted fit: %w", err)
	}
	fitR, err := regression.OLS(regression.ColumnsToDense(pickAll(restricted, rows)), yy, true)
	if err != nil {
		return nil, fmt.Errorf("restricted fit: %w", err)
	}

	// 3. F statistic. The restricted RSS can fall a hair below the
	// unrestricted one in floating point.
	num := math.Max(fitR.RSS-fitU.RSS, 0)
	den := fitU.RSS / float64(dof)

	f, p := 0.0, 1.0
	if den > 0 && num > 0 {
		f = (num / float64(lags)) / den
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, causerr.UpstreamComputation("granger", "F statistic is not finite")
		}
		p = distuv.F{D1: float64(lags), D2: float64(dof)}.Survival(f)
	}
	p = math.Min(math.Max(p, 0), 1)

	return &Result{
		Cause:       ds.Label(cause),
		Effect:      ds.Label(effect),
		FStatistic:  f,
		PValue:      p,
		Lags:        lags,
		N:           n,
		Significant: p < alpha,
	}, nil
}

// Matrix tests every ordered pair. result[i][j] is i -> j; the diagonal is
// nil.
func Matrix(ctx context.Context, ds *dataset.Dataset, lags int, alpha float64) ([][]*Result, error) {
	if ds == nil {
		return nil, causerr.InvalidConfiguration("granger", "no dataset")
	}
	K := ds.NumVars()

	results := make([][]*Result, K)
	for i := range results {
		results[i] = make([]*Result, K)
	}

	for i := 0; i < K; i++ {
		for j := 0; j < K; j++ {
			if i == j {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("granger: %w", err)
			}

			res, err := Test(ds, i, j, lags, alpha)
			if err != nil {
				return nil, fmt.Errorf("testing %s -> %s: %w", ds.Label(i), ds.Label(j), err)
			}
			results[i][j] = res
		}
	}

	return results, nil
}

func completeRows(y []float64, cols [][]float64) []int {
	rows := make([]int, 0, len(y))
	for t := range y {
		if math.IsNaN(y[t]) {
			continue
		}
		ok := true
		for _, c := range cols {
			if math.IsNaN(c[t]) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, t)
		}
	}
	return rows
}

func pick(v []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, t := range rows {
		out[i] = v[t]
	}
	return out
}

func pickAll(cols [][]float64, rows []int) [][]float64 {
	out := make([][]float64, len(cols))
	for c, col := range cols {
		out[c] = pick(col, rows)
	}
	return out
}
