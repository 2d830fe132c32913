// Package scm fits a linear structural causal model on a discovered graph:
// one least-squares regression per variable on its lagged parents.
package scm

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/w-h-a/caus/internal/causerr"
	"github.com/w-h-a/caus/internal/dataset"
	"github.com/w-h-a/caus/internal/graph"
	"github.com/w-h-a/caus/internal/logging"
	"github.com/w-h-a/caus/internal/regression"
	"golang.org/x/sync/errgroup"
)

// LinearModel is the fitted structural equation of one variable.
type LinearModel struct {
	Target string
	// Feature names "<label>_lag<lag>", aligned with Coefficients
	Features []string
	// The same features as (variable id, lag)
	Parents      []graph.Parent
	Coefficients []float64
	Intercept    float64
	// Rows left after dropping incomplete ones
	Observations int
	RSquared     float64
}

// Options for Estimate
type Options struct {
	// Size of the worker pool, 0 means runtime.NumCPU()
	Workers int
	Logger  logging.Logger
}

// FeatureName names the column of label shifted back by lag.
func FeatureName(label string, lag int) string {
	return fmt.Sprintf("%s_lag%d", label, lag)
}

// Estimate fits every variable of g that has at least one incoming edge.
// g: ids must follow ds's columns
// ds: observations, NaN rows are dropped per model, never imputed here
// Returns: models keyed by target label; variables without parents have no
// entry. Any failed fit fails the whole call and no models are returned.
func Estimate(ctx context.Context, g *graph.CausalGraph, ds *dataset.Dataset, opts Options) (map[string]*LinearModel, error) {
	if g == nil || ds == nil {
		return nil, causerr.InvalidConfiguration("scm", "graph and dataset are required")
	}
	if len(g.Variables) != ds.NumVars() {
		return nil, causerr.InvalidConfiguration("scm", "graph has %d variables, dataset has %d", len(g.Variables), ds.NumVars())
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	logger := logging.OrNoOp(opts.Logger)

	K := ds.NumVars()
	models := make([]*LinearModel, K)

	deg := g.InDegree()
	roots := 0

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Workers)
	for j := 0; j < K; j++ {
		if deg[j] == 0 {
			roots++
			continue
		}
		j := j
		parents := g.Parents(j)
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return fmt.Errorf("scm: %w", err)
			}
			m, err := fitTarget(ds, j, parents)
			if err != nil {
				return fmt.Errorf("fit %s: %w", ds.Label(j), err)
			}
			models[j] = m
			logger.Debug("model fitted",
				"target", m.Target, "features", len(m.Features), "rows", m.Observations, "r_squared", m.RSquared)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*LinearModel)
	for _, m := range models {
		if m != nil {
			out[m.Target] = m
		}
	}

	logger.Info("models estimated", "models", len(out), "variables", K, "roots", roots)
	return out, nil
}

// fitTarget regresses target on its shifted parents, in the given order.
func fitTarget(ds *dataset.Dataset, target int, parents []graph.Parent) (*LinearModel, error) {
	y := ds.Column(target)
	features := make([]string, len(parents))
	cols := make([][]float64, len(parents))
	for c, p := range parents {
		features[c] = FeatureName(ds.Label(p.Var), p.Lag)
		cols[c] = ds.Shifted(p.Var, p.Lag)
	}

	// 1. Complete rows only
	var yy []float64
	kept := make([][]float64, len(cols))
	for t := range y {
		if math.IsNaN(y[t]) {
			continue
		}
		complete := true
		for _, col := range cols {
			if math.IsNaN(col[t]) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		yy = append(yy, y[t])
		for c, col := range cols {
			kept[c] = append(kept[c], col[t])
		}
	}
	if len(yy) < len(parents)+1 {
		return nil, causerr.SingularDesignMatrix("scm", "%d complete rows for %d features", len(yy), len(parents))
	}

	// 2. OLS with intercept
	fit, err := regression.OLS(regression.ColumnsToDense(kept), yy, true)
	if err != nil {
		return nil, err
	}

	return &LinearModel{
		Target:       ds.Label(target),
		Features:     features,
		Parents:      append([]graph.Parent(nil), parents...),
		Coefficients: fit.Coefficients,
		Intercept:    fit.Intercept,
		Observations: fit.N,
		RSquared:     fit.RSquared,
	}, nil
}
