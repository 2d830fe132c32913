package pcmci

import (
	"context"
	"time"

	"github.com/w-h-a/caus/internal/dataset"
	"github.com/w-h-a/caus/internal/graph"
)

// Discover runs BuildSkeleton then Orient under a single test budget.
// Returns: the causal graph and the skeleton it was oriented from. On error
// both are nil; a partial graph is never returned.
func Discover(ctx context.Context, ds *dataset.Dataset, opts Options) (*graph.CausalGraph, *Skeleton, error) {
	if err := checkInputs(ds, opts); err != nil {
		return nil, nil, err
	}
	opts = opts.withDefaults()
	b := newBudget(opts.MaxTests)

	start := time.Now()
	opts.Logger.Info("building skeleton",
		"variables", ds.NumVars(), "rows", ds.Len(), "max_lag", opts.MaxLag,
		"alpha", opts.Alpha, "max_conditioning_size", opts.MaxConditioningSize)

	sk, err := buildSkeleton(ctx, ds, opts, b)
	if err != nil {
		return nil, nil, err
	}

	parents := 0
	for _, p := range sk.Parents {
		parents += len(p)
	}
	opts.Logger.Info("skeleton built", "parents", parents, "tests", sk.Tests, "elapsed", time.Since(start))

	cg, err := orient(ctx, sk, ds, opts, b)
	if err != nil {
		return nil, nil, err
	}

	return cg, sk, nil
}
