package pcmci

import (
	"context"
	"fmt"

	"github.com/w-h-a/caus/internal/causerr"
	"github.com/w-h-a/caus/internal/dataset"
	"github.com/w-h-a/caus/internal/graph"
	"golang.org/x/sync/errgroup"
)

// mciOutcome is the MCI result of one surviving link.
type mciOutcome struct {
	source Link
	result TestResult
}

// Orient runs the MCI test on every link of the skeleton and returns the
// causal graph of the links that stay dependent. A skeleton from
// BuildSkeleton shares its remaining test budget with Orient.
func Orient(ctx context.Context, sk *Skeleton, ds *dataset.Dataset, opts Options) (*graph.CausalGraph, error) {
	if err := checkInputs(ds, opts); err != nil {
		return nil, err
	}
	if sk == nil || len(sk.Parents) != ds.NumVars() {
		return nil, causerr.InvalidConfiguration("pcmci", "skeleton does not match the dataset")
	}
	opts = opts.withDefaults()
	b := sk.budget
	if b == nil {
		b = newBudget(opts.MaxTests)
	}
	return orient(ctx, sk, ds, opts, b)
}

func orient(ctx context.Context, sk *Skeleton, ds *dataset.Dataset, opts Options, b *budget) (*graph.CausalGraph, error) {
	K := ds.NumVars()
	alpha := opts.mciAlpha()
	outcomes := make([][]mciOutcome, K)
	tests := make([]int, K)

	// 1. MCI tests, one target per worker
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for j := 0; j < K; j++ {
		j := j
		g.Go(func() error {
			s := newSampler(ds, opts.cut())
			out, n, err := mciTarget(gctx, s, ds, sk, j, alpha, opts.Tester, b)
			if err != nil {
				return err
			}
			outcomes[j] = out
			tests[j] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, n := range tests {
		total += n
	}
	if opts.Observer != nil {
		opts.Observer.TestsRun("mci", total)
	}

	// 2. Lagged links are directed by time; lag-0 pairs go through the
	// orientation rule
	cg := graph.New(ds.Labels())
	dependent := make(map[[2]int]TestResult)
	for j, out := range outcomes {
		for _, o := range out {
			if !o.result.Dependent {
				opts.Logger.Debug("link removed by mci",
					"target", ds.Label(j), "source", ds.Label(o.source.Var), "lag", o.source.Lag,
					"p_value", o.result.PValue)
				continue
			}
			if o.source.Lag == 0 {
				dependent[[2]int{o.source.Var, j}] = o.result
				continue
			}
			cg.Edges = append(cg.Edges, graph.Edge{
				Source:    o.source.Var,
				Target:    j,
				Lag:       o.source.Lag,
				Type:      graph.Directed,
				PValue:    o.result.PValue,
				Statistic: o.result.Statistic,
			})
		}
	}

	orientContemporaneous(cg, sk, dependent, opts)

	cg.Sort()
	opts.Logger.Info("graph oriented",
		"edges", len(cg.Edges), "unresolved", len(cg.Unresolved), "mci_tests", total, "alpha", alpha)

	return cg, nil
}

// mciTarget tests every parent (i, τ) of target j conditioning on the other
// parents of j and on the parents of i shifted back by τ.
func mciTarget(ctx context.Context, s *sampler, ds *dataset.Dataset, sk *Skeleton, j int, alpha float64, tester CondIndTest, b *budget) ([]mciOutcome, int, error) {
	parents := sk.Parents[j]
	if len(parents) == 0 {
		return nil, 0, nil
	}

	y, err := s.series(Link{Var: j})
	if err != nil {
		return nil, 0, err
	}

	out := make([]mciOutcome, 0, len(parents))
	tests := 0
	for _, p := range parents {
		if err := ctx.Err(); err != nil {
			return nil, tests, fmt.Errorf("mci: %w", err)
		}
		if err := b.take(); err != nil {
			return nil, tests, err
		}

		shifted := make([]Link, 0, len(sk.Parents[p.Var]))
		for _, q := range sk.Parents[p.Var] {
			shifted = append(shifted, Link{Var: q.Var, Lag: q.Lag + p.Lag})
		}
		// never condition on the tested pair itself
		cond := conditionUnion([]Link{p, {Var: j, Lag: 0}}, parents, shifted)

		x, err := s.series(p)
		if err != nil {
			return nil, tests, err
		}
		zs, err := s.many(cond)
		if err != nil {
			return nil, tests, err
		}

		res, err := tester.Test(x, y, zs, alpha)
		tests++
		if err != nil {
			return nil, tests, fmt.Errorf("mci %s(t-%d) -> %s given %d: %w",
				ds.Label(p.Var), p.Lag, ds.Label(j), len(cond), err)
		}
		out = append(out, mciOutcome{source: p, result: res})
	}

	return out, tests, nil
}
