package pcmci

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/w-h-a/caus/internal/causerr"
	"github.com/w-h-a/caus/internal/dataset"
	"github.com/w-h-a/caus/internal/logging"
	"golang.org/x/sync/errgroup"
)

// targetSkeleton is one target's pruning outcome.
type targetSkeleton struct {
	links   []CandidateLink
	parents ParentSet
	alpha   float64
	tests   int
}

// BuildSkeleton prunes the candidate links of every target.
// ds: observations, read only
// opts: lag range, level, caps and pool size
// Returns: per-target candidates with their final status, the surviving
// parent sets and the separating sets of the removed links
func BuildSkeleton(ctx context.Context, ds *dataset.Dataset, opts Options) (*Skeleton, error) {
	if err := checkInputs(ds, opts); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return buildSkeleton(ctx, ds, opts, newBudget(opts.MaxTests))
}

func buildSkeleton(ctx context.Context, ds *dataset.Dataset, opts Options, b *budget) (*Skeleton, error) {
	K := ds.NumVars()
	results := make([]targetSkeleton, K)

	// 1. One target per worker; targets share nothing but the dataset
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for j := 0; j < K; j++ {
		j := j
		g.Go(func() error {
			s := newSampler(ds, opts.cut())
			res, err := pruneTarget(gctx, s, ds, j, opts, b)
			if err != nil {
				return err
			}
			results[j] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 2. Merge
	sk := &Skeleton{
		Labels:  ds.Labels(),
		MaxLag:  opts.MaxLag,
		Links:   make([][]CandidateLink, K),
		Parents: make([]ParentSet, K),
		Alphas:  make([]float64, K),
		budget:  b,
	}
	for j, res := range results {
		sk.Links[j] = res.links
		sk.Parents[j] = res.parents
		sk.Alphas[j] = res.alpha
		sk.Tests += int64(res.tests)
	}

	// 3. A contemporaneous adjacency needs both directions to survive
	if opts.Contemporaneous {
		symmetrizeContemporaneous(sk)
	}

	if opts.Observer != nil {
		opts.Observer.TestsRun("skeleton", int(sk.Tests))
	}

	return sk, nil
}

// pruneTarget picks the level for target j (fixed, or by AIC over the
// automatic levels) and prunes at it.
func pruneTarget(ctx context.Context, s *sampler, ds *dataset.Dataset, j int, opts Options, b *budget) (targetSkeleton, error) {
	if opts.Alpha > 0 {
		return pruneAtLevel(ctx, s, ds, j, opts.Alpha, opts, b)
	}

	var best targetSkeleton
	bestScore := math.Inf(1)
	found := false
	tests := 0
	for _, alpha := range opts.AutoAlphas {
		res, err := pruneAtLevel(ctx, s, ds, j, alpha, opts, b)
		if err != nil {
			return targetSkeleton{}, err
		}
		tests += res.tests

		score := parentScore(s, j, res.parents)
		opts.Logger.Debug("alpha candidate scored",
			"target", ds.Label(j), "alpha", alpha, "parents", len(res.parents), "aic", score)

		// ties keep the smaller level
		if !found || score < bestScore {
			best, bestScore, found = res, score, true
		}
	}
	best.tests = tests

	opts.Logger.Debug("alpha selected", "target", ds.Label(j), "alpha", best.alpha, "aic", bestScore)
	return best, nil
}

// pruneAtLevel runs the PC-stable levels k = 0, 1, ... for target j.
func pruneAtLevel(ctx context.Context, s *sampler, ds *dataset.Dataset, j int, alpha float64, opts Options, b *budget) (targetSkeleton, error) {
	links := candidates(j, ds.NumVars(), opts.MaxLag, opts.Contemporaneous)
	res := targetSkeleton{links: links, alpha: alpha}
	if len(links) == 0 {
		return res, nil
	}

	y, err := s.series(Link{Var: j})
	if err != nil {
		return targetSkeleton{}, err
	}

	// per-link lines are skipped unless debug is on
	debug := logging.Enabled(opts.Logger, slog.LevelDebug)

	// adjacency holds positions into links, always in canonical order
	adjacency := make([]int, len(links))
	for i := range adjacency {
		adjacency[i] = i
	}

	for k := 0; k <= opts.MaxConditioningSize && len(adjacency)-1 >= k; k++ {
		// 1. Freeze the adjacency for this level
		snapshot := append([]int(nil), adjacency...)
		removed := make(map[int]bool)

		for _, li := range snapshot {
			link := &links[li]

			others := make([]Link, 0, len(snapshot)-1)
			for _, oi := range snapshot {
				if oi != li {
					others = append(others, links[oi].Link())
				}
			}

			x, err := s.series(link.Link())
			if err != nil {
				return targetSkeleton{}, err
			}

			// 2. Try size-k subsets until one separates the link
			var testErr error
			combinations(len(others), k, opts.MaxCombinations, func(idx []int) bool {
				if err := ctx.Err(); err != nil {
					testErr = fmt.Errorf("skeleton: %w", err)
					return false
				}
				if err := b.take(); err != nil {
					testErr = err
					return false
				}

				cond := make([]Link, len(idx))
				for c, p := range idx {
					cond[c] = others[p]
				}
				zs, err := s.many(cond)
				if err != nil {
					testErr = err
					return false
				}

				out, err := opts.Tester.Test(x, y, zs, alpha)
				res.tests++
				if err != nil {
					testErr = fmt.Errorf("test %s(t-%d) -> %s given %d: %w",
						ds.Label(link.Source), link.Lag, ds.Label(j), len(cond), err)
					return false
				}

				// a surviving link keeps its weakest evidence
				first := link.Status == Untested
				if first || out.PValue > link.PValue {
					link.PValue = out.PValue
				}
				if first || math.Abs(out.Statistic) < math.Abs(link.Statistic) {
					link.Statistic = out.Statistic
				}
				link.Status = Dependent
				if !out.Dependent {
					link.PValue = out.PValue
					link.Statistic = out.Statistic
					link.Status = Independent
					link.SepSet = cond
					link.RemovedAt = k
					removed[li] = true
					return false
				}
				return true
			})
			if testErr != nil {
				return targetSkeleton{}, testErr
			}

			if debug && removed[li] {
				opts.Logger.Debug("link removed",
					"target", ds.Label(j), "source", ds.Label(link.Source), "lag", link.Lag,
					"level", k, "p_value", link.PValue)
			}
		}

		// 3. Commit this level's removals before the next level starts
		if len(removed) > 0 {
			kept := adjacency[:0]
			for _, li := range snapshot {
				if !removed[li] {
					kept = append(kept, li)
				}
			}
			adjacency = kept
		}
	}

	res.parents = make(ParentSet, 0, len(adjacency))
	for _, li := range adjacency {
		res.parents = append(res.parents, links[li].Link())
	}

	opts.Logger.Debug("target pruned",
		"target", ds.Label(j), "candidates", len(links), "parents", len(res.parents),
		"alpha", alpha, "tests", res.tests)

	return res, nil
}

// symmetrizeContemporaneous drops (i,0) -> j unless (j,0) -> i also survived.
func symmetrizeContemporaneous(sk *Skeleton) {
	keep := make([]ParentSet, len(sk.Parents))
	for j, parents := range sk.Parents {
		for _, p := range parents {
			if p.Lag == 0 && !sk.Parents[p.Var].Contains(Link{Var: j, Lag: 0}) {
				if c, ok := sk.Candidate(j, p); ok {
					c.Status = Independent
				}
				continue
			}
			keep[j] = append(keep[j], p)
		}
	}
	for j := range keep {
		if keep[j] == nil {
			keep[j] = ParentSet{}
		}
	}
	sk.Parents = keep
}

// checkInputs rejects data that cannot support a run before any test starts.
func checkInputs(ds *dataset.Dataset, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if ds == nil {
		return causerr.InvalidConfiguration("pcmci", "no dataset")
	}
	if ds.NumVars() < 2 {
		return causerr.InvalidConfiguration("pcmci", "need at least two variables, got %d", ds.NumVars())
	}
	if n := ds.Len() - opts.cut(); n <= 2 {
		return causerr.InsufficientData("pcmci", "%d rows leave %d samples at max lag %d", ds.Len(), n, opts.MaxLag)
	}
	// every lagged copy of a variable must vary over the sample rows
	cut := opts.cut()
	for v := 0; v < ds.NumVars(); v++ {
		for lag := 0; lag <= opts.MaxLag; lag++ {
			if constantIn(ds, v, cut-lag, ds.Len()-lag) {
				return causerr.InsufficientData("pcmci", "variable %q is constant at lag %d over the sample rows", ds.Label(v), lag)
			}
		}
	}
	return nil
}

// constantIn reports whether the observed values of v in rows [lo, hi) are
// all equal. No observed values counts as constant.
func constantIn(ds *dataset.Dataset, v, lo, hi int) bool {
	first := math.NaN()
	for t := lo; t < hi; t++ {
		x := ds.At(t, v)
		if math.IsNaN(x) {
			continue
		}
		if math.IsNaN(first) {
			first = x
			continue
		}
		if x != first {
			return false
		}
	}
	return true
}
