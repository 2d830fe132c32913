package pcmci

import (
	"math"
	"sort"

	"github.com/w-h-a/caus/internal/dataset"
	"github.com/w-h-a/caus/internal/regression"
)

// sampler hands out lagged series aligned on one cut. Each worker owns its
// own sampler, so the cache needs no locking.
type sampler struct {
	ds    *dataset.Dataset
	cut   int
	cache map[Link][]float64
}

func newSampler(ds *dataset.Dataset, cut int) *sampler {
	return &sampler{ds: ds, cut: cut, cache: make(map[Link][]float64)}
}

// series returns X_l.Var(t - l.Lag) for the sample rows. Callers must not
// modify the returned slice.
func (s *sampler) series(l Link) ([]float64, error) {
	if v, ok := s.cache[l]; ok {
		return v, nil
	}
	v, err := s.ds.Lagged(l.Var, l.Lag, s.cut)
	if err != nil {
		return nil, err
	}
	s.cache[l] = v
	return v, nil
}

func (s *sampler) many(ls []Link) ([][]float64, error) {
	out := make([][]float64, len(ls))
	for i, l := range ls {
		v, err := s.series(l)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// candidates lists every link into target j in canonical order: all sources
// at lags 1..maxLag, plus lag 0 from the other variables when contemporaneous.
func candidates(j, numVars, maxLag int, contemporaneous bool) []CandidateLink {
	var out []CandidateLink
	for i := 0; i < numVars; i++ {
		minLag := 1
		if contemporaneous && i != j {
			minLag = 0
		}
		for lag := minLag; lag <= maxLag; lag++ {
			out = append(out, CandidateLink{
				Target:    j,
				Source:    i,
				Lag:       lag,
				Status:    Untested,
				PValue:    math.NaN(),
				Statistic: math.NaN(),
				RemovedAt: -1,
			})
		}
	}
	return out
}

// combinations calls fn with each size-k subset of positions 0..n-1 in
// lexicographic order. It stops when fn returns false or after limit subsets
// (limit 0 means no limit).
func combinations(n, k, limit int, fn func(idx []int) bool) {
	if k > n || k < 0 {
		return
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}

	for count := 1; ; count++ {
		if !fn(idx) {
			return
		}
		if limit > 0 && count >= limit {
			return
		}

		// advance to the next combination
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for m := i + 1; m < k; m++ {
			idx[m] = idx[m-1] + 1
		}
	}
}

// sortLinks puts links in canonical order.
func sortLinks(ls []Link) {
	sort.Slice(ls, func(a, b int) bool { return ls[a].less(ls[b]) })
}

// conditionUnion merges link sets, dropping duplicates and anything in
// exclude, and returns the result in canonical order.
func conditionUnion(exclude []Link, sets ...[]Link) []Link {
	seen := make(map[Link]bool)
	for _, l := range exclude {
		seen[l] = true
	}
	var out []Link
	for _, set := range sets {
		for _, l := range set {
			if seen[l] {
				continue
			}
			seen[l] = true
			out = append(out, l)
		}
	}
	sortLinks(out)
	return out
}

// parentScore is the AIC of regressing the target on its parents, used to
// choose among the parent sets found at different levels.
func parentScore(s *sampler, target int, parents []Link) float64 {
	y, err := s.series(Link{Var: target})
	if err != nil {
		return math.Inf(1)
	}
	xs, err := s.many(parents)
	if err != nil {
		return math.Inf(1)
	}

	// complete rows only
	var yy []float64
	cols := make([][]float64, len(parents))
	for t := range y {
		if math.IsNaN(y[t]) {
			continue
		}
		complete := true
		for _, x := range xs {
			if math.IsNaN(x[t]) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		yy = append(yy, y[t])
		for c, x := range xs {
			cols[c] = append(cols[c], x[t])
		}
	}
	if len(yy) == 0 {
		return math.Inf(1)
	}

	if len(parents) == 0 {
		mean := 0.0
		for _, v := range yy {
			mean += v
		}
		mean /= float64(len(yy))
		rss := 0.0
		for _, v := range yy {
			rss += (v - mean) * (v - mean)
		}
		return regression.AIC(rss, len(yy), 0)
	}

	fit, err := regression.OLS(regression.ColumnsToDense(cols), yy, true)
	if err != nil {
		return math.Inf(1)
	}
	return regression.AIC(fit.RSS, fit.N, len(parents))
}
