// Package pcmci discovers time-lagged causal links in a multivariate time
// series.
//
// Discovery runs in two stages over the lagged candidate links (i, τ) -> j:
//
//   - BuildSkeleton prunes candidates with conditional independence tests of
//     growing conditioning-set size, PC-stable style: the adjacency used at
//     level k+1 reflects every removal decided at level k and nothing decided
//     mid-level.
//   - Orient re-tests each surviving link conditioning on the parents of both
//     endpoints (the momentary conditional independence, or MCI, test) and
//     keeps the links that stay dependent as directed edges.
//
// Independence is tested with ParCorr: partial correlation of OLS residuals
// with a Fisher z statistic.
//
// Usage:
//
//	opts := pcmci.DefaultOptions()
//	opts.MaxLag = 3
//	opts.Alpha = 0.05
//	g, sk, err := pcmci.Discover(ctx, ds, opts)
//
// Targets are independent of each other, so both stages fan out one target
// per worker on a bounded pool; each target's adjacency is owned by the
// goroutine processing it.
package pcmci
