package pcmci

import (
	"github.com/w-h-a/caus/internal/graph"
)

// orientContemporaneous resolves the lag-0 pairs that stayed dependent in
// both directions. i -> j is accepted only when some lagged parent of j is
// separated from i by a set that leaves j out (so j is a collider between
// them) and no such evidence exists for j -> i. Everything else is reported
// as unresolved and kept out of the directed edges.
func orientContemporaneous(cg *graph.CausalGraph, sk *Skeleton, dependent map[[2]int]TestResult, opts Options) {
	for key, res := range dependent {
		i, j := key[0], key[1]
		if i > j {
			continue
		}

		back, ok := dependent[[2]int{j, i}]
		if !ok {
			opts.Logger.Debug("contemporaneous link dropped, only one direction survived mci",
				"source", sk.Labels[i], "target", sk.Labels[j])
			continue
		}

		toJ := colliderEvidence(sk, i, j)
		toI := colliderEvidence(sk, j, i)

		switch {
		case toJ && !toI:
			cg.Edges = append(cg.Edges, contemporaneousEdge(i, j, graph.Directed, res))
		case toI && !toJ:
			cg.Edges = append(cg.Edges, contemporaneousEdge(j, i, graph.Directed, back))
		default:
			cg.Unresolved = append(cg.Unresolved, contemporaneousEdge(i, j, graph.Undirected, res))
			opts.Logger.Warn("contemporaneous link left unoriented",
				"a", sk.Labels[i], "b", sk.Labels[j], "evidence_a_to_b", toJ, "evidence_b_to_a", toI)
		}
	}
}

// colliderEvidence reports whether a lagged parent (k, τ) of j was separated
// from i by a set that does not contain j at lag 0, i.e. k(t-τ) -> j(t) <- i(t).
func colliderEvidence(sk *Skeleton, i, j int) bool {
	self := Link{Var: j, Lag: 0}
	for _, p := range sk.Parents[j] {
		if p.Lag == 0 {
			continue
		}
		c, ok := sk.Candidate(i, p)
		if !ok || c.Status != Independent || c.RemovedAt < 0 {
			continue
		}
		if !ParentSet(c.SepSet).Contains(self) {
			return true
		}
	}
	return false
}

func contemporaneousEdge(src, tgt int, typ graph.EdgeType, res TestResult) graph.Edge {
	return graph.Edge{
		Source:    src,
		Target:    tgt,
		Lag:       0,
		Type:      typ,
		PValue:    res.PValue,
		Statistic: res.Statistic,
	}
}
