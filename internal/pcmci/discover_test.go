package pcmci

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/caus/internal/causerr"
	"github.com/w-h-a/caus/internal/graph"
	"github.com/w-h-a/caus/internal/simulate"
)

func edgeKeys(g *graph.CausalGraph) map[string]bool {
	out := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		out[fmt.Sprintf("%s->%s@%d", g.Label(e.Source), g.Label(e.Target), e.Lag)] = true
	}
	return out
}

func TestDiscoverRecoversServiceChain(t *testing.T) {
	ds := serviceChainData(t, 1000, 42)

	opts := DefaultOptions()
	opts.MaxLag = 3
	opts.Alpha = 0.05
	obs := &countingObserver{phases: map[string]int{}}
	opts.Observer = obs

	g, sk, err := Discover(context.Background(), ds, opts)
	require.NoError(t, err)
	require.NotNil(t, sk)

	want := []string{
		"service_a->service_a@1",
		"service_a->service_b@1",
		"service_b->service_b@1",
		"service_b->service_c@2",
		"service_c->service_c@1",
	}
	got := edgeKeys(g)
	for _, w := range want {
		assert.True(t, got[w], "missing %s", w)
	}
	assert.LessOrEqual(t, len(got)-len(want), 1, "spurious edges: %v", got)

	assert.Empty(t, g.Unresolved)
	assert.Positive(t, obs.phases["skeleton"])
	assert.Positive(t, obs.phases["mci"])

	for _, e := range g.Edges {
		assert.Less(t, e.PValue, 0.05)
		assert.Equal(t, graph.Directed, e.Type)
	}
}

func TestDiscoverAutoAlpha(t *testing.T) {
	ds := serviceChainData(t, 1000, 42)

	opts := DefaultOptions()
	opts.MaxLag = 3

	g, sk, err := Discover(context.Background(), ds, opts)
	require.NoError(t, err)

	got := edgeKeys(g)
	assert.True(t, got["service_a->service_b@1"])
	assert.True(t, got["service_b->service_c@2"])
	for _, a := range sk.Alphas {
		assert.Contains(t, DefaultAutoAlphas, a)
	}
	for _, e := range g.Edges {
		assert.Less(t, e.PValue, DefaultMCIAlpha)
	}
}

func TestDiscoverIsDeterministic(t *testing.T) {
	ds := serviceChainData(t, 500, 9)

	run := func(workers int) []byte {
		opts := DefaultOptions()
		opts.Alpha = 0.05
		opts.Workers = workers

		g, _, err := Discover(context.Background(), ds, opts)
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, graph.WriteJSON(&buf, g.ToAPI()))
		return buf.Bytes()
	}

	first := run(4)
	assert.Equal(t, first, run(4))
	assert.Equal(t, first, run(1), "pool size must not change the graph")
}

func TestDiscoverAlphaMonotone(t *testing.T) {
	ds := serviceChainData(t, 1000, 42)

	run := func(alpha float64) map[string]bool {
		opts := DefaultOptions()
		opts.Alpha = alpha
		g, _, err := Discover(context.Background(), ds, opts)
		require.NoError(t, err)
		return edgeKeys(g)
	}

	strict := run(0.01)
	loose := run(0.10)
	for e := range strict {
		assert.True(t, loose[e], "%s found at 0.01 but not at 0.10", e)
	}
}

func TestDiscoverNoPartialGraphOnError(t *testing.T) {
	ds := serviceChainData(t, 300, 1)

	opts := DefaultOptions()
	opts.Alpha = 0.05
	opts.MaxTests = 20

	g, sk, err := Discover(context.Background(), ds, opts)
	assert.ErrorIs(t, err, causerr.ErrUpstreamComputation)
	assert.Nil(t, g)
	assert.Nil(t, sk)
}

func TestOrientUsesSkeleton(t *testing.T) {
	ds := serviceChainData(t, 1000, 42)

	opts := DefaultOptions()
	opts.Alpha = 0.05

	sk, err := BuildSkeleton(context.Background(), ds, opts)
	require.NoError(t, err)

	g, err := Orient(context.Background(), sk, ds, opts)
	require.NoError(t, err)

	// every edge comes from a skeleton parent
	for _, e := range g.Edges {
		assert.True(t, sk.Parents[e.Target].Contains(Link{Var: e.Source, Lag: e.Lag}))
	}

	_, err = Orient(context.Background(), &Skeleton{}, ds, opts)
	assert.ErrorIs(t, err, causerr.ErrInvalidConfiguration)
}

func TestDiscoverEmptyGraphOnNoise(t *testing.T) {
	ds := noiseData(t, 3, 400)

	opts := DefaultOptions()
	opts.MaxLag = 2
	opts.Alpha = 0.001

	g, _, err := Discover(context.Background(), ds, opts)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(g.Edges), 1)
	assert.Len(t, g.Variables, 3)
}

func TestOrientContemporaneous(t *testing.T) {
	// 0 -> 1 at lag 0 with a lagged parent 2 of 1 that is separated from 0
	// without conditioning on 1: a collider at 1
	sk := &Skeleton{
		Labels:  []string{"a", "b", "c"},
		MaxLag:  1,
		Parents: []ParentSet{{{Var: 1, Lag: 0}}, {{Var: 0, Lag: 0}, {Var: 2, Lag: 1}}, {}},
		Links: [][]CandidateLink{
			{
				{Target: 0, Source: 1, Lag: 0, Status: Dependent, RemovedAt: -1},
				{Target: 0, Source: 2, Lag: 1, Status: Independent, RemovedAt: 0, SepSet: []Link{}},
			},
			{
				{Target: 1, Source: 0, Lag: 0, Status: Dependent, RemovedAt: -1},
				{Target: 1, Source: 2, Lag: 1, Status: Dependent, RemovedAt: -1},
			},
			{},
		},
	}
	dependent := map[[2]int]TestResult{
		{0, 1}: {Dependent: true, PValue: 0.001, Statistic: 3},
		{1, 0}: {Dependent: true, PValue: 0.002, Statistic: 3},
	}

	cg := graph.New(sk.Labels)
	orientContemporaneous(cg, sk, dependent, DefaultOptions().withDefaults())
	require.Len(t, cg.Edges, 1)
	assert.Equal(t, graph.Edge{Source: 0, Target: 1, Lag: 0, Type: graph.Directed, PValue: 0.001, Statistic: 3}, cg.Edges[0])
	assert.Empty(t, cg.Unresolved)

	// no collider evidence either way
	sk.Links[0][1].SepSet = []Link{{Var: 1, Lag: 0}}
	cg = graph.New(sk.Labels)
	orientContemporaneous(cg, sk, dependent, DefaultOptions().withDefaults())
	assert.Empty(t, cg.Edges)
	require.Len(t, cg.Unresolved, 1)
	assert.Equal(t, graph.Undirected, cg.Unresolved[0].Type)

	// one direction only is dropped
	delete(dependent, [2]int{1, 0})
	cg = graph.New(sk.Labels)
	orientContemporaneous(cg, sk, dependent, DefaultOptions().withDefaults())
	assert.Empty(t, cg.Edges)
	assert.Empty(t, cg.Unresolved)
}

func TestDiscoverContemporaneousKeepsUnresolvedOut(t *testing.T) {
	ds := serviceChainData(t, 500, 4)

	opts := DefaultOptions()
	opts.MaxLag = 2
	opts.Alpha = 0.05
	opts.Contemporaneous = true

	g, _, err := Discover(context.Background(), ds, opts)
	require.NoError(t, err)

	for _, e := range g.Unresolved {
		assert.Equal(t, graph.Undirected, e.Type)
		assert.Zero(t, e.Lag)
	}
	api := g.ToAPI()
	assert.Len(t, api.Edges, len(g.Edges))
}

func TestSimulatedGroundTruthIsDiscoverable(t *testing.T) {
	p := simulate.ServiceChain()
	ds, err := p.Generate(simulate.Options{T: 1000, Seed: 42, BurnIn: 100})
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Alpha = 0.05
	g, _, err := Discover(context.Background(), ds, opts)
	require.NoError(t, err)

	found := edgeKeys(g)
	for _, e := range p.GroundTruth().Edges {
		assert.True(t, found[fmt.Sprintf("%s->%s@%d", e.Source, e.Target, e.Lag)])
	}
}
