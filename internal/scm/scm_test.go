package scm

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/caus/internal/causerr"
	"github.com/w-h-a/caus/internal/dataset"
	"github.com/w-h-a/caus/internal/graph"
	"github.com/w-h-a/caus/internal/logging"
	"github.com/w-h-a/caus/internal/simulate"
)

func TestEstimateExact(t *testing.T) {
	// y(t) = 1 + 2 x(t-1) - 0.5 x(t-2), no noise
	rng := rand.New(rand.NewSource(1))
	T := 50
	x := make([]float64, T)
	for i := range x {
		x[i] = rng.NormFloat64()
	}
	rows := make([][]float64, T)
	for i := range rows {
		y := math.NaN()
		if i >= 2 {
			y = 1 + 2*x[i-1] - 0.5*x[i-2]
		}
		rows[i] = []float64{x[i], y, 7}
	}
	ds, err := dataset.New([]string{"x", "y", "z"}, rows)
	require.NoError(t, err)

	g := graph.New(ds.Labels())
	g.Edges = []graph.Edge{
		{Source: 0, Target: 1, Lag: 1},
		{Source: 0, Target: 1, Lag: 2},
	}

	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: "info", Output: &buf})

	models, err := Estimate(context.Background(), g, ds, Options{Workers: 2, Logger: logger})
	require.NoError(t, err)
	require.Len(t, models, 1, "x and z have no parents")
	assert.Contains(t, buf.String(), "roots=2")

	m := models["y"]
	require.NotNil(t, m)
	assert.Equal(t, "y", m.Target)
	assert.Equal(t, []string{"x_lag1", "x_lag2"}, m.Features)
	require.Len(t, m.Coefficients, 2)
	assert.InDelta(t, 2, m.Coefficients[0], 1e-9)
	assert.InDelta(t, -0.5, m.Coefficients[1], 1e-9)
	assert.InDelta(t, 1, m.Intercept, 1e-9)
	assert.Equal(t, T-2, m.Observations)
	assert.InDelta(t, 1, m.RSquared, 1e-9)
}

func TestEstimateFeatureOrderFollowsEdges(t *testing.T) {
	ds, err := simulate.ServiceChain().Generate(simulate.Options{T: 200, Seed: 3, BurnIn: 50})
	require.NoError(t, err)

	g := graph.New(ds.Labels())
	g.Edges = []graph.Edge{
		{Source: 2, Target: 2, Lag: 1},
		{Source: 1, Target: 2, Lag: 2},
	}

	models, err := Estimate(context.Background(), g, ds, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"service_c_lag1", "service_b_lag2"}, models["service_c"].Features)
}

func TestEstimateServiceChainCoefficients(t *testing.T) {
	p := simulate.ServiceChain()
	ds, err := p.Generate(simulate.Options{T: 2000, Seed: 8, BurnIn: 100})
	require.NoError(t, err)

	g, err := graph.FromAPI(p.GroundTruth(), ds.Labels())
	require.NoError(t, err)

	models, err := Estimate(context.Background(), g, ds, Options{})
	require.NoError(t, err)
	require.Len(t, models, 3)

	for _, m := range models {
		for i, c := range m.Coefficients {
			assert.InDelta(t, 0.5, c, 0.1, "%s %s", m.Target, m.Features[i])
		}
		assert.InDelta(t, 0, m.Intercept, 0.15)
	}
}

func TestEstimateSingular(t *testing.T) {
	nan := math.NaN()
	rows := [][]float64{{1, nan, 1}, {2, nan, 3}, {3, nan, 2}, {4, nan, 5}, {5, nan, 4}, {6, nan, 6}}
	ds, err := dataset.New([]string{"a", "b", "c"}, rows)
	require.NoError(t, err)

	// every value of b is missing
	g := graph.New(ds.Labels())
	g.Edges = []graph.Edge{{Source: 1, Target: 0, Lag: 1}}
	models, err := Estimate(context.Background(), g, ds, Options{})
	assert.ErrorIs(t, err, causerr.ErrSingularDesignMatrix)
	assert.Nil(t, models)

	// the same source twice is rank-deficient
	g.Edges = []graph.Edge{{Source: 2, Target: 0, Lag: 1}, {Source: 2, Target: 0, Lag: 1}}
	_, err = Estimate(context.Background(), g, ds, Options{})
	assert.ErrorIs(t, err, causerr.ErrSingularDesignMatrix)

	// too few rows for the features
	g.Edges = []graph.Edge{{Source: 2, Target: 0, Lag: 4}, {Source: 0, Target: 0, Lag: 1}}
	_, err = Estimate(context.Background(), g, ds, Options{})
	assert.ErrorIs(t, err, causerr.ErrSingularDesignMatrix)
}

func TestEstimateEmptyGraph(t *testing.T) {
	ds, err := dataset.New([]string{"a", "b"}, [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)

	models, err := Estimate(context.Background(), graph.New(ds.Labels()), ds, Options{})
	require.NoError(t, err)
	assert.NotNil(t, models)
	assert.Empty(t, models)
}

func TestEstimateMismatch(t *testing.T) {
	ds, err := dataset.New([]string{"a", "b"}, [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)

	_, err = Estimate(context.Background(), graph.New([]string{"a"}), ds, Options{})
	assert.ErrorIs(t, err, causerr.ErrInvalidConfiguration)

	_, err = Estimate(context.Background(), nil, ds, Options{})
	assert.ErrorIs(t, err, causerr.ErrInvalidConfiguration)
}

func TestEstimateCancelled(t *testing.T) {
	ds, err := simulate.ServiceChain().Generate(simulate.Options{T: 100, Seed: 3})
	require.NoError(t, err)
	g, err := graph.FromAPI(simulate.ServiceChain().GroundTruth(), ds.Labels())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Estimate(ctx, g, ds, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
