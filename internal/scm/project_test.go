package scm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/caus/internal/causerr"
	"github.com/w-h-a/caus/internal/dataset"
	"github.com/w-h-a/caus/internal/graph"
)

func chainModels() map[string]*LinearModel {
	// y(t) = 1 + 0.5 x(t-1), z(t) = 2 y(t), x has no model
	return map[string]*LinearModel{
		"y": {Target: "y", Parents: []graph.Parent{{Var: 0, Lag: 1}}, Coefficients: []float64{0.5}, Intercept: 1},
		"z": {Target: "z", Parents: []graph.Parent{{Var: 1, Lag: 0}}, Coefficients: []float64{2}},
	}
}

func chainData(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New([]string{"x", "y", "z"}, [][]float64{{1, 0, 0}, {4, 3, 6}})
	require.NoError(t, err)
	return ds
}

func TestProjectBaseline(t *testing.T) {
	proj, err := Project(chainModels(), chainData(t), 3, nil)
	require.NoError(t, err)

	x, _, ok := proj.Series("x")
	require.True(t, ok)
	assert.Equal(t, []float64{4, 4, 4}, x, "no model holds the last value")

	y, yc, _ := proj.Series("y")
	assert.Equal(t, []float64{3, 3, 3}, y)
	assert.Equal(t, y, yc, "no intervention leaves both paths equal")

	z, _, _ := proj.Series("z")
	assert.Equal(t, []float64{6, 6, 6}, z, "lag-0 parent is computed first")

	_, _, ok = proj.Series("nope")
	assert.False(t, ok)
}

func TestProjectIntervention(t *testing.T) {
	set, err := Project(chainModels(), chainData(t), 2, &Intervention{Target: "x", Action: ActionSet, Value: 10})
	require.NoError(t, err)

	_, x, _ := set.Series("x")
	assert.Equal(t, []float64{10, 10}, x)
	_, y, _ := set.Series("y")
	// step 1 still sees the observed x, step 2 the forced one
	assert.Equal(t, []float64{3, 6}, y)
	_, z, _ := set.Series("z")
	assert.Equal(t, []float64{6, 12}, z)

	scaled, err := Project(chainModels(), chainData(t), 1, &Intervention{Target: "y", Action: ActionScale, Value: 1.5})
	require.NoError(t, err)
	yb, yc, _ := scaled.Series("y")
	assert.Equal(t, []float64{3}, yb)
	assert.Equal(t, []float64{4.5}, yc)
	_, zc, _ := scaled.Series("z")
	assert.Equal(t, []float64{9}, zc)
}

func TestProjectScaleHoldsRatio(t *testing.T) {
	proj, err := Project(chainModels(), chainData(t), 5, &Intervention{Target: "x", Action: ActionScale, Value: 1.2})
	require.NoError(t, err)

	xb, xc, _ := proj.Series("x")
	assert.Equal(t, []float64{4, 4, 4, 4, 4}, xb)
	for i := range xc {
		assert.InDelta(t, 1.2*xb[i], xc[i], 1e-12, "step %d", i+1)
	}

	// y and z pick up the forced x one step later and then stay flat
	yb, yc, _ := proj.Series("y")
	assert.Equal(t, []float64{3, 3, 3, 3, 3}, yb)
	assert.InDeltaSlice(t, []float64{3, 3.4, 3.4, 3.4, 3.4}, yc, 1e-12)
	_, zc, _ := proj.Series("z")
	assert.InDeltaSlice(t, []float64{6, 6.8, 6.8, 6.8, 6.8}, zc, 1e-12)
}

func TestProjectScaleOnModelledTarget(t *testing.T) {
	// w(t) = 0.5 w(t-1) decays; scaling must track that decay, not its own path
	models := map[string]*LinearModel{
		"w": {Target: "w", Parents: []graph.Parent{{Var: 0, Lag: 1}}, Coefficients: []float64{0.5}},
	}
	ds, err := dataset.New([]string{"w", "v"}, [][]float64{{0, 0}, {16, 1}})
	require.NoError(t, err)

	proj, err := Project(models, ds, 4, &Intervention{Target: "w", Action: ActionScale, Value: 2})
	require.NoError(t, err)

	wb, wc, _ := proj.Series("w")
	assert.Equal(t, []float64{8, 4, 2, 1}, wb)
	assert.Equal(t, []float64{16, 8, 4, 2}, wc)
}

func TestProjectErrors(t *testing.T) {
	ds := chainData(t)

	_, err := Project(chainModels(), ds, 0, nil)
	assert.ErrorIs(t, err, causerr.ErrInvalidConfiguration)

	_, err = Project(chainModels(), ds, 1, &Intervention{Target: "w"})
	assert.ErrorIs(t, err, causerr.ErrInvalidConfiguration)

	cycle := map[string]*LinearModel{
		"x": {Target: "x", Parents: []graph.Parent{{Var: 1, Lag: 0}}, Coefficients: []float64{1}},
		"y": {Target: "y", Parents: []graph.Parent{{Var: 0, Lag: 0}}, Coefficients: []float64{1}},
	}
	_, err = Project(cycle, ds, 1, nil)
	assert.ErrorIs(t, err, causerr.ErrInvalidConfiguration)

	deep := map[string]*LinearModel{
		"y": {Target: "y", Parents: []graph.Parent{{Var: 0, Lag: 3}}, Coefficients: []float64{1}},
	}
	_, err = Project(deep, ds, 1, nil)
	assert.ErrorIs(t, err, causerr.ErrInsufficientData)
}
