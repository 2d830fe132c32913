package pcmci

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/caus/internal/causerr"
)

func TestCombinationsOrder(t *testing.T) {
	var got [][]int
	combinations(4, 2, 0, func(idx []int) bool {
		got = append(got, append([]int(nil), idx...))
		return true
	})
	assert.Equal(t, [][]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}, got)

	got = nil
	combinations(4, 2, 2, func(idx []int) bool {
		got = append(got, append([]int(nil), idx...))
		return true
	})
	assert.Equal(t, [][]int{{0, 1}, {0, 2}}, got, "limit caps the subsets")

	calls := 0
	combinations(3, 0, 0, func(idx []int) bool {
		calls++
		assert.Empty(t, idx)
		return true
	})
	assert.Equal(t, 1, calls, "the empty set is tried once")

	calls = 0
	combinations(2, 3, 0, func([]int) bool { calls++; return true })
	assert.Zero(t, calls)

	calls = 0
	combinations(5, 2, 0, func([]int) bool { calls++; return calls < 3 })
	assert.Equal(t, 3, calls, "stops when fn returns false")
}

func TestConditionUnion(t *testing.T) {
	got := conditionUnion(
		[]Link{{Var: 0, Lag: 1}},
		[]Link{{Var: 2, Lag: 1}, {Var: 0, Lag: 1}},
		[]Link{{Var: 1, Lag: 3}, {Var: 2, Lag: 1}, {Var: 0, Lag: 2}},
	)
	assert.Equal(t, []Link{{Var: 0, Lag: 2}, {Var: 1, Lag: 3}, {Var: 2, Lag: 1}}, got)
}

func TestParCorrUncorrelated(t *testing.T) {
	// x and y patterns are exactly orthogonal after demeaning
	n := 400
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i % 2)
		y[i] = float64((i / 2) % 2)
	}

	res, err := ParCorr{}.Test(x, y, nil, 0.05)
	require.NoError(t, err)
	assert.False(t, res.Dependent)
	assert.InDelta(t, 0, res.PartialCorr, 1e-9)
	assert.InDelta(t, 1, res.PValue, 1e-6)
	assert.Equal(t, n, res.N)
}

func TestParCorrDependent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n := 300
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = rng.NormFloat64()
		y[i] = 2*x[i] + 0.1*rng.NormFloat64()
	}

	res, err := ParCorr{}.Test(x, y, nil, 0.05)
	require.NoError(t, err)
	assert.True(t, res.Dependent)
	assert.Greater(t, res.PartialCorr, 0.9)
	assert.Greater(t, res.Statistic, 0.0)
	assert.Less(t, res.PValue, 1e-10)

	// sign follows the correlation
	neg := make([]float64, n)
	for i := range y {
		neg[i] = -y[i]
	}
	res, err = ParCorr{}.Test(x, neg, nil, 0.05)
	require.NoError(t, err)
	assert.Less(t, res.Statistic, 0.0)
}

func TestParCorrCommonCause(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	n := 2000
	z := make([]float64, n)
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range z {
		z[i] = rng.NormFloat64()
		x[i] = z[i] + 0.5*rng.NormFloat64()
		y[i] = z[i] + 0.5*rng.NormFloat64()
	}

	marginal, err := ParCorr{}.Test(x, y, nil, 0.01)
	require.NoError(t, err)
	assert.True(t, marginal.Dependent)

	conditional, err := ParCorr{}.Test(x, y, [][]float64{z}, 0.001)
	require.NoError(t, err)
	assert.False(t, conditional.Dependent, "p=%v", conditional.PValue)
	assert.Less(t, math.Abs(conditional.PartialCorr), 0.1)
}

func TestParCorrDropsIncompleteRows(t *testing.T) {
	x := []float64{1, 2, math.NaN(), 4, 5, 6, 7, 8}
	y := []float64{2, 4, 6, 8, math.NaN(), 12, 14, 17}
	z := []float64{0, 1, 0, 1, 0, math.NaN(), 0, 1}

	res, err := ParCorr{}.Test(x, y, [][]float64{z}, 0.05)
	require.NoError(t, err)
	assert.Equal(t, 5, res.N)
}

func TestParCorrErrors(t *testing.T) {
	// n <= k + 2
	_, err := ParCorr{}.Test([]float64{1, 2, 3}, []float64{3, 1, 2}, [][]float64{{1, 0, 1}}, 0.05)
	assert.ErrorIs(t, err, causerr.ErrInsufficientData)

	// constant series has no correlation
	_, err = ParCorr{}.Test([]float64{1, 1, 1, 1, 1, 1}, []float64{1, 2, 3, 4, 5, 7}, nil, 0.05)
	assert.ErrorIs(t, err, causerr.ErrUpstreamComputation)

	_, err = ParCorr{}.Test([]float64{1, 2, 3}, []float64{1, 2}, nil, 0.05)
	assert.ErrorIs(t, err, causerr.ErrInvalidConfiguration)

	_, err = ParCorr{}.Test([]float64{1, 2, 3, 4}, []float64{1, 2, 4, 3}, [][]float64{{1}}, 0.05)
	assert.ErrorIs(t, err, causerr.ErrInvalidConfiguration)
}
