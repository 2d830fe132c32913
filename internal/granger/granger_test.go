package granger

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/caus/internal/causerr"
	"github.com/w-h-a/caus/internal/dataset"
	"github.com/w-h-a/caus/internal/simulate"
)

func TestGrangerMatrixServiceChain(t *testing.T) {
	ds, err := simulate.ServiceChain().Generate(simulate.Options{T: 1000, Seed: 42, BurnIn: 100})
	require.NoError(t, err)

	m, err := Matrix(context.Background(), ds, 2, 0.01)
	require.NoError(t, err)
	require.Len(t, m, 3)

	for i := range m {
		assert.Nil(t, m[i][i])
	}

	ab := m[0][1]
	require.NotNil(t, ab)
	assert.Equal(t, "service_a", ab.Cause)
	assert.Equal(t, "service_b", ab.Effect)
	assert.True(t, ab.Significant, "p=%v", ab.PValue)
	assert.Equal(t, 2, ab.Lags)
	assert.Equal(t, 998, ab.N)

	assert.True(t, m[1][2].Significant, "p=%v", m[1][2].PValue)
	assert.Greater(t, m[1][2].FStatistic, m[2][1].FStatistic)
}

func TestGrangerNoSignal(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	rows := make([][]float64, 300)
	for i := range rows {
		rows[i] = []float64{rng.NormFloat64(), rng.NormFloat64()}
	}
	ds, err := dataset.New([]string{"x", "y"}, rows)
	require.NoError(t, err)

	res, err := Test(ds, 0, 1, 1, 0.001)
	require.NoError(t, err)
	assert.False(t, res.Significant, "p=%v", res.PValue)
	assert.Equal(t, 299, res.N)
}

func TestGrangerErrors(t *testing.T) {
	ds, err := dataset.New([]string{"x", "y"}, [][]float64{{1, 2}, {2, 3}, {3, 5}, {4, 4}})
	require.NoError(t, err)

	_, err = Test(ds, 0, 0, 1, 0.05)
	assert.ErrorIs(t, err, causerr.ErrInvalidConfiguration)

	_, err = Test(ds, 0, 2, 1, 0.05)
	assert.ErrorIs(t, err, causerr.ErrInvalidConfiguration)

	_, err = Test(ds, 0, 1, 0, 0.05)
	assert.ErrorIs(t, err, causerr.ErrInvalidConfiguration)

	_, err = Test(ds, 0, 1, 2, 0.05)
	assert.ErrorIs(t, err, causerr.ErrInsufficientData)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Matrix(ctx, ds, 1, 0.05)
	assert.ErrorIs(t, err, context.Canceled)
}
