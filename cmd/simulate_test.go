package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	causal "github.com/w-h-a/caus/api/causal/v1alpha1"
)

func TestParseIntervention(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		target string
		action string
		value  float64
	}{
		{"scale", "api_latency * 1.2", "api_latency", causal.ActionIncreaseByPercent, 0.2},
		{"scale no spaces", "db.load*0.5", "db.load", causal.ActionIncreaseByPercent, -0.5},
		{"set", "error-rate = 500", "error-rate", causal.ActionSetToFixed, 500},
		{"set padded", "  x =  0.25 ", "x", causal.ActionSetToFixed, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIntervention(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.target, got.TargetNode)
			assert.Equal(t, tt.action, got.Action)
			assert.InDelta(t, tt.value, got.Value, 1e-12)
		})
	}
}

func TestParseInterventionRejects(t *testing.T) {
	for _, input := range []string{"", "x", "x + 2", "x * ", "= 3", "x * abc", "x * 1.2.3"} {
		_, err := ParseIntervention(input)
		assert.Error(t, err, input)
	}
}

func TestPrintEffectSpecificResultsUnknownEffect(t *testing.T) {
	result := &causal.SimulateResponse{Metrics: map[string]*causal.Trajectory{
		"y": {Original: []float64{1, 2}, Simulated: []float64{2, 4}},
	}}

	assert.Error(t, printEffectSpecificResults(result, nil, "z"))
	assert.NoError(t, printEffectSpecificResults(result, nil, "y"))

	empty := &causal.SimulateResponse{Metrics: map[string]*causal.Trajectory{"y": {}}}
	assert.Error(t, printEffectSpecificResults(empty, nil, "y"))
}
