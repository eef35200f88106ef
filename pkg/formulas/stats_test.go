package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-12)
}

func TestNormalizeWeights(t *testing.T) {
	tests := []struct {
		name     string
		input    []float64
		expected []float64
	}{
		{name: "empty", input: nil, expected: nil},
		{name: "equal", input: []float64{1, 1, 1, 1}, expected: []float64{0.25, 0.25, 0.25, 0.25}},
		{name: "quality weighted", input: []float64{3, 1}, expected: []float64{0.75, 0.25}},
		{name: "negatives ignored", input: []float64{2, -5, 2}, expected: []float64{0.5, 0, 0.5}},
		{name: "nothing positive", input: []float64{0, -1}, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeWeights(tt.input)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.Len(t, got, len(tt.expected))
			for i := range got {
				assert.InDelta(t, tt.expected[i], got[i], 1e-12)
			}
		})
	}
}

func TestNormalizeMagnitudes(t *testing.T) {
	got := NormalizeMagnitudes([]float64{-4, 2, 0, math.NaN()})
	require.Len(t, got, 4)
	assert.InDelta(t, 1.0, got[0], 1e-12)
	assert.InDelta(t, 0.5, got[1], 1e-12)
	assert.Equal(t, 0.0, got[2])
	assert.Equal(t, 0.0, got[3])

	assert.Equal(t, []float64{0, 0}, NormalizeMagnitudes([]float64{0, 0}))
	assert.Nil(t, NormalizeMagnitudes(nil))
}
