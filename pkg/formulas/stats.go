package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// NormalizeWeights scales non-negative values so they sum to 1.0.
// Negative entries are treated as zero. Returns nil if nothing is positive.
func NormalizeWeights(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	weights := make([]float64, len(values))
	for i, v := range values {
		if v > 0 && !isNaN(v) {
			weights[i] = v
		}
	}

	total := floats.Sum(weights)
	if total <= 0 {
		return nil
	}

	floats.Scale(1/total, weights)
	return weights
}

// NormalizeMagnitudes maps absolute values into (0,1] by dividing by the largest
// magnitude. Zero stays zero.
func NormalizeMagnitudes(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	abs := make([]float64, len(values))
	for i, v := range values {
		if !isNaN(v) {
			abs[i] = math.Abs(v)
		}
	}

	maxAbs := floats.Max(abs)
	if maxAbs == 0 {
		return abs
	}

	floats.Scale(1/maxAbs, abs)
	return abs
}
