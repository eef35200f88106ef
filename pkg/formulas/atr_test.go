package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatBars(n int, high, low, close float64) ([]float64, []float64, []float64) {
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = high
		lows[i] = low
		closes[i] = close
	}
	return highs, lows, closes
}

func TestTrueRanges_UsesPreviousClose(t *testing.T) {
	highs := []float64{101, 110, 104}
	lows := []float64{99, 105, 96}
	closes := []float64{100, 108, 97}

	tr := TrueRanges(highs, lows, closes)
	require.Len(t, tr, 2)

	// Bar 2: max(110-105, |110-100|, |105-100|) = 10
	assert.InDelta(t, 10.0, tr[0], 1e-9)
	// Bar 3: max(104-96, |104-108|, |96-108|) = 12
	assert.InDelta(t, 12.0, tr[1], 1e-9)
}

func TestTrueRanges_InvalidInput(t *testing.T) {
	assert.Nil(t, TrueRanges([]float64{1}, []float64{1}, []float64{1}))
	assert.Nil(t, TrueRanges([]float64{1, 2}, []float64{1}, []float64{1, 2}))
}

func TestCalculateATR(t *testing.T) {
	tests := []struct {
		name     string
		bars     int
		expected *float64
	}{
		{name: "exactly period+1 bars", bars: 15, expected: ptr(2.0)},
		{name: "long history", bars: 40, expected: ptr(2.0)},
		{name: "insufficient history", bars: 14, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			highs, lows, closes := flatBars(tt.bars, 101, 99, 100)
			atr := CalculateATR(highs, lows, closes, 14)
			if tt.expected == nil {
				assert.Nil(t, atr)
				return
			}
			require.NotNil(t, atr)
			assert.InDelta(t, *tt.expected, *atr, 1e-9)
		})
	}
}

func TestCalculateATR_OnlyLastPeriodCounts(t *testing.T) {
	// 10 wide bars followed by 15 narrow ones: only the narrow ranges are averaged
	highs, lows, closes := flatBars(10, 120, 80, 100)
	h2, l2, c2 := flatBars(15, 101, 99, 100)
	highs = append(highs, h2...)
	lows = append(lows, l2...)
	closes = append(closes, c2...)

	atr := CalculateATR(highs, lows, closes, 14)
	require.NotNil(t, atr)
	assert.InDelta(t, 2.0, *atr, 1e-9)
}

func TestCalculateATR_DefaultsPeriod(t *testing.T) {
	highs, lows, closes := flatBars(15, 101, 99, 100)
	atr := CalculateATR(highs, lows, closes, 0)
	require.NotNil(t, atr)
	assert.InDelta(t, 2.0, *atr, 1e-9)
}

func TestCalculateATR_ZeroRangeIsNil(t *testing.T) {
	highs, lows, closes := flatBars(20, 100, 100, 100)
	assert.Nil(t, CalculateATR(highs, lows, closes, 14))
}

func TestCalculateWilderATR(t *testing.T) {
	highs, lows, closes := flatBars(30, 101, 99, 100)
	atr := CalculateWilderATR(highs, lows, closes, 14)
	require.NotNil(t, atr)
	assert.InDelta(t, 2.0, *atr, 1e-6)

	short, shortLows, shortCloses := flatBars(10, 101, 99, 100)
	assert.Nil(t, CalculateWilderATR(short, shortLows, shortCloses, 14))
}

func ptr(v float64) *float64 { return &v }
