// Package formulas provides the numeric building blocks used for position sizing.
package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// DefaultATRPeriod is the lookback used for volatility sizing
const DefaultATRPeriod = 14

// TrueRanges returns the true range of every bar that has a previous close.
//
// TR = max(high-low, |high-prevClose|, |low-prevClose|)
//
// The result has len(closes)-1 entries; the first bar has no previous close
// and is dropped. Returns nil if the series lengths differ or fewer than two
// bars are supplied.
func TrueRanges(highs, lows, closes []float64) []float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) || len(closes) < 2 {
		return nil
	}

	tr := talib.TRange(highs, lows, closes)
	return tr[1:]
}

// CalculateATR calculates the Average True Range as the simple mean of the
// last `period` true ranges. Needs period+1 bars.
//
// Returns nil when history is insufficient or the result is not a positive number.
func CalculateATR(highs, lows, closes []float64, period int) *float64 {
	if period <= 0 {
		period = DefaultATRPeriod
	}

	tr := TrueRanges(highs, lows, closes)
	if len(tr) < period {
		return nil
	}

	atr := Mean(tr[len(tr)-period:])
	if isNaN(atr) || atr <= 0 {
		return nil
	}
	return &atr
}

// CalculateWilderATR calculates ATR with Wilder's smoothing (go-talib Atr).
// Needs period+1 bars.
func CalculateWilderATR(highs, lows, closes []float64, period int) *float64 {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if len(highs) != len(lows) || len(lows) != len(closes) || len(closes) < period+1 {
		return nil
	}

	series := talib.Atr(highs, lows, closes, period)
	if len(series) == 0 {
		return nil
	}

	atr := series[len(series)-1]
	if isNaN(atr) || atr <= 0 {
		return nil
	}
	return &atr
}

func isNaN(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
