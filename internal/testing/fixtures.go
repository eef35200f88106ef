package testing

import (
	"time"

	"github.com/aristath/capitol/internal/domain"
)

// FlatBars returns n daily bars with constant high/low/close, oldest first,
// ending at the given day. With high-low as the only range component the
// ATR equals high-low exactly.
func FlatBars(n int, high, low, close float64, end time.Time) []domain.BrokerOHLCV {
	bars := make([]domain.BrokerOHLCV, n)
	for i := 0; i < n; i++ {
		day := end.AddDate(0, 0, i-n+1)
		bars[i] = domain.BrokerOHLCV{
			Timestamp: day.Unix(),
			Open:      close,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000,
		}
	}
	return bars
}

// NewSignal builds a trade signal observed now
func NewSignal(symbol string, direction domain.Direction, strength float64, strategy string) domain.TradeSignal {
	return domain.TradeSignal{
		ObservedAt:     time.Now().UTC(),
		Symbol:         symbol,
		Direction:      direction,
		SourceStrategy: strategy,
		Provenance:     strategy + ":" + symbol,
		Strength:       strength,
	}
}

// NewTarget builds a target position contributed by one strategy
func NewTarget(symbol string, value float64, strategy string) domain.TargetPosition {
	return domain.TargetPosition{
		Symbol:      symbol,
		AssetType:   domain.AssetTypeEquity,
		TargetValue: value,
		Details: domain.PositionDetails{
			Sources:        []string{strategy},
			ConsensusCount: 1,
			PreCapValue:    value,
		},
	}
}

// NewLongPosition builds a long broker position
func NewLongPosition(symbol string, qty, price float64) domain.BrokerPosition {
	return domain.BrokerPosition{
		Symbol:        symbol,
		Side:          domain.PositionSideLong,
		Quantity:      qty,
		MarketValue:   qty * price,
		CurrentPrice:  price,
		AvgEntryPrice: price,
	}
}
