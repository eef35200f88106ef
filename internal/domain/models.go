// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Direction is the side implied by an observed trade event
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// AssetType represents the type of instrument a target position refers to
type AssetType string

const (
	// AssetTypeEquity represents individual stocks/shares
	AssetTypeEquity AssetType = "equity"
	// AssetTypeETF represents Exchange Traded Funds
	AssetTypeETF AssetType = "etf"
)

// tickerPattern is the strict ticker format accepted by the pipeline
var tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// ValidateSymbol checks a ticker against the strict 1-5 uppercase letter format.
// Symbols are never coerced (no upper-casing, no trimming).
func ValidateSymbol(symbol string) error {
	if !tickerPattern.MatchString(symbol) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return nil
}

// TradeSignal is one observed event from a data source that might justify a trade
type TradeSignal struct {
	ObservedAt     time.Time `json:"observed_at"`
	Symbol         string    `json:"symbol"`
	Direction      Direction `json:"direction"`
	SourceStrategy string    `json:"source_strategy"`
	Provenance     string    `json:"provenance"` // Reference back to originating record(s), audit only
	Strength       float64   `json:"strength"`
}

// SignedStrength returns the strength with buy positive and sell negative
func (s TradeSignal) SignedStrength() float64 {
	if s.Direction == DirectionSell {
		return -s.Strength
	}
	return s.Strength
}

// Validate checks symbol format and direction
func (s TradeSignal) Validate() error {
	if err := ValidateSymbol(s.Symbol); err != nil {
		return err
	}
	if s.Direction != DirectionBuy && s.Direction != DirectionSell {
		return fmt.Errorf("invalid direction %q for %s", s.Direction, s.Symbol)
	}
	return nil
}

// RiskMetadata describes how a volatility-sized position was derived
type RiskMetadata struct {
	ATR         float64 `json:"atr"`
	Price       float64 `json:"price"`
	Shares      float64 `json:"shares"`
	RiskDollars float64 `json:"risk_dollars"` // Loss if price moves one ATR against the position
	ImpliedStop float64 `json:"implied_stop"`
	ATRFallback bool    `json:"atr_fallback"` // ATR estimated as a fraction of price
}

// PositionDetails carries provenance for a target position
type PositionDetails struct {
	Risk           *RiskMetadata `json:"risk,omitempty"`
	Sources        []string      `json:"sources"`
	ConsensusCount int           `json:"consensus_count"`
	PreCapValue    float64       `json:"pre_cap_value"`
	WasCapped      bool          `json:"was_capped"`
	Strength       float64       `json:"strength"`
}

// TargetPosition is a desired dollar exposure in one symbol.
// TargetValue is a signed dollar notional (positive = long, negative = short),
// never a share count.
type TargetPosition struct {
	Symbol      string          `json:"symbol"`
	AssetType   AssetType       `json:"asset_type"`
	TargetValue float64         `json:"target_value"`
	Details     PositionDetails `json:"details"`
}

// IsShort reports whether the position is a short exposure
func (p TargetPosition) IsShort() bool {
	return p.TargetValue < 0
}

// Frequency is advisory rebalance cadence metadata for a strategy
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyQuarterly Frequency = "quarterly"
)

// StrategyName identifies a registered strategy
type StrategyName string

// StrategyAllocation is the static registry configuration of a strategy
type StrategyAllocation struct {
	Name           StrategyName `json:"name"`
	Description    string       `json:"description"`
	Frequency      Frequency    `json:"rebalance_frequency"`
	AcceptedParams []string     `json:"accepted_params"`
	DefaultWeight  float64      `json:"default_weight"`
}

// AccountSnapshot is a point-in-time read of the brokerage account.
// The core never mutates it; changes happen only through emitted orders.
type AccountSnapshot struct {
	TakenAt    time.Time        `json:"taken_at"`
	Positions  []BrokerPosition `json:"positions"`
	OpenOrders []BrokerOrder    `json:"open_orders"`
	Equity     float64          `json:"equity"`
	Cash       float64          `json:"cash"`
}

// PositionsBySymbol indexes the snapshot's positions by upper-case symbol
func (a AccountSnapshot) PositionsBySymbol() map[string]BrokerPosition {
	out := make(map[string]BrokerPosition, len(a.Positions))
	for _, p := range a.Positions {
		out[strings.ToUpper(p.Symbol)] = p
	}
	return out
}

// OpenOrdersBySymbol groups open orders by upper-case symbol
func (a AccountSnapshot) OpenOrdersBySymbol() map[string][]BrokerOrder {
	out := make(map[string][]BrokerOrder)
	for _, o := range a.OpenOrders {
		key := strings.ToUpper(o.Symbol)
		out[key] = append(out[key], o)
	}
	return out
}

// MergeStrategy is the rule used to combine same-symbol positions
type MergeStrategy string

const (
	// MergeAdditive sums values so consensus amplifies conviction
	MergeAdditive MergeStrategy = "additive"
	// MergeMax keeps the largest-magnitude value with its sign
	MergeMax MergeStrategy = "max"
	// MergeAverage takes the arithmetic mean
	MergeAverage MergeStrategy = "average"
)

// ParseMergeStrategy validates a merge strategy name. Empty defaults to additive.
func ParseMergeStrategy(name string) (MergeStrategy, error) {
	switch MergeStrategy(name) {
	case "":
		return MergeAdditive, nil
	case MergeAdditive, MergeMax, MergeAverage:
		return MergeStrategy(name), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMergeStrategy, name)
}
