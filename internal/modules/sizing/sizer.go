// Package sizing converts a strategy's signals into dollar target positions.
package sizing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/aristath/capitol/internal/marketdata"
	"github.com/aristath/capitol/internal/modules/signals"
	"github.com/aristath/capitol/pkg/formulas"
	"github.com/rs/zerolog"
)

// Policy selects how signal strengths become dollar sizes
type Policy string

const (
	// PolicyEqual gives every symbol the same share of equity
	PolicyEqual Policy = "equal"
	// PolicyQuality weights symbols by absolute net strength
	PolicyQuality Policy = "quality"
	// PolicyVolatility sizes by ATR risk units scaled by strength
	PolicyVolatility Policy = "volatility"
)

// ParsePolicy validates a policy name
func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case PolicyEqual, PolicyQuality, PolicyVolatility:
		return Policy(name), nil
	}
	return "", fmt.Errorf("unknown sizing policy %q", name)
}

// Skip reasons
const (
	SkipNoPriceData = "no_price_data"
	SkipZeroShares  = "zero_shares"
)

// SkippedSymbol is a symbol the sizer could not size
type SkippedSymbol struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of sizing one strategy
type Result struct {
	Positions []domain.TargetPosition `json:"positions"`
	Skipped   []SkippedSymbol         `json:"skipped"`
	Dropped   int                     `json:"dropped"` // Signals rejected by validation
}

// Config holds sizing parameters
type Config struct {
	RiskPerTrade    float64 // Fraction of allocated equity risked per one-ATR move
	ATRPeriod       int
	HistoryDays     int     // Calendar days of bars requested for ATR
	FallbackVolPct  float64 // ATR estimate as a fraction of price when history is short
	StopATRMultiple float64 // Distance of the implied stop in ATRs
	UseWilderATR    bool
}

// DefaultConfig returns the standard sizing parameters
func DefaultConfig() Config {
	return Config{
		RiskPerTrade:    0.01,
		ATRPeriod:       formulas.DefaultATRPeriod,
		HistoryDays:     30,
		FallbackVolPct:  0.03,
		StopATRMultiple: 2,
	}
}

// BarSource loads daily bars for many symbols at once
type BarSource interface {
	Bars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.BrokerOHLCV, error)
}

// Sizer is the PositionSizer
type Sizer struct {
	bars   BarSource
	prices domain.MarketDataClient
	cfg    Config
	now    func() time.Time
	log    zerolog.Logger
}

// NewSizer creates a sizer
func NewSizer(bars BarSource, prices domain.MarketDataClient, cfg Config, log zerolog.Logger) *Sizer {
	return &Sizer{
		bars:   bars,
		prices: prices,
		cfg:    cfg,
		now:    time.Now,
		log:    log.With().Str("service", "position_sizer").Logger(),
	}
}

// SizeNet sizes already-netted signals
func (s *Sizer) SizeNet(ctx context.Context, strategy string, nets []signals.NetSignal, allocatedEquity float64, policy Policy) (*Result, error) {
	if allocatedEquity < 0 || math.IsNaN(allocatedEquity) {
		return nil, fmt.Errorf("allocated equity must be non-negative, got %v", allocatedEquity)
	}

	valid := make([]signals.NetSignal, 0, len(nets))
	dropped := 0
	for _, n := range nets {
		if err := domain.ValidateSymbol(n.Symbol); err != nil {
			dropped++
			s.log.Warn().Err(err).Str("strategy", strategy).Msg("Dropping signal with invalid symbol")
			continue
		}
		if n.NetStrength == 0 || math.IsNaN(n.NetStrength) {
			continue
		}
		valid = append(valid, n)
	}

	result := &Result{Dropped: dropped}
	if len(valid) == 0 || allocatedEquity == 0 {
		return result, nil
	}

	switch policy {
	case PolicyEqual, PolicyQuality:
		result.Positions = s.sizeWeighted(strategy, valid, allocatedEquity, policy)
	case PolicyVolatility:
		positions, skipped, err := s.sizeVolatility(ctx, strategy, valid, allocatedEquity)
		if err != nil {
			return nil, err
		}
		result.Positions = positions
		result.Skipped = skipped
	default:
		return nil, fmt.Errorf("unknown sizing policy %q", policy)
	}

	s.log.Info().
		Str("strategy", strategy).
		Str("policy", string(policy)).
		Float64("allocated_equity", allocatedEquity).
		Int("positions", len(result.Positions)).
		Int("skipped", len(result.Skipped)).
		Int("dropped", result.Dropped).
		Msg("Sized strategy positions")

	return result, nil
}

func (s *Sizer) sizeWeighted(strategy string, nets []signals.NetSignal, equity float64, policy Policy) []domain.TargetPosition {
	raw := make([]float64, len(nets))
	for i, n := range nets {
		if policy == PolicyEqual {
			raw[i] = 1
		} else {
			raw[i] = math.Abs(n.NetStrength)
		}
	}

	weights := formulas.NormalizeWeights(raw)
	positions := make([]domain.TargetPosition, 0, len(nets))
	for i, n := range nets {
		value := weights[i] * equity * sign(n.NetStrength)
		positions = append(positions, newTarget(strategy, n, value, nil))
	}
	return positions
}

func (s *Sizer) sizeVolatility(ctx context.Context, strategy string, nets []signals.NetSignal, equity float64) ([]domain.TargetPosition, []SkippedSymbol, error) {
	symbols := make([]string, len(nets))
	strengths := make([]float64, len(nets))
	for i, n := range nets {
		symbols[i] = n.Symbol
		strengths[i] = n.NetStrength
	}

	end := s.now().UTC()
	start := end.AddDate(0, 0, -s.cfg.HistoryDays)
	history, err := s.bars.Bars(ctx, symbols, start, end)
	if err != nil && ctx.Err() != nil {
		return nil, nil, fmt.Errorf("load price history: %w", err)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("strategy", strategy).Msg("Price history load incomplete")
	}

	magnitudes := formulas.NormalizeMagnitudes(strengths)
	riskDollars := equity * s.cfg.RiskPerTrade

	var (
		positions []domain.TargetPosition
		skipped   []SkippedSymbol
	)

	for i, n := range nets {
		bars := history[n.Symbol]

		price, priceErr := s.currentPrice(ctx, n.Symbol, bars)
		if priceErr != nil {
			s.log.Warn().Err(priceErr).Str("symbol", n.Symbol).Str("strategy", strategy).Msg("No price available, skipping symbol")
			skipped = append(skipped, SkippedSymbol{Symbol: n.Symbol, Reason: SkipNoPriceData, Detail: priceErr.Error()})
			continue
		}

		atr, fallback := s.atr(bars, price)
		shares := math.Floor(riskDollars / atr * magnitudes[i])
		if shares < 1 {
			skipped = append(skipped, SkippedSymbol{
				Symbol: n.Symbol,
				Reason: SkipZeroShares,
				Detail: fmt.Sprintf("risk unit %.4f shares at strength %.3f", riskDollars/atr, magnitudes[i]),
			})
			continue
		}

		dir := sign(n.NetStrength)
		stop := price - dir*s.cfg.StopATRMultiple*atr
		risk := &domain.RiskMetadata{
			ATR:         atr,
			Price:       price,
			Shares:      shares,
			RiskDollars: shares * atr,
			ImpliedStop: math.Max(stop, 0),
			ATRFallback: fallback,
		}
		positions = append(positions, newTarget(strategy, n, dir*shares*price, risk))
	}

	return s.limitGross(strategy, positions, equity), skipped, nil
}

// limitGross scales share counts down when the strategy would need more
// than its allocated equity. Risk per position shrinks proportionally.
func (s *Sizer) limitGross(strategy string, positions []domain.TargetPosition, equity float64) []domain.TargetPosition {
	gross := 0.0
	for _, p := range positions {
		gross += math.Abs(p.TargetValue)
	}
	if gross <= equity || gross == 0 {
		return positions
	}

	scale := equity / gross
	s.log.Warn().
		Str("strategy", strategy).
		Float64("gross", gross).
		Float64("allocated_equity", equity).
		Float64("scale", scale).
		Msg("Volatility sizing exceeds allocation, scaling down")

	out := positions[:0]
	for _, p := range positions {
		r := *p.Details.Risk
		r.Shares = math.Floor(r.Shares * scale)
		if r.Shares < 1 {
			continue
		}
		r.RiskDollars = r.Shares * r.ATR
		value := sign(p.TargetValue) * r.Shares * r.Price
		p.TargetValue = value
		p.Details.PreCapValue = value
		p.Details.Risk = &r
		out = append(out, p)
	}
	return out
}

// currentPrice prefers the last close of the history just loaded, then the
// latest trade, then the quote midpoint.
func (s *Sizer) currentPrice(ctx context.Context, symbol string, bars []domain.BrokerOHLCV) (float64, error) {
	if n := len(bars); n > 0 && bars[n-1].Close > 0 {
		return bars[n-1].Close, nil
	}
	if s.prices == nil {
		return 0, fmt.Errorf("%w for %s", domain.ErrNoPriceData, symbol)
	}
	price, _, err := marketdata.LatestPrice(ctx, s.prices, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNoPriceData) {
			return 0, err
		}
		return 0, fmt.Errorf("%w for %s: %v", domain.ErrNoPriceData, symbol, err)
	}
	return price, nil
}

// atr computes ATR from bars, falling back to a fixed fraction of price
func (s *Sizer) atr(bars []domain.BrokerOHLCV, price float64) (float64, bool) {
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}

	var atr *float64
	if s.cfg.UseWilderATR {
		atr = formulas.CalculateWilderATR(highs, lows, closes, s.cfg.ATRPeriod)
	} else {
		atr = formulas.CalculateATR(highs, lows, closes, s.cfg.ATRPeriod)
	}
	if atr != nil {
		return *atr, false
	}
	return price * s.cfg.FallbackVolPct, true
}

func newTarget(strategy string, n signals.NetSignal, value float64, risk *domain.RiskMetadata) domain.TargetPosition {
	return domain.TargetPosition{
		Symbol:      n.Symbol,
		AssetType:   domain.AssetTypeEquity,
		TargetValue: value,
		Details: domain.PositionDetails{
			Risk:           risk,
			Sources:        []string{strategy},
			ConsensusCount: 1,
			PreCapValue:    value,
			Strength:       n.NetStrength,
		},
	}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
