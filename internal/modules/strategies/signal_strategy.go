package strategies

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/aristath/capitol/internal/modules/signals"
	"github.com/aristath/capitol/internal/modules/sizing"
	"github.com/rs/zerolog"
)

// Sizer converts netted signals into target positions
type Sizer interface {
	SizeNet(ctx context.Context, strategy string, nets []signals.NetSignal, allocatedEquity float64, policy sizing.Policy) (*sizing.Result, error)
}

// Defaults are the parameter values a signal strategy uses when a key is absent
type Defaults struct {
	LookbackDays int
	MinStrength  float64
	Sizing       sizing.Policy
	TopN         int // 0 keeps every symbol
}

// SignalStrategy queries a SignalSource, nets the signals per symbol and
// sizes the result. The three registered strategies differ only in their
// allocation metadata and defaults.
type SignalStrategy struct {
	allocation domain.StrategyAllocation
	defaults   Defaults
	source     domain.SignalSource
	sizer      Sizer
	now        func() time.Time
	log        zerolog.Logger
}

// NewSignalStrategy creates a strategy backed by a signal source and sizer
func NewSignalStrategy(allocation domain.StrategyAllocation, defaults Defaults, source domain.SignalSource, sizer Sizer, log zerolog.Logger) *SignalStrategy {
	return &SignalStrategy{
		allocation: allocation,
		defaults:   defaults,
		source:     source,
		sizer:      sizer,
		now:        time.Now,
		log:        log.With().Str("strategy", string(allocation.Name)).Logger(),
	}
}

// Allocation returns the static registry configuration
func (s *SignalStrategy) Allocation() domain.StrategyAllocation {
	return s.allocation
}

// Run executes the strategy with the given parameters
func (s *SignalStrategy) Run(ctx context.Context, params Params) (*Result, error) {
	equity, err := params.Float(ParamAllocatedEquity, 0)
	if err != nil {
		return nil, err
	}
	lookback, err := params.Int(ParamLookbackDays, s.defaults.LookbackDays)
	if err != nil {
		return nil, err
	}
	if lookback <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %d", ParamLookbackDays, lookback)
	}
	minStrength, err := params.Float(ParamMinStrength, s.defaults.MinStrength)
	if err != nil {
		return nil, err
	}
	policyName, err := params.String(ParamSizing, string(s.defaults.Sizing))
	if err != nil {
		return nil, err
	}
	policy, err := sizing.ParsePolicy(policyName)
	if err != nil {
		return nil, err
	}
	topN, err := params.Int(ParamTopN, s.defaults.TopN)
	if err != nil {
		return nil, err
	}

	since := s.now().AddDate(0, 0, -lookback)
	sigs, err := s.source.Signals(ctx, s.allocation.Name, since, minStrength)
	if err != nil {
		return nil, fmt.Errorf("failed to load signals: %w", err)
	}

	nets, dropped := signals.Aggregate(sigs)
	nets = signals.Top(nets, topN)

	sized, err := s.sizer.SizeNet(ctx, string(s.allocation.Name), nets, equity, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to size positions: %w", err)
	}

	result := &Result{
		Positions: sized.Positions,
		Skipped:   sized.Skipped,
	}
	if n := dropped + sized.Dropped; n > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("dropped %d signals with invalid symbol or direction", n))
	}
	if len(sigs) == 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("no signals in the last %d days", lookback))
	}

	s.log.Info().
		Int("signals", len(sigs)).
		Int("symbols", len(nets)).
		Int("positions", len(result.Positions)).
		Int("skipped", len(result.Skipped)).
		Str("sizing", string(policy)).
		Msg("Strategy completed")

	return result, nil
}
