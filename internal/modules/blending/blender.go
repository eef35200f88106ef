// Package blending builds one target portfolio from many strategies.
package blending

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sort"
	"time"

	"github.com/aristath/capitol/internal/config"
	"github.com/aristath/capitol/internal/domain"
	"github.com/aristath/capitol/internal/metrics"
	"github.com/aristath/capitol/internal/modules/sizing"
	"github.com/aristath/capitol/internal/modules/strategies"
	"github.com/rs/zerolog"
)

const (
	// weightSumTolerance is how far weights may drift from 1.0 before a warning
	weightSumTolerance = 0.01
	// DefaultFlagTTL is the cooldown for symbols that could not be priced
	DefaultFlagTTL = 7 * 24 * time.Hour
)

// StrategyRunner executes registered strategies
type StrategyRunner interface {
	Has(name domain.StrategyName) bool
	Build(ctx context.Context, name domain.StrategyName, allocatedEquity float64, params strategies.Params) (*strategies.Result, error)
}

// Options is the configuration bag of one blend
type Options struct {
	MergeStrategy    domain.MergeStrategy
	MaxPositionPct   float64
	MinPositionValue float64
	EnableShorts     bool
	StrategyParams   map[string]map[string]interface{}
}

// OptionsFromPortfolio extracts blend options from the portfolio config
func OptionsFromPortfolio(p *config.PortfolioConfig) Options {
	return Options{
		MergeStrategy:    p.MergeStrategy,
		MaxPositionPct:   p.MaxPositionPct,
		MinPositionValue: p.MinPositionValue,
		EnableShorts:     p.EnableShorts,
		StrategyParams:   p.StrategyParams,
	}
}

// StrategyFailure records a strategy that failed without aborting the blend
type StrategyFailure struct {
	Strategy string `json:"strategy"`
	Message  string `json:"error"`
	Err      error  `json:"-"`
}

func (f *StrategyFailure) Error() string {
	return fmt.Sprintf("strategy %s failed: %s", f.Strategy, f.Message)
}

func (f *StrategyFailure) Unwrap() error {
	return f.Err
}

// SkippedSymbol is a symbol a strategy could not size
type SkippedSymbol struct {
	Strategy string `json:"strategy"`
	sizing.SkippedSymbol
}

// Metadata describes a blended portfolio
type Metadata struct {
	GrossExposure       float64            `json:"gross_exposure"`
	NetExposure         float64            `json:"net_exposure"`
	LongCount           int                `json:"long_count"`
	ShortCount          int                `json:"short_count"`
	PositionsByStrategy map[string]int     `json:"positions_by_strategy"`
	CappedSymbols       []string           `json:"capped_symbols"`
	StrategiesSucceeded int                `json:"strategies_succeeded"`
	StrategiesFailed    int                `json:"strategies_failed"`
	Failures            []*StrategyFailure `json:"failures"`
	WeightSum           float64            `json:"weight_sum"`
	FilteredCount       int                `json:"filtered_count"`
	FilteredRatio       float64            `json:"filtered_ratio"`
	ShortsFiltered      int                `json:"shorts_filtered"`
	Skipped             []SkippedSymbol    `json:"skipped"`
	ExcludedUntradeable []string           `json:"excluded_untradeable"`
	Warnings            []string           `json:"warnings"`
}

// Result is the PortfolioBlender output
type Result struct {
	TotalEquity float64                 `json:"total_equity"`
	Positions   []domain.TargetPosition `json:"positions"`
	Metadata    Metadata                `json:"metadata"`
}

// Blender is the PortfolioBlender
type Blender struct {
	runner  StrategyRunner
	merger  *Merger
	flagger domain.UntradeableFlagger // Optional
	flagTTL time.Duration
	log     zerolog.Logger
}

// NewBlender creates a blender. flagger may be nil.
func NewBlender(runner StrategyRunner, flagger domain.UntradeableFlagger, log zerolog.Logger) *Blender {
	return &Blender{
		runner:  runner,
		merger:  NewMerger(log),
		flagger: flagger,
		flagTTL: DefaultFlagTTL,
		log:     log.With().Str("service", "portfolio_blender").Logger(),
	}
}

// Validate checks the blend inputs before any strategy runs
func (b *Blender) Validate(totalEquity float64, weights map[string]float64, opts Options) error {
	if len(weights) == 0 {
		return domain.ErrEmptyWeights
	}
	for name, w := range weights {
		if !b.runner.Has(domain.StrategyName(name)) {
			return fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, name)
		}
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("strategy %s has invalid weight %v", name, w)
		}
	}
	if !(opts.MaxPositionPct > 0 && opts.MaxPositionPct <= 1) {
		return fmt.Errorf("%w: got %v", domain.ErrInvalidCapFraction, opts.MaxPositionPct)
	}
	if _, err := domain.ParseMergeStrategy(string(opts.MergeStrategy)); err != nil {
		return err
	}
	if totalEquity < 0 || math.IsNaN(totalEquity) {
		return fmt.Errorf("total equity must be non-negative, got %v", totalEquity)
	}
	if opts.MinPositionValue < 0 {
		return fmt.Errorf("min position value must be non-negative, got %v", opts.MinPositionValue)
	}
	return nil
}

// Blend runs every strategy with weight > 0 on its equity slice, merges
// the results and applies risk controls. A failing strategy is recorded
// and the remaining strategies still run.
func (b *Blender) Blend(ctx context.Context, totalEquity float64, weights map[string]float64, opts Options) (*Result, error) {
	if err := b.Validate(totalEquity, weights, opts); err != nil {
		return nil, err
	}
	mergeStrategy, _ := domain.ParseMergeStrategy(string(opts.MergeStrategy))

	meta := Metadata{PositionsByStrategy: make(map[string]int)}
	for _, w := range weights {
		meta.WeightSum += w
	}
	if math.Abs(meta.WeightSum-1) > weightSumTolerance {
		b.log.Warn().Float64("weight_sum", meta.WeightSum).Msg("Strategy weights do not sum to 1.0")
		meta.Warnings = append(meta.Warnings, fmt.Sprintf("strategy weights sum to %.4f", meta.WeightSum))
	}

	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	var collected []domain.TargetPosition
	for _, name := range names {
		weight := weights[name]
		if weight <= 0 {
			continue
		}
		allocated := totalEquity * weight

		res, err := b.runStrategy(ctx, name, allocated, opts.StrategyParams[name])
		if err != nil {
			var failure *StrategyFailure
			if !errors.As(err, &failure) {
				failure = &StrategyFailure{Strategy: name, Message: err.Error(), Err: err}
			}
			meta.StrategiesFailed++
			meta.Failures = append(meta.Failures, failure)
			metrics.StrategyRuns.WithLabelValues(name, "failed").Inc()
			b.log.Error().Err(err).Str("strategy", name).Float64("allocated_equity", allocated).Msg("Strategy failed, continuing with remaining strategies")
			continue
		}

		meta.StrategiesSucceeded++
		metrics.StrategyRuns.WithLabelValues(name, "succeeded").Inc()
		for _, p := range res.Positions {
			if len(p.Details.Sources) == 0 {
				p.Details.Sources = []string{name}
				p.Details.ConsensusCount = 1
			}
			collected = append(collected, p)
		}
		meta.PositionsByStrategy[name] = len(res.Positions)
		for _, w := range res.Warnings {
			meta.Warnings = append(meta.Warnings, name+": "+w)
		}
		for _, s := range res.Skipped {
			meta.Skipped = append(meta.Skipped, SkippedSymbol{Strategy: name, SkippedSymbol: s})
			if s.Reason == sizing.SkipNoPriceData {
				b.flag(ctx, s.Symbol, s.Reason)
			}
		}
	}

	collected, meta.ExcludedUntradeable = b.excludeFlagged(ctx, collected)

	merged := b.merger.Merge(collected, MergeOptions{
		Strategy:         mergeStrategy,
		TotalEquity:      totalEquity,
		MaxPositionPct:   opts.MaxPositionPct,
		MinPositionValue: opts.MinPositionValue,
	})
	meta.CappedSymbols = merged.CappedSymbols
	meta.FilteredCount = merged.FilteredCount
	meta.FilteredRatio = merged.FilteredRatio

	positions := merged.Positions
	if !opts.EnableShorts {
		kept := positions[:0]
		for _, p := range positions {
			if p.IsShort() {
				meta.ShortsFiltered++
				continue
			}
			kept = append(kept, p)
		}
		positions = kept
	}

	for _, p := range positions {
		meta.GrossExposure += math.Abs(p.TargetValue)
		meta.NetExposure += p.TargetValue
		if p.IsShort() {
			meta.ShortCount++
		} else {
			meta.LongCount++
		}
	}
	metrics.GrossExposure.Set(meta.GrossExposure)

	b.log.Info().
		Float64("total_equity", totalEquity).
		Int("positions", len(positions)).
		Float64("gross_exposure", meta.GrossExposure).
		Float64("net_exposure", meta.NetExposure).
		Int("strategies_succeeded", meta.StrategiesSucceeded).
		Int("strategies_failed", meta.StrategiesFailed).
		Int("shorts_filtered", meta.ShortsFiltered).
		Msg("Portfolio blended")

	return &Result{TotalEquity: totalEquity, Positions: positions, Metadata: meta}, nil
}

// runStrategy executes one strategy and converts a panic into a failure
func (b *Blender) runStrategy(ctx context.Context, name string, allocated float64, params map[string]interface{}) (res *strategies.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("strategy", name).Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Strategy panicked")
			err = &StrategyFailure{Strategy: name, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()

	res, err = b.runner.Build(ctx, domain.StrategyName(name), allocated, strategies.Params(params))
	if err == nil && res == nil {
		err = errors.New("strategy returned no result")
	}
	return res, err
}

func (b *Blender) flag(ctx context.Context, symbol, reason string) {
	if b.flagger == nil {
		return
	}
	if err := b.flagger.Flag(ctx, symbol, reason, b.flagTTL); err != nil {
		b.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to flag symbol untradeable")
		return
	}
	metrics.UntradeableFlags.WithLabelValues(reason).Inc()
	b.log.Warn().Str("symbol", symbol).Str("reason", reason).Dur("ttl", b.flagTTL).Msg("Flagged symbol untradeable")
}

// excludeFlagged drops positions in symbols under an untradeable cooldown
func (b *Blender) excludeFlagged(ctx context.Context, positions []domain.TargetPosition) ([]domain.TargetPosition, []string) {
	if b.flagger == nil || len(positions) == 0 {
		return positions, nil
	}

	status := make(map[string]bool)
	var excluded []string
	kept := make([]domain.TargetPosition, 0, len(positions))
	for _, p := range positions {
		flagged, ok := status[p.Symbol]
		if !ok {
			var err error
			flagged, err = b.flagger.IsFlagged(ctx, p.Symbol)
			if err != nil {
				b.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("Untradeable lookup failed, keeping symbol")
				flagged = false
			}
			status[p.Symbol] = flagged
			if flagged {
				excluded = append(excluded, p.Symbol)
			}
		}
		if flagged {
			continue
		}
		kept = append(kept, p)
	}
	sort.Strings(excluded)
	return kept, excluded
}

// Flagged returns the sorted subset of symbols under an untradeable cooldown.
// Lookup failures count as not flagged.
func (b *Blender) Flagged(ctx context.Context, symbols []string) []string {
	if b.flagger == nil {
		return nil
	}
	var flagged []string
	for _, symbol := range symbols {
		ok, err := b.flagger.IsFlagged(ctx, symbol)
		if err != nil {
			b.log.Warn().Err(err).Str("symbol", symbol).Msg("Untradeable lookup failed, keeping symbol")
			continue
		}
		if ok {
			flagged = append(flagged, symbol)
		}
	}
	sort.Strings(flagged)
	return flagged
}
