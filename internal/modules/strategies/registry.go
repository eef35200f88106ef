// Package strategies holds the strategy registry and the signal-driven strategies.
package strategies

import (
	"context"
	"fmt"
	"sort"

	"github.com/aristath/capitol/internal/domain"
	"github.com/aristath/capitol/internal/modules/sizing"
	"github.com/rs/zerolog"
)

// Registered strategy names
const (
	Congressional domain.StrategyName = "congressional"
	Insider       domain.StrategyName = "insider"
	Lobbying      domain.StrategyName = "lobbying"
)

// Result is what a strategy produces for one cycle
type Result struct {
	Positions []domain.TargetPosition `json:"positions"`
	Skipped   []sizing.SkippedSymbol  `json:"skipped"`
	Warnings  []string                `json:"warnings"`
}

// Strategy is an executable unit in the registry
type Strategy interface {
	Allocation() domain.StrategyAllocation
	Run(ctx context.Context, params Params) (*Result, error)
}

// Registry maps strategy names to executables. It has no business logic.
type Registry struct {
	strategies map[domain.StrategyName]Strategy
}

// NewRegistry creates a registry from the given strategies
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[domain.StrategyName]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Allocation().Name] = s
	}
	return r
}

// NewDefaultRegistry registers the congressional, insider and lobbying strategies
func NewDefaultRegistry(source domain.SignalSource, sizer Sizer, log zerolog.Logger) *Registry {
	return NewRegistry(
		NewSignalStrategy(domain.StrategyAllocation{
			Name:           Congressional,
			Description:    "Mimics recent congressional stock trades weighted by trade quality",
			Frequency:      domain.FrequencyDaily,
			AcceptedParams: []string{ParamLookbackDays, ParamMinStrength, ParamSizing},
			DefaultWeight:  0.5,
		}, Defaults{LookbackDays: 45, Sizing: sizing.PolicyQuality}, source, sizer, log),

		NewSignalStrategy(domain.StrategyAllocation{
			Name:           Insider,
			Description:    "Follows corporate insider open-market purchases and sales",
			Frequency:      domain.FrequencyDaily,
			AcceptedParams: []string{ParamLookbackDays, ParamMinStrength, ParamSizing},
			DefaultWeight:  0.3,
		}, Defaults{LookbackDays: 30, Sizing: sizing.PolicyVolatility}, source, sizer, log),

		NewSignalStrategy(domain.StrategyAllocation{
			Name:           Lobbying,
			Description:    "Equal-weights the companies with the highest lobbying intensity",
			Frequency:      domain.FrequencyQuarterly,
			AcceptedParams: []string{ParamLookbackDays, ParamMinStrength, ParamTopN, ParamSizing},
			DefaultWeight:  0.2,
		}, Defaults{LookbackDays: 90, TopN: 20, Sizing: sizing.PolicyEqual}, source, sizer, log),
	)
}

// Has reports whether a strategy is registered
func (r *Registry) Has(name domain.StrategyName) bool {
	_, ok := r.strategies[name]
	return ok
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []domain.StrategyName {
	names := make([]domain.StrategyName, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Allocations returns the static configuration of every registered strategy
func (r *Registry) Allocations() []domain.StrategyAllocation {
	names := r.Names()
	out := make([]domain.StrategyAllocation, 0, len(names))
	for _, name := range names {
		out = append(out, r.strategies[name].Allocation())
	}
	return out
}

// DefaultWeights returns the registered default weights keyed by name
func (r *Registry) DefaultWeights() map[string]float64 {
	out := make(map[string]float64, len(r.strategies))
	for name, s := range r.strategies {
		out[string(name)] = s.Allocation().DefaultWeight
	}
	return out
}

// Build runs a registered strategy with allocatedEquity merged into params.
// An unregistered name fails with domain.ErrUnknownStrategy; errors from the
// strategy itself are returned as-is for the caller to contain.
func (r *Registry) Build(ctx context.Context, name domain.StrategyName, allocatedEquity float64, params Params) (*Result, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, name)
	}
	return s.Run(ctx, params.with(ParamAllocatedEquity, allocatedEquity))
}
