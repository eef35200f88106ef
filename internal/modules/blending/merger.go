package blending

import (
	"math"
	"sort"

	"github.com/aristath/capitol/internal/domain"
	"github.com/aristath/capitol/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// filteredErrorRatio is the share of dropped positions above which the
// minimum value filter logs at error level
const filteredErrorRatio = 0.5

// MergeOptions controls PositionMerger
type MergeOptions struct {
	Strategy         domain.MergeStrategy
	TotalEquity      float64
	MaxPositionPct   float64
	MinPositionValue float64
}

// MergeResult is the merged portfolio plus filter statistics
type MergeResult struct {
	Positions     []domain.TargetPosition
	CappedSymbols []string
	FilteredCount int
	FilteredRatio float64
}

// Merger is the PositionMerger
type Merger struct {
	log zerolog.Logger
}

// NewMerger creates a merger
func NewMerger(log zerolog.Logger) *Merger {
	return &Merger{log: log.With().Str("service", "position_merger").Logger()}
}

// Merge collapses positions to one per symbol, caps each at
// TotalEquity*MaxPositionPct and drops those below MinPositionValue.
// Output is sorted by symbol.
func (m *Merger) Merge(positions []domain.TargetPosition, opts MergeOptions) MergeResult {
	var (
		order  []string
		groups = make(map[string][]domain.TargetPosition)
	)
	for _, p := range positions {
		if _, ok := groups[p.Symbol]; !ok {
			order = append(order, p.Symbol)
		}
		groups[p.Symbol] = append(groups[p.Symbol], p)
	}

	maxValue := opts.TotalEquity * opts.MaxPositionPct
	merged := make([]domain.TargetPosition, 0, len(order))
	var capped []string

	for _, symbol := range order {
		group := groups[symbol]
		combined := combine(group, opts.Strategy)

		value := combined
		wasCapped := false
		if math.Abs(combined) > maxValue {
			value = math.Copysign(maxValue, combined)
			wasCapped = true
			capped = append(capped, symbol)
		}

		merged = append(merged, domain.TargetPosition{
			Symbol:      symbol,
			AssetType:   group[0].AssetType,
			TargetValue: value,
			Details:     mergeDetails(group, combined, wasCapped),
		})
	}

	kept := make([]domain.TargetPosition, 0, len(merged))
	for _, p := range merged {
		if p.TargetValue == 0 || math.Abs(p.TargetValue) < opts.MinPositionValue {
			continue
		}
		kept = append(kept, p)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Symbol < kept[j].Symbol })
	sort.Strings(capped)

	result := MergeResult{
		Positions:     kept,
		CappedSymbols: capped,
		FilteredCount: len(merged) - len(kept),
	}
	if len(merged) > 0 {
		result.FilteredRatio = float64(result.FilteredCount) / float64(len(merged))
	}
	m.logFiltered(result, len(merged), opts)
	return result
}

func (m *Merger) logFiltered(r MergeResult, preFilter int, opts MergeOptions) {
	metrics.FilteredPositions.Set(r.FilteredRatio)

	event := m.log.Info()
	if r.FilteredRatio > filteredErrorRatio {
		event = m.log.Error()
	}
	event.
		Str("merge_strategy", string(opts.Strategy)).
		Int("input_symbols", preFilter).
		Int("filtered", r.FilteredCount).
		Float64("filtered_ratio", r.FilteredRatio).
		Float64("min_position_value", opts.MinPositionValue).
		Int("capped", len(r.CappedSymbols)).
		Int("kept", len(r.Positions))
	if r.FilteredRatio > filteredErrorRatio {
		event.Msg("Minimum position filter dropped most positions, check sizing and min_position_value")
		return
	}
	event.Msg("Merged positions")
}

// combine applies the merge rule. Ties under max go to the first position.
func combine(group []domain.TargetPosition, strategy domain.MergeStrategy) float64 {
	switch strategy {
	case domain.MergeMax:
		best := group[0].TargetValue
		for _, p := range group[1:] {
			if math.Abs(p.TargetValue) > math.Abs(best) {
				best = p.TargetValue
			}
		}
		return best
	case domain.MergeAverage:
		return sumOf(group, targetValue).Div(decimal.NewFromInt(int64(len(group)))).InexactFloat64()
	default:
		return sumOf(group, targetValue).InexactFloat64()
	}
}

func targetValue(p domain.TargetPosition) float64 { return p.TargetValue }

func strengthOf(p domain.TargetPosition) float64 { return p.Details.Strength }

// sumOf adds in decimal so the total does not depend on input order
func sumOf(group []domain.TargetPosition, value func(domain.TargetPosition) float64) decimal.Decimal {
	total := decimal.Zero
	for _, p := range group {
		total = total.Add(decimal.NewFromFloat(value(p)))
	}
	return total
}

func mergeDetails(group []domain.TargetPosition, combined float64, wasCapped bool) domain.PositionDetails {
	seen := make(map[string]struct{})
	var sources []string
	for _, p := range group {
		for _, s := range p.Details.Sources {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			sources = append(sources, s)
		}
	}

	details := domain.PositionDetails{
		Sources:        sources,
		ConsensusCount: len(group),
		PreCapValue:    combined,
		WasCapped:      wasCapped,
		Strength:       sumOf(group, strengthOf).InexactFloat64(),
	}
	if len(group) == 1 {
		details.Risk = group[0].Details.Risk
	}
	return details
}
