package blending

import (
	"math"
	"math/rand"
	"testing"

	"github.com/aristath/capitol/internal/domain"
	testingpkg "github.com/aristath/capitol/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mergeOpts(strategy domain.MergeStrategy) MergeOptions {
	return MergeOptions{
		Strategy:         strategy,
		TotalEquity:      100000,
		MaxPositionPct:   0.15,
		MinPositionValue: 100,
	}
}

func TestMerger_ConsensusAmplifiedThenCapped(t *testing.T) {
	m := NewMerger(zerolog.Nop())
	res := m.Merge([]domain.TargetPosition{
		testingpkg.NewTarget("AAPL", 10000, "A"),
		testingpkg.NewTarget("AAPL", 8000, "B"),
	}, mergeOpts(domain.MergeAdditive))

	require.Len(t, res.Positions, 1)
	p := res.Positions[0]
	assert.Equal(t, 15000.0, p.TargetValue)
	assert.Equal(t, 18000.0, p.Details.PreCapValue)
	assert.True(t, p.Details.WasCapped)
	assert.Equal(t, []string{"A", "B"}, p.Details.Sources)
	assert.Equal(t, 2, p.Details.ConsensusCount)
	assert.Equal(t, []string{"AAPL"}, res.CappedSymbols)
}

func TestMerger_Rules(t *testing.T) {
	input := []domain.TargetPosition{
		testingpkg.NewTarget("MSFT", 3000, "A"),
		testingpkg.NewTarget("MSFT", -5000, "B"),
		testingpkg.NewTarget("MSFT", 5000, "C"),
		testingpkg.NewTarget("NVDA", 2000, "A"),
	}

	tests := []struct {
		strategy domain.MergeStrategy
		msft     float64
	}{
		{domain.MergeAdditive, 3000},
		{domain.MergeMax, -5000}, // tie resolves to first encountered
		{domain.MergeAverage, 1000},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			res := NewMerger(zerolog.Nop()).Merge(input, mergeOpts(tt.strategy))
			require.Len(t, res.Positions, 2)
			assert.Equal(t, "MSFT", res.Positions[0].Symbol)
			assert.Equal(t, tt.msft, res.Positions[0].TargetValue)
			assert.Equal(t, 3, res.Positions[0].Details.ConsensusCount)
			assert.Equal(t, 2000.0, res.Positions[1].TargetValue)
			assert.Equal(t, 1, res.Positions[1].Details.ConsensusCount)
		})
	}
}

func TestMerger_CapPreservesSign(t *testing.T) {
	res := NewMerger(zerolog.Nop()).Merge([]domain.TargetPosition{
		testingpkg.NewTarget("TSLA", -40000, "A"),
	}, mergeOpts(domain.MergeAdditive))

	require.Len(t, res.Positions, 1)
	assert.Equal(t, -15000.0, res.Positions[0].TargetValue)
	assert.Equal(t, -40000.0, res.Positions[0].Details.PreCapValue)
}

func TestMerger_CapHoldsForAnyInput(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	symbols := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
	sources := []string{"congressional", "insider", "lobbying"}

	var input []domain.TargetPosition
	for i := 0; i < 60; i++ {
		value := float64(rng.Intn(60000) - 30000)
		input = append(input, testingpkg.NewTarget(symbols[rng.Intn(len(symbols))], value, sources[rng.Intn(len(sources))]))
	}

	for _, strategy := range []domain.MergeStrategy{domain.MergeAdditive, domain.MergeMax, domain.MergeAverage} {
		res := NewMerger(zerolog.Nop()).Merge(input, mergeOpts(strategy))
		for _, p := range res.Positions {
			assert.LessOrEqual(t, math.Abs(p.TargetValue), 15000.0+1e-9)
			assert.GreaterOrEqual(t, math.Abs(p.TargetValue), 100.0)
			assert.LessOrEqual(t, len(p.Details.Sources), len(sources))
		}
	}
}

func TestMerger_PermutationInvariant(t *testing.T) {
	input := []domain.TargetPosition{
		testingpkg.NewTarget("AAPL", 0.1, "A"),
		testingpkg.NewTarget("MSFT", 2500.15, "A"),
		testingpkg.NewTarget("AAPL", 0.2, "B"),
		testingpkg.NewTarget("NVDA", -700.7, "B"),
		testingpkg.NewTarget("AAPL", 0.3, "C"),
		testingpkg.NewTarget("MSFT", 1500.35, "C"),
		testingpkg.NewTarget("NVDA", 250.25, "C"),
	}
	strategies := []domain.MergeStrategy{domain.MergeAdditive, domain.MergeAverage, domain.MergeMax}

	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			opts := mergeOpts(strategy)
			opts.MinPositionValue = 0
			base := NewMerger(zerolog.Nop()).Merge(input, opts)

			rng := rand.New(rand.NewSource(1))
			for i := 0; i < 20; i++ {
				shuffled := append([]domain.TargetPosition(nil), input...)
				rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

				res := NewMerger(zerolog.Nop()).Merge(shuffled, opts)
				require.Len(t, res.Positions, len(base.Positions))
				for j := range base.Positions {
					assert.Equal(t, base.Positions[j].Symbol, res.Positions[j].Symbol)
					assert.Equal(t, base.Positions[j].TargetValue, res.Positions[j].TargetValue)
					assert.Equal(t, base.Positions[j].Details.PreCapValue, res.Positions[j].Details.PreCapValue)
					assert.ElementsMatch(t, base.Positions[j].Details.Sources, res.Positions[j].Details.Sources)
				}
			}
		})
	}

	opts := mergeOpts(domain.MergeAdditive)
	opts.MinPositionValue = 0
	forward := NewMerger(zerolog.Nop()).Merge(input[:5], opts)
	reversed := NewMerger(zerolog.Nop()).Merge([]domain.TargetPosition{input[4], input[2], input[0]}, opts)
	require.NotEmpty(t, forward.Positions)
	require.Len(t, reversed.Positions, 1)
	assert.Equal(t, 0.6, forward.Positions[0].TargetValue)
	assert.Equal(t, 0.6, reversed.Positions[0].TargetValue)
}

func TestMerger_MaxTieGoesToFirst(t *testing.T) {
	long := testingpkg.NewTarget("NVDA", 500, "A")
	short := testingpkg.NewTarget("NVDA", -500, "B")

	first := NewMerger(zerolog.Nop()).Merge([]domain.TargetPosition{long, short}, mergeOpts(domain.MergeMax))
	require.Len(t, first.Positions, 1)
	assert.Equal(t, 500.0, first.Positions[0].TargetValue)

	second := NewMerger(zerolog.Nop()).Merge([]domain.TargetPosition{short, long}, mergeOpts(domain.MergeMax))
	require.Len(t, second.Positions, 1)
	assert.Equal(t, -500.0, second.Positions[0].TargetValue)
	assert.Equal(t, 2, second.Positions[0].Details.ConsensusCount)
}

func TestMerger_MinimumFilter(t *testing.T) {
	res := NewMerger(zerolog.Nop()).Merge([]domain.TargetPosition{
		testingpkg.NewTarget("AAA", 50, "A"),
		testingpkg.NewTarget("BBB", -99.99, "A"),
		testingpkg.NewTarget("CCC", 100, "A"),
		testingpkg.NewTarget("DDD", 300, "A"),
		testingpkg.NewTarget("DDD", -300, "B"),
	}, mergeOpts(domain.MergeAdditive))

	require.Len(t, res.Positions, 1)
	assert.Equal(t, "CCC", res.Positions[0].Symbol)
	assert.Equal(t, 3, res.FilteredCount)
	assert.InDelta(t, 0.75, res.FilteredRatio, 1e-12)
}

func TestMerger_SingleSourceKeepsRisk(t *testing.T) {
	p := testingpkg.NewTarget("AAPL", 5000, "insider")
	p.Details.Risk = &domain.RiskMetadata{ATR: 2, Price: 100, Shares: 50}

	res := NewMerger(zerolog.Nop()).Merge([]domain.TargetPosition{p}, mergeOpts(domain.MergeAdditive))
	require.Len(t, res.Positions, 1)
	assert.Equal(t, p.Details.Risk, res.Positions[0].Details.Risk)
	assert.False(t, res.Positions[0].Details.WasCapped)
}
