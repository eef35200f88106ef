package blending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/aristath/capitol/internal/modules/sizing"
	"github.com/aristath/capitol/internal/modules/strategies"
	testingpkg "github.com/aristath/capitol/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runFunc func(equity float64, params strategies.Params) (*strategies.Result, error)

type fakeRunner struct {
	funcs map[domain.StrategyName]runFunc
	calls []domain.StrategyName
}

func (f *fakeRunner) Has(name domain.StrategyName) bool {
	_, ok := f.funcs[name]
	return ok
}

func (f *fakeRunner) Build(ctx context.Context, name domain.StrategyName, equity float64, params strategies.Params) (*strategies.Result, error) {
	f.calls = append(f.calls, name)
	return f.funcs[name](equity, params)
}

type memoryFlagger struct {
	mu      sync.Mutex
	flagged map[string]string
}

func newMemoryFlagger() *memoryFlagger {
	return &memoryFlagger{flagged: make(map[string]string)}
}

func (m *memoryFlagger) Flag(ctx context.Context, symbol, reason string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flagged[symbol] = reason
	return nil
}

func (m *memoryFlagger) IsFlagged(ctx context.Context, symbol string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.flagged[symbol]
	return ok, nil
}

func fixed(positions ...domain.TargetPosition) runFunc {
	return func(float64, strategies.Params) (*strategies.Result, error) {
		return &strategies.Result{Positions: positions}, nil
	}
}

func defaultOptions() Options {
	return Options{
		MergeStrategy:    domain.MergeAdditive,
		MaxPositionPct:   0.15,
		MinPositionValue: 100,
	}
}

func TestBlender_ValidationFailsBeforeAnyStrategyRuns(t *testing.T) {
	runner := &fakeRunner{funcs: map[domain.StrategyName]runFunc{"A": fixed()}}
	b := NewBlender(runner, nil, zerolog.Nop())

	tests := []struct {
		name    string
		weights map[string]float64
		mutate  func(*Options)
		wantErr error
	}{
		{name: "empty weights", weights: map[string]float64{}, wantErr: domain.ErrEmptyWeights},
		{name: "unknown strategy", weights: map[string]float64{"A": 0.5, "momentum": 0.5}, wantErr: domain.ErrUnknownStrategy},
		{name: "zero cap", weights: map[string]float64{"A": 1}, mutate: func(o *Options) { o.MaxPositionPct = 0 }, wantErr: domain.ErrInvalidCapFraction},
		{name: "cap above one", weights: map[string]float64{"A": 1}, mutate: func(o *Options) { o.MaxPositionPct = 1.5 }, wantErr: domain.ErrInvalidCapFraction},
		{name: "bad merge", weights: map[string]float64{"A": 1}, mutate: func(o *Options) { o.MergeStrategy = "median" }, wantErr: domain.ErrInvalidMergeStrategy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			if tt.mutate != nil {
				tt.mutate(&opts)
			}
			_, err := b.Blend(context.Background(), 100000, tt.weights, opts)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, runner.calls)
		})
	}
}

func TestBlender_AllocatesEquityByWeight(t *testing.T) {
	got := make(map[string]float64)
	record := func(name string) runFunc {
		return func(equity float64, params strategies.Params) (*strategies.Result, error) {
			got[name] = equity
			assert.Equal(t, 30, params["lookback_days"])
			return &strategies.Result{}, nil
		}
	}
	runner := &fakeRunner{funcs: map[domain.StrategyName]runFunc{
		"A": record("A"), "B": record("B"), "C": record("C"),
	}}
	b := NewBlender(runner, nil, zerolog.Nop())

	opts := defaultOptions()
	opts.StrategyParams = map[string]map[string]interface{}{
		"A": {"lookback_days": 30}, "B": {"lookback_days": 30},
		"C": {"lookback_days": 30},
	}

	res, err := b.Blend(context.Background(), 100000, map[string]float64{"A": 0.5, "B": 0.3, "C": 0}, opts)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"A": 50000, "B": 30000}, got)
	assert.Equal(t, 2, res.Metadata.StrategiesSucceeded)
	assert.InDelta(t, 0.8, res.Metadata.WeightSum, 1e-12)
	require.Len(t, res.Metadata.Warnings, 1, "weights off by more than 0.01")
}

func TestBlender_PartialFailureContinues(t *testing.T) {
	runner := &fakeRunner{funcs: map[domain.StrategyName]runFunc{
		"A": fixed(testingpkg.NewTarget("AAPL", 10000, "A")),
		"B": func(float64, strategies.Params) (*strategies.Result, error) {
			return nil, errors.New("vendor API returned 500")
		},
		"C": func(float64, strategies.Params) (*strategies.Result, error) {
			panic("nil map")
		},
		"D": fixed(testingpkg.NewTarget("MSFT", 5000, "D")),
	}}
	b := NewBlender(runner, nil, zerolog.Nop())

	res, err := b.Blend(context.Background(), 100000, map[string]float64{"A": 0.25, "B": 0.25, "C": 0.25, "D": 0.25}, defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Metadata.StrategiesSucceeded)
	assert.Equal(t, 2, res.Metadata.StrategiesFailed)
	require.Len(t, res.Metadata.Failures, 2)
	assert.Equal(t, "B", res.Metadata.Failures[0].Strategy)
	assert.Contains(t, res.Metadata.Failures[1].Message, "panic")
	assert.Len(t, res.Positions, 2)
	assert.Equal(t, map[string]int{"A": 1, "D": 1}, res.Metadata.PositionsByStrategy)
}

func TestBlender_ConsensusCapAndExposure(t *testing.T) {
	runner := &fakeRunner{funcs: map[domain.StrategyName]runFunc{
		"A": fixed(testingpkg.NewTarget("AAPL", 10000, "A"), testingpkg.NewTarget("TSLA", -4000, "A")),
		"B": fixed(testingpkg.NewTarget("AAPL", 8000, "B")),
	}}
	b := NewBlender(runner, nil, zerolog.Nop())

	opts := defaultOptions()
	opts.EnableShorts = true
	res, err := b.Blend(context.Background(), 100000, map[string]float64{"A": 0.5, "B": 0.5}, opts)
	require.NoError(t, err)

	require.Len(t, res.Positions, 2)
	aapl := res.Positions[0]
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.Equal(t, 15000.0, aapl.TargetValue)
	assert.Equal(t, 18000.0, aapl.Details.PreCapValue)
	assert.Equal(t, []string{"A", "B"}, aapl.Details.Sources)

	assert.Equal(t, []string{"AAPL"}, res.Metadata.CappedSymbols)
	assert.Equal(t, 19000.0, res.Metadata.GrossExposure)
	assert.Equal(t, 11000.0, res.Metadata.NetExposure)
	assert.Equal(t, 1, res.Metadata.LongCount)
	assert.Equal(t, 1, res.Metadata.ShortCount)
}

func TestBlender_ShortsFilteredWhenDisabled(t *testing.T) {
	runner := &fakeRunner{funcs: map[domain.StrategyName]runFunc{
		"A": fixed(testingpkg.NewTarget("AAPL", 1000, "A"), testingpkg.NewTarget("TSLA", -4000, "A")),
	}}
	res, err := NewBlender(runner, nil, zerolog.Nop()).Blend(context.Background(), 100000, map[string]float64{"A": 1}, defaultOptions())
	require.NoError(t, err)

	require.Len(t, res.Positions, 1)
	assert.Equal(t, "AAPL", res.Positions[0].Symbol)
	assert.Equal(t, 1, res.Metadata.ShortsFiltered)
	assert.Equal(t, 0, res.Metadata.ShortCount)
}

func TestBlender_FlagsUnpricedAndExcludesFlagged(t *testing.T) {
	flagger := newMemoryFlagger()
	flagger.flagged["DELIST"] = "invalid_symbol"

	runner := &fakeRunner{funcs: map[domain.StrategyName]runFunc{
		"A": func(float64, strategies.Params) (*strategies.Result, error) {
			return &strategies.Result{
				Positions: []domain.TargetPosition{
					testingpkg.NewTarget("AAPL", 1000, "A"),
					testingpkg.NewTarget("DELIST", 1000, "A"),
				},
				Skipped: []sizing.SkippedSymbol{
					{Symbol: "ILLQ", Reason: sizing.SkipNoPriceData},
					{Symbol: "PENNY", Reason: sizing.SkipZeroShares},
				},
			}, nil
		},
	}}
	b := NewBlender(runner, flagger, zerolog.Nop())

	res, err := b.Blend(context.Background(), 100000, map[string]float64{"A": 1}, defaultOptions())
	require.NoError(t, err)

	require.Len(t, res.Positions, 1)
	assert.Equal(t, "AAPL", res.Positions[0].Symbol)
	assert.Equal(t, []string{"DELIST"}, res.Metadata.ExcludedUntradeable)
	assert.Equal(t, sizing.SkipNoPriceData, flagger.flagged["ILLQ"])
	assert.NotContains(t, flagger.flagged, "PENNY")
	require.Len(t, res.Metadata.Skipped, 2)
	assert.Equal(t, "A", res.Metadata.Skipped[0].Strategy)
}
