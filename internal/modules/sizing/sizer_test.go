package sizing

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/aristath/capitol/internal/marketdata"
	"github.com/aristath/capitol/internal/modules/signals"
	testingpkg "github.com/aristath/capitol/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

func newTestSizer(broker *testingpkg.MockBrokerClient) *Sizer {
	history := marketdata.NewHistoryProvider(broker, nil, zerolog.Nop())
	s := NewSizer(history, broker, DefaultConfig(), zerolog.Nop())
	s.now = func() time.Time { return fixedNow }
	return s
}

func byHolding(positions []domain.TargetPosition) map[string]domain.TargetPosition {
	out := make(map[string]domain.TargetPosition, len(positions))
	for _, p := range positions {
		out[p.Symbol] = p
	}
	return out
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("volatility")
	require.NoError(t, err)
	assert.Equal(t, PolicyVolatility, p)

	_, err = ParsePolicy("kelly")
	assert.Error(t, err)
}

func TestSizer_WeightedPolicies(t *testing.T) {
	nets := []signals.NetSignal{
		{Symbol: "AAPL", NetStrength: 3},
		{Symbol: "MSFT", NetStrength: -1},
	}

	tests := []struct {
		policy Policy
		want   map[string]float64
	}{
		{PolicyQuality, map[string]float64{"AAPL": 7500, "MSFT": -2500}},
		{PolicyEqual, map[string]float64{"AAPL": 5000, "MSFT": -5000}},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			s := newTestSizer(testingpkg.NewMockBrokerClient())
			res, err := s.SizeNet(context.Background(), "congressional", nets, 10000, tt.policy)
			require.NoError(t, err)

			got := byHolding(res.Positions)
			require.Len(t, got, 2)
			total := 0.0
			for symbol, want := range tt.want {
				assert.InDelta(t, want, got[symbol].TargetValue, 1e-9)
				assert.Equal(t, []string{"congressional"}, got[symbol].Details.Sources)
				assert.Equal(t, 1, got[symbol].Details.ConsensusCount)
				total += abs(got[symbol].TargetValue)
			}
			assert.InDelta(t, 10000, total, 1e-9)
		})
	}
}

func TestSizer_VolatilityRiskInvariant(t *testing.T) {
	broker := testingpkg.NewMockBrokerClient()
	broker.SetBars("AAPL", testingpkg.FlatBars(25, 101, 99, 100, fixedNow))
	broker.SetBars("MSFT", testingpkg.FlatBars(25, 51, 49, 50, fixedNow))

	nets := []signals.NetSignal{
		{Symbol: "AAPL", NetStrength: 4},
		{Symbol: "MSFT", NetStrength: -2},
	}

	s := newTestSizer(broker)
	res, err := s.SizeNet(context.Background(), "insider", nets, 100000, PolicyVolatility)
	require.NoError(t, err)
	require.Len(t, res.Positions, 2)
	got := byHolding(res.Positions)

	// Strength 1.0 (max): risk at one ATR equals equity x risk fraction
	aapl := got["AAPL"]
	require.NotNil(t, aapl.Details.Risk)
	assert.Equal(t, 2.0, aapl.Details.Risk.ATR)
	assert.Equal(t, 500.0, aapl.Details.Risk.Shares)
	assert.InDelta(t, 100000*0.01, aapl.Details.Risk.RiskDollars, aapl.Details.Risk.ATR)
	assert.Equal(t, 50000.0, aapl.TargetValue)
	assert.Equal(t, 96.0, aapl.Details.Risk.ImpliedStop)
	assert.False(t, aapl.Details.Risk.ATRFallback)

	// Half strength, short
	msft := got["MSFT"]
	assert.Equal(t, 250.0, msft.Details.Risk.Shares)
	assert.Equal(t, -12500.0, msft.TargetValue)
	assert.Equal(t, 54.0, msft.Details.Risk.ImpliedStop)
	assert.True(t, msft.IsShort())
}

func TestSizer_ATRFallbackAndMissingPrice(t *testing.T) {
	broker := testingpkg.NewMockBrokerClient()
	broker.SetBars("SHRT", testingpkg.FlatBars(5, 51, 49, 50, fixedNow))
	broker.SetTradePrice("NOHIST", 20)

	nets := []signals.NetSignal{
		{Symbol: "SHRT", NetStrength: 1},
		{Symbol: "NOHIST", NetStrength: 1},
		{Symbol: "GHOST", NetStrength: 1},
	}

	s := newTestSizer(broker)
	res, err := s.SizeNet(context.Background(), "insider", nets, 100000, PolicyVolatility)
	require.NoError(t, err)
	got := byHolding(res.Positions)

	shrt := got["SHRT"]
	require.NotNil(t, shrt.Details.Risk)
	assert.True(t, shrt.Details.Risk.ATRFallback)
	assert.InDelta(t, 1.5, shrt.Details.Risk.ATR, 1e-12)
	assert.Equal(t, 666.0, shrt.Details.Risk.Shares)

	nohist := got["NOHIST"]
	require.NotNil(t, nohist.Details.Risk)
	assert.True(t, nohist.Details.Risk.ATRFallback)
	assert.Equal(t, 20.0, nohist.Details.Risk.Price)

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "GHOST", res.Skipped[0].Symbol)
	assert.Equal(t, SkipNoPriceData, res.Skipped[0].Reason)
	assert.NotContains(t, got, "GHOST")
}

func TestSizer_LimitsGrossToAllocation(t *testing.T) {
	broker := testingpkg.NewMockBrokerClient()
	broker.SetBars("BRK", testingpkg.FlatBars(25, 1001, 999, 1000, fixedNow))

	s := newTestSizer(broker)
	res, err := s.SizeNet(context.Background(), "insider", []signals.NetSignal{{Symbol: "BRK", NetStrength: 1}}, 10000, PolicyVolatility)
	require.NoError(t, err)
	require.Len(t, res.Positions, 1)

	p := res.Positions[0]
	assert.Equal(t, 10.0, p.Details.Risk.Shares)
	assert.Equal(t, 10000.0, p.TargetValue)
	assert.Equal(t, 20.0, p.Details.Risk.RiskDollars)
}

func TestSizer_DropsInvalidSymbols(t *testing.T) {
	s := newTestSizer(testingpkg.NewMockBrokerClient())
	nets := []signals.NetSignal{
		{Symbol: "AAPL", NetStrength: 1},
		{Symbol: "brk.b", NetStrength: 1},
	}

	res, err := s.SizeNet(context.Background(), "x", nets, 1000, PolicyEqual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, 1000.0, res.Positions[0].TargetValue)
}

func TestSizer_EmptyAndInvalidInput(t *testing.T) {
	s := newTestSizer(testingpkg.NewMockBrokerClient())

	res, err := s.SizeNet(context.Background(), "x", nil, 1000, PolicyVolatility)
	require.NoError(t, err)
	assert.Empty(t, res.Positions)

	_, err = s.SizeNet(context.Background(), "x", []signals.NetSignal{{Symbol: "A", NetStrength: 1}}, -1, PolicyEqual)
	assert.Error(t, err)

	_, err = s.SizeNet(context.Background(), "x", []signals.NetSignal{{Symbol: "A", NetStrength: 1}}, 1000, "kelly")
	assert.Error(t, err)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestSizer_CancelledSignalsGetNoSlot(t *testing.T) {
	s := newTestSizer(testingpkg.NewMockBrokerClient())
	nets, dropped := signals.Aggregate([]domain.TradeSignal{
		testingpkg.NewSignal("AAPL", domain.DirectionBuy, 0.1, "lobbying"),
		testingpkg.NewSignal("AAPL", domain.DirectionBuy, 0.2, "lobbying"),
		testingpkg.NewSignal("AAPL", domain.DirectionSell, 0.3, "lobbying"),
		testingpkg.NewSignal("MSFT", domain.DirectionBuy, 1, "lobbying"),
	})
	require.Zero(t, dropped)

	res, err := s.SizeNet(context.Background(), "lobbying", nets, 10000, PolicyEqual)
	require.NoError(t, err)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, "MSFT", res.Positions[0].Symbol)
	assert.Equal(t, 10000.0, res.Positions[0].TargetValue)
}
