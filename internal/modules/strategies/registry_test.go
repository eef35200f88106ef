package strategies

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/aristath/capitol/internal/modules/signals"
	"github.com/aristath/capitol/internal/modules/sizing"
	testingpkg "github.com/aristath/capitol/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	signals     map[domain.StrategyName][]domain.TradeSignal
	err         error
	lastSince   time.Time
	lastMinimum float64
}

func (f *fakeSource) Signals(ctx context.Context, strategy domain.StrategyName, since time.Time, minStrength float64) ([]domain.TradeSignal, error) {
	f.lastSince = since
	f.lastMinimum = minStrength
	if f.err != nil {
		return nil, f.err
	}
	return f.signals[strategy], nil
}

type recordingSizer struct {
	equity float64
	policy sizing.Policy
	nets   []signals.NetSignal
}

func (r *recordingSizer) SizeNet(ctx context.Context, strategy string, nets []signals.NetSignal, equity float64, policy sizing.Policy) (*sizing.Result, error) {
	r.equity, r.policy, r.nets = equity, policy, nets
	positions := make([]domain.TargetPosition, 0, len(nets))
	for _, n := range nets {
		positions = append(positions, testingpkg.NewTarget(n.Symbol, n.NetStrength, strategy))
	}
	return &sizing.Result{Positions: positions}, nil
}

func TestRegistry_DefaultStrategies(t *testing.T) {
	r := NewDefaultRegistry(&fakeSource{}, &recordingSizer{}, zerolog.Nop())

	assert.Equal(t, []domain.StrategyName{Congressional, Insider, Lobbying}, r.Names())
	assert.True(t, r.Has(Insider))
	assert.False(t, r.Has("momentum"))

	weights := r.DefaultWeights()
	assert.InDelta(t, 1.0, weights["congressional"]+weights["insider"]+weights["lobbying"], 1e-9)

	for _, a := range r.Allocations() {
		assert.NotEmpty(t, a.AcceptedParams, a.Name)
	}
}

func TestRegistry_UnknownStrategyFailsClosed(t *testing.T) {
	r := NewDefaultRegistry(&fakeSource{}, &recordingSizer{}, zerolog.Nop())

	_, err := r.Build(context.Background(), "momentum", 1000, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
}

func TestRegistry_BuildMergesAllocatedEquity(t *testing.T) {
	source := &fakeSource{signals: map[domain.StrategyName][]domain.TradeSignal{
		Insider: {
			testingpkg.NewSignal("AAPL", domain.DirectionBuy, 2, "insider"),
			testingpkg.NewSignal("bad", domain.DirectionBuy, 2, "insider"),
		},
	}}
	sizer := &recordingSizer{}
	r := NewDefaultRegistry(source, sizer, zerolog.Nop())

	params := Params{ParamMinStrength: 0.5}
	res, err := r.Build(context.Background(), Insider, 30000, params)
	require.NoError(t, err)

	assert.Equal(t, 30000.0, sizer.equity)
	assert.Equal(t, sizing.PolicyVolatility, sizer.policy)
	assert.Equal(t, 0.5, source.lastMinimum)
	assert.NotContains(t, params, ParamAllocatedEquity, "caller params are not mutated")
	require.Len(t, res.Positions, 1)
	assert.Len(t, res.Warnings, 1)
}

func TestRegistry_StrategyErrorIsDistinct(t *testing.T) {
	source := &fakeSource{err: errors.New("database is locked")}
	r := NewDefaultRegistry(source, &recordingSizer{}, zerolog.Nop())

	_, err := r.Build(context.Background(), Congressional, 1000, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrUnknownStrategy)
}

func TestSignalStrategy_Parameters(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var sigs []domain.TradeSignal
	for _, s := range []string{"AAA", "BBB", "CCC", "DDD"} {
		sigs = append(sigs, testingpkg.NewSignal(s, domain.DirectionBuy, float64(len(sigs)+1), "lobbying"))
	}
	source := &fakeSource{signals: map[domain.StrategyName][]domain.TradeSignal{Lobbying: sigs}}
	sizer := &recordingSizer{}

	r := NewDefaultRegistry(source, sizer, zerolog.Nop())
	r.strategies[Lobbying].(*SignalStrategy).now = func() time.Time { return now }

	tests := []struct {
		name       string
		params     Params
		wantSince  time.Time
		wantPolicy sizing.Policy
		wantNets   []string
		wantErr    bool
	}{
		{
			name:       "defaults",
			params:     nil,
			wantSince:  now.AddDate(0, 0, -90),
			wantPolicy: sizing.PolicyEqual,
			wantNets:   []string{"DDD", "CCC", "BBB", "AAA"},
		},
		{
			name:       "yaml ints and overrides",
			params:     Params{ParamLookbackDays: 10, ParamTopN: 2, ParamSizing: "quality"},
			wantSince:  now.AddDate(0, 0, -10),
			wantPolicy: sizing.PolicyQuality,
			wantNets:   []string{"DDD", "CCC"},
		},
		{name: "bad policy", params: Params{ParamSizing: "kelly"}, wantErr: true},
		{name: "fractional lookback", params: Params{ParamLookbackDays: 1.5}, wantErr: true},
		{name: "negative lookback", params: Params{ParamLookbackDays: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Build(context.Background(), Lobbying, 1000, tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSince, source.lastSince)
			assert.Equal(t, tt.wantPolicy, sizer.policy)

			got := make([]string, len(sizer.nets))
			for i, n := range sizer.nets {
				got[i] = n.Symbol
			}
			assert.Equal(t, tt.wantNets, got)
		})
	}
}

func TestParams_Float(t *testing.T) {
	p := Params{"a": 3, "b": 2.5, "c": "1.25", "d": true}

	v, err := p.Float("a", 0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = p.Float("c", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.25, v)

	v, err = p.Float("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	_, err = p.Float("d", 0)
	assert.Error(t, err)
}
