package signals

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/shopspring/decimal"
)

// NetSignal is the per-symbol net of all signals in one strategy.
// NetStrength is positive for net buying and negative for net selling.
type NetSignal struct {
	Symbol      string
	NetStrength float64
	Count       int
	LatestAt    time.Time
	Provenance  []string
}

// Direction returns the side implied by the net strength
func (n NetSignal) Direction() domain.Direction {
	if n.NetStrength < 0 {
		return domain.DirectionSell
	}
	return domain.DirectionBuy
}

// Aggregate nets signals per symbol. Invalid signals are dropped and counted.
// Symbols whose buys and sells cancel exactly are omitted. The result is
// ordered by descending absolute strength, then symbol.
func Aggregate(signals []domain.TradeSignal) ([]NetSignal, int) {
	bySymbol := make(map[string]*NetSignal)
	net := make(map[string]decimal.Decimal)
	dropped := 0

	for _, s := range signals {
		if err := s.Validate(); err != nil {
			dropped++
			continue
		}
		n, ok := bySymbol[s.Symbol]
		if !ok {
			n = &NetSignal{Symbol: s.Symbol}
			bySymbol[s.Symbol] = n
		}
		net[s.Symbol] = net[s.Symbol].Add(decimal.NewFromFloat(s.SignedStrength()))
		n.Count++
		if s.ObservedAt.After(n.LatestAt) {
			n.LatestAt = s.ObservedAt
		}
		if s.Provenance != "" {
			n.Provenance = append(n.Provenance, s.Provenance)
		}
	}

	out := make([]NetSignal, 0, len(bySymbol))
	for symbol, n := range bySymbol {
		total := net[symbol]
		if total.IsZero() {
			continue
		}
		n.NetStrength = total.InexactFloat64()
		out = append(out, *n)
	}

	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].NetStrength), math.Abs(out[j].NetStrength)
		if ai != aj {
			return ai > aj
		}
		return out[i].Symbol < out[j].Symbol
	})

	return out, dropped
}

// Top returns at most n net signals (n <= 0 means all)
func Top(nets []NetSignal, n int) []NetSignal {
	if n <= 0 || n >= len(nets) {
		return nets
	}
	return nets[:n]
}
