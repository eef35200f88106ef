// Package rebalancing converges a brokerage account on a blended target portfolio.
package rebalancing

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DustQuantity is the share count below which a position is treated as
	// a split or reinvestment artifact and closed outright
	DustQuantity = 1e-8
	// MinNegligibleDelta is the floor of the no-trade band in dollars
	MinNegligibleDelta = 1.0
)

// OrderReason tags why an order intent was generated
type OrderReason string

const (
	ReasonNewPosition OrderReason = "new_position"
	ReasonIncrease    OrderReason = "increase"
	ReasonDecrease    OrderReason = "decrease"
	ReasonFullClose   OrderReason = "full_close"
	ReasonDustCleanup OrderReason = "dust_cleanup"
)

// IsClose reports whether the intent uses the close-position primitive
func (r OrderReason) IsClose() bool {
	return r == ReasonFullClose || r == ReasonDustCleanup
}

// OrderIntent is one planned order. Notional is set for new/increase/decrease
// intents; closes carry the held quantity for accounting only.
type OrderIntent struct {
	Symbol         string           `json:"symbol"`
	Side           domain.OrderSide `json:"side"`
	Reason         OrderReason      `json:"reason"`
	Notional       float64          `json:"notional,omitempty"`
	Qty            float64          `json:"qty,omitempty"`
	CurrentValue   float64          `json:"current_value"`
	TargetValue    float64          `json:"target_value"`
	CancelOrderIDs []string         `json:"cancel_order_ids,omitempty"`
}

// RebalancePlan is the ordered list of intents for one cycle
type RebalancePlan struct {
	CycleID   string        `json:"cycle_id"`
	CreatedAt time.Time     `json:"created_at"`
	Equity    float64       `json:"equity"`
	Orders    []OrderIntent `json:"orders"`
	Frozen    []string      `json:"frozen,omitempty"`
}

// PlannerConfig controls the no-trade band and short handling
type PlannerConfig struct {
	MinTradeValue float64
	AllowShorts   bool
}

// Planner diffs targets against an account snapshot. It performs no I/O.
type Planner struct {
	cfg PlannerConfig
	now func() time.Time
	log zerolog.Logger
}

// NewPlanner creates a planner
func NewPlanner(cfg PlannerConfig, log zerolog.Logger) *Planner {
	return &Planner{
		cfg: cfg,
		now: time.Now,
		log: log.With().Str("service", "rebalance_planner").Logger(),
	}
}

// threshold is the absolute dollar delta below which no order is emitted
func (p *Planner) threshold() float64 {
	return math.Max(MinNegligibleDelta, p.cfg.MinTradeValue)
}

// Plan emits at most one intent per symbol. Sells come before buys and
// symbols are sorted within each side. Frozen symbols are left untouched,
// whatever their target or holding.
func (p *Planner) Plan(targets []domain.TargetPosition, snapshot domain.AccountSnapshot, frozen ...string) *RebalancePlan {
	threshold := p.threshold()
	positions := snapshot.PositionsBySymbol()
	openOrders := snapshot.OpenOrdersBySymbol()

	targetValues := make(map[string]float64, len(targets))
	for _, t := range targets {
		value := t.TargetValue
		if value < 0 && !p.cfg.AllowShorts {
			value = 0
		}
		targetValues[t.Symbol] += value
	}

	symbols := make(map[string]struct{}, len(targetValues)+len(positions))
	for s := range targetValues {
		symbols[s] = struct{}{}
	}
	for s := range positions {
		symbols[s] = struct{}{}
	}

	plan := &RebalancePlan{
		CycleID:   uuid.NewString(),
		CreatedAt: p.now().UTC(),
		Equity:    snapshot.Equity,
	}

	skip := make(map[string]struct{}, len(frozen))
	for _, s := range frozen {
		skip[s] = struct{}{}
	}

	for symbol := range symbols {
		if _, ok := skip[symbol]; ok {
			plan.Frozen = append(plan.Frozen, symbol)
			continue
		}
		target := targetValues[symbol]
		pos, held := positions[symbol]

		intent, ok := p.intentFor(symbol, target, pos, held, threshold)
		if !ok {
			continue
		}
		for _, o := range openOrders[symbol] {
			intent.CancelOrderIDs = append(intent.CancelOrderIDs, o.OrderID)
		}
		plan.Orders = append(plan.Orders, intent)
	}

	sort.Strings(plan.Frozen)
	sort.Slice(plan.Orders, func(i, j int) bool {
		a, b := plan.Orders[i], plan.Orders[j]
		if a.Side != b.Side {
			return a.Side == domain.OrderSideSell
		}
		return a.Symbol < b.Symbol
	})

	counts := make(map[OrderReason]int)
	for _, o := range plan.Orders {
		counts[o.Reason]++
	}
	p.log.Info().
		Str("cycle_id", plan.CycleID).
		Int("targets", len(targets)).
		Int("positions", len(snapshot.Positions)).
		Int("orders", len(plan.Orders)).
		Int("new", counts[ReasonNewPosition]).
		Int("increase", counts[ReasonIncrease]).
		Int("decrease", counts[ReasonDecrease]).
		Int("full_close", counts[ReasonFullClose]).
		Int("dust", counts[ReasonDustCleanup]).
		Strs("frozen", plan.Frozen).
		Msg("Rebalance plan built")

	return plan
}

func (p *Planner) intentFor(symbol string, target float64, pos domain.BrokerPosition, held bool, threshold float64) (OrderIntent, bool) {
	intent := OrderIntent{Symbol: symbol, TargetValue: target}

	if held && pos.Quantity < DustQuantity {
		intent.Reason = ReasonDustCleanup
		intent.Side = closingSide(pos)
		intent.Qty = pos.Quantity
		intent.CurrentValue = pos.MarketValue
		return intent, true
	}

	if !held {
		if math.Abs(target) < threshold {
			return intent, false
		}
		intent.Reason = ReasonNewPosition
		intent.Side = sideFor(target)
		intent.Notional = math.Abs(target)
		return intent, true
	}

	current := pos.MarketValue
	intent.CurrentValue = current

	if math.Abs(target) < threshold {
		intent.Reason = ReasonFullClose
		intent.Side = closingSide(pos)
		intent.Qty = pos.Quantity
		return intent, true
	}

	delta := target - current
	if math.Abs(delta) < threshold {
		return intent, false
	}

	intent.Side = sideFor(delta)
	intent.Notional = math.Abs(delta)
	if math.Signbit(delta) == math.Signbit(current) {
		intent.Reason = ReasonIncrease
	} else {
		intent.Reason = ReasonDecrease
	}
	return intent, true
}

func sideFor(delta float64) domain.OrderSide {
	if delta < 0 {
		return domain.OrderSideSell
	}
	return domain.OrderSideBuy
}

func closingSide(pos domain.BrokerPosition) domain.OrderSide {
	if pos.Side == domain.PositionSideShort {
		return domain.OrderSideBuy
	}
	return domain.OrderSideSell
}
