package rebalancing

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/aristath/capitol/internal/marketdata"
	"github.com/aristath/capitol/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Order outcome statuses
const (
	StatusSubmitted = "submitted"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// OrderResult is the outcome of one intent
type OrderResult struct {
	Intent      OrderIntent               `json:"intent"`
	Status      string                    `json:"status"`
	OrderID     string                    `json:"order_id,omitempty"`
	Notional    float64                   `json:"notional,omitempty"`
	Qty         float64                   `json:"qty,omitempty"`
	Fallback    bool                      `json:"whole_share_fallback,omitempty"`
	PriceSource marketdata.PriceSource    `json:"price_source,omitempty"`
	Rejection   domain.RejectionKind      `json:"rejection,omitempty"`
	FlagReason  string                    `json:"flag_reason,omitempty"`
	Error       string                    `json:"error,omitempty"`
	Cancelled   []string                  `json:"cancelled_orders,omitempty"`
	Broker      *domain.BrokerOrderResult `json:"-"`
}

// ExecutionReport summarises one executed plan
type ExecutionReport struct {
	CycleID    string        `json:"cycle_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Submitted  int           `json:"submitted"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Flagged    int           `json:"flagged"`
	Cancelled  int           `json:"cancelled"`
	Results    []OrderResult `json:"results"`
}

// detailFlagger is implemented by flaggers that keep a free-text detail
type detailFlagger interface {
	FlagWithDetail(ctx context.Context, symbol, reason, detail string, ttl time.Duration) error
}

// Executor submits a plan to the brokerage, one order at a time
type Executor struct {
	broker  domain.BrokerClient
	flagger domain.UntradeableFlagger // Optional
	flagTTL time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewExecutor creates an executor. flagger may be nil.
func NewExecutor(broker domain.BrokerClient, flagger domain.UntradeableFlagger, log zerolog.Logger) *Executor {
	return &Executor{
		broker:  broker,
		flagger: flagger,
		flagTTL: DefaultFlagTTL,
		now:     time.Now,
		log:     log.With().Str("service", "rebalance_executor").Logger(),
	}
}

// Execute submits every intent in order. A failing symbol is recorded and
// the remaining intents are still attempted. Orders are never retried
// except through the whole-share fallback.
func (e *Executor) Execute(ctx context.Context, plan *RebalancePlan) *ExecutionReport {
	report := &ExecutionReport{
		CycleID:   plan.CycleID,
		StartedAt: e.now().UTC(),
	}

	for _, intent := range plan.Orders {
		result := e.executeIntent(ctx, intent)

		switch result.Status {
		case StatusSubmitted:
			report.Submitted++
		case StatusFailed:
			report.Failed++
		case StatusSkipped:
			report.Skipped++
		}
		if result.FlagReason != "" {
			report.Flagged++
		}
		report.Cancelled += len(result.Cancelled)
		metrics.OrdersTotal.WithLabelValues(string(intent.Side), result.Status).Inc()
		if result.Rejection != "" {
			metrics.OrderRejections.WithLabelValues(string(result.Rejection)).Inc()
		}

		report.Results = append(report.Results, result)
	}

	report.FinishedAt = e.now().UTC()
	e.log.Info().
		Str("cycle_id", report.CycleID).
		Int("submitted", report.Submitted).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Int("flagged", report.Flagged).
		Int("cancelled", report.Cancelled).
		Msg("Rebalance plan executed")

	return report
}

func (e *Executor) executeIntent(ctx context.Context, intent OrderIntent) OrderResult {
	result := OrderResult{Intent: intent}
	log := e.log.With().Str("symbol", intent.Symbol).Str("reason", string(intent.Reason)).Logger()

	// At most one open order per symbol: clear leftovers before submitting
	for _, id := range intent.CancelOrderIDs {
		if err := e.broker.CancelOrder(ctx, id); err != nil {
			log.Error().Err(err).Str("order_id", id).Msg("Failed to cancel open order, skipping symbol")
			result.Status = StatusFailed
			result.Error = fmt.Sprintf("cancel open order %s: %v", id, err)
			return result
		}
		result.Cancelled = append(result.Cancelled, id)
	}

	if intent.Reason.IsClose() {
		return e.closePosition(ctx, intent, result, log)
	}

	req := domain.OrderRequest{
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		ClientOrderID: uuid.NewString(),
		Notional:      intent.Notional,
	}
	order, err := e.broker.PlaceOrder(ctx, req)
	if err == nil {
		log.Info().Str("side", string(intent.Side)).Float64("notional", intent.Notional).Str("order_id", order.OrderID).Msg("Order submitted")
		return submitted(result, order, intent.Notional, 0)
	}

	kind := domain.RejectionKindOf(err)
	if kind == domain.RejectionNotFractionable {
		return e.wholeShareFallback(ctx, intent, result, log)
	}

	result.Status = StatusFailed
	result.Rejection = kind
	result.Error = err.Error()
	if kind == domain.RejectionInvalidSymbol {
		e.flag(ctx, &result, FlagInvalidSymbol, err.Error())
	}
	log.Error().Err(err).Str("rejection", string(kind)).Msg("Order failed")
	return result
}

// closePosition uses the unconditional close primitive. Dust positions go
// straight here without any quantity validation.
func (e *Executor) closePosition(ctx context.Context, intent OrderIntent, result OrderResult, log zerolog.Logger) OrderResult {
	order, err := e.broker.ClosePosition(ctx, intent.Symbol)
	if err != nil {
		result.Status = StatusFailed
		result.Rejection = domain.RejectionKindOf(err)
		result.Error = err.Error()
		log.Error().Err(err).Msg("Failed to close position")
		return result
	}
	if intent.Reason == ReasonDustCleanup {
		log.Info().Float64("qty", intent.Qty).Msg("Closed dust position")
	} else {
		log.Info().Float64("qty", intent.Qty).Float64("market_value", intent.CurrentValue).Msg("Closed position")
	}
	return submitted(result, order, 0, intent.Qty)
}

// wholeShareFallback retries a notional order rejected as not fractionable
// with floor(notional / price) shares. Price comes from the latest trade,
// then the quote midpoint.
func (e *Executor) wholeShareFallback(ctx context.Context, intent OrderIntent, result OrderResult, log zerolog.Logger) OrderResult {
	result.Fallback = true

	price, source, err := marketdata.LatestPrice(ctx, e.broker, intent.Symbol)
	if err != nil {
		result.Status = StatusSkipped
		result.Rejection = domain.RejectionNotFractionable
		result.Error = err.Error()
		e.flag(ctx, &result, FlagNoPriceData, err.Error())
		log.Warn().Err(err).Msg("Not fractionable and no price available")
		return result
	}
	result.PriceSource = source

	qty := WholeShares(intent.Notional, price)
	if qty == 0 {
		detail := fmt.Sprintf("notional %.2f below one share at %.4f", intent.Notional, price)
		result.Status = StatusSkipped
		result.Rejection = domain.RejectionNotFractionable
		result.Error = detail
		e.flag(ctx, &result, FlagNotionalTooSmall, detail)
		log.Warn().Float64("notional", intent.Notional).Float64("price", price).Msg("Notional too small for one whole share")
		return result
	}

	req := domain.OrderRequest{
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		ClientOrderID: uuid.NewString(),
		Qty:           qty,
	}
	order, err := e.broker.PlaceOrder(ctx, req)
	if err != nil {
		kind := domain.RejectionKindOf(err)
		result.Status = StatusFailed
		result.Rejection = kind
		result.Error = err.Error()
		reason := FlagNotFractionable
		if kind == domain.RejectionInvalidSymbol {
			reason = FlagInvalidSymbol
		}
		e.flag(ctx, &result, reason, err.Error())
		log.Error().Err(err).Float64("qty", qty).Msg("Whole-share fallback order failed")
		return result
	}

	log.Info().
		Float64("notional", intent.Notional).
		Float64("price", price).
		Str("price_source", string(source)).
		Float64("qty", qty).
		Str("order_id", order.OrderID).
		Msg("Order submitted as whole shares")
	return submitted(result, order, 0, qty)
}

func (e *Executor) flag(ctx context.Context, result *OrderResult, reason, detail string) {
	result.FlagReason = reason
	if e.flagger == nil {
		return
	}

	var err error
	if df, ok := e.flagger.(detailFlagger); ok {
		err = df.FlagWithDetail(ctx, result.Intent.Symbol, reason, detail, e.flagTTL)
	} else {
		err = e.flagger.Flag(ctx, result.Intent.Symbol, reason, e.flagTTL)
	}
	if err != nil {
		e.log.Error().Err(err).Str("symbol", result.Intent.Symbol).Msg("Failed to flag symbol untradeable")
		return
	}
	metrics.UntradeableFlags.WithLabelValues(reason).Inc()
	e.log.Warn().Str("symbol", result.Intent.Symbol).Str("reason", reason).Dur("ttl", e.flagTTL).Msg("Flagged symbol untradeable")
}

func submitted(result OrderResult, order *domain.BrokerOrderResult, notional, qty float64) OrderResult {
	result.Status = StatusSubmitted
	result.Notional = notional
	result.Qty = qty
	result.Broker = order
	if order != nil {
		result.OrderID = order.OrderID
	}
	return result
}

// WholeShares returns floor(notional / price) computed in decimal so that
// e.g. 96.10 / 32.03 does not lose a share to float error
func WholeShares(notional, price float64) float64 {
	if price <= 0 || notional <= 0 {
		return 0
	}
	q := decimal.NewFromFloat(notional).Div(decimal.NewFromFloat(price)).Floor()
	return q.InexactFloat64()
}
