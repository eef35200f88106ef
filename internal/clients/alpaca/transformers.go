package alpaca

import (
	"strings"
	"time"

	"github.com/aristath/capitol/internal/clients/alpaca/sdk"
	"github.com/aristath/capitol/internal/domain"
	"github.com/shopspring/decimal"
)

func transformAccountToDomain(a *sdk.Account) *domain.BrokerAccount {
	return &domain.BrokerAccount{
		AccountID:   a.ID,
		Status:      a.Status,
		Equity:      a.Equity.InexactFloat64(),
		Cash:        a.Cash.InexactFloat64(),
		BuyingPower: a.BuyingPower.InexactFloat64(),
	}
}

func transformPositionsToDomain(positions []sdk.Position) []domain.BrokerPosition {
	out := make([]domain.BrokerPosition, 0, len(positions))
	for _, p := range positions {
		side := domain.PositionSideLong
		if strings.EqualFold(p.Side, "short") {
			side = domain.PositionSideShort
		}
		out = append(out, domain.BrokerPosition{
			Symbol:        p.Symbol,
			Side:          side,
			Quantity:      p.Qty.Abs().InexactFloat64(),
			MarketValue:   p.MarketValue.InexactFloat64(),
			CurrentPrice:  p.CurrentPrice.InexactFloat64(),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
		})
	}
	return out
}

func transformOrderResultToDomain(o *sdk.Order) *domain.BrokerOrderResult {
	return &domain.BrokerOrderResult{
		SubmittedAt:    submittedAt(o),
		OrderID:        o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           domain.OrderSide(strings.ToLower(o.Side)),
		Status:         o.Status,
		Qty:            nullFloat(o.Qty),
		Notional:       nullFloat(o.Notional),
		FilledQty:      nullFloat(o.FilledQty),
		FilledAvgPrice: nullFloat(o.FilledAvgPrice),
	}
}

func transformOpenOrdersToDomain(orders []sdk.Order) []domain.BrokerOrder {
	out := make([]domain.BrokerOrder, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		out = append(out, domain.BrokerOrder{
			SubmittedAt: submittedAt(o),
			OrderID:     o.ID,
			Symbol:      o.Symbol,
			Side:        domain.OrderSide(strings.ToLower(o.Side)),
			Status:      o.Status,
			Qty:         nullFloat(o.Qty),
			Notional:    nullFloat(o.Notional),
		})
	}
	return out
}

func transformBarsToDomain(bars []sdk.Bar) []domain.BrokerOHLCV {
	out := make([]domain.BrokerOHLCV, 0, len(bars))
	for _, b := range bars {
		out = append(out, domain.BrokerOHLCV{
			Timestamp: b.Timestamp.Unix(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return out
}

func transformOrderRequestFromDomain(req domain.OrderRequest) sdk.OrderRequest {
	out := sdk.OrderRequest{
		Symbol:        req.Symbol,
		Side:          string(req.Side),
		Type:          "market",
		TimeInForce:   "day",
		ClientOrderID: req.ClientOrderID,
	}
	if req.Notional > 0 {
		// Notional orders are accepted to the cent
		n := decimal.NewFromFloat(req.Notional).Round(2)
		out.Notional = &n
	} else {
		q := decimal.NewFromFloat(req.Qty)
		out.Qty = &q
	}
	return out
}

func submittedAt(o *sdk.Order) time.Time {
	if o.SubmittedAt != nil {
		return *o.SubmittedAt
	}
	if o.CreatedAt != nil {
		return *o.CreatedAt
	}
	return time.Time{}
}

func nullFloat(d decimal.NullDecimal) float64 {
	if !d.Valid {
		return 0
	}
	return d.Decimal.InexactFloat64()
}
