package sdk

import (
	"time"

	"github.com/shopspring/decimal"
)

// The trading API encodes numbers as strings; decimal.Decimal accepts both forms.

// Account is the /v2/account payload
type Account struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Equity      decimal.Decimal `json:"equity"`
	Cash        decimal.Decimal `json:"cash"`
	BuyingPower decimal.Decimal `json:"buying_power"`
}

// Position is an element of the /v2/positions payload
type Position struct {
	Symbol        string          `json:"symbol"`
	AssetClass    string          `json:"asset_class"`
	Side          string          `json:"side"`
	Qty           decimal.Decimal `json:"qty"`
	MarketValue   decimal.Decimal `json:"market_value"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	UnrealizedPL  decimal.Decimal `json:"unrealized_pl"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	QtyAvailable  decimal.Decimal `json:"qty_available"`
}

// OrderRequest is the body of POST /v2/orders.
// Exactly one of Qty or Notional must be set.
type OrderRequest struct {
	Symbol        string           `json:"symbol"`
	Side          string           `json:"side"`
	Type          string           `json:"type"`
	TimeInForce   string           `json:"time_in_force"`
	Qty           *decimal.Decimal `json:"qty,omitempty"`
	Notional      *decimal.Decimal `json:"notional,omitempty"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
}

// Order is the order payload returned by the trading API
type Order struct {
	ID             string              `json:"id"`
	ClientOrderID  string              `json:"client_order_id"`
	Symbol         string              `json:"symbol"`
	Side           string              `json:"side"`
	Type           string              `json:"type"`
	Status         string              `json:"status"`
	Qty            decimal.NullDecimal `json:"qty"`
	Notional       decimal.NullDecimal `json:"notional"`
	FilledQty      decimal.NullDecimal `json:"filled_qty"`
	FilledAvgPrice decimal.NullDecimal `json:"filled_avg_price"`
	SubmittedAt    *time.Time          `json:"submitted_at"`
	CreatedAt      *time.Time          `json:"created_at"`
}

// Trade is a single trade print from the data API
type Trade struct {
	Timestamp time.Time `json:"t"`
	Price     float64   `json:"p"`
	Size      float64   `json:"s"`
}

// LatestTradeResponse is the /v2/stocks/{symbol}/trades/latest payload
type LatestTradeResponse struct {
	Symbol string `json:"symbol"`
	Trade  *Trade `json:"trade"`
}

// Quote is a level 1 quote from the data API
type Quote struct {
	Timestamp time.Time `json:"t"`
	BidPrice  float64   `json:"bp"`
	BidSize   float64   `json:"bs"`
	AskPrice  float64   `json:"ap"`
	AskSize   float64   `json:"as"`
}

// LatestQuoteResponse is the /v2/stocks/{symbol}/quotes/latest payload
type LatestQuoteResponse struct {
	Symbol string `json:"symbol"`
	Quote  *Quote `json:"quote"`
}

// Bar is an aggregated OHLCV bar
type Bar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    int64     `json:"v"`
}

// BarsResponse is a page of the multi-symbol /v2/stocks/bars payload
type BarsResponse struct {
	Bars          map[string][]Bar `json:"bars"`
	NextPageToken *string          `json:"next_page_token"`
}

// BarsRequest describes a historical bars query
type BarsRequest struct {
	Symbols   []string
	Timeframe string
	Start     time.Time
	End       time.Time
	Feed      string // iex | sip; empty uses the account default
}
