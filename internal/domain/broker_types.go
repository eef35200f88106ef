package domain

import "time"

// Broker-agnostic types for account and order handling.
// These abstract away the brokerage REST payloads.

// OrderSide is the side of a brokerage order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// PositionSide is the side of a held position
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// BrokerAccount represents account-level balances
type BrokerAccount struct {
	AccountID   string  // Brokerage account identifier
	Status      string  // e.g. "ACTIVE"
	Equity      float64 // Total account equity
	Cash        float64 // Settled cash
	BuyingPower float64 // Available buying power
}

// BrokerPosition represents a held position
type BrokerPosition struct {
	Symbol        string       // Security symbol
	Side          PositionSide // long or short
	Quantity      float64      // Shares held (may be fractional, never negative)
	MarketValue   float64      // Signed market value (negative for shorts)
	CurrentPrice  float64      // Last price used for MarketValue
	AvgEntryPrice float64      // Average entry price
}

// SignedQuantity returns the quantity with shorts negative
func (p BrokerPosition) SignedQuantity() float64 {
	if p.Side == PositionSideShort {
		return -p.Quantity
	}
	return p.Quantity
}

// OrderRequest describes a market order by either notional or quantity.
// Exactly one of Notional or Qty is positive.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	ClientOrderID string
	Notional      float64 // Dollar amount, rounded to cents by the gateway
	Qty           float64 // Share count
}

// BrokerOrderResult represents the result of placing or closing an order
type BrokerOrderResult struct {
	SubmittedAt    time.Time
	OrderID        string
	ClientOrderID  string
	Symbol         string
	Side           OrderSide
	Status         string
	Qty            float64
	Notional       float64
	FilledQty      float64
	FilledAvgPrice float64
}

// BrokerOrder represents an open order
type BrokerOrder struct {
	SubmittedAt time.Time
	OrderID     string
	Symbol      string
	Side        OrderSide
	Status      string
	Qty         float64
	Notional    float64
}

// BrokerQuote is a level 1 quote
type BrokerQuote struct {
	Symbol    string
	Timestamp time.Time
	Bid       float64
	Ask       float64
}

// Midpoint returns (bid+ask)/2, or 0 if either side is missing
func (q BrokerQuote) Midpoint() float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}

// BrokerOHLCV represents a single OHLCV candlestick data point
type BrokerOHLCV struct {
	Timestamp int64   `msgpack:"t"` // Unix timestamp in seconds
	Open      float64 `msgpack:"o"`
	High      float64 `msgpack:"h"`
	Low       float64 `msgpack:"l"`
	Close     float64 `msgpack:"c"`
	Volume    int64   `msgpack:"v"`
}

// Timeframe is a bar aggregation period
type Timeframe string

const (
	TimeframeDay  Timeframe = "1Day"
	TimeframeHour Timeframe = "1Hour"
)

// TradingMode selects the brokerage environment
type TradingMode string

const (
	TradingModePaper TradingMode = "paper"
	TradingModeLive  TradingMode = "live"
)
