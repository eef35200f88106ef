package domain

import (
	"context"
	"time"
)

// TradingClient defines account and order operations against the brokerage.
// Implementations must bound every call with a request timeout.
type TradingClient interface {
	GetAccount(ctx context.Context) (*BrokerAccount, error)
	GetPositions(ctx context.Context) ([]BrokerPosition, error)

	// PlaceOrder submits a market order. Rejections are returned as *OrderRejection.
	PlaceOrder(ctx context.Context, req OrderRequest) (*BrokerOrderResult, error)

	// ClosePosition liquidates the whole position without a quantity
	ClosePosition(ctx context.Context, symbol string) (*BrokerOrderResult, error)

	ListOpenOrders(ctx context.Context) ([]BrokerOrder, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// MarketDataClient defines price discovery operations
type MarketDataClient interface {
	// GetLatestTradePrice returns the last executed trade price, or ErrNotFound
	GetLatestTradePrice(ctx context.Context, symbol string) (float64, error)

	// GetLatestQuote returns the latest bid/ask, or ErrNotFound
	GetLatestQuote(ctx context.Context, symbol string) (*BrokerQuote, error)

	GetHistoricalPrices(ctx context.Context, symbol string, start, end time.Time, timeframe Timeframe) ([]BrokerOHLCV, error)

	// GetMultiHistoricalPrices fetches bars for many symbols in one request
	GetMultiHistoricalPrices(ctx context.Context, symbols []string, start, end time.Time, timeframe Timeframe) (map[string][]BrokerOHLCV, error)
}

// BrokerClient is the full brokerage gateway consumed by the core
type BrokerClient interface {
	TradingClient
	MarketDataClient
}

// SignalSource produces trade signals for a strategy given its parameters
type SignalSource interface {
	Signals(ctx context.Context, strategy StrategyName, since time.Time, minStrength float64) ([]TradeSignal, error)
}

// UntradeableFlagger records symbols that cannot be traded for a cooldown period
type UntradeableFlagger interface {
	Flag(ctx context.Context, symbol string, reason string, ttl time.Duration) error
	IsFlagged(ctx context.Context, symbol string) (bool, error)
}
