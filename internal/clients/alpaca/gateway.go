// Package alpaca provides the brokerage gateway for the Alpaca trading API.
package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/capitol/internal/clients/alpaca/sdk"
	"github.com/aristath/capitol/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config configures the gateway. Mode safety is checked by NewGateway.
type Config struct {
	Mode              domain.TradingMode // Empty means paper
	LiveConfirmed     bool               // Must be true for live mode
	KeyID             string
	SecretKey         string
	TradingURL        string // Overrides the per-mode default
	DataURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// Gateway adapts the REST SDK to domain.BrokerClient
type Gateway struct {
	client *sdk.Client
	mode   domain.TradingMode
	log    zerolog.Logger
}

var _ domain.BrokerClient = (*Gateway)(nil)

// NewGateway validates the configuration and constructs a gateway.
// Live mode without explicit confirmation, or missing credentials,
// fail without building any client.
func NewGateway(cfg Config, log zerolog.Logger) (*Gateway, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = domain.TradingModePaper
	}

	defaultURL := sdk.PaperTradingURL
	switch mode {
	case domain.TradingModePaper:
	case domain.TradingModeLive:
		if !cfg.LiveConfirmed {
			return nil, domain.ErrLiveTradingNotConfirmed
		}
		defaultURL = sdk.LiveTradingURL
	default:
		return nil, fmt.Errorf("unknown trading mode %q", mode)
	}

	if cfg.KeyID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingCredentials, mode)
	}

	tradingURL := cfg.TradingURL
	if tradingURL == "" {
		tradingURL = defaultURL
	}

	gwLog := log.With().Str("client", "alpaca").Str("mode", string(mode)).Logger()
	client := sdk.NewClient(sdk.Options{
		KeyID:             cfg.KeyID,
		SecretKey:         cfg.SecretKey,
		TradingURL:        tradingURL,
		DataURL:           cfg.DataURL,
		Timeout:           cfg.Timeout,
		RequestsPerMinute: cfg.RequestsPerMinute,
		HTTPClient:        cfg.HTTPClient,
	}, gwLog)

	gwLog.Info().Str("endpoint", tradingURL).Msg("Brokerage gateway initialized")

	return &Gateway{client: client, mode: mode, log: gwLog}, nil
}

// Mode returns the trading mode the gateway was built for
func (g *Gateway) Mode() domain.TradingMode {
	return g.mode
}

// Endpoint returns the trading endpoint
func (g *Gateway) Endpoint() string {
	return g.client.TradingURL()
}

// BreakerState returns the circuit breaker state for status reporting
func (g *Gateway) BreakerState() string {
	return g.client.BreakerState()
}

// GetAccount implements domain.TradingClient
func (g *Gateway) GetAccount(ctx context.Context) (*domain.BrokerAccount, error) {
	account, err := g.client.GetAccount(ctx)
	if err != nil {
		return nil, err
	}
	return transformAccountToDomain(account), nil
}

// GetPositions implements domain.TradingClient
func (g *Gateway) GetPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	positions, err := g.client.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	return transformPositionsToDomain(positions), nil
}

// PlaceOrder implements domain.TradingClient.
// Rejections come back as *domain.OrderRejection.
func (g *Gateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.BrokerOrderResult, error) {
	if (req.Notional > 0) == (req.Qty > 0) {
		return nil, fmt.Errorf("order for %s must set exactly one of notional or qty", req.Symbol)
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	order, err := g.client.PlaceOrder(ctx, transformOrderRequestFromDomain(req))
	if err != nil {
		return nil, classifyOrderError(req.Symbol, err)
	}
	return transformOrderResultToDomain(order), nil
}

// ClosePosition implements domain.TradingClient
func (g *Gateway) ClosePosition(ctx context.Context, symbol string) (*domain.BrokerOrderResult, error) {
	order, err := g.client.ClosePosition(ctx, symbol)
	if err != nil {
		return nil, classifyOrderError(symbol, err)
	}
	return transformOrderResultToDomain(order), nil
}

// ListOpenOrders implements domain.TradingClient
func (g *Gateway) ListOpenOrders(ctx context.Context) ([]domain.BrokerOrder, error) {
	orders, err := g.client.ListOpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	return transformOpenOrdersToDomain(orders), nil
}

// CancelOrder implements domain.TradingClient
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) error {
	return g.client.CancelOrder(ctx, orderID)
}

// GetLatestTradePrice implements domain.MarketDataClient
func (g *Gateway) GetLatestTradePrice(ctx context.Context, symbol string) (float64, error) {
	trade, err := g.client.GetLatestTrade(ctx, symbol)
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("latest trade %s: %w", symbol, domain.ErrNotFound)
		}
		return 0, err
	}
	if trade == nil || trade.Price <= 0 {
		return 0, fmt.Errorf("latest trade %s: %w", symbol, domain.ErrNotFound)
	}
	return trade.Price, nil
}

// GetLatestQuote implements domain.MarketDataClient
func (g *Gateway) GetLatestQuote(ctx context.Context, symbol string) (*domain.BrokerQuote, error) {
	quote, err := g.client.GetLatestQuote(ctx, symbol)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("latest quote %s: %w", symbol, domain.ErrNotFound)
		}
		return nil, err
	}
	if quote == nil || (quote.BidPrice <= 0 && quote.AskPrice <= 0) {
		return nil, fmt.Errorf("latest quote %s: %w", symbol, domain.ErrNotFound)
	}
	return &domain.BrokerQuote{
		Symbol:    symbol,
		Timestamp: quote.Timestamp,
		Bid:       quote.BidPrice,
		Ask:       quote.AskPrice,
	}, nil
}

// GetHistoricalPrices implements domain.MarketDataClient
func (g *Gateway) GetHistoricalPrices(ctx context.Context, symbol string, start, end time.Time, timeframe domain.Timeframe) ([]domain.BrokerOHLCV, error) {
	bars, err := g.GetMultiHistoricalPrices(ctx, []string{symbol}, start, end, timeframe)
	if err != nil {
		return nil, err
	}
	return bars[symbol], nil
}

// GetMultiHistoricalPrices implements domain.MarketDataClient
func (g *Gateway) GetMultiHistoricalPrices(ctx context.Context, symbols []string, start, end time.Time, timeframe domain.Timeframe) (map[string][]domain.BrokerOHLCV, error) {
	raw, err := g.client.GetBars(ctx, sdk.BarsRequest{
		Symbols:   symbols,
		Timeframe: string(timeframe),
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string][]domain.BrokerOHLCV, len(raw))
	for symbol, bars := range raw {
		out[strings.ToUpper(symbol)] = transformBarsToDomain(bars)
	}

	g.log.Debug().
		Int("requested", len(symbols)).
		Int("returned", len(out)).
		Str("timeframe", string(timeframe)).
		Msg("Fetched historical bars")

	return out, nil
}
