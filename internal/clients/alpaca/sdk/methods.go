package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBarsPerPage is the upper bound accepted by the bars endpoint
const maxBarsPerPage = 10000

// GetAccount returns account balances
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	var account Account
	if err := c.trading(ctx, http.MethodGet, "/v2/account", nil, nil, &account); err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}

// GetPositions returns all open positions
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var positions []Position
	if err := c.trading(ctx, http.MethodGet, "/v2/positions", nil, nil, &positions); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return positions, nil
}

// PlaceOrder submits an order
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.Type == "" {
		req.Type = "market"
	}
	if req.TimeInForce == "" {
		// Fractional and notional orders must be DAY orders
		req.TimeInForce = "day"
	}

	var order Order
	if err := c.trading(ctx, http.MethodPost, "/v2/orders", nil, req, &order); err != nil {
		return nil, fmt.Errorf("place order %s %s: %w", req.Side, req.Symbol, err)
	}
	return &order, nil
}

// ClosePosition liquidates the entire position for a symbol
func (c *Client) ClosePosition(ctx context.Context, symbol string) (*Order, error) {
	var order Order
	path := "/v2/positions/" + url.PathEscape(symbol)
	if err := c.trading(ctx, http.MethodDelete, path, nil, nil, &order); err != nil {
		return nil, fmt.Errorf("close position %s: %w", symbol, err)
	}
	return &order, nil
}

// ListOpenOrders returns all orders with status open
func (c *Client) ListOpenOrders(ctx context.Context) ([]Order, error) {
	query := url.Values{}
	query.Set("status", "open")
	query.Set("limit", "500")

	var orders []Order
	if err := c.trading(ctx, http.MethodGet, "/v2/orders", query, nil, &orders); err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	return orders, nil
}

// CancelOrder cancels an open order by ID
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := "/v2/orders/" + url.PathEscape(orderID)
	if err := c.trading(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetLatestTrade returns the latest trade for a symbol. Trade is nil when none exists.
func (c *Client) GetLatestTrade(ctx context.Context, symbol string) (*Trade, error) {
	var resp LatestTradeResponse
	path := "/v2/stocks/" + url.PathEscape(symbol) + "/trades/latest"
	if err := c.data(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("latest trade %s: %w", symbol, err)
	}
	return resp.Trade, nil
}

// GetLatestQuote returns the latest quote for a symbol. Quote is nil when none exists.
func (c *Client) GetLatestQuote(ctx context.Context, symbol string) (*Quote, error) {
	var resp LatestQuoteResponse
	path := "/v2/stocks/" + url.PathEscape(symbol) + "/quotes/latest"
	if err := c.data(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("latest quote %s: %w", symbol, err)
	}
	return resp.Quote, nil
}

// GetBars fetches bars for one or more symbols, following pagination
func (c *Client) GetBars(ctx context.Context, req BarsRequest) (map[string][]Bar, error) {
	if len(req.Symbols) == 0 {
		return map[string][]Bar{}, nil
	}

	query := url.Values{}
	query.Set("symbols", strings.Join(req.Symbols, ","))
	query.Set("timeframe", req.Timeframe)
	query.Set("start", req.Start.UTC().Format(time.RFC3339))
	query.Set("end", req.End.UTC().Format(time.RFC3339))
	query.Set("limit", fmt.Sprintf("%d", maxBarsPerPage))
	query.Set("adjustment", "all")
	if req.Feed != "" {
		query.Set("feed", req.Feed)
	}

	out := make(map[string][]Bar, len(req.Symbols))
	for {
		var page BarsResponse
		if err := c.data(ctx, "/v2/stocks/bars", query, &page); err != nil {
			return nil, fmt.Errorf("get bars: %w", err)
		}

		for symbol, bars := range page.Bars {
			out[symbol] = append(out[symbol], bars...)
		}

		if page.NextPageToken == nil || *page.NextPageToken == "" {
			break
		}
		query.Set("page_token", *page.NextPageToken)
	}

	return out, nil
}
