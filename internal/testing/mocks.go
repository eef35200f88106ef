package testing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aristath/capitol/internal/domain"
)

// MockBrokerClient is an in-memory implementation of domain.BrokerClient.
// It records every mutating call in order so tests can assert sequencing.
type MockBrokerClient struct {
	mu sync.RWMutex

	account    *domain.BrokerAccount
	positions  []domain.BrokerPosition
	openOrders []domain.BrokerOrder
	trades     map[string]float64
	quotes     map[string]*domain.BrokerQuote
	bars       map[string][]domain.BrokerOHLCV
	err        error

	// PlaceOrderFunc overrides the default accept-everything behaviour
	PlaceOrderFunc  func(req domain.OrderRequest) (*domain.BrokerOrderResult, error)
	// CloseErrors fails ClosePosition for specific symbols
	CloseErrors     map[string]error
	// MultiHistoryErr fails batched history requests
	MultiHistoryErr error

	Calls             []string
	PlacedOrders      []domain.OrderRequest
	ClosedSymbols     []string
	CancelledOrders   []string
	HistoryCalls      int
	MultiHistoryCalls int
	nextID            int
}

var _ domain.BrokerClient = (*MockBrokerClient)(nil)

// NewMockBrokerClient creates an empty mock account
func NewMockBrokerClient() *MockBrokerClient {
	return &MockBrokerClient{
		account:     &domain.BrokerAccount{AccountID: "test", Status: "ACTIVE"},
		trades:      make(map[string]float64),
		quotes:      make(map[string]*domain.BrokerQuote),
		bars:        make(map[string][]domain.BrokerOHLCV),
		CloseErrors: make(map[string]error),
	}
}

// SetAccount sets account balances
func (m *MockBrokerClient) SetAccount(equity, cash float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account.Equity = equity
	m.account.Cash = cash
	m.account.BuyingPower = cash
}

// SetPositions sets the positions to return
func (m *MockBrokerClient) SetPositions(positions []domain.BrokerPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = positions
}

// SetOpenOrders sets the open orders to return
func (m *MockBrokerClient) SetOpenOrders(orders []domain.BrokerOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openOrders = orders
}

// SetTradePrice sets the latest trade price for a symbol
func (m *MockBrokerClient) SetTradePrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[symbol] = price
}

// SetQuote sets the latest quote for a symbol
func (m *MockBrokerClient) SetQuote(symbol string, bid, ask float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = &domain.BrokerQuote{Symbol: symbol, Bid: bid, Ask: ask, Timestamp: time.Now()}
}

// SetBars sets the price history for a symbol
func (m *MockBrokerClient) SetBars(symbol string, bars []domain.BrokerOHLCV) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol] = bars
}

// SetError makes account and position reads fail
func (m *MockBrokerClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// GetAccount returns the configured account
func (m *MockBrokerClient) GetAccount(ctx context.Context) (*domain.BrokerAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	account := *m.account
	return &account, nil
}

// GetPositions returns the configured positions
func (m *MockBrokerClient) GetPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.BrokerPosition(nil), m.positions...), nil
}

// PlaceOrder records the order and returns an accepted result
func (m *MockBrokerClient) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.BrokerOrderResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, "place:"+req.Symbol)
	m.PlacedOrders = append(m.PlacedOrders, req)
	fn := m.PlaceOrderFunc
	m.nextID++
	id := fmt.Sprintf("order-%d", m.nextID)
	m.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return &domain.BrokerOrderResult{
		SubmittedAt:   time.Now(),
		OrderID:       id,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Status:        "accepted",
		Qty:           req.Qty,
		Notional:      req.Notional,
	}, nil
}

// ClosePosition records the close
func (m *MockBrokerClient) ClosePosition(ctx context.Context, symbol string) (*domain.BrokerOrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "close:"+symbol)
	m.ClosedSymbols = append(m.ClosedSymbols, symbol)
	if err := m.CloseErrors[symbol]; err != nil {
		return nil, err
	}
	m.nextID++
	return &domain.BrokerOrderResult{
		SubmittedAt: time.Now(),
		OrderID:     fmt.Sprintf("order-%d", m.nextID),
		Symbol:      symbol,
		Side:        domain.OrderSideSell,
		Status:      "accepted",
	}, nil
}

// ListOpenOrders returns the configured open orders
func (m *MockBrokerClient) ListOpenOrders(ctx context.Context) ([]domain.BrokerOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.BrokerOrder(nil), m.openOrders...), nil
}

// CancelOrder records the cancellation and removes the order
func (m *MockBrokerClient) CancelOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "cancel:"+orderID)
	m.CancelledOrders = append(m.CancelledOrders, orderID)

	remaining := m.openOrders[:0]
	for _, o := range m.openOrders {
		if o.OrderID != orderID {
			remaining = append(remaining, o)
		}
	}
	m.openOrders = remaining
	return nil
}

// GetLatestTradePrice returns the configured trade price or ErrNotFound
func (m *MockBrokerClient) GetLatestTradePrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if price, ok := m.trades[symbol]; ok {
		return price, nil
	}
	return 0, fmt.Errorf("latest trade %s: %w", symbol, domain.ErrNotFound)
}

// GetLatestQuote returns the configured quote or ErrNotFound
func (m *MockBrokerClient) GetLatestQuote(ctx context.Context, symbol string) (*domain.BrokerQuote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if q, ok := m.quotes[symbol]; ok {
		quote := *q
		return &quote, nil
	}
	return nil, fmt.Errorf("latest quote %s: %w", symbol, domain.ErrNotFound)
}

// GetHistoricalPrices returns configured bars for one symbol
func (m *MockBrokerClient) GetHistoricalPrices(ctx context.Context, symbol string, start, end time.Time, timeframe domain.Timeframe) ([]domain.BrokerOHLCV, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HistoryCalls++
	bars, ok := m.bars[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("bars %s: %w", symbol, domain.ErrNotFound)
	}
	return bars, nil
}

// GetMultiHistoricalPrices returns configured bars for many symbols
func (m *MockBrokerClient) GetMultiHistoricalPrices(ctx context.Context, symbols []string, start, end time.Time, timeframe domain.Timeframe) (map[string][]domain.BrokerOHLCV, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MultiHistoryCalls++
	if m.MultiHistoryErr != nil {
		return nil, m.MultiHistoryErr
	}
	out := make(map[string][]domain.BrokerOHLCV)
	for _, s := range symbols {
		if bars, ok := m.bars[strings.ToUpper(s)]; ok {
			out[s] = bars
		}
	}
	return out, nil
}
