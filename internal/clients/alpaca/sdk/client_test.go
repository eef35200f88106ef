package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(Options{
		KeyID:             "key",
		SecretKey:         "secret",
		TradingURL:        server.URL,
		DataURL:           server.URL,
		RequestsPerMinute: 60000,
	}, zerolog.Nop())
}

func TestClient_SendsAuthHeaders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		assert.Equal(t, "/v2/account", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"acc-1","status":"ACTIVE","equity":"100000.50","cash":"2500","buying_power":"5000"}`))
	})

	account, err := client.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acc-1", account.ID)
	assert.True(t, account.Equity.Equal(decimal.RequireFromString("100000.50")))
}

func TestClient_MissingCredentials(t *testing.T) {
	client := NewClient(Options{}, zerolog.Nop())
	_, err := client.GetAccount(context.Background())
	assert.Error(t, err)
}

func TestClient_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":40310000,"message":"insufficient buying power"}`))
	})

	_, err := client.PlaceOrder(context.Background(), OrderRequest{Symbol: "AAPL", Side: "buy"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, 40310000, apiErr.Code)
	assert.Equal(t, "insufficient buying power", apiErr.Message)
}

func TestClient_PlaceOrderDefaults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "market", body["type"])
		assert.Equal(t, "day", body["time_in_force"])
		assert.Equal(t, "96.1", body["notional"])
		assert.NotContains(t, body, "qty")

		_, _ = w.Write([]byte(`{"id":"o-1","symbol":"AAPL","side":"buy","status":"accepted","qty":null,"notional":"96.1","filled_qty":"0","filled_avg_price":null}`))
	})

	notional := decimal.RequireFromString("96.10")
	order, err := client.PlaceOrder(context.Background(), OrderRequest{Symbol: "AAPL", Side: "buy", Notional: &notional})
	require.NoError(t, err)
	assert.Equal(t, "o-1", order.ID)
	assert.False(t, order.Qty.Valid)
	assert.True(t, order.Notional.Valid)
}

func TestClient_GetBarsFollowsPagination(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "AAPL,MSFT", r.URL.Query().Get("symbols"))
		if r.URL.Query().Get("page_token") == "" {
			_, _ = w.Write([]byte(`{"bars":{"AAPL":[{"t":"2024-01-02T05:00:00Z","o":1,"h":2,"l":0.5,"c":1.5,"v":100}]},"next_page_token":"abc"}`))
			return
		}
		assert.Equal(t, "abc", r.URL.Query().Get("page_token"))
		_, _ = w.Write([]byte(`{"bars":{"AAPL":[{"t":"2024-01-03T05:00:00Z","o":1,"h":2,"l":0.5,"c":1.5,"v":100}],"MSFT":[{"t":"2024-01-03T05:00:00Z","o":3,"h":4,"l":2,"c":3,"v":50}]},"next_page_token":null}`))
	})

	bars, err := client.GetBars(context.Background(), BarsRequest{Symbols: []string{"AAPL", "MSFT"}, Timeframe: "1Day"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, bars["AAPL"], 2)
	assert.Len(t, bars["MSFT"], 1)
}

func TestClient_BreakerIgnoresClientErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"asset is not fractionable"}`))
	})

	for i := 0; i < 10; i++ {
		_, err := client.PlaceOrder(context.Background(), OrderRequest{Symbol: "BRK", Side: "buy"})
		require.Error(t, err)
	}
	assert.Equal(t, "closed", client.BreakerState())
}

func TestClient_BreakerTripsOnServerErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 5; i++ {
		_, _ = client.GetPositions(context.Background())
	}
	assert.Equal(t, "open", client.BreakerState())
}
