// Package sdk provides a minimal REST client for the Alpaca trading and market data APIs.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Default endpoints
const (
	PaperTradingURL = "https://paper-api.alpaca.markets"
	LiveTradingURL  = "https://api.alpaca.markets"
	DataURL         = "https://data.alpaca.markets"
)

const (
	defaultTimeout           = 30 * time.Second
	defaultRequestsPerMinute = 180
	maxLoggedBodyLength      = 500
)

// APIError is a non-2xx response from the API
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("API returned status %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Message)
}

// Options configures a Client
type Options struct {
	KeyID             string
	SecretKey         string
	TradingURL        string
	DataURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	HTTPClient        *http.Client // Optional, overrides Timeout
}

// Client talks to the trading and data APIs with shared credentials.
// All requests pass through one token-bucket limiter and one circuit breaker.
type Client struct {
	keyID      string
	secretKey  string
	tradingURL string
	dataURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

// NewClient creates a new API client
func NewClient(opts Options, log zerolog.Logger) *Client {
	if opts.TradingURL == "" {
		opts.TradingURL = PaperTradingURL
	}
	if opts.DataURL == "" {
		opts.DataURL = DataURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = defaultRequestsPerMinute
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		keyID:      opts.KeyID,
		secretKey:  opts.SecretKey,
		tradingURL: opts.TradingURL,
		dataURL:    opts.DataURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 5),
		log:        log.With().Str("component", "alpaca-sdk").Logger(),
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "alpaca",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Business rejections (4xx) mean the API is healthy
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return c
}

// TradingURL returns the trading endpoint this client targets
func (c *Client) TradingURL() string {
	return c.tradingURL
}

// BreakerState returns the circuit breaker state name
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func (c *Client) trading(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	return c.do(ctx, method, c.tradingURL, path, query, body, out)
}

func (c *Client) data(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, c.dataURL, path, query, nil, out)
}

func (c *Client) do(ctx context.Context, method, baseURL, path string, query url.Values, body, out interface{}) error {
	if c.keyID == "" || c.secretKey == "" {
		return fmt.Errorf("API credentials are not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.send(ctx, method, baseURL, path, query, body, out)
	})
	return err
}

func (c *Client) send(ctx context.Context, method, baseURL, path string, query url.Values, body, out interface{}) error {
	requestURL := baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = truncate(string(respBody))
		}
		c.log.Error().
			Int("status_code", resp.StatusCode).
			Int("code", apiErr.Code).
			Str("response_body", truncate(string(respBody))).
			Str("method", method).
			Str("path", path).
			Msg("API returned non-2xx status")
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		c.log.Error().
			Err(err).
			Str("response_body", truncate(string(respBody))).
			Str("path", path).
			Msg("Failed to parse JSON response")
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

func truncate(s string) string {
	if len(s) > maxLoggedBodyLength {
		return s[:maxLoggedBodyLength] + "..."
	}
	return s
}
