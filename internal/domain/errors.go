package domain

import (
	"errors"
	"fmt"
)

// Input validation and safety errors. These are fatal at the boundary where detected.
var (
	ErrInvalidSymbol           = errors.New("invalid symbol")
	ErrEmptyWeights            = errors.New("strategy weights must not be empty")
	ErrUnknownStrategy         = errors.New("unknown strategy")
	ErrInvalidMergeStrategy    = errors.New("invalid merge strategy")
	ErrInvalidCapFraction      = errors.New("max position fraction must be in (0, 1]")
	ErrLiveTradingNotConfirmed = errors.New("live trading requested without explicit confirmation")
	ErrMissingCredentials      = errors.New("missing brokerage credentials for selected mode")
)

// Data availability errors
var (
	// ErrNoPriceData is returned when neither a trade nor a quote is available
	ErrNoPriceData = errors.New("no price data")
	// ErrNotFound is returned by the gateway for 404 responses on market data lookups
	ErrNotFound = errors.New("not found")
)

// RejectionKind classifies why the brokerage refused an order
type RejectionKind string

const (
	RejectionNotFractionable   RejectionKind = "not_fractionable"
	RejectionInsufficientFunds RejectionKind = "insufficient_buying_power"
	RejectionMarketClosed      RejectionKind = "market_closed"
	RejectionInvalidSymbol     RejectionKind = "invalid_symbol"
	RejectionRateLimited       RejectionKind = "rate_limited"
	RejectionTimeout           RejectionKind = "timeout"
	RejectionUnknown           RejectionKind = "unknown"
)

// OrderRejection is a typed brokerage rejection so callers can choose a
// recovery path by kind instead of by error text.
type OrderRejection struct {
	Kind       RejectionKind
	Symbol     string
	StatusCode int
	Message    string
}

func (e *OrderRejection) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("order rejected for %s (%s): %s", e.Symbol, e.Kind, e.Message)
	}
	return fmt.Sprintf("order rejected (%s): %s", e.Kind, e.Message)
}

// RejectionKindOf extracts the rejection kind from an error chain.
// Errors that are not rejections report RejectionUnknown.
func RejectionKindOf(err error) RejectionKind {
	var rej *OrderRejection
	if errors.As(err, &rej) {
		return rej.Kind
	}
	return RejectionUnknown
}

// IsNotFractionable reports whether err is a not-fractionable rejection
func IsNotFractionable(err error) bool {
	return RejectionKindOf(err) == RejectionNotFractionable
}
