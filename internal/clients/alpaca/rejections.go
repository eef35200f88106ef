package alpaca

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/aristath/capitol/internal/clients/alpaca/sdk"
	"github.com/aristath/capitol/internal/domain"
)

// codeInsufficientBuyingPower is the API error code for buying power rejections
const codeInsufficientBuyingPower = 40310000

// classifyOrderError converts an order placement failure into a typed
// *domain.OrderRejection. This is the only place that inspects broker
// error payloads; callers branch on the resulting kind.
func classifyOrderError(symbol string, err error) error {
	if err == nil {
		return nil
	}

	if isTimeout(err) {
		return &domain.OrderRejection{Kind: domain.RejectionTimeout, Symbol: symbol, Message: err.Error()}
	}

	var apiErr *sdk.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	return &domain.OrderRejection{
		Kind:       rejectionKind(apiErr),
		Symbol:     symbol,
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Message,
	}
}

func rejectionKind(apiErr *sdk.APIError) domain.RejectionKind {
	msg := strings.ToLower(apiErr.Message)

	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return domain.RejectionRateLimited
	case strings.Contains(msg, "not fractionable") || strings.Contains(msg, "fractional trading is not"):
		return domain.RejectionNotFractionable
	case apiErr.Code == codeInsufficientBuyingPower || strings.Contains(msg, "insufficient"):
		return domain.RejectionInsufficientFunds
	case strings.Contains(msg, "market") && (strings.Contains(msg, "closed") || strings.Contains(msg, "hours")):
		return domain.RejectionMarketClosed
	case apiErr.StatusCode == http.StatusNotFound,
		strings.Contains(msg, "asset not found"),
		strings.Contains(msg, "could not find asset"),
		strings.Contains(msg, "not tradable"),
		strings.Contains(msg, "invalid symbol"):
		return domain.RejectionInvalidSymbol
	}
	return domain.RejectionUnknown
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isNotFound reports whether a market data lookup returned 404
func isNotFound(err error) bool {
	var apiErr *sdk.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
