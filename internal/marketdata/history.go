package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/rs/zerolog"
)

const (
	// DefaultBatchSize is the number of symbols per multi-symbol bars request
	DefaultBatchSize = 50
	// DefaultCacheTTL keeps daily bars until the next session
	DefaultCacheTTL = 12 * time.Hour
)

// HistoryProvider fetches daily bars for many symbols with batching and caching.
// Universes larger than BatchSize are fetched with multi-symbol requests;
// smaller ones use one request per symbol.
type HistoryProvider struct {
	client    domain.MarketDataClient
	cache     BarCache // Optional
	batchSize int
	cacheTTL  time.Duration
	log       zerolog.Logger
}

// NewHistoryProvider creates a provider. cache may be nil.
func NewHistoryProvider(client domain.MarketDataClient, cache BarCache, log zerolog.Logger) *HistoryProvider {
	return &HistoryProvider{
		client:    client,
		cache:     cache,
		batchSize: DefaultBatchSize,
		cacheTTL:  DefaultCacheTTL,
		log:       log.With().Str("service", "history_provider").Logger(),
	}
}

// SetBatchSize overrides the batch size (mainly for tests)
func (p *HistoryProvider) SetBatchSize(n int) {
	if n > 0 {
		p.batchSize = n
	}
}

// Bars returns daily bars per symbol between start and end.
// Symbols that could not be fetched are absent from the result.
func (p *HistoryProvider) Bars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.BrokerOHLCV, error) {
	unique := dedupe(symbols)
	out := make(map[string][]domain.BrokerOHLCV, len(unique))

	missing := make([]string, 0, len(unique))
	for _, symbol := range unique {
		if bars, ok := p.fromCache(ctx, symbol, start, end); ok {
			out[symbol] = bars
			continue
		}
		missing = append(missing, symbol)
	}

	if len(missing) == 0 {
		return out, nil
	}

	var fetched map[string][]domain.BrokerOHLCV
	if len(missing) > p.batchSize {
		fetched = p.fetchBatched(ctx, missing, start, end)
	} else {
		fetched = p.fetchEach(ctx, missing, start, end)
	}

	for symbol, bars := range fetched {
		if len(bars) == 0 {
			continue
		}
		out[symbol] = bars
		p.toCache(ctx, symbol, start, end, bars)
	}

	p.log.Debug().
		Int("requested", len(unique)).
		Int("cached", len(unique)-len(missing)).
		Int("fetched", len(fetched)).
		Msg("Loaded price history")

	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	return out, nil
}

func (p *HistoryProvider) fetchBatched(ctx context.Context, symbols []string, start, end time.Time) map[string][]domain.BrokerOHLCV {
	out := make(map[string][]domain.BrokerOHLCV, len(symbols))

	for i := 0; i < len(symbols); i += p.batchSize {
		j := i + p.batchSize
		if j > len(symbols) {
			j = len(symbols)
		}
		chunk := symbols[i:j]

		bars, err := p.client.GetMultiHistoricalPrices(ctx, chunk, start, end, domain.TimeframeDay)
		if err != nil {
			p.log.Warn().Err(err).Int("chunk_size", len(chunk)).Msg("Batched history request failed, falling back to per-symbol")
			for symbol, b := range p.fetchEach(ctx, chunk, start, end) {
				out[symbol] = b
			}
			continue
		}
		for symbol, b := range bars {
			out[strings.ToUpper(symbol)] = b
		}
	}
	return out
}

func (p *HistoryProvider) fetchEach(ctx context.Context, symbols []string, start, end time.Time) map[string][]domain.BrokerOHLCV {
	out := make(map[string][]domain.BrokerOHLCV, len(symbols))
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		bars, err := p.client.GetHistoricalPrices(ctx, symbol, start, end, domain.TimeframeDay)
		if err != nil {
			p.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch price history")
			continue
		}
		out[symbol] = bars
	}
	return out
}

func (p *HistoryProvider) fromCache(ctx context.Context, symbol string, start, end time.Time) ([]domain.BrokerOHLCV, bool) {
	if p.cache == nil {
		return nil, false
	}
	bars, ok, err := p.cache.Get(ctx, barsKey(symbol, domain.TimeframeDay, start, end))
	if err != nil {
		p.log.Warn().Err(err).Str("symbol", symbol).Msg("Bar cache read failed")
		return nil, false
	}
	return bars, ok && len(bars) > 0
}

func (p *HistoryProvider) toCache(ctx context.Context, symbol string, start, end time.Time, bars []domain.BrokerOHLCV) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, barsKey(symbol, domain.TimeframeDay, start, end), bars, p.cacheTTL); err != nil {
		p.log.Warn().Err(err).Str("symbol", symbol).Msg("Bar cache write failed")
	}
}

// PriceSource names where a resolved price came from
type PriceSource string

const (
	PriceSourceTrade PriceSource = "latest_trade"
	PriceSourceQuote PriceSource = "quote_midpoint"
)

// LatestPrice resolves a current price using the latest trade, then the
// latest quote midpoint. Returns domain.ErrNoPriceData when both fail.
func LatestPrice(ctx context.Context, client domain.MarketDataClient, symbol string) (float64, PriceSource, error) {
	price, tradeErr := client.GetLatestTradePrice(ctx, symbol)
	if tradeErr == nil && price > 0 {
		return price, PriceSourceTrade, nil
	}

	quote, quoteErr := client.GetLatestQuote(ctx, symbol)
	if quoteErr == nil && quote != nil {
		if mid := quote.Midpoint(); mid > 0 {
			return mid, PriceSourceQuote, nil
		}
	}

	// Transport failures are wrapped into ErrNoPriceData
	var detail error
	for _, err := range []error{tradeErr, quoteErr} {
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			detail = err
		}
	}
	if detail != nil {
		return 0, "", fmt.Errorf("%w for %s: %v", domain.ErrNoPriceData, symbol, detail)
	}
	return 0, "", fmt.Errorf("%w for %s", domain.ErrNoPriceData, symbol)
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(s)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
