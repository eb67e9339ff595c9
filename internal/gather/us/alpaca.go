// Package us fetches daily bars for US equities from the Alpaca market-data
// API.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"mcsim/internal/domain"
	"mcsim/internal/gather"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.Fetcher = (*DailyBarFetcher)(nil)
var _ barsClient = (*marketdata.Client)(nil)

// DailyInterval is the only interval DailyBarFetcher serves.
const DailyInterval = "1d"

// barsClient is the subset of the Alpaca market-data client we use.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// DailyBarFetcher fetches daily OHLCV bars for a single US equity symbol via
// the Alpaca market-data API.
type DailyBarFetcher struct {
	client barsClient
	feed   marketdata.Feed
	log    *slog.Logger
}

// NewDailyBarFetcher creates a DailyBarFetcher configured with the given
// Alpaca credentials. dataURL and feed may be empty for the defaults.
func NewDailyBarFetcher(apiKey, apiSecret, dataURL, feed string) *DailyBarFetcher {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return newDailyBarFetcher(marketdata.NewClient(opts), feed)
}

func newDailyBarFetcher(client barsClient, feed string) *DailyBarFetcher {
	if feed == "" {
		feed = "iex"
	}
	return &DailyBarFetcher{
		client: client,
		feed:   marketdata.Feed(feed),
		log:    slog.Default().With("component", "alpaca"),
	}
}

// Name returns "alpaca".
func (f *DailyBarFetcher) Name() string { return string(domain.SourceAlpaca) }

// FetchBars returns split-adjusted daily bars for symbol within [start, end].
func (f *DailyBarFetcher) FetchBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	if interval != DailyInterval {
		return nil, fmt.Errorf("%w: alpaca serves %q only, got %q", gather.ErrUnknownInterval, DailyInterval, interval)
	}
	if !end.After(start) {
		return nil, gather.ErrInvalidRange
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	symbol = strings.ToUpper(symbol)
	alpacaBars, err := f.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      start,
		End:        end,
		Feed:       f.feed,
		Adjustment: marketdata.Split,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Interval:  DailyInterval,
			Timestamp: ab.Timestamp.UTC(),
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    float64(ab.Volume),
		})
	}
	f.log.Debug("daily bars fetched", "symbol", symbol, "bars", len(bars))
	return bars, nil
}
