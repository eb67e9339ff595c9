// Package gather fetches historical OHLCV bars from market-data providers
// and caches them in a BarStore.
package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"mcsim/internal/domain"
	"mcsim/internal/store"
)

var (
	ErrUnknownInterval = errors.New("gather: unknown interval")
	ErrInvalidRange    = errors.New("gather: end must be after start")
)

// Fetcher is the interface for all historical bar providers.
type Fetcher interface {
	// Name returns the provider identifier, also used as the storage source.
	Name() string
	// FetchBars returns bars for symbol and interval within [start, end],
	// ordered by timestamp.
	FetchBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error)
}

// IntervalDuration parses a kline interval such as "15m", "4h", "1d" or
// "1w". "1M" is approximated as 30 days.
func IntervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownInterval, interval)
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownInterval, interval)
	}
	var unit time.Duration
	switch interval[len(interval)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	case 'M':
		unit = 30 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownInterval, interval)
	}
	return time.Duration(n) * unit, nil
}

// ---------------------------------------------------------------------------
// Read-through cache
// ---------------------------------------------------------------------------

var _ Fetcher = (*CachedFetcher)(nil)

// CachedFetcher serves bars from a BarStore when the stored range covers the
// request and otherwise fetches upstream and writes the result back.
type CachedFetcher struct {
	upstream Fetcher
	store    store.BarStore
	now      func() time.Time
	log      *slog.Logger
}

// Cached wraps upstream with a read-through cache in s.
func Cached(upstream Fetcher, s store.BarStore, log *slog.Logger) *CachedFetcher {
	if log == nil {
		log = slog.Default()
	}
	return &CachedFetcher{
		upstream: upstream,
		store:    s,
		now:      time.Now,
		log:      log.With("component", "gather", "source", upstream.Name()),
	}
}

// Name returns the upstream provider name.
func (c *CachedFetcher) Name() string { return c.upstream.Name() }

// FetchBars implements Fetcher.
func (c *CachedFetcher) FetchBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	if !end.After(start) {
		return nil, ErrInvalidRange
	}
	step, err := IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	source := domain.Source(c.upstream.Name())

	cached, err := c.store.ReadBars(ctx, source, symbol, interval, start, end)
	if err != nil {
		c.log.Warn("cache read failed", "symbol", symbol, "interval", interval, "error", err)
	} else if c.covers(cached, start, end, step) {
		c.log.Debug("cache hit", "symbol", symbol, "interval", interval, "bars", len(cached))
		return cached, nil
	}

	bars, err := c.upstream.FetchBars(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	if err := c.store.WriteBars(ctx, source, bars); err != nil {
		c.log.Warn("cache write failed", "symbol", symbol, "interval", interval, "error", err)
	}
	c.log.Info("fetched bars", "symbol", symbol, "interval", interval, "bars", len(bars))
	return bars, nil
}

// covers reports whether bars span [start, end] to within one interval at
// either edge. The end is capped at the current time.
func (c *CachedFetcher) covers(bars []domain.Bar, start, end time.Time, step time.Duration) bool {
	if len(bars) == 0 {
		return false
	}
	if now := c.now(); end.After(now) {
		end = now
	}
	first, last := bars[0].Timestamp, bars[len(bars)-1].Timestamp
	return first.Sub(start) < step && end.Sub(last) < 2*step
}
