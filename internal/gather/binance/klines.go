// Package binance fetches historical klines from the Binance spot REST API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mcsim/internal/domain"
	"mcsim/internal/gather"
	"mcsim/internal/util"
)

var _ gather.Fetcher = (*KlineFetcher)(nil)

const (
	// DefaultBaseURL is the public Binance spot API.
	DefaultBaseURL = "https://api.binance.com"

	// PageLimit is the maximum number of klines Binance returns per request.
	PageLimit = 1000

	klinesPath = "/api/v3/klines"
)

// KlineFetcher pages through /api/v3/klines.
type KlineFetcher struct {
	baseURL string
	hc      *http.Client
	limiter *util.RateLimiter
	retry   util.RetryPolicy
	log     *slog.Logger
}

// Option configures a KlineFetcher.
type Option func(*KlineFetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) Option { return func(f *KlineFetcher) { f.hc = hc } }

// WithRateLimiter throttles page requests.
func WithRateLimiter(rl *util.RateLimiter) Option { return func(f *KlineFetcher) { f.limiter = rl } }

// WithRetryPolicy sets how each page request is retried.
func WithRetryPolicy(p util.RetryPolicy) Option { return func(f *KlineFetcher) { f.retry = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(f *KlineFetcher) { f.log = l } }

// NewKlineFetcher creates a fetcher against baseURL, or DefaultBaseURL when
// empty.
func NewKlineFetcher(baseURL string, opts ...Option) *KlineFetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	f := &KlineFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 20 * time.Second},
		limiter: util.NewRateLimiter(600, 5),
		retry:   util.DefaultRetryPolicy,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With("component", "binance")
	return f
}

// Name returns "binance".
func (f *KlineFetcher) Name() string { return string(domain.SourceBinance) }

// FetchBars returns the klines of symbol whose open time lies in
// [start, end], following Binance's pagination until the window is
// exhausted.
func (f *KlineFetcher) FetchBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if _, err := gather.IntervalDuration(interval); err != nil {
		return nil, err
	}
	startMs, endMs := start.UnixMilli(), end.UnixMilli()
	if endMs <= startMs {
		return nil, gather.ErrInvalidRange
	}
	symbol = strings.ToUpper(symbol)

	var out []domain.Bar
	for page := 1; ; page++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var rows []klineRow
		err := util.Retry(ctx, f.retry, func() error {
			var err error
			rows, err = f.fetchPage(ctx, symbol, interval, startMs, endMs)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("fetching %s %s klines page %d: %w", symbol, interval, page, err)
		}
		if len(rows) == 0 {
			break
		}

		var lastCloseMs int64
		for _, r := range rows {
			bar, closeMs, ok := r.bar(symbol, interval)
			if !ok {
				continue
			}
			out = append(out, bar)
			lastCloseMs = closeMs
		}
		f.log.Debug("page fetched", "symbol", symbol, "interval", interval, "page", page, "rows", len(rows))

		if lastCloseMs == 0 || len(rows) < PageLimit {
			break
		}
		next := lastCloseMs + 1
		if next >= endMs {
			break
		}
		startMs = next
	}
	return out, nil
}

func (f *KlineFetcher) fetchPage(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]klineRow, error) {
	u, err := url.Parse(f.baseURL + klinesPath)
	if err != nil {
		return nil, util.Permanent(err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(PageLimit))
	q.Set("startTime", strconv.FormatInt(startMs, 10))
	q.Set("endTime", strconv.FormatInt(endMs, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, util.Permanent(err)
	}
	resp, err := f.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("binance klines http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		// 429 and 418 are rate-limit responses and 5xx are transient.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusTeapot {
			return nil, util.Permanent(err)
		}
		return nil, err
	}

	var rows []klineRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, util.Permanent(fmt.Errorf("decoding klines: %w", err))
	}
	return rows, nil
}

// klineRow is one positional kline array:
// [openTime, open, high, low, close, volume, closeTime, ...].
type klineRow []any

func (r klineRow) bar(symbol, interval string) (domain.Bar, int64, bool) {
	if len(r) < 7 {
		return domain.Bar{}, 0, false
	}
	openMs, ok1 := toInt64(r[0])
	open, ok2 := toFloat(r[1])
	high, ok3 := toFloat(r[2])
	low, ok4 := toFloat(r[3])
	closeP, ok5 := toFloat(r[4])
	volume, ok6 := toFloat(r[5])
	closeMs, ok7 := toInt64(r[6])
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7) {
		return domain.Bar{}, 0, false
	}
	return domain.Bar{
		Symbol:    symbol,
		Interval:  interval,
		Timestamp: time.UnixMilli(openMs).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
	}, closeMs, true
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case string:
		i, err := strconv.ParseInt(t, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
