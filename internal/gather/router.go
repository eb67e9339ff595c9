package gather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"mcsim/internal/domain"
)

// ErrNoFetcher reports a symbol no configured provider serves.
var ErrNoFetcher = errors.New("gather: no fetcher for symbol")

// quoteAssets are the quote currencies that mark a symbol as a crypto pair.
var quoteAssets = []string{"USDT", "USDC", "FDUSD", "BUSD", "BTC", "ETH", "BNB", "EUR", "TRY"}

// IsCryptoPair reports whether symbol looks like an exchange pair such as
// BTCUSDT.
func IsCryptoPair(symbol string) bool {
	s := strings.ToUpper(symbol)
	return lo.ContainsBy(quoteAssets, func(q string) bool {
		return len(s) > len(q) && strings.HasSuffix(s, q)
	})
}

// Router dispatches crypto pairs to one fetcher and equities to another.
// Either may be nil.
type Router struct {
	crypto Fetcher
	equity Fetcher
}

// NewRouter creates a Router.
func NewRouter(crypto, equity Fetcher) *Router {
	return &Router{crypto: crypto, equity: equity}
}

// Name identifies the router; bars are stored under the chosen fetcher's name.
func (r *Router) Name() string { return "router" }

// FetchBars loads bars from the fetcher responsible for symbol.
func (r *Router) FetchBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	f := r.equity
	if IsCryptoPair(symbol) {
		f = r.crypto
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoFetcher, symbol)
	}
	return f.FetchBars(ctx, symbol, interval, start, end)
}
