package builtins

import (
	"mcsim/internal/backtest"
	"mcsim/internal/domain"
	"mcsim/internal/strategy"
)

var _ strategy.Strategy = (*RSIThreshold)(nil)

const (
	// RSIName is the registry name of RSIThreshold.
	RSIName = "rsi"

	DefaultBuyLevel  = 30.0
	DefaultSellLevel = 70.0
)

// RSIThreshold goes long when RSI recovers above BuyLevel and exits when it
// falls back below SellLevel. When both levels are zero the classic 30/70
// levels are used.
type RSIThreshold struct{}

// NewRSIThreshold creates a new RSIThreshold strategy.
func NewRSIThreshold() *RSIThreshold {
	return &RSIThreshold{}
}

// Name returns "rsi".
func (s *RSIThreshold) Name() string {
	return RSIName
}

// Validate checks Period and the levels against the price count.
func (s *RSIThreshold) Validate(n int, p domain.Params, costs backtest.Costs) error {
	p = withDefaultLevels(p)
	return backtest.ValidateThreshold(n, p.Period, p.BuyLevel, p.SellLevel, costs)
}

// Backtest runs the threshold engine with p.Period and the levels.
func (s *RSIThreshold) Backtest(prices []float64, p domain.Params, costs backtest.Costs, opts ...backtest.Option) backtest.Result {
	p = withDefaultLevels(p)
	return backtest.RunThreshold(prices, p.Period, p.BuyLevel, p.SellLevel, costs, opts...)
}

func withDefaultLevels(p domain.Params) domain.Params {
	if p.BuyLevel == 0 && p.SellLevel == 0 {
		p.BuyLevel = DefaultBuyLevel
		p.SellLevel = DefaultSellLevel
	}
	return p
}
