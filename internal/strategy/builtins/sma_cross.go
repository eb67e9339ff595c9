// Package builtins provides the strategy implementations that ship with the
// platform.
package builtins

import (
	"mcsim/internal/backtest"
	"mcsim/internal/domain"
	"mcsim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACrossName is the registry name of SMACross.
const SMACrossName = "sma-cross"

// SMACross implements a simple moving average crossover strategy. It goes
// long when the Fast-period SMA crosses above the Slow-period SMA and exits
// when it crosses below.
type SMACross struct{}

// NewSMACross creates a new SMACross strategy.
func NewSMACross() *SMACross {
	return &SMACross{}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return SMACrossName
}

// Validate checks Fast and Slow against the price count.
func (s *SMACross) Validate(n int, p domain.Params, costs backtest.Costs) error {
	return backtest.ValidateCrossover(n, p.Fast, p.Slow, costs)
}

// Backtest runs the crossover engine with p.Fast and p.Slow.
func (s *SMACross) Backtest(prices []float64, p domain.Params, costs backtest.Costs, opts ...backtest.Option) backtest.Result {
	return backtest.RunCrossover(prices, p.Fast, p.Slow, costs, opts...)
}

// Registry returns a registry holding every builtin strategy.
func Registry() *strategy.Registry {
	r := strategy.NewRegistry()
	r.Register(NewSMACross())
	r.Register(NewRSIThreshold())
	return r
}
