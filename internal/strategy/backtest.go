package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mcsim/internal/backtest"
	"mcsim/internal/domain"
)

var (
	// ErrUnknownStrategy is returned for a name missing from the registry.
	ErrUnknownStrategy = errors.New("strategy: unknown strategy")
	// ErrNoBars is returned when the loader has no bars in the window.
	ErrNoBars = errors.New("strategy: no bars in range")
)

// BarLoader supplies historical bars for a symbol.
type BarLoader interface {
	FetchBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error)
}

// Backtester loads historical bars and replays their closes through a named
// strategy.
type Backtester struct {
	loader   BarLoader
	registry *Registry
}

// NewBacktester creates a Backtester that reads bars from loader and looks up
// strategies in the provided registry.
func NewBacktester(loader BarLoader, registry *Registry) *Backtester {
	return &Backtester{
		loader:   loader,
		registry: registry,
	}
}

// Outcome is one Backtester run.
type Outcome struct {
	Bars   int
	Result backtest.Result
}

// Load returns the closes of the symbol's bars in [start, end].
func (bt *Backtester) Load(ctx context.Context, symbol, interval string, start, end time.Time) ([]float64, error) {
	bars, err := bt.loader.FetchBars(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("loading %s %s bars: %w", symbol, interval, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoBars, symbol, interval)
	}
	return domain.Closes(bars), nil
}

// Run executes a backtest for the named strategy over the symbol's closes in
// [start, end]. Loading failures and unknown strategies are errors; invalid
// parameters are reported through the sentinel result like every engine run.
func (bt *Backtester) Run(
	ctx context.Context,
	name, symbol, interval string,
	start, end time.Time,
	p domain.Params,
	costs backtest.Costs,
	opts ...backtest.Option,
) (Outcome, error) {
	s, ok := bt.registry.Get(name)
	if !ok {
		return Outcome{Result: backtest.Sentinel()}, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}

	prices, err := bt.Load(ctx, symbol, interval, start, end)
	if err != nil {
		return Outcome{Result: backtest.Sentinel()}, err
	}

	return Outcome{Bars: len(prices), Result: s.Backtest(prices, p, costs, opts...)}, nil
}
