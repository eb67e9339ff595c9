// Package backtest simulates a single long-only position over a closing-price
// series and reports aggregate performance statistics.
//
// Two signal variants share one engine: a fast/slow SMA crossover and an RSI
// crossing fixed buy/sell levels. Transaction costs are optional parameters of
// that engine. Every entry point is a pure function of its inputs; invalid
// input produces the Sentinel record rather than an error.
package backtest

import (
	"fmt"

	"mcsim/internal/indicator"
)

// Option configures a run.
type Option func(*options)

type options struct {
	observer      Observer
	initialEquity float64
}

func buildOptions(opts []Option) options {
	o := options{observer: nopObserver{}, initialEquity: DefaultInitialEquity}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithObserver sends run events to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithInitialEquity sets the equity drawdown is measured from.
func WithInitialEquity(equity float64) Option {
	return func(o *options) {
		if equity > 0 {
			o.initialEquity = equity
		}
	}
}

// pair is an indicator line sampled on the previous and the current bar.
type pair struct {
	prev, cur float64
}

func level(v float64) pair { return pair{prev: v, cur: v} }

// crossedAbove reports a strict upward cross of a over b.
func crossedAbove(a, b pair) bool {
	return a.cur > b.cur && a.prev <= b.prev
}

// crossedBelow reports a strict downward cross of a under b.
func crossedBelow(a, b pair) bool {
	return a.cur < b.cur && a.prev >= b.prev
}

// sample is what a signal source yields for one bar.
type sample struct {
	priceIndex int
	// skip is set when an indicator value is not available yet.
	skip bool

	entrySignal, entryRef pair
	exitSignal, exitRef   pair
}

// signalSource maps loop positions onto aligned indicator values.
type signalSource interface {
	// span returns the half-open loop range.
	span() (first, end int)
	// at returns the sample for loop position i or ErrAlignment.
	at(i int) (sample, error)
}

// simulation is the mutable state of one run, owned by the bar loop.
type simulation struct {
	costs  Costs
	obs    Observer
	pos    position
	equity equityTracker
	ledger ledger
}

// step advances the simulation by one bar. Drawdown is measured before any
// trade on the bar is applied.
func (s *simulation) step(bar int, price float64, enter, exit bool) {
	s.equity.mark(s.pos.markToMarket(price))

	switch {
	case s.pos.side == Flat && enter:
		entry, commission, ok := s.pos.open(price, s.costs)
		if !ok {
			return
		}
		s.equity.apply(-commission)
		s.ledger.trades++
		s.obs.Entered(bar, entry)
	case s.pos.side == Long && exit:
		f, ok := s.pos.close(price, s.costs)
		if !ok {
			return
		}
		s.equity.apply(f.net())
		s.ledger.record(f)
		s.obs.Exited(bar, f.exit, f.gross)
	}
}

func run(prices []float64, src signalSource, costs Costs, o options) Result {
	sim := simulation{
		costs:  costs,
		obs:    o.observer,
		equity: newEquityTracker(o.initialEquity),
	}

	first, end := src.span()
	for i := first; i < end; i++ {
		smp, err := src.at(i)
		if err != nil {
			o.observer.Rejected(err)
			return Sentinel()
		}
		if smp.skip {
			continue
		}
		if smp.priceIndex < 0 || smp.priceIndex >= len(prices) {
			o.observer.Rejected(fmt.Errorf("%w: price index %d of %d", ErrAlignment, smp.priceIndex, len(prices)))
			return Sentinel()
		}
		enter := crossedAbove(smp.entrySignal, smp.entryRef)
		exit := crossedBelow(smp.exitSignal, smp.exitRef)
		sim.step(smp.priceIndex, prices[smp.priceIndex], enter, exit)
	}

	return aggregate(sim.ledger, sim.equity, sim.pos)
}

// ---------------------------------------------------------------------------
// SMA crossover
// ---------------------------------------------------------------------------

// ValidateCrossover checks the parameters of RunCrossover.
func ValidateCrossover(n, fast, slow int, costs Costs) error {
	if fast <= 0 || slow <= 0 {
		return fmt.Errorf("%w: fast %d, slow %d must be positive", ErrInvalidPeriod, fast, slow)
	}
	if fast >= slow {
		return fmt.Errorf("%w: fast %d must be below slow %d", ErrInvalidPeriod, fast, slow)
	}
	// n > slow leaves at least two aligned readings of both averages.
	if n <= slow {
		return fmt.Errorf("%w: %d prices for slow period %d", ErrInsufficientData, n, slow)
	}
	return costs.Validate()
}

type crossoverSource struct {
	fast, slow []float64
	fastPeriod int
	offset     int
}

func (s crossoverSource) span() (int, int) {
	return s.offset + 1, len(s.fast)
}

func (s crossoverSource) at(i int) (sample, error) {
	j := i - s.offset
	if i-1 < 0 || i >= len(s.fast) || j-1 < 0 || j >= len(s.slow) {
		return sample{}, fmt.Errorf("%w: fast %d/%d, slow %d/%d", ErrAlignment, i, len(s.fast), j, len(s.slow))
	}
	fast := pair{prev: s.fast[i-1], cur: s.fast[i]}
	slow := pair{prev: s.slow[j-1], cur: s.slow[j]}
	return sample{
		priceIndex:  indicator.SMAOffset(s.fastPeriod) + i,
		entrySignal: fast,
		entryRef:    slow,
		exitSignal:  fast,
		exitRef:     slow,
	}, nil
}

// RunCrossover backtests a long-only SMA crossover: go long when the fast SMA
// crosses strictly above the slow SMA and exit when it crosses strictly below.
// Invalid parameters yield Sentinel().
func RunCrossover(prices []float64, fast, slow int, costs Costs, opts ...Option) Result {
	o := buildOptions(opts)
	if err := ValidateCrossover(len(prices), fast, slow, costs); err != nil {
		o.observer.Rejected(err)
		return Sentinel()
	}

	src := crossoverSource{
		fast:       indicator.SMA(prices, fast),
		slow:       indicator.SMA(prices, slow),
		fastPeriod: fast,
		offset:     slow - fast,
	}
	return run(prices, src, costs, o)
}

// ---------------------------------------------------------------------------
// RSI threshold
// ---------------------------------------------------------------------------

// ValidateThreshold checks the parameters of RunThreshold.
func ValidateThreshold(n, period int, buy, sell float64, costs Costs) error {
	if period <= 0 {
		return fmt.Errorf("%w: period %d must be positive", ErrInvalidPeriod, period)
	}
	if !(buy < sell) {
		return fmt.Errorf("%w: buy %v, sell %v", ErrInvalidLevels, buy, sell)
	}
	// Two consecutive readings start at index period+1.
	if n < period+2 {
		return fmt.Errorf("%w: %d prices for period %d", ErrInsufficientData, n, period)
	}
	return costs.Validate()
}

type thresholdSource struct {
	rsi       indicator.OptionalSeries
	period    int
	buy, sell float64
}

func (s thresholdSource) span() (int, int) {
	return s.period + 1, len(s.rsi)
}

func (s thresholdSource) at(i int) (sample, error) {
	if i-1 < 0 || i >= len(s.rsi) {
		return sample{}, fmt.Errorf("%w: rsi %d/%d", ErrAlignment, i, len(s.rsi))
	}
	cur, okCur := s.rsi.At(i)
	prev, okPrev := s.rsi.At(i - 1)
	if !okCur || !okPrev {
		return sample{skip: true}, nil
	}
	value := pair{prev: prev, cur: cur}
	return sample{
		priceIndex:  i,
		entrySignal: value,
		entryRef:    level(s.buy),
		exitSignal:  value,
		exitRef:     level(s.sell),
	}, nil
}

// RunThreshold backtests a long-only RSI strategy: go long when RSI crosses
// strictly above buy and exit when it crosses strictly below sell. Invalid
// parameters yield Sentinel().
func RunThreshold(prices []float64, period int, buy, sell float64, costs Costs, opts ...Option) Result {
	o := buildOptions(opts)
	if err := ValidateThreshold(len(prices), period, buy, sell, costs); err != nil {
		o.observer.Rejected(err)
		return Sentinel()
	}

	src := thresholdSource{
		rsi:    indicator.RSI(prices, period),
		period: period,
		buy:    buy,
		sell:   sell,
	}
	return run(prices, src, costs, o)
}
