// Package montecarlo validates a strategy parameter set by bootstrapping
// historical returns into synthetic price paths and backtesting each path.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"mcsim/internal/backtest"
	"mcsim/internal/domain"
	"mcsim/internal/strategy"
)

// fallbackStartPrice seeds paths when the last historical close is zero.
const fallbackStartPrice = 100.0

var (
	ErrNotEnoughHistory = errors.New("montecarlo: at least two historical prices are required")
	ErrInvalidRequest   = errors.New("montecarlo: iterations and bars per simulation must be positive")
)

// Request describes one validation run.
type Request struct {
	Strategy   string         `json:"strategy"`
	Params     domain.Params  `json:"params"`
	Costs      backtest.Costs `json:"costs"`
	Iterations int            `json:"iterations"`
	BarsPerSim int            `json:"bars_per_sim"`
	Seed       uint64         `json:"seed"`
}

// Report carries the summary and the per-iteration distributions in
// iteration order.
type Report struct {
	Summary      domain.MonteCarloSummary `json:"summary"`
	PnLPct       []float64                `json:"pnl_pct"`
	MaxDrawdowns []float64                `json:"max_drawdowns"`
}

// Simulator runs Monte Carlo validations against strategies from a registry.
type Simulator struct {
	registry *strategy.Registry
	workers  int
	log      *slog.Logger
}

// New creates a Simulator. A workers value <= 0 uses GOMAXPROCS.
func New(registry *strategy.Registry, workers int, log *slog.Logger) *Simulator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Simulator{
		registry: registry,
		workers:  workers,
		log:      log.With("component", "montecarlo"),
	}
}

// Run bootstraps req.Iterations paths of req.BarsPerSim bars from the
// returns of prices, starting at the last close. Each iteration draws from
// its own generator derived from (req.Seed, i) so the report does not depend
// on scheduling. Iterations whose backtest fails count as 0% PnL and 100%
// drawdown.
func (s *Simulator) Run(ctx context.Context, prices []float64, req Request) (Report, error) {
	strat, ok := s.registry.Get(req.Strategy)
	if !ok {
		return Report{}, fmt.Errorf("%w: %q", strategy.ErrUnknownStrategy, req.Strategy)
	}
	if len(prices) < 2 {
		return Report{}, ErrNotEnoughHistory
	}
	if req.Iterations <= 0 || req.BarsPerSim <= 0 {
		return Report{}, fmt.Errorf("%w: iterations=%d bars=%d", ErrInvalidRequest, req.Iterations, req.BarsPerSim)
	}
	if err := req.Costs.Validate(); err != nil {
		return Report{}, err
	}

	changes := PercentChanges(prices)
	start := prices[len(prices)-1]
	if start == 0 {
		start = fallbackStartPrice
	}

	s.log.Info("monte carlo started",
		"strategy", req.Strategy,
		"iterations", req.Iterations,
		"bars_per_sim", req.BarsPerSim,
		"seed", req.Seed,
	)

	pnl := make([]float64, req.Iterations)
	dd := make([]float64, req.Iterations)
	failed := make([]bool, req.Iterations)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range req.Iterations {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := SimulatePath(iterationRNG(req.Seed, i), changes, req.BarsPerSim, start)
			res := strat.Backtest(path, req.Params, req.Costs)
			if res.Failed() {
				pnl[i], dd[i], failed[i] = 0, 100, true
				return nil
			}
			pnl[i] = res.NetProfit() / backtest.DefaultInitialEquity * 100
			dd[i] = res.MaxDrawdown
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.log.Warn("monte carlo cancelled", "strategy", req.Strategy, "error", err)
		return Report{}, err
	}

	summary := summarize(pnl, dd, failed)
	summary.Iterations = req.Iterations
	summary.BarsPerSim = req.BarsPerSim
	summary.Failed = lo.Count(failed, true)

	s.log.Info("monte carlo finished",
		"strategy", req.Strategy,
		"avg_pnl_pct", summary.AvgPnLPct,
		"median_max_dd", summary.MedianMaxDD,
		"failed", summary.Failed,
	)

	return Report{Summary: summary, PnLPct: pnl, MaxDrawdowns: dd}, nil
}

// summarize computes the distribution statistics. Drawdown statistics skip
// failed iterations; when every iteration failed they read 100.
func summarize(pnl, dd []float64, failed []bool) domain.MonteCarloSummary {
	var out domain.MonteCarloSummary
	if len(pnl) > 0 {
		sorted := sortedCopy(pnl)
		out.AvgPnLPct = mean(pnl)
		out.MedianPnLPct = percentile(sorted, 0.5)
		out.PnL05Pct = percentile(sorted, 0.05)
		out.PnL10Pct = percentile(sorted, 0.10)
	}

	valid := lo.Filter(dd, func(_ float64, i int) bool { return !failed[i] })
	if len(valid) == 0 {
		out.AvgMaxDD, out.MedianMaxDD, out.MaxDD95 = 100, 100, 100
		return out
	}
	sorted := sortedCopy(valid)
	out.AvgMaxDD = mean(valid)
	out.MedianMaxDD = percentile(sorted, 0.5)
	out.MaxDD95 = percentile(sorted, 0.95)
	return out
}

func sortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

func mean(xs []float64) float64 {
	return lo.Sum(xs) / float64(len(xs))
}

// percentile picks sorted[floor(n*q)], clamped to the last element.
func percentile(sorted []float64, q float64) float64 {
	i := int(math.Floor(float64(len(sorted)) * q))
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}
