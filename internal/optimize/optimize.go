// Package optimize runs grid searches over strategy parameters, fanning the
// independent backtests out on a bounded worker pool.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"mcsim/internal/backtest"
	"mcsim/internal/domain"
	"mcsim/internal/strategy"
)

// DefaultTopN is the number of candidates kept when a request leaves TopN unset.
const DefaultTopN = 5

var (
	ErrUnsupportedStrategy = errors.New("optimize: strategy has no parameter grid")
	ErrEmptyGrid           = errors.New("optimize: parameter grid is empty")
)

// Request describes a grid search.
type Request struct {
	Strategy  string         `json:"strategy"`
	Fast      Range          `json:"fast"`
	Slow      Range          `json:"slow"`
	Period    Range          `json:"period"`
	BuyLevel  float64        `json:"buy_level"`
	SellLevel float64        `json:"sell_level"`
	Costs     backtest.Costs `json:"costs"`
	TopN      int            `json:"top_n"`
}

// Progress is reported periodically while a search runs.
type Progress struct {
	Strategy string            `json:"strategy"`
	Tested   int               `json:"tested"`
	Total    int               `json:"total"`
	Best     *domain.Candidate `json:"best,omitempty"`
}

// Report is the outcome of a grid search.
type Report struct {
	Strategy string             `json:"strategy"`
	Tested   int                `json:"tested"`
	Total    int                `json:"total"`
	Top      []domain.Candidate `json:"top"`
}

// Optimizer runs grid searches against strategies from a registry.
type Optimizer struct {
	registry *strategy.Registry
	workers  int
	log      *slog.Logger
}

// New creates an Optimizer. A workers value <= 0 uses GOMAXPROCS.
func New(registry *strategy.Registry, workers int, log *slog.Logger) *Optimizer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Optimizer{
		registry: registry,
		workers:  workers,
		log:      log.With("component", "optimize"),
	}
}

// Run tests every parameter set in the request's grid over prices. Results
// that come back as the failed record are counted as tested but never
// ranked. progress may be nil; calls to it are serialized.
//
// On cancellation Run returns the partial report together with ctx's error.
func (o *Optimizer) Run(ctx context.Context, prices []float64, req Request, progress func(Progress)) (Report, error) {
	report := Report{Strategy: req.Strategy}

	s, ok := o.registry.Get(req.Strategy)
	if !ok {
		return report, fmt.Errorf("%w: %q", strategy.ErrUnknownStrategy, req.Strategy)
	}
	if err := req.Costs.Validate(); err != nil {
		return report, err
	}
	combos, err := grid(req)
	if err != nil {
		return report, fmt.Errorf("%w: %q", err, req.Strategy)
	}
	if len(combos) == 0 {
		return report, ErrEmptyGrid
	}

	topN := req.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	report.Total = len(combos)
	every := report.Total/50 + 1

	o.log.Info("optimization started",
		"strategy", req.Strategy,
		"combinations", report.Total,
		"bars", len(prices),
		"workers", o.workers,
	)

	var (
		mu     sync.Mutex
		tested int
		board  = newLeaderboard(topN)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, p := range combos {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := s.Backtest(prices, p, req.Costs)

			mu.Lock()
			defer mu.Unlock()
			tested++
			if !res.Failed() {
				board.offer(domain.Candidate{Params: p, Score: res.ProfitFactor, Trades: res.Trades})
			}
			if progress != nil && (tested%every == 0 || tested == report.Total) {
				progress(Progress{Strategy: req.Strategy, Tested: tested, Total: report.Total, Best: board.best()})
			}
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	report.Tested = tested
	report.Top = board.snapshot()

	if err != nil {
		o.log.Warn("optimization cancelled", "strategy", req.Strategy, "tested", tested, "error", err)
		return report, err
	}

	o.log.Info("optimization finished", "strategy", req.Strategy, "tested", tested, "ranked", len(report.Top))
	return report, nil
}
