package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mcsim/internal/backtest"
	"mcsim/internal/domain"
	"mcsim/internal/gather"
	"mcsim/internal/indicator"
	"mcsim/internal/montecarlo"
	"mcsim/internal/optimize"
	"mcsim/internal/strategy"
)

const (
	defaultInterval = "1d"
	defaultLookback = 365 * 24 * time.Hour
)

func badGateway(err error) error { return &statusError{status: http.StatusBadGateway, err: err} }

// classify attaches a status to errors coming out of the engine packages.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, strategy.ErrUnknownStrategy):
		return notFound(err)
	case errors.Is(err, optimize.ErrUnsupportedStrategy),
		errors.Is(err, optimize.ErrEmptyGrid),
		errors.Is(err, montecarlo.ErrNotEnoughHistory),
		errors.Is(err, montecarlo.ErrInvalidRequest),
		errors.Is(err, backtest.ErrInvalidPeriod),
		errors.Is(err, backtest.ErrInvalidLevels),
		errors.Is(err, backtest.ErrInsufficientData),
		errors.Is(err, backtest.ErrNegativeCost):
		return badRequest(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return unavailable(err)
	default:
		return err
	}
}

// prices resolves a PriceSource to closing prices.
func (s *Server) prices(ctx context.Context, src PriceSource) ([]float64, error) {
	if len(src.Prices) > 0 {
		return src.Prices, nil
	}
	if src.Symbol == "" {
		return nil, badRequest(errors.New("either prices or symbol is required"))
	}
	if s.loader == nil {
		return nil, unavailable(errors.New("no market data source configured"))
	}

	interval := src.Interval
	if interval == "" {
		interval = defaultInterval
	}
	end := src.End
	if end.IsZero() {
		end = s.now().UTC()
	}
	start := src.Start
	if start.IsZero() {
		start = end.Add(-defaultLookback)
	}

	bars, err := s.loader.FetchBars(ctx, src.Symbol, interval, start, end)
	switch {
	case errors.Is(err, gather.ErrUnknownInterval), errors.Is(err, gather.ErrInvalidRange), errors.Is(err, gather.ErrNoFetcher):
		return nil, badRequest(err)
	case err != nil:
		return nil, badGateway(fmt.Errorf("loading %s %s bars: %w", src.Symbol, interval, err))
	case len(bars) == 0:
		return nil, notFound(fmt.Errorf("no %s bars for %s between %s and %s",
			interval, src.Symbol, start.Format(time.DateOnly), end.Format(time.DateOnly)))
	}
	return domain.Closes(bars), nil
}

func (s *Server) costs(c *backtest.Costs) (backtest.Costs, error) {
	costs := s.defaults.Costs
	if c != nil {
		costs = *c
	}
	if err := costs.Validate(); err != nil {
		return costs, badRequest(err)
	}
	return costs, nil
}

func (s *Server) lookup(name string) (strategy.Strategy, error) {
	strat, ok := s.registry.Get(name)
	if !ok {
		return nil, notFound(fmt.Errorf("%w: %q", strategy.ErrUnknownStrategy, name))
	}
	return strat, nil
}

// SMA evaluates the simple moving average of the request's prices.
func (s *Server) SMA(ctx context.Context, req IndicatorRequest) (SMAResponse, error) {
	if req.Period <= 0 {
		return SMAResponse{}, badRequest(fmt.Errorf("%w: %d", backtest.ErrInvalidPeriod, req.Period))
	}
	prices, err := s.prices(ctx, req.PriceSource)
	if err != nil {
		return SMAResponse{}, err
	}
	values := indicator.SMA(prices, req.Period)
	if values == nil {
		values = []float64{}
	}
	return SMAResponse{Period: req.Period, Offset: indicator.SMAOffset(req.Period), Values: values}, nil
}

// RSI evaluates Wilder's RSI of the request's prices.
func (s *Server) RSI(ctx context.Context, req IndicatorRequest) (RSIResponse, error) {
	if req.Period <= 0 {
		return RSIResponse{}, badRequest(fmt.Errorf("%w: %d", backtest.ErrInvalidPeriod, req.Period))
	}
	prices, err := s.prices(ctx, req.PriceSource)
	if err != nil {
		return RSIResponse{}, err
	}
	series := indicator.RSI(prices, req.Period)
	values := make([]*float64, len(series))
	for i := range series {
		if v, ok := series.At(i); ok {
			values[i] = &v
		}
	}
	return RSIResponse{Period: req.Period, Values: values}, nil
}

// Backtest runs the named strategy once. Parameters the engine would reject
// are reported as a request error instead of the failed record.
func (s *Server) Backtest(ctx context.Context, name string, req BacktestRequest) (BacktestResponse, error) {
	strat, err := s.lookup(name)
	if err != nil {
		return BacktestResponse{}, err
	}
	costs, err := s.costs(req.Costs)
	if err != nil {
		return BacktestResponse{}, err
	}
	equity := req.InitialEquity
	if equity == 0 {
		equity = s.defaults.InitialEquity
	}
	if !(equity > 0) {
		return BacktestResponse{}, badRequest(fmt.Errorf("initial equity must be positive, got %v", equity))
	}
	prices, err := s.prices(ctx, req.PriceSource)
	if err != nil {
		return BacktestResponse{}, err
	}
	if err := strat.Validate(len(prices), req.Params, costs); err != nil {
		return BacktestResponse{}, badRequest(err)
	}

	res := strat.Backtest(prices, req.Params, costs, backtest.WithInitialEquity(equity))
	s.log.Debug("backtest",
		"strategy", name,
		"bars", len(prices),
		"trades", res.Trades,
		"profit_factor", res.ProfitFactor,
	)
	return BacktestResponse{
		Strategy: name,
		Bars:     len(prices),
		Params:   req.Params,
		Costs:    costs,
		Result:   res,
	}, nil
}

// Optimize runs a grid search, broadcasting progress to WebSocket clients,
// and records the run when a run store is configured.
func (s *Server) Optimize(ctx context.Context, req OptimizeRequest) (OptimizeResponse, error) {
	if _, err := s.lookup(req.Strategy); err != nil {
		return OptimizeResponse{}, err
	}
	costs, err := s.costs(req.Costs)
	if err != nil {
		return OptimizeResponse{}, err
	}
	topN := req.TopN
	if topN <= 0 {
		topN = s.defaults.TopN
	}
	oreq := optimize.Request{
		Strategy:  req.Strategy,
		Fast:      req.Fast,
		Slow:      req.Slow,
		Period:    req.Period,
		BuyLevel:  req.BuyLevel,
		SellLevel: req.SellLevel,
		Costs:     costs,
		TopN:      topN,
	}
	size, err := oreq.Size()
	if err != nil {
		return OptimizeResponse{}, classify(err)
	}
	if s.limits.MaxCombinations > 0 && size > s.limits.MaxCombinations {
		return OptimizeResponse{}, badRequest(fmt.Errorf("grid has %d combinations, limit is %d", size, s.limits.MaxCombinations))
	}
	prices, err := s.prices(ctx, req.PriceSource)
	if err != nil {
		return OptimizeResponse{}, err
	}

	report, err := s.optimizer.Run(ctx, prices, oreq, func(p optimize.Progress) {
		s.hub.Publish(Event{Type: EventOptimizeProgress, Data: p})
	})
	if err != nil {
		return OptimizeResponse{}, classify(err)
	}

	resp := OptimizeResponse{Report: report}
	if s.runs != nil {
		id, err := s.runs.SaveOptimization(ctx, domain.OptimizationRun{
			Strategy:       req.Strategy,
			Symbol:         req.Symbol,
			Interval:       req.Interval,
			Bars:           len(prices),
			CommissionRate: costs.CommissionRate,
			Slippage:       costs.Slippage,
			Tested:         report.Tested,
			Total:          report.Total,
			Top:            report.Top,
			CreatedAt:      s.now().UTC(),
		})
		if err != nil {
			s.log.Error("saving optimization run", "strategy", req.Strategy, "error", err)
		} else {
			resp.RunID = id
		}
	}
	s.hub.Publish(Event{Type: EventOptimizeDone, Data: resp})
	return resp, nil
}

// MonteCarlo validates a parameter set on bootstrapped price paths and
// records the run when a run store is configured. Without a seed in the
// request one is derived from the clock and echoed in the response.
func (s *Server) MonteCarlo(ctx context.Context, req MonteCarloRequest) (MonteCarloResponse, error) {
	strat, err := s.lookup(req.Strategy)
	if err != nil {
		return MonteCarloResponse{}, err
	}
	costs, err := s.costs(req.Costs)
	if err != nil {
		return MonteCarloResponse{}, err
	}
	iterations := req.Iterations
	if iterations == 0 {
		iterations = s.defaults.Iterations
	}
	bars := req.BarsPerSim
	if bars == 0 {
		bars = s.defaults.BarsPerSim
	}
	if iterations <= 0 || bars <= 0 {
		return MonteCarloResponse{}, badRequest(fmt.Errorf("%w: iterations=%d bars=%d", montecarlo.ErrInvalidRequest, iterations, bars))
	}
	if s.limits.MaxIterations > 0 && iterations > s.limits.MaxIterations {
		return MonteCarloResponse{}, badRequest(fmt.Errorf("%d iterations requested, limit is %d", iterations, s.limits.MaxIterations))
	}
	// Every simulated path has bars+1 prices.
	if err := strat.Validate(bars+1, req.Params, costs); err != nil {
		return MonteCarloResponse{}, badRequest(err)
	}
	seed := uint64(s.now().UnixNano())
	if req.Seed != nil {
		seed = *req.Seed
	}
	prices, err := s.prices(ctx, req.PriceSource)
	if err != nil {
		return MonteCarloResponse{}, err
	}

	report, err := s.simulator.Run(ctx, prices, montecarlo.Request{
		Strategy:   req.Strategy,
		Params:     req.Params,
		Costs:      costs,
		Iterations: iterations,
		BarsPerSim: bars,
		Seed:       seed,
	})
	if err != nil {
		return MonteCarloResponse{}, classify(err)
	}

	resp := MonteCarloResponse{
		Strategy: req.Strategy,
		Params:   req.Params,
		Seed:     seed,
		Summary:  report.Summary,
		PnLPct:   report.PnLPct,
		MaxDD:    report.MaxDrawdowns,
	}
	if s.runs != nil {
		id, err := s.runs.SaveMonteCarlo(ctx, domain.MonteCarloRun{
			Strategy:  req.Strategy,
			Symbol:    req.Symbol,
			Params:    req.Params,
			Seed:      seed,
			Summary:   report.Summary,
			CreatedAt: s.now().UTC(),
		})
		if err != nil {
			s.log.Error("saving monte carlo run", "strategy", req.Strategy, "error", err)
		} else {
			resp.RunID = id
		}
	}
	s.hub.Publish(Event{Type: EventMonteCarloDone, Data: resp.Summary})
	return resp, nil
}
