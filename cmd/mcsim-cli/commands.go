package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"mcsim/internal/backtest"
	"mcsim/internal/domain"
	"mcsim/internal/montecarlo"
	"mcsim/internal/optimize"
	"mcsim/internal/strategy/builtins"
	"mcsim/pkg/mcsim"
)

func (a *app) strategies(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("strategies", flag.ExitOnError)
	server := fs.String("server", "", "mcsim-server base URL; queries the server when set")
	fs.Parse(args)

	names := builtins.Registry().List()
	if *server != "" {
		var err error
		if names, err = mcsim.NewClient(*server).Strategies(ctx); err != nil {
			return err
		}
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func (a *app) backtest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	var (
		data   dataFlags
		costs  costFlags
		params paramFlags
	)
	data.register(fs)
	costs.register(fs, a.cfg.Backtest.Costs)
	params.register(fs)
	equity := fs.Float64("equity", a.cfg.Backtest.InitialEquity, "initial equity")
	fs.Parse(args)

	if data.server != "" {
		prices, err := data.remotePrices()
		if err != nil {
			return err
		}
		c := costs.costs()
		resp, err := mcsim.NewClient(data.server).Backtest(ctx, params.strategy, mcsim.BacktestRequest{
			Prices:        prices,
			Params:        mcsim.Params(params.params()),
			Costs:         &mcsim.Costs{CommissionRate: c.CommissionRate, Slippage: c.Slippage},
			InitialEquity: *equity,
		})
		if err != nil {
			return err
		}
		printResult(resp.Bars, backtest.Result(resp.Result))
		return nil
	}

	p := params.params()
	opts := []backtest.Option{backtest.WithInitialEquity(*equity), backtest.WithObserver(backtest.LogObserver(a.log))}

	if data.csv == "" {
		if data.symbol == "" {
			return fmt.Errorf("-csv or -symbol is required")
		}
		start, end, err := data.window()
		if err != nil {
			return err
		}
		out, err := a.backtester().Run(ctx, params.strategy, data.symbol, data.interval, start, end, p, costs.costs(), opts...)
		if err != nil {
			return err
		}
		printResult(out.Bars, out.Result)
		return rejected(out.Result)
	}

	s, ok := builtins.Registry().Get(params.strategy)
	if !ok {
		return fmt.Errorf("unknown strategy %q", params.strategy)
	}
	prices, err := a.prices(ctx, &data)
	if err != nil {
		return err
	}
	res := s.Backtest(prices, p, costs.costs(), opts...)
	printResult(len(prices), res)
	return rejected(res)
}

// rejected turns the failed record into an exit error. The observer has
// already logged the reason.
func rejected(res backtest.Result) error {
	if res.Failed() {
		return fmt.Errorf("backtest rejected the parameters")
	}
	return nil
}

func printResult(bars int, res backtest.Result) {
	fmt.Printf("Bars: %d\n", bars)
	fmt.Printf("Trades: %d\n", res.Trades)
	fmt.Printf("Profit factor: %.3f\n", res.ProfitFactor)
	fmt.Printf("Total profit: %.2f\n", res.TotalProfit)
	fmt.Printf("Total loss: %.2f\n", res.TotalLoss)
	fmt.Printf("Max drawdown: %.2f%%\n", res.MaxDrawdown)
	fmt.Printf("Final equity: %.2f\n", res.FinalEquity)
	fmt.Printf("In position: %v\n", res.InPosition)
}

// rangeFlags registers -<name>-min, -<name>-max and -<name>-step.
func rangeFlags(fs *flag.FlagSet, name string, r *optimize.Range, lo, hi int) {
	fs.IntVar(&r.Min, name+"-min", lo, name+" range start")
	fs.IntVar(&r.Max, name+"-max", hi, name+" range end (inclusive)")
	fs.IntVar(&r.Step, name+"-step", 1, name+" range step")
}

func (a *app) optimize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	var (
		data  dataFlags
		costs costFlags
	)
	var fast, slow, period optimize.Range
	data.register(fs)
	costs.register(fs, a.cfg.Backtest.Costs)
	strategy := fs.String("strategy", "sma-cross", "strategy name")
	rangeFlags(fs, "fast", &fast, 5, 50)
	rangeFlags(fs, "slow", &slow, 20, 200)
	rangeFlags(fs, "period", &period, 5, 30)
	buy := fs.Float64("buy", 30, "RSI buy level (rsi)")
	sell := fs.Float64("sell", 70, "RSI sell level (rsi)")
	top := fs.Int("top", a.cfg.Optimize.TopN, "number of candidates to keep")
	fs.Parse(args)

	if data.server != "" {
		prices, err := data.remotePrices()
		if err != nil {
			return err
		}
		c := costs.costs()
		resp, err := mcsim.NewClient(data.server).Optimize(ctx, mcsim.OptimizeRequest{
			Prices:    prices,
			Strategy:  *strategy,
			Fast:      mcsim.Range(fast),
			Slow:      mcsim.Range(slow),
			Period:    mcsim.Range(period),
			BuyLevel:  *buy,
			SellLevel: *sell,
			Costs:     &mcsim.Costs{CommissionRate: c.CommissionRate, Slippage: c.Slippage},
			TopN:      *top,
		})
		if err != nil {
			return err
		}
		cands := make([]domain.Candidate, len(resp.Top))
		for i, cand := range resp.Top {
			cands[i] = domain.Candidate{Params: domain.Params(cand.Params), Score: cand.Score, Trades: cand.Trades}
		}
		printLeaderboard(resp.Tested, resp.Total, cands)
		return nil
	}

	prices, err := a.prices(ctx, &data)
	if err != nil {
		return err
	}
	opt := optimize.New(builtins.Registry(), a.cfg.Optimize.MaxWorkers, a.log)
	report, err := opt.Run(ctx, prices, optimize.Request{
		Strategy:  *strategy,
		Fast:      fast,
		Slow:      slow,
		Period:    period,
		BuyLevel:  *buy,
		SellLevel: *sell,
		Costs:     costs.costs(),
		TopN:      *top,
	}, func(p optimize.Progress) {
		fmt.Fprintf(os.Stderr, "\rtested %d/%d", p.Tested, p.Total)
	})
	fmt.Fprintln(os.Stderr)
	printLeaderboard(report.Tested, report.Total, report.Top)
	return err
}

func printLeaderboard(tested, total int, top []domain.Candidate) {
	fmt.Printf("Tested: %d/%d\n\n", tested, total)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPARAMS\tPROFIT FACTOR\tTRADES")
	for i, c := range top {
		fmt.Fprintf(w, "%d\t%s\t%.3f\t%d\n", i+1, formatParams(c.Params), c.Score, c.Trades)
	}
	w.Flush()
}

func formatParams(p domain.Params) string {
	if p.Period > 0 {
		return fmt.Sprintf("period=%d buy=%g sell=%g", p.Period, p.BuyLevel, p.SellLevel)
	}
	return fmt.Sprintf("fast=%d slow=%d", p.Fast, p.Slow)
}

func (a *app) monteCarlo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mc", flag.ExitOnError)
	var (
		data   dataFlags
		costs  costFlags
		params paramFlags
	)
	data.register(fs)
	costs.register(fs, a.cfg.Backtest.Costs)
	params.register(fs)
	iterations := fs.Int("iterations", a.cfg.MonteCarlo.Iterations, "number of simulated paths")
	bars := fs.Int("bars", a.cfg.MonteCarlo.BarsPerSim, "bars per simulated path")
	seed := fs.Uint64("seed", 1, "random seed")
	fs.Parse(args)

	if data.server != "" {
		prices, err := data.remotePrices()
		if err != nil {
			return err
		}
		c := costs.costs()
		resp, err := mcsim.NewClient(data.server).MonteCarlo(ctx, mcsim.MonteCarloRequest{
			Prices:     prices,
			Strategy:   params.strategy,
			Params:     mcsim.Params(params.params()),
			Costs:      &mcsim.Costs{CommissionRate: c.CommissionRate, Slippage: c.Slippage},
			Iterations: *iterations,
			BarsPerSim: *bars,
			Seed:       seed,
		})
		if err != nil {
			return err
		}
		printSummary(resp.Seed, domain.MonteCarloSummary(resp.Summary))
		return nil
	}

	prices, err := a.prices(ctx, &data)
	if err != nil {
		return err
	}
	sim := montecarlo.New(builtins.Registry(), a.cfg.MonteCarlo.MaxWorkers, a.log)
	report, err := sim.Run(ctx, prices, montecarlo.Request{
		Strategy:   params.strategy,
		Params:     params.params(),
		Costs:      costs.costs(),
		Iterations: *iterations,
		BarsPerSim: *bars,
		Seed:       *seed,
	})
	if err != nil {
		return err
	}
	printSummary(*seed, report.Summary)
	return nil
}

func printSummary(seed uint64, s domain.MonteCarloSummary) {
	fmt.Printf("Seed: %d\n", seed)
	fmt.Printf("Iterations: %d (%d bars each, %d failed)\n", s.Iterations, s.BarsPerSim, s.Failed)
	fmt.Printf("Avg PnL: %.2f%%\n", s.AvgPnLPct)
	fmt.Printf("Median PnL: %.2f%%\n", s.MedianPnLPct)
	fmt.Printf("PnL 5th percentile: %.2f%%\n", s.PnL05Pct)
	fmt.Printf("PnL 10th percentile: %.2f%%\n", s.PnL10Pct)
	fmt.Printf("Avg max drawdown: %.2f%%\n", s.AvgMaxDD)
	fmt.Printf("Median max drawdown: %.2f%%\n", s.MedianMaxDD)
	fmt.Printf("Max drawdown 95th percentile: %.2f%%\n", s.MaxDD95)
}

func (a *app) fetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	var data dataFlags
	data.register(fs)
	fs.Parse(args)

	if data.symbol == "" {
		return fmt.Errorf("-symbol is required")
	}
	start, end, err := data.window()
	if err != nil {
		return err
	}
	bars, err := a.loader().FetchBars(ctx, data.symbol, data.interval, start, end)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s: %d bars", data.symbol, data.interval, len(bars))
	if len(bars) > 0 {
		fmt.Printf(" from %s to %s", bars[0].Timestamp.Format(timeLayout), bars[len(bars)-1].Timestamp.Format(timeLayout))
	}
	fmt.Println()
	return nil
}

const timeLayout = "2006-01-02 15:04"
