package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcsim/internal/backtest"
	"mcsim/internal/config"
	"mcsim/internal/domain"
	"mcsim/internal/gather"
	"mcsim/internal/gather/binance"
	"mcsim/internal/gather/us"
	"mcsim/internal/store"
	"mcsim/internal/strategy"
	"mcsim/internal/strategy/builtins"
	"mcsim/internal/util"
	"mcsim/pkg/mcsim"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: mcsim-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version     Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  strategies  List available strategies\n")
	fmt.Fprintf(os.Stderr, "  backtest    Run one backtest\n")
	fmt.Fprintf(os.Stderr, "  optimize    Grid-search strategy parameters\n")
	fmt.Fprintf(os.Stderr, "  mc          Monte Carlo validation of a parameter set\n")
	fmt.Fprintf(os.Stderr, "  fetch       Download bars into the local cache\n")
	fmt.Fprintf(os.Stderr, "\nRun 'mcsim-cli <command> -h' for command options.\n")
}

func main() {
	flag.Usage = usage
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfgPath := "config/mcsim.yaml"
	if p := os.Getenv("MCSIM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Logs go to stderr so command output stays pipeable.
	logger := util.NewLoggerTo(os.Stderr, cfg.Logging.Level, "text")
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := &app{cfg: cfg, log: logger}
	args := os.Args[2:]

	switch os.Args[1] {
	case "version":
		fmt.Printf("mcsim-cli %s\n", version)
	case "strategies":
		err = app.strategies(ctx, args)
	case "backtest":
		err = app.backtest(ctx, args)
	case "optimize":
		err = app.optimize(ctx, args)
	case "mc":
		err = app.monteCarlo(ctx, args)
	case "fetch":
		err = app.fetch(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

type app struct {
	cfg *config.Config
	log *slog.Logger
}

// dataFlags select the price series a command runs over.
type dataFlags struct {
	csv      string
	symbol   string
	interval string
	start    string
	end      string
	server   string
}

func (d *dataFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&d.csv, "csv", "", "CSV file of closes or OHLCV rows")
	fs.StringVar(&d.symbol, "symbol", "", "symbol to load (BTCUSDT via Binance, equities via Alpaca)")
	fs.StringVar(&d.interval, "interval", "1d", "bar interval")
	fs.StringVar(&d.start, "start", "", "start date (YYYY-MM-DD or RFC3339), default one year before -end")
	fs.StringVar(&d.end, "end", "", "end date (YYYY-MM-DD or RFC3339), default now")
	fs.StringVar(&d.server, "server", "", "mcsim-server base URL; runs remotely when set")
}

func (d *dataFlags) window() (time.Time, time.Time, error) {
	end := time.Now().UTC()
	if d.end != "" {
		t, err := parseTime(d.end)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -end: %w", err)
		}
		end = t
	}
	start := end.AddDate(-1, 0, 0)
	if d.start != "" {
		t, err := parseTime(d.start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -start: %w", err)
		}
		start = t
	}
	return start, end, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// remotePrices converts the flags to an SDK price selection. CSV files are
// read locally and sent inline.
func (d *dataFlags) remotePrices() (mcsim.Prices, error) {
	if d.csv != "" {
		bars, err := store.LoadCSV(d.csv)
		if err != nil {
			return mcsim.Prices{}, err
		}
		return mcsim.Prices{Closes: domain.Closes(bars)}, nil
	}
	if d.symbol == "" {
		return mcsim.Prices{}, fmt.Errorf("-csv or -symbol is required")
	}
	start, end, err := d.window()
	if err != nil {
		return mcsim.Prices{}, err
	}
	return mcsim.Prices{Symbol: d.symbol, Interval: d.interval, Start: start, End: end}, nil
}

// prices loads the closes for a local run.
func (a *app) prices(ctx context.Context, d *dataFlags) ([]float64, error) {
	if d.csv != "" {
		bars, err := store.LoadCSV(d.csv)
		if err != nil {
			return nil, err
		}
		return domain.Closes(bars), nil
	}
	if d.symbol == "" {
		return nil, fmt.Errorf("-csv or -symbol is required")
	}
	start, end, err := d.window()
	if err != nil {
		return nil, err
	}
	closes, err := a.backtester().Load(ctx, d.symbol, d.interval, start, end)
	if err != nil {
		return nil, err
	}
	a.log.Info("loaded bars", "symbol", d.symbol, "interval", d.interval, "bars", len(closes))
	return closes, nil
}

func (a *app) backtester() *strategy.Backtester {
	return strategy.NewBacktester(a.loader(), builtins.Registry())
}

// loader builds the cached market-data router from the configuration.
func (a *app) loader() *gather.Router {
	bars := store.NewParquetStore(a.cfg.Storage.DataDir)

	retry := util.DefaultRetryPolicy
	if a.cfg.Binance.RetryAttempts > 0 {
		retry.Attempts = a.cfg.Binance.RetryAttempts
	}
	crypto := gather.Cached(binance.NewKlineFetcher(a.cfg.Binance.BaseURL,
		binance.WithRateLimiter(util.NewRateLimiter(a.cfg.Binance.RateLimitPerMin, a.cfg.Binance.Burst)),
		binance.WithRetryPolicy(retry),
		binance.WithLogger(a.log),
	), bars, a.log)

	var equity gather.Fetcher
	if a.cfg.Alpaca.APIKey != "" {
		equity = gather.Cached(us.NewDailyBarFetcher(a.cfg.Alpaca.APIKey, a.cfg.Alpaca.APISecret, a.cfg.Alpaca.DataURL, a.cfg.Alpaca.Feed), bars, a.log)
	}
	return gather.NewRouter(crypto, equity)
}

// costFlags override the configured execution costs.
type costFlags struct {
	commission float64
	slippage   float64
	ticks      int
	tickSize   float64
}

func (c *costFlags) register(fs *flag.FlagSet, defaults backtest.Costs) {
	fs.Float64Var(&c.commission, "commission", defaults.CommissionRate, "commission rate per fill (0.001 = 0.1%)")
	fs.Float64Var(&c.slippage, "slippage", defaults.Slippage, "slippage in price units per fill")
	fs.IntVar(&c.ticks, "slippage-ticks", 0, "slippage in ticks; overrides -slippage when positive")
	fs.Float64Var(&c.tickSize, "tick-size", 0.01, "price increment used with -slippage-ticks")
}

func (c *costFlags) costs() backtest.Costs {
	if c.ticks > 0 {
		return backtest.CostsFromTicks(c.commission*100, c.ticks, c.tickSize)
	}
	return backtest.Costs{CommissionRate: c.commission, Slippage: c.slippage}
}

// paramFlags hold a single strategy parameter set.
type paramFlags struct {
	strategy string
	fast     int
	slow     int
	period   int
	buy      float64
	sell     float64
}

func (p *paramFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.strategy, "strategy", "sma-cross", "strategy name")
	fs.IntVar(&p.fast, "fast", 10, "fast SMA period (sma-cross)")
	fs.IntVar(&p.slow, "slow", 30, "slow SMA period (sma-cross)")
	fs.IntVar(&p.period, "period", 14, "RSI period (rsi)")
	fs.Float64Var(&p.buy, "buy", 30, "RSI buy level (rsi)")
	fs.Float64Var(&p.sell, "sell", 70, "RSI sell level (rsi)")
}

func (p *paramFlags) params() domain.Params {
	switch p.strategy {
	case "rsi":
		return domain.Params{Period: p.period, BuyLevel: p.buy, SellLevel: p.sell}
	default:
		return domain.Params{Fast: p.fast, Slow: p.slow}
	}
}
