package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"mcsim/internal/api"
	"mcsim/internal/config"
	"mcsim/internal/gather"
	"mcsim/internal/gather/binance"
	"mcsim/internal/gather/us"
	"mcsim/internal/httpapi"
	"mcsim/internal/montecarlo"
	"mcsim/internal/optimize"
	"mcsim/internal/store"
	"mcsim/internal/strategy/builtins"
	"mcsim/internal/util"
)

func main() {
	cfgPath := "config/mcsim.yaml"
	if p := os.Getenv("MCSIM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	// Stores.
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		log.Fatalf("creating sqlite directory: %v", err)
	}
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run store: %v", err)
	}
	defer runs.Close()
	bars := store.NewParquetStore(cfg.Storage.DataDir)

	// Market data: Binance for crypto pairs, Alpaca for equities when
	// credentials are configured.
	retry := util.DefaultRetryPolicy
	if cfg.Binance.RetryAttempts > 0 {
		retry.Attempts = cfg.Binance.RetryAttempts
	}
	crypto := gather.Cached(binance.NewKlineFetcher(cfg.Binance.BaseURL,
		binance.WithRateLimiter(util.NewRateLimiter(cfg.Binance.RateLimitPerMin, cfg.Binance.Burst)),
		binance.WithRetryPolicy(retry),
		binance.WithLogger(logger),
	), bars, logger)

	var equity gather.Fetcher
	if cfg.Alpaca.APIKey != "" {
		equity = gather.Cached(us.NewDailyBarFetcher(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed), bars, logger)
	} else {
		logger.Info("alpaca credentials not set, equity symbols disabled")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := httpapi.NewHub(logger)
	go hub.Run(ctx)

	registry := builtins.Registry()
	svc := httpapi.NewServer(httpapi.Deps{
		Registry:  registry,
		Optimizer: optimize.New(registry, cfg.Optimize.MaxWorkers, logger),
		Simulator: montecarlo.New(registry, cfg.MonteCarlo.MaxWorkers, logger),
		Loader:    gather.NewRouter(crypto, equity),
		Runs:      runs,
		Hub:       hub,
		Defaults: httpapi.Defaults{
			Costs:         cfg.Backtest.Costs,
			InitialEquity: cfg.Backtest.InitialEquity,
			TopN:          cfg.Optimize.TopN,
			Iterations:    cfg.MonteCarlo.Iterations,
			BarsPerSim:    cfg.MonteCarlo.BarsPerSim,
		},
		Limits: httpapi.Limits{
			MaxCombinations: cfg.Optimize.MaxCombinations,
			MaxIterations:   cfg.MonteCarlo.MaxIterations,
		},
		Log: logger,
	})

	srv := api.NewServer(cfg.Server, svc.Handler(), svc, logger)

	slog.Info("mcsim-server starting",
		"config", cfgPath,
		"http_port", cfg.Server.Port,
		"grpc_port", cfg.Server.GRPCPort,
		"strategies", registry.List(),
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
