package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"mcsim/internal/backtest"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the mcsim backtesting platform.
type Config struct {
	Storage    Storage          `yaml:"storage"`
	Server     Server           `yaml:"server"`
	Alpaca     Alpaca           `yaml:"alpaca"`
	Binance    Binance          `yaml:"binance"`
	Logging    Logging          `yaml:"logging"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Optimize   OptimizeConfig   `yaml:"optimize"`
	MonteCarlo MonteCarloConfig `yaml:"montecarlo"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Binance configures the public kline endpoint.
type Binance struct {
	BaseURL         string `yaml:"base_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	Burst           int    `yaml:"burst"`
	RetryAttempts   int    `yaml:"retry_attempts"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig holds the defaults applied when a request omits costs or
// starting equity.
type BacktestConfig struct {
	InitialEquity float64        `yaml:"initial_equity"`
	Costs         backtest.Costs `yaml:"costs"`
}

// OptimizeConfig bounds grid searches.
type OptimizeConfig struct {
	MaxWorkers      int `yaml:"max_workers"`
	TopN            int `yaml:"top_n"`
	MaxCombinations int `yaml:"max_combinations"`
}

// MonteCarloConfig bounds bootstrap validations.
type MonteCarloConfig struct {
	MaxWorkers    int `yaml:"max_workers"`
	Iterations    int `yaml:"iterations"`
	BarsPerSim    int `yaml:"bars_per_sim"`
	MaxIterations int `yaml:"max_iterations"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/mcsim.db",
		},
		Server: Server{
			Host:     "0.0.0.0",
			Port:     8080,
			GRPCPort: 9090,
		},
		Alpaca: Alpaca{
			DataURL: "https://data.alpaca.markets",
			Feed:    "iex",
		},
		Binance: Binance{
			BaseURL:         "https://api.binance.com",
			RateLimitPerMin: 600,
			Burst:           5,
			RetryAttempts:   4,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Backtest: BacktestConfig{
			InitialEquity: backtest.DefaultInitialEquity,
		},
		Optimize: OptimizeConfig{
			TopN:            5,
			MaxCombinations: 250000,
		},
		MonteCarlo: MonteCarloConfig{
			Iterations:    1000,
			BarsPerSim:    500,
			MaxIterations: 100000,
		},
	}
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d out of range", c.Server.GRPCPort)
	}
	if !(c.Backtest.InitialEquity > 0) {
		return fmt.Errorf("backtest.initial_equity must be positive, got %v", c.Backtest.InitialEquity)
	}
	if err := c.Backtest.Costs.Validate(); err != nil {
		return fmt.Errorf("backtest.costs: %w", err)
	}
	if c.Optimize.TopN < 0 || c.MonteCarlo.Iterations < 0 || c.MonteCarlo.BarsPerSim < 0 {
		return errors.New("optimize and montecarlo sizes must not be negative")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over Default(),
// then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default() plus environment
// overrides when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return cfg, err
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("MCSIM_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.Binance.BaseURL = v
	}

	// Standard Alpaca env vars used by the SDK.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
