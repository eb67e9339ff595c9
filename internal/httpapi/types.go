// Package httpapi provides the REST and WebSocket API of the backtesting
// service: indicator evaluation, single backtests, parameter optimization
// and Monte Carlo validation.
package httpapi

import (
	"time"

	"mcsim/internal/backtest"
	"mcsim/internal/domain"
	"mcsim/internal/optimize"
)

// PriceSource selects the closing prices a request runs over: either inline
// prices, or a symbol whose bars are loaded for [Start, End].
type PriceSource struct {
	Prices   []float64 `json:"prices,omitempty"`
	Symbol   string    `json:"symbol,omitempty"`
	Interval string    `json:"interval,omitempty"`
	Start    time.Time `json:"start,omitzero"`
	End      time.Time `json:"end,omitzero"`
}

// IndicatorRequest is the body of the indicator endpoints.
type IndicatorRequest struct {
	PriceSource
	Period int `json:"period"`
}

// SMAResponse holds the SMA series; index 0 aligns with price period-1.
type SMAResponse struct {
	Period int       `json:"period"`
	Offset int       `json:"offset"`
	Values []float64 `json:"values"`
}

// RSIResponse holds the RSI series aligned with the prices; absent readings
// are null.
type RSIResponse struct {
	Period int        `json:"period"`
	Values []*float64 `json:"values"`
}

// BacktestRequest is the body of POST /api/backtest/{strategy}. Costs and
// InitialEquity default to the server configuration when omitted.
type BacktestRequest struct {
	PriceSource
	Params        domain.Params   `json:"params"`
	Costs         *backtest.Costs `json:"costs,omitempty"`
	InitialEquity float64         `json:"initial_equity,omitempty"`
}

// BacktestResponse reports one backtest.
type BacktestResponse struct {
	Strategy string          `json:"strategy"`
	Bars     int             `json:"bars"`
	Params   domain.Params   `json:"params"`
	Costs    backtest.Costs  `json:"costs"`
	Result   backtest.Result `json:"result"`
}

// OptimizeRequest is the body of POST /api/optimize.
type OptimizeRequest struct {
	PriceSource
	Strategy  string          `json:"strategy"`
	Fast      optimize.Range  `json:"fast"`
	Slow      optimize.Range  `json:"slow"`
	Period    optimize.Range  `json:"period"`
	BuyLevel  float64         `json:"buy_level,omitempty"`
	SellLevel float64         `json:"sell_level,omitempty"`
	Costs     *backtest.Costs `json:"costs,omitempty"`
	TopN      int             `json:"top_n,omitempty"`
}

// OptimizeResponse reports a finished grid search.
type OptimizeResponse struct {
	RunID int64 `json:"run_id,omitempty"`
	optimize.Report
}

// MonteCarloRequest is the body of POST /api/montecarlo.
type MonteCarloRequest struct {
	PriceSource
	Strategy   string          `json:"strategy"`
	Params     domain.Params   `json:"params"`
	Costs      *backtest.Costs `json:"costs,omitempty"`
	Iterations int             `json:"iterations,omitempty"`
	BarsPerSim int             `json:"bars_per_sim,omitempty"`
	Seed       *uint64         `json:"seed,omitempty"`
}

// MonteCarloResponse reports a finished validation.
type MonteCarloResponse struct {
	RunID    int64                    `json:"run_id,omitempty"`
	Strategy string                   `json:"strategy"`
	Params   domain.Params            `json:"params"`
	Seed     uint64                   `json:"seed"`
	Summary  domain.MonteCarloSummary `json:"summary"`
	PnLPct   []float64                `json:"pnl_pct"`
	MaxDD    []float64                `json:"max_drawdowns"`
}

// StrategiesResponse lists the registered strategies.
type StrategiesResponse struct {
	Strategies []string `json:"strategies"`
}

// Event is a message broadcast to WebSocket clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	EventOptimizeProgress = "optimize.progress"
	EventOptimizeDone     = "optimize.done"
	EventMonteCarloDone   = "montecarlo.done"
)
