// Package domain holds the value types shared across the backtesting
// platform: price bars, strategy parameter sets and the aggregate run records
// that are persisted.
package domain

import (
	"time"
)

// Source identifies where price bars came from.
type Source string

const (
	SourceBinance Source = "binance"
	SourceAlpaca  Source = "alpaca"
	SourceCSV     Source = "csv"
)

// Bar is one OHLCV candle.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	Timestamp time.Time `json:"timestamp"` // bar open time
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Closes extracts the closing prices of bars in order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// Params is the parameter set of a strategy. SMA crossover uses Fast and
// Slow; the RSI threshold strategy uses Period, BuyLevel and SellLevel.
type Params struct {
	Fast      int     `json:"fast,omitempty"`
	Slow      int     `json:"slow,omitempty"`
	Period    int     `json:"period,omitempty"`
	BuyLevel  float64 `json:"buy_level,omitempty"`
	SellLevel float64 `json:"sell_level,omitempty"`
}

// Candidate is one scored parameter set from an optimization.
type Candidate struct {
	Params Params  `json:"params"`
	Score  float64 `json:"score"` // profit factor
	Trades int     `json:"trades"`
}

// OptimizationRun is the persisted summary of a grid search.
type OptimizationRun struct {
	ID             int64       `json:"id"`
	Strategy       string      `json:"strategy"`
	Symbol         string      `json:"symbol,omitempty"`
	Interval       string      `json:"interval,omitempty"`
	Bars           int         `json:"bars"`
	CommissionRate float64     `json:"commission_rate"`
	Slippage       float64     `json:"slippage"`
	Tested         int         `json:"tested"`
	Total          int         `json:"total"`
	Top            []Candidate `json:"top"`
	CreatedAt      time.Time   `json:"created_at"`
}

// MonteCarloSummary aggregates the outcome of bootstrap iterations. PnL
// figures are percentages of the initial equity, drawdowns are percentages.
type MonteCarloSummary struct {
	Iterations   int     `json:"iterations"`
	BarsPerSim   int     `json:"bars_per_sim"`
	Failed       int     `json:"failed"`
	AvgPnLPct    float64 `json:"avg_pnl_pct"`
	MedianPnLPct float64 `json:"median_pnl_pct"`
	PnL05Pct     float64 `json:"pnl_05_pct"`
	PnL10Pct     float64 `json:"pnl_10_pct"`
	AvgMaxDD     float64 `json:"avg_max_dd"`
	MedianMaxDD  float64 `json:"median_max_dd"`
	MaxDD95      float64 `json:"max_dd_95"`
}

// MonteCarloRun is the persisted record of one Monte Carlo validation.
type MonteCarloRun struct {
	ID        int64             `json:"id"`
	Strategy  string            `json:"strategy"`
	Symbol    string            `json:"symbol,omitempty"`
	Params    Params            `json:"params"`
	Seed      uint64            `json:"seed"`
	Summary   MonteCarloSummary `json:"summary"`
	CreatedAt time.Time         `json:"created_at"`
}
