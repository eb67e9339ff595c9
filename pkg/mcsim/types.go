package mcsim

import "time"

// Params is a strategy parameter set. SMA crossover uses Fast and Slow; the
// RSI threshold strategy uses Period, BuyLevel and SellLevel.
type Params struct {
	Fast      int     `json:"fast,omitempty"`
	Slow      int     `json:"slow,omitempty"`
	Period    int     `json:"period,omitempty"`
	BuyLevel  float64 `json:"buy_level,omitempty"`
	SellLevel float64 `json:"sell_level,omitempty"`
}

// Costs models execution friction.
type Costs struct {
	CommissionRate float64 `json:"commission_rate"`
	Slippage       float64 `json:"slippage"`
}

// Range is an inclusive integer parameter range.
type Range struct {
	Min  int `json:"min"`
	Max  int `json:"max"`
	Step int `json:"step,omitempty"`
}

// Prices selects the data a request runs over: inline closes, or a symbol
// the server loads bars for.
type Prices struct {
	Closes   []float64 `json:"prices,omitempty"`
	Symbol   string    `json:"symbol,omitempty"`
	Interval string    `json:"interval,omitempty"`
	Start    time.Time `json:"start,omitzero"`
	End      time.Time `json:"end,omitzero"`
}

// Result holds the statistics of one backtest. A ProfitFactor of -1 marks a
// run the engine rejected.
type Result struct {
	ProfitFactor float64 `json:"profit_factor"`
	Trades       int     `json:"trades"`
	TotalProfit  float64 `json:"total_profit"`
	TotalLoss    float64 `json:"total_loss"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	FinalEquity  float64 `json:"final_equity"`
	InPosition   bool    `json:"in_position"`
}

// Candidate is one ranked parameter set.
type Candidate struct {
	Params Params  `json:"params"`
	Score  float64 `json:"score"`
	Trades int     `json:"trades"`
}

type BacktestRequest struct {
	Prices
	Params        Params  `json:"params"`
	Costs         *Costs  `json:"costs,omitempty"`
	InitialEquity float64 `json:"initial_equity,omitempty"`
}

type BacktestResponse struct {
	Strategy string `json:"strategy"`
	Bars     int    `json:"bars"`
	Params   Params `json:"params"`
	Costs    Costs  `json:"costs"`
	Result   Result `json:"result"`
}

type OptimizeRequest struct {
	Prices
	Strategy  string  `json:"strategy"`
	Fast      Range   `json:"fast,omitzero"`
	Slow      Range   `json:"slow,omitzero"`
	Period    Range   `json:"period,omitzero"`
	BuyLevel  float64 `json:"buy_level,omitempty"`
	SellLevel float64 `json:"sell_level,omitempty"`
	Costs     *Costs  `json:"costs,omitempty"`
	TopN      int     `json:"top_n,omitempty"`
}

type OptimizeResponse struct {
	RunID    int64       `json:"run_id"`
	Strategy string      `json:"strategy"`
	Tested   int         `json:"tested"`
	Total    int         `json:"total"`
	Top      []Candidate `json:"top"`
}

type MonteCarloRequest struct {
	Prices
	Strategy   string  `json:"strategy"`
	Params     Params  `json:"params"`
	Costs      *Costs  `json:"costs,omitempty"`
	Iterations int     `json:"iterations,omitempty"`
	BarsPerSim int     `json:"bars_per_sim,omitempty"`
	Seed       *uint64 `json:"seed,omitempty"`
}

// Summary aggregates a Monte Carlo run. PnL figures are percentages of
// initial equity.
type Summary struct {
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

type MonteCarloResponse struct {
	RunID    int64     `json:"run_id"`
	Strategy string    `json:"strategy"`
	Params   Params    `json:"params"`
	Seed     uint64    `json:"seed"`
	Summary  Summary   `json:"summary"`
	PnLPct   []float64 `json:"pnl_pct"`
	MaxDD    []float64 `json:"max_drawdowns"`
}

// OptimizationRun is a stored grid search.
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

// MonteCarloRun is a stored Monte Carlo validation.
type MonteCarloRun struct {
	ID        int64     `json:"id"`
	Strategy  string    `json:"strategy"`
	Symbol    string    `json:"symbol,omitempty"`
	Params    Params    `json:"params"`
	Seed      uint64    `json:"seed"`
	Summary   Summary   `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}
