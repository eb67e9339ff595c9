package backtest

import "math"

const (
	// FailedProfitFactor marks a run rejected by validation or aborted.
	FailedProfitFactor = -1.0

	// NoLossProfitFactor is reported when trades closed with profit and no loss.
	NoLossProfitFactor = 999.0

	// DefaultInitialEquity is the starting equity drawdown is measured from.
	DefaultInitialEquity = 10000.0

	// lossEpsilon keeps float noise from being read as a real loss.
	lossEpsilon = 1e-9
)

// Result holds the aggregate statistics of one backtest.
type Result struct {
	ProfitFactor float64 `json:"profit_factor"`
	Trades       int     `json:"trades"`
	TotalProfit  float64 `json:"total_profit"`
	TotalLoss    float64 `json:"total_loss"`
	// MaxDrawdown is a percentage in [0, 100].
	MaxDrawdown float64 `json:"max_drawdown"`
	FinalEquity float64 `json:"final_equity"`
	InPosition  bool    `json:"in_position"`
}

// Sentinel returns the record reported for invalid input or an aborted run.
func Sentinel() Result {
	return Result{
		ProfitFactor: FailedProfitFactor,
		MaxDrawdown:  100,
	}
}

// Failed reports whether r is the sentinel record.
func (r Result) Failed() bool {
	return r.ProfitFactor == FailedProfitFactor
}

// NetProfit is gross profit minus gross loss over closed trades.
func (r Result) NetProfit() float64 {
	return r.TotalProfit - r.TotalLoss
}

// ledger accumulates gross (pre-commission) results of closed trades.
type ledger struct {
	trades      int
	totalProfit float64
	totalLoss   float64
}

func (l *ledger) record(f fill) {
	if f.gross > 0 {
		l.totalProfit += f.gross
	} else {
		l.totalLoss += -f.gross
	}
}

// ProfitFactor divides gross profit by gross loss. With no meaningful loss it
// returns NoLossProfitFactor when there was profit and 1 otherwise. NaN is
// reported as 0.
func ProfitFactor(profit, loss float64) float64 {
	var pf float64
	switch {
	case loss > lossEpsilon:
		pf = profit / loss
	case profit > 0:
		pf = NoLossProfitFactor
	default:
		pf = 1
	}
	switch {
	case math.IsNaN(pf):
		return 0
	case math.IsInf(pf, 1):
		return NoLossProfitFactor
	}
	return pf
}

func aggregate(l ledger, eq equityTracker, pos position) Result {
	return Result{
		ProfitFactor: ProfitFactor(l.totalProfit, l.totalLoss),
		Trades:       l.trades,
		TotalProfit:  l.totalProfit,
		TotalLoss:    l.totalLoss,
		MaxDrawdown:  eq.maxDrawdown * 100,
		FinalEquity:  eq.equity,
		InPosition:   pos.side == Long,
	}
}
