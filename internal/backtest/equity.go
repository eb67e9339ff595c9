package backtest

// equityTracker follows realized equity, its running peak and the deepest
// drawdown seen. maxDrawdown is a decimal fraction and never decreases.
type equityTracker struct {
	equity      float64
	peak        float64
	maxDrawdown float64
}

func newEquityTracker(start float64) equityTracker {
	return equityTracker{equity: start, peak: start}
}

// mark measures drawdown for one bar before any trade is applied to it.
// unrealized is the open position's mark-to-market profit at the bar price.
// A marked loss larger than the peak reads as a full drawdown.
func (t *equityTracker) mark(unrealized float64) {
	t.peak = max(t.peak, t.equity)
	if t.peak <= 0 {
		return
	}
	potential := t.equity + unrealized
	dd := min(1, max(0, (t.peak-potential)/t.peak))
	t.maxDrawdown = max(t.maxDrawdown, dd)
}

func (t *equityTracker) apply(delta float64) {
	t.equity += delta
}
