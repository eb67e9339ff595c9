package backtest

import (
	"log/slog"
)

// Observer receives diagnostic events from a run. Implementations must not
// affect the result; the engine calls them synchronously.
type Observer interface {
	// Entered is called when a long position is opened on bar at the
	// slippage-adjusted price.
	Entered(bar int, price float64)
	// Exited is called when the position is closed on bar.
	Exited(bar int, price, gross float64)
	// Rejected is called once when a run yields the failed record.
	Rejected(err error)
}

type nopObserver struct{}

func (nopObserver) Entered(int, float64)         {}
func (nopObserver) Exited(int, float64, float64) {}
func (nopObserver) Rejected(error)               {}

type logObserver struct {
	log *slog.Logger
}

// LogObserver reports engine events at debug level and rejections at warn.
func LogObserver(log *slog.Logger) Observer {
	if log == nil {
		log = slog.Default()
	}
	return logObserver{log: log.With("component", "backtest")}
}

func (o logObserver) Entered(bar int, price float64) {
	o.log.Debug("entered long", "bar", bar, "price", price)
}

func (o logObserver) Exited(bar int, price, gross float64) {
	o.log.Debug("exited long", "bar", bar, "price", price, "gross", gross)
}

func (o logObserver) Rejected(err error) {
	o.log.Warn("backtest rejected", "error", err)
}
