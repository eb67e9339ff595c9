package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Costs models execution friction. The zero value is a frictionless run.
type Costs struct {
	// CommissionRate is charged on the fill price of every entry and exit,
	// as a decimal fraction (0.001 = 0.1%).
	CommissionRate float64 `json:"commission_rate" yaml:"commission_rate"`

	// Slippage is a fixed price offset applied against the trader: added to
	// the entry fill and subtracted from the exit fill.
	Slippage float64 `json:"slippage" yaml:"slippage"`
}

// Validate rejects negative (or NaN) cost parameters.
func (c Costs) Validate() error {
	if !(c.CommissionRate >= 0) {
		return fmt.Errorf("%w: commission rate %v", ErrNegativeCost, c.CommissionRate)
	}
	if !(c.Slippage >= 0) {
		return fmt.Errorf("%w: slippage %v", ErrNegativeCost, c.Slippage)
	}
	return nil
}

// CostsFromTicks builds Costs from a percentage commission (0.1 = 0.1%) and a
// slippage expressed in ticks of tickSize. The conversion is done in decimal
// arithmetic so that e.g. 3 ticks of 0.1 is exactly 0.3.
func CostsFromTicks(commissionPct float64, slippageTicks int, tickSize float64) Costs {
	rate := decimal.NewFromFloat(commissionPct).Div(decimal.NewFromInt(100))
	slip := decimal.NewFromInt(int64(slippageTicks)).Mul(decimal.NewFromFloat(tickSize))
	return Costs{
		CommissionRate: rate.InexactFloat64(),
		Slippage:       slip.InexactFloat64(),
	}
}
