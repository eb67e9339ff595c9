package backtest

// Side is the state of the single position the engine may hold.
type Side int

const (
	Flat Side = iota
	Long
)

func (s Side) String() string {
	if s == Long {
		return "long"
	}
	return "flat"
}

// position is the flat/long state machine. While long, entryPrice is the
// slippage-adjusted fill that every profit computation is measured against.
type position struct {
	side       Side
	entryPrice float64
}

// fill is a closed round trip. Only its totals survive the run.
type fill struct {
	entry         float64
	exit          float64
	gross         float64
	commissionIn  float64
	commissionOut float64
}

// net is the profit credited to equity at exit. The entry commission was
// already deducted when the position was opened.
func (f fill) net() float64 {
	return f.gross - f.commissionOut
}

// open goes long at price. It returns the entry fill and the commission
// charged, or ok=false when a position is already open.
func (p *position) open(price float64, c Costs) (entry, commission float64, ok bool) {
	if p.side != Flat {
		return 0, 0, false
	}
	entry = price + c.Slippage
	p.side = Long
	p.entryPrice = entry
	return entry, entry * c.CommissionRate, true
}

// close exits the open position at price. It returns ok=false when flat.
func (p *position) close(price float64, c Costs) (fill, bool) {
	if p.side != Long {
		return fill{}, false
	}
	exit := price - c.Slippage
	f := fill{
		entry:         p.entryPrice,
		exit:          exit,
		gross:         exit - p.entryPrice,
		commissionIn:  p.entryPrice * c.CommissionRate,
		commissionOut: exit * c.CommissionRate,
	}
	p.side = Flat
	p.entryPrice = 0
	return f, true
}

// markToMarket returns the unrealized profit of the open position at price.
func (p *position) markToMarket(price float64) float64 {
	if p.side != Long {
		return 0
	}
	return price - p.entryPrice
}
