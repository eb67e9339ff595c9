package backtest

import (
	"errors"
	"math"
	"testing"
)

// recorder captures observer events.
type recorder struct {
	entries  []event
	exits    []event
	rejected []error
}

type event struct {
	bar   int
	price float64
	gross float64
}

func (r *recorder) Entered(bar int, price float64) {
	r.entries = append(r.entries, event{bar: bar, price: price})
}

func (r *recorder) Exited(bar int, price, gross float64) {
	r.exits = append(r.exits, event{bar: bar, price: price, gross: gross})
}

func (r *recorder) Rejected(err error) { r.rejected = append(r.rejected, err) }

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}

// roundTrips produces a winning, a losing and a winning SMA(2,3) trade.
var roundTrips = []float64{10, 9, 8, 9, 11, 13, 15, 14, 12, 10, 11, 12, 11, 9, 8, 7, 8, 10, 12, 14, 13, 11}

func TestRunCrossoverHandExample(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 4, 3, 2, 1, 2, 3, 4, 5}
	rec := &recorder{}
	res := RunCrossover(prices, 2, 3, Costs{}, WithObserver(rec))

	if res.Failed() {
		t.Fatal("RunCrossover returned the failed record")
	}
	if res.Trades != 1 {
		t.Errorf("Trades = %d, want 1", res.Trades)
	}
	if !res.InPosition {
		t.Error("InPosition = false, want true")
	}
	if len(rec.entries) != 1 || rec.entries[0].bar != 10 || rec.entries[0].price != 3 {
		t.Errorf("entries = %+v, want one entry on bar 10 at 3", rec.entries)
	}
	if len(rec.exits) != 0 {
		t.Errorf("exits = %+v, want none", rec.exits)
	}
	if res.TotalProfit != 0 || res.TotalLoss != 0 {
		t.Errorf("totals = %v/%v, want 0/0 with no closed trades", res.TotalProfit, res.TotalLoss)
	}
	if res.ProfitFactor != 1 {
		t.Errorf("ProfitFactor = %v, want 1", res.ProfitFactor)
	}
	if res.MaxDrawdown != 0 {
		t.Errorf("MaxDrawdown = %v, want 0", res.MaxDrawdown)
	}
}

func TestRunCrossoverRoundTrips(t *testing.T) {
	rec := &recorder{}
	res := RunCrossover(roundTrips, 2, 3, Costs{}, WithObserver(rec))

	if res.Trades != 3 {
		t.Fatalf("Trades = %d, want 3", res.Trades)
	}
	wantEntries := []event{{bar: 4, price: 11}, {bar: 11, price: 12}, {bar: 17, price: 10}}
	wantExits := []event{{bar: 8, price: 12, gross: 1}, {bar: 13, price: 9, gross: -3}, {bar: 21, price: 11, gross: 1}}
	for i, want := range wantEntries {
		if rec.entries[i] != want {
			t.Errorf("entry %d = %+v, want %+v", i, rec.entries[i], want)
		}
	}
	for i, want := range wantExits {
		if rec.exits[i] != want {
			t.Errorf("exit %d = %+v, want %+v", i, rec.exits[i], want)
		}
	}
	if !approx(res.TotalProfit, 2) || !approx(res.TotalLoss, 3) {
		t.Errorf("totals = %v/%v, want 2/3", res.TotalProfit, res.TotalLoss)
	}
	if !approx(res.ProfitFactor, 2.0/3.0) {
		t.Errorf("ProfitFactor = %v, want %v", res.ProfitFactor, 2.0/3.0)
	}
	// Peak 10001 after the first win, marked down to 9998 before the loss closes.
	if !approx(res.MaxDrawdown, 3.0/10001.0*100) {
		t.Errorf("MaxDrawdown = %v, want %v", res.MaxDrawdown, 3.0/10001.0*100)
	}
	if !approx(res.FinalEquity, 9999) {
		t.Errorf("FinalEquity = %v, want 9999", res.FinalEquity)
	}
	if res.InPosition {
		t.Error("InPosition = true, want false")
	}
}

func TestRunCrossoverWithCosts(t *testing.T) {
	costs := Costs{CommissionRate: 0.001, Slippage: 0.05}
	res := RunCrossover(roundTrips, 2, 3, costs)

	// Totals are gross of commission but include slippage.
	if !approx(res.TotalProfit, 1.8) || !approx(res.TotalLoss, 3.1) {
		t.Errorf("totals = %v/%v, want 1.8/3.1", res.TotalProfit, res.TotalLoss)
	}
	if !approx(res.ProfitFactor, 1.8/3.1) {
		t.Errorf("ProfitFactor = %v, want %v", res.ProfitFactor, 1.8/3.1)
	}
	if !approx(res.FinalEquity, 9998.635) {
		t.Errorf("FinalEquity = %v, want 9998.635", res.FinalEquity)
	}
	if !approx(res.MaxDrawdown, 0.03120726312301596) {
		t.Errorf("MaxDrawdown = %v, want 0.03120726312301596", res.MaxDrawdown)
	}
}

func TestRunCrossoverShiftInvariant(t *testing.T) {
	shifted := make([]float64, len(roundTrips))
	for i, p := range roundTrips {
		shifted[i] = p + 50
	}
	base := RunCrossover(roundTrips, 2, 3, Costs{})
	got := RunCrossover(shifted, 2, 3, Costs{})

	if got.Trades != base.Trades {
		t.Errorf("Trades = %d, want %d", got.Trades, base.Trades)
	}
	if !approx(got.ProfitFactor, base.ProfitFactor) {
		t.Errorf("ProfitFactor = %v, want %v", got.ProfitFactor, base.ProfitFactor)
	}
}

func TestRunCrossoverNonDecreasingOpensOnce(t *testing.T) {
	res := RunCrossover([]float64{5, 5, 5, 5, 6, 7, 8, 9, 10}, 2, 3, Costs{})

	if res.Trades != 1 || !res.InPosition {
		t.Fatalf("Trades = %d, InPosition = %v; want 1 open trade", res.Trades, res.InPosition)
	}
	if res.TotalProfit != 0 || res.TotalLoss != 0 {
		t.Errorf("totals = %v/%v, want only closed trades counted", res.TotalProfit, res.TotalLoss)
	}
	if res.FinalEquity != DefaultInitialEquity {
		t.Errorf("FinalEquity = %v, want %v", res.FinalEquity, DefaultInitialEquity)
	}
}

func TestRunCrossoverStrictlyRisingNeverCrosses(t *testing.T) {
	// The fast average leads from the first bar, so there is no upward cross.
	res := RunCrossover([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 2, 3, Costs{})
	if res.Trades != 0 {
		t.Errorf("Trades = %d, want 0", res.Trades)
	}
}

func TestRunCrossoverInvalid(t *testing.T) {
	prices := roundTrips
	cases := []struct {
		name       string
		prices     []float64
		fast, slow int
		costs      Costs
		want       error
	}{
		{"fast equals slow", prices, 3, 3, Costs{}, ErrInvalidPeriod},
		{"fast above slow", prices, 5, 3, Costs{}, ErrInvalidPeriod},
		{"zero fast", prices, 0, 3, Costs{}, ErrInvalidPeriod},
		{"zero slow", prices, 2, 0, Costs{}, ErrInvalidPeriod},
		{"prices equal slow", prices[:3], 2, 3, Costs{}, ErrInsufficientData},
		{"empty", nil, 2, 3, Costs{}, ErrInsufficientData},
		{"negative commission", prices, 2, 3, Costs{CommissionRate: -0.01}, ErrNegativeCost},
		{"negative slippage", prices, 2, 3, Costs{Slippage: -1}, ErrNegativeCost},
		{"NaN commission", prices, 2, 3, Costs{CommissionRate: math.NaN()}, ErrNegativeCost},
	}
	for _, tc := range cases {
		rec := &recorder{}
		res := RunCrossover(tc.prices, tc.fast, tc.slow, tc.costs, WithObserver(rec))
		if res != Sentinel() {
			t.Errorf("%s: result = %+v, want sentinel", tc.name, res)
		}
		if len(rec.rejected) != 1 || !errors.Is(rec.rejected[0], tc.want) {
			t.Errorf("%s: rejected = %v, want %v", tc.name, rec.rejected, tc.want)
		}
		if err := ValidateCrossover(len(tc.prices), tc.fast, tc.slow, tc.costs); !errors.Is(err, tc.want) {
			t.Errorf("%s: ValidateCrossover = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestRunCrossoverMinimumLength(t *testing.T) {
	// slow+1 prices evaluate exactly one bar.
	if res := RunCrossover([]float64{3, 2, 1, 5}, 2, 3, Costs{}); res.Failed() {
		t.Fatalf("RunCrossover with slow+1 prices failed: %+v", res)
	}
}

// threshold dips, rallies through overbought, sells off and recovers.
var threshold = []float64{50, 48, 46, 44, 42, 40, 41, 43, 46, 50, 55, 60, 64, 67, 69, 70, 68, 65, 61, 57, 53, 50, 48, 47, 49, 52}

func TestRunThreshold(t *testing.T) {
	rec := &recorder{}
	res := RunThreshold(threshold, 3, 30, 70, Costs{}, WithObserver(rec))

	if res.Trades != 2 || !res.InPosition {
		t.Fatalf("Trades = %d, InPosition = %v; want 2 with the last open", res.Trades, res.InPosition)
	}
	wantEntries := []event{{bar: 7, price: 43}, {bar: 24, price: 49}}
	for i, want := range wantEntries {
		if rec.entries[i] != want {
			t.Errorf("entry %d = %+v, want %+v", i, rec.entries[i], want)
		}
	}
	if len(rec.exits) != 1 || rec.exits[0] != (event{bar: 16, price: 68, gross: 25}) {
		t.Errorf("exits = %+v, want one exit on bar 16 at 68", rec.exits)
	}
	if res.ProfitFactor != NoLossProfitFactor {
		t.Errorf("ProfitFactor = %v, want %v", res.ProfitFactor, NoLossProfitFactor)
	}
	if res.TotalProfit != 25 || res.TotalLoss != 0 {
		t.Errorf("totals = %v/%v, want 25/0", res.TotalProfit, res.TotalLoss)
	}
	if res.FinalEquity != 10025 {
		t.Errorf("FinalEquity = %v, want 10025", res.FinalEquity)
	}
}

func TestRunThresholdWithCosts(t *testing.T) {
	res := RunThreshold(threshold, 3, 30, 70, Costs{CommissionRate: 0.001, Slippage: 0.1})

	if !approx(res.TotalProfit, 24.8) {
		t.Errorf("TotalProfit = %v, want 24.8", res.TotalProfit)
	}
	if !approx(res.FinalEquity, 10024.6399) {
		t.Errorf("FinalEquity = %v, want 10024.6399", res.FinalEquity)
	}
}

func TestRunThresholdInvalid(t *testing.T) {
	cases := []struct {
		name      string
		prices    []float64
		period    int
		buy, sell float64
		costs     Costs
		want      error
	}{
		{"buy equals sell", threshold, 3, 50, 50, Costs{}, ErrInvalidLevels},
		{"buy above sell", threshold, 3, 70, 30, Costs{}, ErrInvalidLevels},
		{"zero period", threshold, 0, 30, 70, Costs{}, ErrInvalidPeriod},
		{"too short", threshold[:4], 3, 30, 70, Costs{}, ErrInsufficientData},
		{"negative commission", threshold, 3, 30, 70, Costs{CommissionRate: -1}, ErrNegativeCost},
		{"negative slippage", threshold, 3, 30, 70, Costs{Slippage: -0.5}, ErrNegativeCost},
	}
	for _, tc := range cases {
		res := RunThreshold(tc.prices, tc.period, tc.buy, tc.sell, tc.costs)
		if res != Sentinel() {
			t.Errorf("%s: result = %+v, want sentinel", tc.name, res)
		}
		if err := ValidateThreshold(len(tc.prices), tc.period, tc.buy, tc.sell, tc.costs); !errors.Is(err, tc.want) {
			t.Errorf("%s: ValidateThreshold = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestAlignmentViolationAborts(t *testing.T) {
	rec := &recorder{}
	src := crossoverSource{
		fast:       []float64{1, 2, 3, 4, 5},
		slow:       []float64{1, 2},
		fastPeriod: 2,
		offset:     1,
	}
	res := run([]float64{1, 2, 3, 4, 5, 6}, src, Costs{}, options{observer: rec, initialEquity: DefaultInitialEquity})

	if !res.Failed() {
		t.Fatalf("result = %+v, want sentinel", res)
	}
	if len(rec.rejected) != 1 || !errors.Is(rec.rejected[0], ErrAlignment) {
		t.Errorf("rejected = %v, want ErrAlignment", rec.rejected)
	}
}

func TestSentinelShape(t *testing.T) {
	s := Sentinel()
	if s.ProfitFactor != -1 || s.Trades != 0 || s.TotalProfit != 0 || s.TotalLoss != 0 || s.MaxDrawdown != 100 {
		t.Errorf("Sentinel() = %+v", s)
	}
	if !s.Failed() {
		t.Error("Sentinel().Failed() = false")
	}
}

func TestMaxDrawdownBounded(t *testing.T) {
	prices := make([]float64, 300)
	p := 100.0
	for i := range prices {
		p *= 1 + 0.03*math.Sin(float64(i)*0.7) - 0.01*math.Cos(float64(i)*1.3)
		prices[i] = p
	}
	for fast := 2; fast < 8; fast++ {
		for slow := fast + 1; slow < 20; slow += 3 {
			res := RunCrossover(prices, fast, slow, Costs{CommissionRate: 0.002, Slippage: 0.1})
			if res.MaxDrawdown < 0 || res.MaxDrawdown > 100 {
				t.Fatalf("fast %d slow %d: MaxDrawdown = %v, want within [0,100]", fast, slow, res.MaxDrawdown)
			}
		}
	}
}

func TestMaxDrawdownCappedWhenLossExceedsEquity(t *testing.T) {
	// Entries at 20000 and 100000 against 10000 equity mark losses far
	// larger than the account.
	prices := []float64{1, 1, 1, 20000, 1, 1e5, 1, 1}
	res := RunCrossover(prices, 1, 2, Costs{})
	if res.Failed() {
		t.Fatalf("RunCrossover failed: %+v", res)
	}
	if res.MaxDrawdown != 100 {
		t.Errorf("MaxDrawdown = %v, want 100", res.MaxDrawdown)
	}
	if res.FinalEquity >= 0 {
		t.Errorf("FinalEquity = %v, want negative", res.FinalEquity)
	}
}

func TestWithInitialEquityIgnoresNonPositive(t *testing.T) {
	o := buildOptions([]Option{WithInitialEquity(-5), WithObserver(nil)})
	if o.initialEquity != DefaultInitialEquity {
		t.Errorf("initialEquity = %v, want %v", o.initialEquity, DefaultInitialEquity)
	}
	if _, ok := o.observer.(nopObserver); !ok {
		t.Errorf("observer = %T, want nopObserver", o.observer)
	}
	res := RunCrossover(roundTrips, 2, 3, Costs{}, WithInitialEquity(1000))
	if !approx(res.FinalEquity, 999) {
		t.Errorf("FinalEquity = %v, want 999", res.FinalEquity)
	}
}
