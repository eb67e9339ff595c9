package builtins

import (
	"errors"
	"testing"

	"mcsim/internal/backtest"
	"mcsim/internal/domain"
)

var crossPrices = []float64{10, 9, 8, 9, 11, 13, 15, 14, 12, 10, 11, 12, 11, 9, 8, 7, 8, 10, 12, 14, 13, 11}

var rsiPrices = []float64{50, 48, 46, 44, 42, 40, 41, 43, 46, 50, 55, 60, 64, 67, 69, 70, 68, 65, 61, 57, 53, 50, 48, 47, 49, 52}

func TestRegistry(t *testing.T) {
	r := Registry()
	names := r.List()
	if len(names) != 2 || names[0] != RSIName || names[1] != SMACrossName {
		t.Fatalf("List() = %v, want [%s %s]", names, RSIName, SMACrossName)
	}
	for _, name := range names {
		s, ok := r.Get(name)
		if !ok || s.Name() != name {
			t.Errorf("Get(%q) = %v, %v", name, s, ok)
		}
	}
}

func TestSMACrossMatchesEngine(t *testing.T) {
	s := NewSMACross()
	p := domain.Params{Fast: 2, Slow: 3}
	costs := backtest.Costs{CommissionRate: 0.001, Slippage: 0.05}

	got := s.Backtest(crossPrices, p, costs)
	want := backtest.RunCrossover(crossPrices, 2, 3, costs)
	if got != want {
		t.Errorf("Backtest = %+v, want %+v", got, want)
	}
	if got.Trades != 3 {
		t.Errorf("Trades = %d, want 3", got.Trades)
	}
}

func TestSMACrossValidate(t *testing.T) {
	s := NewSMACross()
	if err := s.Validate(len(crossPrices), domain.Params{Fast: 2, Slow: 3}, backtest.Costs{}); err != nil {
		t.Errorf("Validate(2,3) = %v, want nil", err)
	}
	err := s.Validate(len(crossPrices), domain.Params{Fast: 3, Slow: 3}, backtest.Costs{})
	if !errors.Is(err, backtest.ErrInvalidPeriod) {
		t.Errorf("Validate(3,3) = %v, want ErrInvalidPeriod", err)
	}
	if res := s.Backtest(crossPrices, domain.Params{Fast: 3, Slow: 3}, backtest.Costs{}); !res.Failed() {
		t.Errorf("Backtest(3,3) = %+v, want sentinel", res)
	}
}

func TestRSIThresholdDefaultsLevels(t *testing.T) {
	s := NewRSIThreshold()
	got := s.Backtest(rsiPrices, domain.Params{Period: 3}, backtest.Costs{})
	want := backtest.RunThreshold(rsiPrices, 3, DefaultBuyLevel, DefaultSellLevel, backtest.Costs{})
	if got != want {
		t.Errorf("Backtest = %+v, want %+v", got, want)
	}
	if got.Trades != 2 || got.TotalProfit != 25 {
		t.Errorf("Trades/TotalProfit = %d/%v, want 2/25", got.Trades, got.TotalProfit)
	}
}

func TestRSIThresholdExplicitLevels(t *testing.T) {
	s := NewRSIThreshold()
	p := domain.Params{Period: 3, BuyLevel: 70, SellLevel: 30}
	if err := s.Validate(len(rsiPrices), p, backtest.Costs{}); !errors.Is(err, backtest.ErrInvalidLevels) {
		t.Errorf("Validate(70/30) = %v, want ErrInvalidLevels", err)
	}
	if res := s.Backtest(rsiPrices, p, backtest.Costs{}); !res.Failed() {
		t.Errorf("Backtest(70/30) = %+v, want sentinel", res)
	}
}
