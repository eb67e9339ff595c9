package montecarlo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"reflect"
	"testing"

	"mcsim/internal/backtest"
	"mcsim/internal/domain"
	"mcsim/internal/strategy"
	"mcsim/internal/strategy/builtins"
)

var history = []float64{
	100, 101, 99, 102, 104, 103, 101, 98, 97, 99, 102, 105, 107, 106, 104,
	103, 105, 108, 110, 109, 107, 104, 102, 103, 106, 109, 111, 112, 110, 108,
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPercentChanges(t *testing.T) {
	got := PercentChanges([]float64{100, 110, 0, 50})
	want := []float64{0.1, -1, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("changes[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if PercentChanges([]float64{5}) != nil {
		t.Error("PercentChanges of one price should be nil")
	}
}

func TestSimulatePath(t *testing.T) {
	changes := PercentChanges(history)

	a := SimulatePath(iterationRNG(7, 0), changes, 50, 100)
	b := SimulatePath(iterationRNG(7, 0), changes, 50, 100)
	if len(a) != 51 {
		t.Fatalf("len(path) = %d, want 51", len(a))
	}
	if a[0] != 100 {
		t.Errorf("path[0] = %v, want the start price", a[0])
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different paths")
	}
	c := SimulatePath(iterationRNG(7, 1), changes, 50, 100)
	if reflect.DeepEqual(a, c) {
		t.Error("different iterations produced identical paths")
	}
}

func TestSimulatePathFloorsAtZero(t *testing.T) {
	path := SimulatePath(iterationRNG(1, 1), []float64{-2}, 3, 10)
	want := []float64{10, 0, 0, 0}
	if !reflect.DeepEqual(path, want) {
		t.Errorf("path = %v, want %v", path, want)
	}
}

func TestSimulatePathDegenerate(t *testing.T) {
	if got := SimulatePath(iterationRNG(1, 1), nil, 10, 42); !reflect.DeepEqual(got, []float64{42}) {
		t.Errorf("no changes: path = %v, want [42]", got)
	}
	if got := SimulatePath(iterationRNG(1, 1), []float64{0.1}, 0, 42); !reflect.DeepEqual(got, []float64{42}) {
		t.Errorf("no bars: path = %v, want [42]", got)
	}
}

func TestSummarize(t *testing.T) {
	s := summarize([]float64{3, 1, 2, 5, 4}, []float64{10, 100, 20, 30, 100}, []bool{false, true, false, false, true})

	if s.AvgPnLPct != 3 || s.MedianPnLPct != 3 {
		t.Errorf("avg/median pnl = %v/%v, want 3/3", s.AvgPnLPct, s.MedianPnLPct)
	}
	if s.PnL05Pct != 1 || s.PnL10Pct != 1 {
		t.Errorf("p05/p10 pnl = %v/%v, want 1/1", s.PnL05Pct, s.PnL10Pct)
	}
	if s.AvgMaxDD != 20 || s.MedianMaxDD != 20 || s.MaxDD95 != 30 {
		t.Errorf("dd stats = %v/%v/%v, want 20/20/30", s.AvgMaxDD, s.MedianMaxDD, s.MaxDD95)
	}
}

func TestSummarizeKeepsFullDrawdowns(t *testing.T) {
	s := summarize([]float64{-50, 1, 2, 3}, []float64{100, 10, 20, 30}, make([]bool, 4))
	if s.AvgMaxDD != 40 || s.MedianMaxDD != 30 || s.MaxDD95 != 100 {
		t.Errorf("dd stats = %v/%v/%v, want 40/30/100", s.AvgMaxDD, s.MedianMaxDD, s.MaxDD95)
	}
}

func TestSummarizeNoValidDrawdowns(t *testing.T) {
	s := summarize([]float64{0, 0}, []float64{100, 100}, []bool{true, true})
	if s.AvgMaxDD != 100 || s.MedianMaxDD != 100 || s.MaxDD95 != 100 {
		t.Errorf("dd stats = %v/%v/%v, want all 100", s.AvgMaxDD, s.MedianMaxDD, s.MaxDD95)
	}
}

func crossRequest() Request {
	return Request{
		Strategy:   builtins.SMACrossName,
		Params:     domain.Params{Fast: 3, Slow: 8},
		Costs:      backtest.Costs{CommissionRate: 0.001},
		Iterations: 40,
		BarsPerSim: 120,
		Seed:       2024,
	}
}

func TestRunReproducible(t *testing.T) {
	req := crossRequest()
	one, err := New(builtins.Registry(), 1, quietLogger()).Run(context.Background(), history, req)
	if err != nil {
		t.Fatalf("Run(1 worker): %v", err)
	}
	many, err := New(builtins.Registry(), 8, quietLogger()).Run(context.Background(), history, req)
	if err != nil {
		t.Fatalf("Run(8 workers): %v", err)
	}
	if !reflect.DeepEqual(one, many) {
		t.Error("reports differ between worker counts")
	}
	if one.Summary.Iterations != 40 || one.Summary.BarsPerSim != 120 {
		t.Errorf("summary sizes = %d/%d, want 40/120", one.Summary.Iterations, one.Summary.BarsPerSim)
	}
	if len(one.PnLPct) != 40 || len(one.MaxDrawdowns) != 40 {
		t.Errorf("distribution lengths = %d/%d, want 40/40", len(one.PnLPct), len(one.MaxDrawdowns))
	}
}

func TestRunIterationMatchesDirectBacktest(t *testing.T) {
	req := crossRequest()
	report, err := New(builtins.Registry(), 4, quietLogger()).Run(context.Background(), history, req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	changes := PercentChanges(history)
	for _, i := range []int{0, 7, 39} {
		path := SimulatePath(iterationRNG(req.Seed, i), changes, req.BarsPerSim, history[len(history)-1])
		res := backtest.RunCrossover(path, 3, 8, req.Costs)
		want := res.NetProfit() / backtest.DefaultInitialEquity * 100
		if report.PnLPct[i] != want {
			t.Errorf("PnLPct[%d] = %v, want %v", i, report.PnLPct[i], want)
		}
		if report.MaxDrawdowns[i] != res.MaxDrawdown {
			t.Errorf("MaxDrawdowns[%d] = %v, want %v", i, report.MaxDrawdowns[i], res.MaxDrawdown)
		}
	}
}

func TestRunFailedIterations(t *testing.T) {
	req := crossRequest()
	req.Params = domain.Params{Fast: 8, Slow: 3}
	report, err := New(builtins.Registry(), 2, quietLogger()).Run(context.Background(), history, req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := report.Summary
	if s.Failed != req.Iterations {
		t.Errorf("Failed = %d, want %d", s.Failed, req.Iterations)
	}
	if s.AvgPnLPct != 0 || s.MedianPnLPct != 0 {
		t.Errorf("pnl = %v/%v, want 0/0", s.AvgPnLPct, s.MedianPnLPct)
	}
	if s.AvgMaxDD != 100 || s.MaxDD95 != 100 {
		t.Errorf("dd = %v/%v, want 100/100", s.AvgMaxDD, s.MaxDD95)
	}
}

func TestRunDrawdownBoundedAtHighPrices(t *testing.T) {
	scaled := make([]float64, len(history))
	for i, p := range history {
		scaled[i] = p * 600
	}
	req := Request{
		Strategy:   builtins.SMACrossName,
		Params:     domain.Params{Fast: 2, Slow: 5},
		Iterations: 50,
		BarsPerSim: 200,
		Seed:       7,
	}
	report, err := New(builtins.Registry(), 4, quietLogger()).Run(context.Background(), scaled, req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Summary.Failed != 0 {
		t.Fatalf("Failed = %d, want 0", report.Summary.Failed)
	}
	full := 0
	for i, dd := range report.MaxDrawdowns {
		if dd < 0 || dd > 100 {
			t.Fatalf("iteration %d: MaxDrawdown = %v, want within [0,100]", i, dd)
		}
		if dd == 100 {
			full++
		}
	}
	if full == 0 {
		t.Error("no iteration reached a full drawdown")
	}
	if want := mean(report.MaxDrawdowns); report.Summary.AvgMaxDD != want {
		t.Errorf("AvgMaxDD = %v, want %v over all iterations", report.Summary.AvgMaxDD, want)
	}
}

func TestRunErrors(t *testing.T) {
	sim := New(builtins.Registry(), 1, quietLogger())
	ctx := context.Background()

	if _, err := sim.Run(ctx, []float64{100}, crossRequest()); !errors.Is(err, ErrNotEnoughHistory) {
		t.Errorf("short history err = %v", err)
	}

	bad := crossRequest()
	bad.Iterations = 0
	if _, err := sim.Run(ctx, history, bad); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("zero iterations err = %v", err)
	}

	bad = crossRequest()
	bad.Strategy = "nope"
	if _, err := sim.Run(ctx, history, bad); !errors.Is(err, strategy.ErrUnknownStrategy) {
		t.Errorf("unknown strategy err = %v", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := sim.Run(cctx, history, crossRequest()); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled err = %v", err)
	}
}
