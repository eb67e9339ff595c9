package indicator

import (
	"math"
	"testing"

	talib "github.com/markcheno/go-talib"
)

func TestSMAValues(t *testing.T) {
	prices := []float64{11, 12, 13, 14, 20, 16}
	got := SMA(prices, 3)
	want := []float64{(11 + 12 + 13) / 3.0, (12 + 13 + 14) / 3.0, (13 + 14 + 20) / 3.0, (14 + 20 + 16) / 3.0}

	if len(got) != len(want) {
		t.Fatalf("len(SMA) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("SMA[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSMALengthAndOffset(t *testing.T) {
	prices := make([]float64, 50)
	for i := range prices {
		prices[i] = float64(i)
	}
	for _, period := range []int{1, 2, 7, 50} {
		got := SMA(prices, period)
		if len(got) != len(prices)-period+1 {
			t.Errorf("period %d: len = %d, want %d", period, len(got), len(prices)-period+1)
		}
		// SMA of 0..n at offset k is the mean of the window ending at k.
		idx := SMAOffset(period)
		wantFirst := float64(idx) - float64(period-1)/2
		if math.Abs(got[0]-wantFirst) > 1e-9 {
			t.Errorf("period %d: SMA[0] = %v, want %v", period, got[0], wantFirst)
		}
	}
}

func TestSMADegenerate(t *testing.T) {
	cases := []struct {
		name   string
		prices []float64
		period int
	}{
		{"zero period", []float64{1, 2, 3}, 0},
		{"negative period", []float64{1, 2, 3}, -2},
		{"too short", []float64{1, 2}, 3},
		{"empty", nil, 1},
	}
	for _, tc := range cases {
		if got := SMA(tc.prices, tc.period); len(got) != 0 {
			t.Errorf("%s: SMA = %v, want empty", tc.name, got)
		}
	}
}

func TestSMAConstant(t *testing.T) {
	prices := []float64{42, 42, 42, 42, 42, 42}
	for _, v := range SMA(prices, 4) {
		if v != 42 {
			t.Fatalf("SMA of constant series = %v, want 42", v)
		}
	}
}

func TestSMAMatchesTalib(t *testing.T) {
	prices := samplePrices()
	for _, period := range []int{2, 5, 14, 30} {
		got := SMA(prices, period)
		ref := talib.Sma(prices, period)
		for k := 1; k <= len(got); k++ {
			g, w := got[len(got)-k], ref[len(ref)-k]
			if math.Abs(g-w) > 1e-9*math.Max(1, math.Abs(w)) {
				t.Fatalf("period %d, %d from end: got %v, talib %v", period, k, g, w)
			}
		}
	}
}

// samplePrices returns a deterministic, non-monotonic price path.
func samplePrices() []float64 {
	prices := make([]float64, 120)
	p := 100.0
	for i := range prices {
		p += 3*math.Sin(float64(i)/4) + 1.5*math.Cos(float64(i)/1.7)
		prices[i] = p
	}
	return prices
}
