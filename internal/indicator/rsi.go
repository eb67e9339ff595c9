package indicator

import "math"

// Value is a single indicator reading that may not be computable yet.
type Value struct {
	V     float64
	Valid bool
}

// OptionalSeries holds one Value per input price. Entries that could not be
// computed (warm-up bars) are invalid.
type OptionalSeries []Value

// At returns the value at index i and whether it is present. Indices outside
// the series are reported as absent.
func (s OptionalSeries) At(i int) (float64, bool) {
	if i < 0 || i >= len(s) {
		return 0, false
	}
	return s[i].V, s[i].Valid
}

// floats converts the series to a plain slice, using NaN for absent values.
func (s OptionalSeries) floats() []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		if v.Valid {
			out[i] = v.V
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// RSI returns Wilder's relative strength index of prices over period. The
// result always has len(prices) entries; the first valid reading is at index
// period. When there are fewer than period price changes every entry is absent.
// An average loss of zero is treated as an infinite relative strength, so a
// flat or strictly rising window reads 100.
func RSI(prices []float64, period int) OptionalSeries {
	out := make(OptionalSeries, len(prices))
	if period <= 0 || len(prices)-1 < period {
		return out
	}

	gains := make([]float64, len(prices)-1)
	losses := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}

	n := float64(period)
	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= n
	avgLoss /= n
	out[period] = Value{V: rsiFrom(avgGain, avgLoss), Valid: true}

	// Change k lands on price index k+1.
	for k := period; k < len(gains); k++ {
		avgGain = (avgGain*(n-1) + gains[k]) / n
		avgLoss = (avgLoss*(n-1) + losses[k]) / n
		out[k+1] = Value{V: rsiFrom(avgGain, avgLoss), Valid: true}
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
