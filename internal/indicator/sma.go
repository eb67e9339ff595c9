// Package indicator computes technical indicators over closing-price series.
// All functions are pure and allocate their result; inputs are never modified.
package indicator

// SMA returns the simple moving average of prices over period. The result has
// len(prices)-period+1 values and index 0 corresponds to prices[period-1].
// A period <= 0 or a series shorter than period yields an empty result.
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}

	out := make([]float64, 0, len(prices)-period+1)
	n := float64(period)

	var sum float64
	for _, p := range prices[:period] {
		sum += p
	}
	out = append(out, sum/n)

	// Running window: add the newest price, drop the one leaving the window.
	for i := period; i < len(prices); i++ {
		sum += prices[i] - prices[i-period]
		out = append(out, sum/n)
	}
	return out
}

// SMAOffset returns the price index that SMA value 0 corresponds to.
func SMAOffset(period int) int {
	return period - 1
}
