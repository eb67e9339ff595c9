package montecarlo

import (
	"math/rand/v2"
)

// PercentChanges returns the bar-over-bar fractional returns of prices. A
// zero previous price contributes a change of 0.
func PercentChanges(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	changes := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			changes = append(changes, 0)
			continue
		}
		changes = append(changes, prices[i]/prices[i-1]-1)
	}
	return changes
}

// SimulatePath builds a synthetic price path of bars+1 points starting at
// start, each step applying a change drawn with replacement from changes.
// Prices never go below zero. With no changes or bars the path is just the
// start price.
func SimulatePath(rng *rand.Rand, changes []float64, bars int, start float64) []float64 {
	if len(changes) == 0 || bars <= 0 {
		return []float64{start}
	}
	path := make([]float64, 0, bars+1)
	path = append(path, start)
	price := start
	for range bars {
		price = max(0, price*(1+changes[rng.IntN(len(changes))]))
		path = append(path, price)
	}
	return path
}

// iterationRNG returns the generator for iteration i of a run seeded with seed.
func iterationRNG(seed uint64, i int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(i)))
}
