// Package strategy defines the Strategy interface for backtestable trading
// strategies and provides a Registry for looking them up by name.
package strategy

import (
	"sort"

	"mcsim/internal/backtest"
	"mcsim/internal/domain"
)

// Strategy is the interface that all backtestable strategies implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Validate reports why p cannot be backtested over n prices, or nil.
	Validate(n int, p domain.Params, costs backtest.Costs) error

	// Backtest runs the strategy over closing prices. Invalid parameters
	// yield the backtest sentinel record.
	Backtest(prices []float64, p domain.Params, costs backtest.Costs, opts ...backtest.Option) backtest.Result
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
