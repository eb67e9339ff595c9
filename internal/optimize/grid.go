package optimize

import (
	"github.com/samber/lo"

	"mcsim/internal/domain"
	"mcsim/internal/strategy/builtins"
)

// Range is an inclusive integer parameter range. A Step <= 0 is treated as 1.
type Range struct {
	Min  int `json:"min" yaml:"min"`
	Max  int `json:"max" yaml:"max"`
	Step int `json:"step" yaml:"step"`
}

// Values lists every value from Min to Max inclusive. An inverted range is
// empty.
func (r Range) Values() []int {
	if r.Max < r.Min {
		return nil
	}
	return lo.RangeWithSteps(r.Min, r.Max+1, r.step())
}

// Count returns len(r.Values()) without allocating.
func (r Range) Count() int {
	if r.Max < r.Min {
		return 0
	}
	return (r.Max-r.Min)/r.step() + 1
}

func (r Range) step() int {
	if r.Step <= 0 {
		return 1
	}
	return r.Step
}

// grid expands a request into the parameter sets to test. Crossover pairs
// with fast >= slow are never emitted.
func grid(req Request) ([]domain.Params, error) {
	switch req.Strategy {
	case builtins.SMACrossName:
		slows := req.Slow.Values()
		return lo.FlatMap(req.Fast.Values(), func(fast int, _ int) []domain.Params {
			return lo.FilterMap(slows, func(slow int, _ int) (domain.Params, bool) {
				return domain.Params{Fast: fast, Slow: slow}, fast < slow
			})
		}), nil
	case builtins.RSIName:
		return lo.Map(req.Period.Values(), func(period int, _ int) domain.Params {
			return domain.Params{Period: period, BuyLevel: req.BuyLevel, SellLevel: req.SellLevel}
		}), nil
	default:
		return nil, ErrUnsupportedStrategy
	}
}

// Size returns the number of parameter sets in the request's grid without
// expanding it.
func (req Request) Size() (int, error) {
	switch req.Strategy {
	case builtins.SMACrossName:
		slows := req.Slow.Count()
		if slows == 0 {
			return 0, nil
		}
		step := req.Slow.step()
		n := 0
		for fast := req.Fast.Min; fast <= req.Fast.Max && fast < req.Slow.Max; fast += req.Fast.step() {
			if fast < req.Slow.Min {
				n += slows
				continue
			}
			// Slow values up to and including fast are skipped.
			n += slows - ((fast-req.Slow.Min)/step + 1)
		}
		return n, nil
	case builtins.RSIName:
		return req.Period.Count(), nil
	default:
		return 0, ErrUnsupportedStrategy
	}
}
