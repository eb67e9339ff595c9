package backtest

import "errors"

var (
	// ErrInvalidPeriod reports a zero, negative or mis-ordered indicator period.
	ErrInvalidPeriod = errors.New("backtest: invalid period")

	// ErrInsufficientData reports a price series too short for the indicators
	// to produce two consecutive aligned values.
	ErrInsufficientData = errors.New("backtest: insufficient price data")

	// ErrInvalidLevels reports a buy level that is not below the sell level.
	ErrInvalidLevels = errors.New("backtest: buy level must be below sell level")

	// ErrNegativeCost reports a negative commission rate or slippage.
	ErrNegativeCost = errors.New("backtest: negative commission or slippage")

	// ErrAlignment reports an indicator index outside its series during the
	// bar loop. It indicates a bug in the index arithmetic, not bad input.
	ErrAlignment = errors.New("backtest: indicator index out of range")
)
