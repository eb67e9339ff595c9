// Package store defines storage interfaces for cached price bars and the
// aggregate results of optimization and Monte Carlo runs.
package store

import (
	"context"
	"time"

	"mcsim/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars fetched from source. Bars carry
	// their own symbol and interval.
	WriteBars(ctx context.Context, source domain.Source, bars []domain.Bar) error

	// ReadBars returns bars for the symbol and interval within [start, end],
	// ordered by timestamp.
	ReadBars(ctx context.Context, source domain.Source, symbol, interval string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols stored for source and interval.
	ListSymbols(ctx context.Context, source domain.Source, interval string) ([]string, error)
}

// RunStore persists the summaries of optimization and Monte Carlo runs.
type RunStore interface {
	// SaveOptimization inserts a run and returns its assigned ID.
	SaveOptimization(ctx context.Context, run domain.OptimizationRun) (int64, error)

	// ListOptimizations returns the most recent runs, newest first, up to limit.
	ListOptimizations(ctx context.Context, limit int) ([]domain.OptimizationRun, error)

	// SaveMonteCarlo inserts a run and returns its assigned ID.
	SaveMonteCarlo(ctx context.Context, run domain.MonteCarloRun) (int64, error)

	// ListMonteCarlo returns the most recent runs, newest first, up to limit.
	ListMonteCarlo(ctx context.Context, limit int) ([]domain.MonteCarloRun, error)
}
