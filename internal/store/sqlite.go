package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"mcsim/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// DefaultListLimit caps list queries when the caller passes a non-positive limit.
const DefaultListLimit = 50

const schema = `
CREATE TABLE IF NOT EXISTS optimization_runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy        TEXT    NOT NULL,
	symbol          TEXT    NOT NULL DEFAULT '',
	interval        TEXT    NOT NULL DEFAULT '',
	bars            INTEGER NOT NULL,
	commission_rate REAL    NOT NULL,
	slippage        REAL    NOT NULL,
	tested          INTEGER NOT NULL,
	total           INTEGER NOT NULL,
	top_json        TEXT    NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS montecarlo_runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy     TEXT    NOT NULL,
	symbol       TEXT    NOT NULL DEFAULT '',
	params_json  TEXT    NOT NULL,
	seed         TEXT    NOT NULL,
	summary_json TEXT    NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_optimization_runs_created ON optimization_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_montecarlo_runs_created ON montecarlo_runs(created_at);
`

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// run tables and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", dbPath, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Optimization runs
// ---------------------------------------------------------------------------

// SaveOptimization inserts an optimization summary. A zero CreatedAt is set
// to the current time.
func (s *SQLiteStore) SaveOptimization(ctx context.Context, run domain.OptimizationRun) (int64, error) {
	top, err := json.Marshal(run.Top)
	if err != nil {
		return 0, fmt.Errorf("encoding top candidates: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO optimization_runs
			(strategy, symbol, interval, bars, commission_rate, slippage, tested, total, top_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Strategy, run.Symbol, run.Interval, run.Bars, run.CommissionRate, run.Slippage,
		run.Tested, run.Total, string(top), createdAt(run.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting optimization run: %w", err)
	}
	return res.LastInsertId()
}

// ListOptimizations returns the newest optimization runs first.
func (s *SQLiteStore) ListOptimizations(ctx context.Context, limit int) ([]domain.OptimizationRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbol, interval, bars, commission_rate, slippage, tested, total, top_json, created_at
		FROM optimization_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying optimization runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.OptimizationRun
	for rows.Next() {
		var (
			r   domain.OptimizationRun
			top string
			ms  int64
		)
		if err := rows.Scan(&r.ID, &r.Strategy, &r.Symbol, &r.Interval, &r.Bars, &r.CommissionRate,
			&r.Slippage, &r.Tested, &r.Total, &top, &ms); err != nil {
			return nil, fmt.Errorf("scanning optimization run: %w", err)
		}
		if err := json.Unmarshal([]byte(top), &r.Top); err != nil {
			return nil, fmt.Errorf("decoding top candidates of run %d: %w", r.ID, err)
		}
		r.CreatedAt = time.UnixMilli(ms).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ---------------------------------------------------------------------------
// Monte Carlo runs
// ---------------------------------------------------------------------------

// SaveMonteCarlo inserts a Monte Carlo summary. A zero CreatedAt is set to
// the current time.
func (s *SQLiteStore) SaveMonteCarlo(ctx context.Context, run domain.MonteCarloRun) (int64, error) {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return 0, fmt.Errorf("encoding params: %w", err)
	}
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return 0, fmt.Errorf("encoding summary: %w", err)
	}
	// The seed is a full uint64, which SQLite integers cannot hold.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO montecarlo_runs (strategy, symbol, params_json, seed, summary_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.Strategy, run.Symbol, string(params), strconv.FormatUint(run.Seed, 10), string(summary), createdAt(run.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting monte carlo run: %w", err)
	}
	return res.LastInsertId()
}

// ListMonteCarlo returns the newest Monte Carlo runs first.
func (s *SQLiteStore) ListMonteCarlo(ctx context.Context, limit int) ([]domain.MonteCarloRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbol, params_json, seed, summary_json, created_at
		FROM montecarlo_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying monte carlo runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.MonteCarloRun
	for rows.Next() {
		var (
			r               domain.MonteCarloRun
			params, summary string
			seed            string
			ms              int64
		)
		if err := rows.Scan(&r.ID, &r.Strategy, &r.Symbol, &params, &seed, &summary, &ms); err != nil {
			return nil, fmt.Errorf("scanning monte carlo run: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return nil, fmt.Errorf("decoding params of run %d: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(summary), &r.Summary); err != nil {
			return nil, fmt.Errorf("decoding summary of run %d: %w", r.ID, err)
		}
		if r.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
			return nil, fmt.Errorf("decoding seed of run %d: %w", r.ID, err)
		}
		r.CreatedAt = time.UnixMilli(ms).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func createdAt(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
