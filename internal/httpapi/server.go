package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"mcsim/internal/backtest"
	"mcsim/internal/domain"
	"mcsim/internal/montecarlo"
	"mcsim/internal/optimize"
	"mcsim/internal/store"
	"mcsim/internal/strategy"
)

// maxBodyBytes bounds request bodies; inline price series can be large.
const maxBodyBytes = 32 << 20

// Limits bounds the work a single request may ask for. Zero values disable
// the corresponding check.
type Limits struct {
	MaxCombinations int
	MaxIterations   int
}

// Defaults fill in request fields left empty.
type Defaults struct {
	Costs         backtest.Costs
	InitialEquity float64
	TopN          int
	Iterations    int
	BarsPerSim    int
}

// Deps collects the collaborators of a Server. Loader, Runs and Hub are
// optional.
type Deps struct {
	Registry  *strategy.Registry
	Optimizer *optimize.Optimizer
	Simulator *montecarlo.Simulator
	Loader    strategy.BarLoader
	Runs      store.RunStore
	Hub       *Hub
	Defaults  Defaults
	Limits    Limits
	Log       *slog.Logger
}

// Server serves the backtesting HTTP API.
type Server struct {
	registry  *strategy.Registry
	optimizer *optimize.Optimizer
	simulator *montecarlo.Simulator
	loader    strategy.BarLoader
	runs      store.RunStore
	hub       *Hub
	defaults  Defaults
	limits    Limits
	now       func() time.Time
	log       *slog.Logger
}

// NewServer creates a Server from deps.
func NewServer(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	if deps.Defaults.InitialEquity <= 0 {
		deps.Defaults.InitialEquity = backtest.DefaultInitialEquity
	}
	return &Server{
		registry:  deps.Registry,
		optimizer: deps.Optimizer,
		simulator: deps.Simulator,
		loader:    deps.Loader,
		runs:      deps.Runs,
		hub:       deps.Hub,
		defaults:  deps.Defaults,
		limits:    deps.Limits,
		now:       time.Now,
		log:       log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/strategies", s.handleStrategies)
	mux.HandleFunc("POST /api/indicators/sma", s.handleSMA)
	mux.HandleFunc("POST /api/indicators/rsi", s.handleRSI)
	mux.HandleFunc("POST /api/backtest/{strategy}", s.handleBacktest)
	mux.HandleFunc("POST /api/optimize", s.handleOptimize)
	mux.HandleFunc("POST /api/montecarlo", s.handleMonteCarlo)
	mux.HandleFunc("GET /api/runs/optimize", s.handleListOptimizations)
	mux.HandleFunc("GET /api/runs/montecarlo", s.handleListMonteCarlo)
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeFailure maps a service error to its HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, StatusOf(err), err.Error())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Errorf("decoding request body: %w", err))
	}
	return nil
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return store.DefaultListLimit
	}
	return n
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, StrategiesResponse{Strategies: s.registry.List()})
}

func (s *Server) handleSMA(w http.ResponseWriter, r *http.Request) {
	var req IndicatorRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	resp, err := s.SMA(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleRSI(w http.ResponseWriter, r *http.Request) {
	var req IndicatorRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	resp, err := s.RSI(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	resp, err := s.Backtest(r.Context(), r.PathValue("strategy"), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	resp, err := s.Optimize(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleMonteCarlo(w http.ResponseWriter, r *http.Request) {
	var req MonteCarloRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	resp, err := s.MonteCarlo(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleListOptimizations(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}
	runs, err := s.runs.ListOptimizations(r.Context(), queryLimit(r))
	if err != nil {
		s.log.Error("listing optimization runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list optimization runs")
		return
	}
	if runs == nil {
		runs = []domain.OptimizationRun{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleListMonteCarlo(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}
	runs, err := s.runs.ListMonteCarlo(r.Context(), queryLimit(r))
	if err != nil {
		s.log.Error("listing monte carlo runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list monte carlo runs")
		return
	}
	if runs == nil {
		runs = []domain.MonteCarloRun{}
	}
	writeJSON(w, runs)
}

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

// statusError attaches an HTTP status to an error.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func badRequest(err error) error  { return &statusError{status: http.StatusBadRequest, err: err} }
func notFound(err error) error    { return &statusError{status: http.StatusNotFound, err: err} }
func unavailable(err error) error { return &statusError{status: http.StatusServiceUnavailable, err: err} }

// StatusOf returns the HTTP status for an error returned by the Server's
// service methods.
func StatusOf(err error) int {
	var se *statusError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &se):
		return se.status
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
