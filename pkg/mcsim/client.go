// Package mcsim is a Go client for the mcsim-server HTTP API.
package mcsim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client provides a Go SDK for interacting with the mcsim-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new mcsim API client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mcsim: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]string
	return c.do(ctx, http.MethodGet, "/api/health", nil, &out)
}

// Strategies lists the strategy names the server knows.
func (c *Client) Strategies(ctx context.Context) ([]string, error) {
	var out struct {
		Strategies []string `json:"strategies"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/strategies", nil, &out); err != nil {
		return nil, err
	}
	return out.Strategies, nil
}

// Backtest runs strategy once.
func (c *Client) Backtest(ctx context.Context, strategy string, req BacktestRequest) (*BacktestResponse, error) {
	var out BacktestResponse
	if err := c.do(ctx, http.MethodPost, "/api/backtest/"+url.PathEscape(strategy), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Optimize runs a grid search and blocks until it finishes.
func (c *Client) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizeResponse, error) {
	var out OptimizeResponse
	if err := c.do(ctx, http.MethodPost, "/api/optimize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MonteCarlo runs a bootstrap validation.
func (c *Client) MonteCarlo(ctx context.Context, req MonteCarloRequest) (*MonteCarloResponse, error) {
	var out MonteCarloResponse
	if err := c.do(ctx, http.MethodPost, "/api/montecarlo", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OptimizationRuns lists recent grid searches, newest first. A limit <= 0
// uses the server default.
func (c *Client) OptimizationRuns(ctx context.Context, limit int) ([]OptimizationRun, error) {
	var out []OptimizationRun
	if err := c.do(ctx, http.MethodGet, "/api/runs/optimize"+limitQuery(limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MonteCarloRuns lists recent Monte Carlo validations, newest first.
func (c *Client) MonteCarloRuns(ctx context.Context, limit int) ([]MonteCarloRun, error) {
	var out []MonteCarloRun
	if err := c.do(ctx, http.MethodGet, "/api/runs/montecarlo"+limitQuery(limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(b, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(b))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
