package api

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"mcsim/internal/backtest"
	"mcsim/internal/config"
	"mcsim/internal/httpapi"
	"mcsim/internal/montecarlo"
	"mcsim/internal/optimize"
	"mcsim/internal/strategy/builtins"
)

var prices = []any{
	10.0, 9.0, 8.0, 9.0, 11.0, 13.0, 15.0, 14.0, 12.0, 10.0, 11.0, 12.0, 11.0, 9.0, 8.0, 7.0, 8.0, 10.0, 12.0, 14.0,
	13.0, 11.0, 12.0, 14.0, 16.0, 15.0, 13.0, 12.0, 11.0, 13.0, 15.0, 17.0, 18.0, 16.0, 14.0, 13.0, 15.0, 16.0, 18.0, 20.0,
}

func floats(xs []any) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x.(float64)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService() *httpapi.Server {
	log := quietLogger()
	reg := builtins.Registry()
	return httpapi.NewServer(httpapi.Deps{
		Registry:  reg,
		Optimizer: optimize.New(reg, 2, log),
		Simulator: montecarlo.New(reg, 2, log),
		Defaults:  httpapi.Defaults{TopN: 5, Iterations: 10, BarsPerSim: 40},
		Log:       log,
	})
}

// dial serves a Server's gRPC side on an in-memory listener.
func dial(t *testing.T) *grpc.ClientConn {
	t.Helper()
	svc := newService()
	srv := NewServer(config.Server{Host: "127.0.0.1", Port: 8080}, svc.Handler(), svc, quietLogger())

	lis := bufconn.Listen(1 << 20)
	go srv.GRPC().Serve(lis)
	t.Cleanup(srv.GRPC().Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func TestGRPCRunMatchesEngine(t *testing.T) {
	client := NewBacktesterClient(dial(t))
	ctx := context.Background()

	out, err := client.Run(ctx, mustStruct(t, map[string]any{
		"strategy": "sma-cross",
		"prices":   prices,
		"params":   map[string]any{"fast": 2.0, "slow": 5.0},
	}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := backtest.RunCrossover(floats(prices), 2, 5, backtest.Costs{})
	result := out.GetFields()["result"].GetStructValue().GetFields()
	if got := result["profit_factor"].GetNumberValue(); got != want.ProfitFactor {
		t.Errorf("profit_factor = %v, want %v", got, want.ProfitFactor)
	}
	if got := int(result["trades"].GetNumberValue()); got != want.Trades {
		t.Errorf("trades = %d, want %d", got, want.Trades)
	}
	if got := out.GetFields()["strategy"].GetStringValue(); got != "sma-cross" {
		t.Errorf("strategy = %q, want sma-cross", got)
	}
}

func TestGRPCOptimizeAndMonteCarlo(t *testing.T) {
	client := NewBacktesterClient(dial(t))
	ctx := context.Background()

	out, err := client.Optimize(ctx, mustStruct(t, map[string]any{
		"strategy": "rsi",
		"prices":   prices,
		"period":   map[string]any{"min": 2.0, "max": 8.0, "step": 2.0},
	}))
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if got := out.GetFields()["total"].GetNumberValue(); got != 4 {
		t.Errorf("total = %v, want 4", got)
	}

	out, err = client.MonteCarlo(ctx, mustStruct(t, map[string]any{
		"strategy": "sma-cross",
		"prices":   prices,
		"params":   map[string]any{"fast": 2.0, "slow": 5.0},
		"seed":     7.0,
	}))
	if err != nil {
		t.Fatalf("MonteCarlo: %v", err)
	}
	if got := out.GetFields()["seed"].GetNumberValue(); got != 7 {
		t.Errorf("seed = %v, want 7", got)
	}
	if got := len(out.GetFields()["pnl_pct"].GetListValue().GetValues()); got != 10 {
		t.Errorf("len(pnl_pct) = %d, want 10", got)
	}
}

func TestGRPCErrorCodes(t *testing.T) {
	client := NewBacktesterClient(dial(t))
	ctx := context.Background()

	tests := []struct {
		name string
		in   map[string]any
		want codes.Code
	}{
		{"unknown strategy", map[string]any{"strategy": "nope", "prices": prices}, codes.NotFound},
		{"invalid params", map[string]any{"strategy": "sma-cross", "prices": prices,
			"params": map[string]any{"fast": 9.0, "slow": 3.0}}, codes.InvalidArgument},
		{"no prices", map[string]any{"strategy": "rsi", "params": map[string]any{"period": 14.0}}, codes.InvalidArgument},
		{"no data source", map[string]any{"strategy": "rsi", "symbol": "BTCUSDT",
			"params": map[string]any{"period": 14.0}}, codes.Unavailable},
		{"malformed", map[string]any{"strategy": "rsi", "prices": "not a list"}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Run(ctx, mustStruct(t, tt.in))
			if got := status.Code(err); got != tt.want {
				t.Errorf("code = %v, want %v (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestGRPCHealth(t *testing.T) {
	conn := dial(t)
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	svc := newService()
	srv := NewServer(config.Server{Host: "127.0.0.1", Port: 8080, GRPCPort: 9090}, svc.Handler(), svc, quietLogger())

	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, httpLis, grpcLis) }()

	url := "http://" + httpLis.Addr().String() + "/api/health"
	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get(url)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Serve = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		status int
		want   codes.Code
	}{
		{http.StatusOK, codes.OK},
		{http.StatusBadRequest, codes.InvalidArgument},
		{http.StatusNotFound, codes.NotFound},
		{http.StatusServiceUnavailable, codes.Unavailable},
		{http.StatusBadGateway, codes.Unavailable},
		{http.StatusInternalServerError, codes.Internal},
	}
	for _, tt := range tests {
		if got := codeOf(tt.status); got != tt.want {
			t.Errorf("codeOf(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
