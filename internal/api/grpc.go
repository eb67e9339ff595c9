package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"mcsim/internal/httpapi"
)

// ServiceName is the fully qualified name of the backtesting gRPC service.
const ServiceName = "mcsim.v1.Backtester"

// Service is the backtesting logic the gRPC methods delegate to.
type Service interface {
	Backtest(ctx context.Context, name string, req httpapi.BacktestRequest) (httpapi.BacktestResponse, error)
	Optimize(ctx context.Context, req httpapi.OptimizeRequest) (httpapi.OptimizeResponse, error)
	MonteCarlo(ctx context.Context, req httpapi.MonteCarloRequest) (httpapi.MonteCarloResponse, error)
}

// BacktesterServer is the server API of mcsim.v1.Backtester. Requests and
// responses are Structs whose keys mirror the HTTP JSON bodies.
type BacktesterServer interface {
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Optimize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MonteCarlo(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// BacktesterServiceDesc describes mcsim.v1.Backtester for grpc.Server.
var BacktesterServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BacktesterServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Run", BacktesterServer.Run),
		unaryMethod("Optimize", BacktesterServer.Optimize),
		unaryMethod("MonteCarlo", BacktesterServer.MonteCarlo),
	},
	Metadata: "mcsim/v1/backtester.proto",
}

func unaryMethod(name string, call func(BacktesterServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BacktesterServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BacktesterServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// RegisterBacktesterServer registers srv on gs.
func RegisterBacktesterServer(gs grpc.ServiceRegistrar, srv BacktesterServer) {
	gs.RegisterService(&BacktesterServiceDesc, srv)
}

// BacktesterService adapts a Service to BacktesterServer.
type BacktesterService struct {
	svc Service
	log *slog.Logger
}

var _ BacktesterServer = (*BacktesterService)(nil)

// NewBacktesterService creates a BacktesterService backed by svc.
func NewBacktesterService(svc Service, log *slog.Logger) *BacktesterService {
	if log == nil {
		log = slog.Default()
	}
	return &BacktesterService{svc: svc, log: log.With("component", "grpc")}
}

// runRequest is the Run body: the backtest request plus the strategy name
// that HTTP carries in the path.
type runRequest struct {
	Strategy string `json:"strategy"`
	httpapi.BacktestRequest
}

// Run executes a single backtest.
func (s *BacktesterService) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req runRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	resp, err := s.svc.Backtest(ctx, req.Strategy, req.BacktestRequest)
	if err != nil {
		return nil, s.statusError("Run", err)
	}
	return toStruct(resp)
}

// Optimize runs a parameter grid search.
func (s *BacktesterService) Optimize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req httpapi.OptimizeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	resp, err := s.svc.Optimize(ctx, req)
	if err != nil {
		return nil, s.statusError("Optimize", err)
	}
	return toStruct(resp)
}

// MonteCarlo runs a bootstrap validation.
func (s *BacktesterService) MonteCarlo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req httpapi.MonteCarloRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	resp, err := s.svc.MonteCarlo(ctx, req)
	if err != nil {
		return nil, s.statusError("MonteCarlo", err)
	}
	return toStruct(resp)
}

func (s *BacktesterService) statusError(method string, err error) error {
	code := codeOf(httpapi.StatusOf(err))
	if code == codes.Internal {
		s.log.Error("grpc call failed", "method", method, "error", err)
	}
	return status.Error(code, err.Error())
}

func codeOf(httpStatus int) codes.Code {
	switch httpStatus {
	case http.StatusOK:
		return codes.OK
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusServiceUnavailable:
		return codes.Unavailable
	case http.StatusBadGateway:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(in *structpb.Struct, v any) error {
	b, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "encoding request: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	return nil
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "decoding response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "building response: %v", err)
	}
	return out, nil
}

// BacktesterClient calls mcsim.v1.Backtester.
type BacktesterClient struct {
	cc grpc.ClientConnInterface
}

// NewBacktesterClient creates a client on cc.
func NewBacktesterClient(cc grpc.ClientConnInterface) *BacktesterClient {
	return &BacktesterClient{cc: cc}
}

func (c *BacktesterClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	return out, nil
}

// Run calls Backtester.Run.
func (c *BacktesterClient) Run(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Run", in, opts...)
}

// Optimize calls Backtester.Optimize.
func (c *BacktesterClient) Optimize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Optimize", in, opts...)
}

// MonteCarlo calls Backtester.MonteCarlo.
func (c *BacktesterClient) MonteCarlo(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "MonteCarlo", in, opts...)
}
