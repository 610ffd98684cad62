package httpapi

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/obs"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/risk"
)

// RiskServiceName is the fully qualified gRPC service exposing the classifier.
// Messages are google.protobuf.Struct so clients need no generated stubs.
const RiskServiceName = "mocstudio.risk.v1.RiskService"

// Full method names for clients calling conn.Invoke.
const (
	ClassifyMethod = "/" + RiskServiceName + "/Classify"
	MatrixMethod   = "/" + RiskServiceName + "/Matrix"
)

// RiskServer is the server side of RiskService.
type RiskServer interface {
	Classify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Matrix(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// GRPCServer implements RiskService and the standard gRPC health service.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer

	readiness readinessChecker
}

// NewGRPCServer creates the gRPC service wrapper. A nil checker always
// reports serving.
func NewGRPCServer(r readinessChecker) *GRPCServer {
	if r == nil {
		r = ReadyProbe{}
	}
	return &GRPCServer{readiness: r}
}

// Register attaches both services to s.
func (s *GRPCServer) Register(reg grpc.ServiceRegistrar) {
	reg.RegisterService(&riskServiceDesc, s)
	healthpb.RegisterHealthServer(reg, s)
}

// Check reports NOT_SERVING when a backing store is unreachable.
func (s *GRPCServer) Check(ctx context.Context, _ *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if err := s.readiness.Check(ctx); err != nil {
		obs.Logger().Sugar().Warnw("grpc_health_not_serving", "err", err)
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// Classify expects {"probability": n, "severity": n}.
func (s *GRPCServer) Classify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := intField(in, "probability")
	if err != nil {
		return nil, err
	}
	sev, err := intField(in, "severity")
	if err != nil {
		return nil, err
	}
	as, err := risk.Classify(p, sev)
	if err != nil {
		return nil, grpcError(err)
	}
	obs.ObserveClassification(as.Tier.String())
	return assessmentStruct(as)
}

// Matrix returns {"rows": [[assessment, ...], ...]} ordered by probability.
func (s *GRPCServer) Matrix(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	grid := risk.Matrix()
	rows := make([]any, len(grid))
	for i, row := range grid {
		cells := make([]any, len(row))
		for j, as := range row {
			cells[j] = assessmentMap(as)
		}
		rows[i] = cells
	}
	out, err := structpb.NewStruct(map[string]any{"rows": rows})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func assessmentMap(as risk.Assessment) map[string]any {
	pres := risk.Present(as.Tier)
	return map[string]any{
		"probability":       as.Probability,
		"severity":          as.Severity,
		"score":             as.Score,
		"tier":              as.Tier.String(),
		"required_approval": as.RequiredApproval.String(),
		"approval":          as.RequiredApproval.Description(),
		"color":             pres.Color,
		"label":             pres.Label,
	}
}

func assessmentStruct(as risk.Assessment) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(assessmentMap(as))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func intField(in *structpb.Struct, name string) (int, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	num, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
	}
	n := int(num.NumberValue)
	if float64(n) != num.NumberValue {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
	return n, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.Internal, fmt.Sprintf("internal error: %v", err))
}

func riskHandler(method string, call func(RiskServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RiskServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(RiskServer), ctx, req.(*structpb.Struct))
		})
	}
}

var riskServiceDesc = grpc.ServiceDesc{
	ServiceName: RiskServiceName,
	HandlerType: (*RiskServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Classify", Handler: riskHandler(ClassifyMethod, RiskServer.Classify)},
		{MethodName: "Matrix", Handler: riskHandler(MatrixMethod, RiskServer.Matrix)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mocstudio/risk/v1/risk.proto",
}
