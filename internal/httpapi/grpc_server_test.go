package httpapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const bufSize = 1024 * 1024

func startBufGRPC(t *testing.T, srv *GRPCServer) *grpc.ClientConn {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	srv.Register(server)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}
	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		server.GracefulStop()
		_ = listener.Close()
	})
	return conn
}

type failingProbe struct{}

func (failingProbe) Check(context.Context) error { return errors.New("db down") }

func TestGRPCServer_Classify(t *testing.T) {
	conn := startBufGRPC(t, NewGRPCServer(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	in, err := structpb.NewStruct(map[string]any{"probability": 5, "severity": 4})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, ClassifyMethod, in, out); err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	fields := out.AsMap()
	if fields["score"] != float64(20) || fields["tier"] != "extreme" || fields["required_approval"] != "dual_sign_off" {
		t.Fatalf("unexpected classification: %v", fields)
	}

	bad, _ := structpb.NewStruct(map[string]any{"probability": 0, "severity": 4})
	err = conn.Invoke(ctx, ClassifyMethod, bad, new(structpb.Struct))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	missing, _ := structpb.NewStruct(map[string]any{"probability": 2})
	err = conn.Invoke(ctx, ClassifyMethod, missing, new(structpb.Struct))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for missing severity, got %v", err)
	}

	fractional, _ := structpb.NewStruct(map[string]any{"probability": 2.5, "severity": 1})
	err = conn.Invoke(ctx, ClassifyMethod, fractional, new(structpb.Struct))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for fractional level, got %v", err)
	}
}

func TestGRPCServer_Matrix(t *testing.T) {
	conn := startBufGRPC(t, NewGRPCServer(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, MatrixMethod, &structpb.Struct{}, out); err != nil {
		t.Fatalf("Matrix error: %v", err)
	}
	rows, ok := out.AsMap()["rows"].([]any)
	if !ok || len(rows) != 5 {
		t.Fatalf("unexpected rows: %v", out.AsMap()["rows"])
	}
	for _, row := range rows {
		if cells, ok := row.([]any); !ok || len(cells) != 5 {
			t.Fatalf("unexpected row: %v", row)
		}
	}
}

func TestGRPCServer_Health(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn := startBufGRPC(t, NewGRPCServer(ReadyProbe{}))
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected status: %s", resp.GetStatus())
	}

	down := startBufGRPC(t, NewGRPCServer(failingProbe{}))
	resp, err = healthpb.NewHealthClient(down).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("unexpected status: %s", resp.GetStatus())
	}
}
