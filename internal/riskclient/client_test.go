package riskclient

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/httpapi"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/risk"
)

func newBufClient(t *testing.T) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	httpapi.NewGRPCServer(nil).Register(srv)
	go func() { _ = srv.Serve(lis) }()

	c, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		srv.Stop()
	})
	return c
}

func TestClassifyMatchesLocal(t *testing.T) {
	c := newBufClient(t)
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()

	got, err := c.Classify(ctx, 2, 4)
	require.NoError(t, err)
	require.Equal(t, risk.MustClassify(2, 4), got)

	_, err = c.Classify(ctx, 6, 1)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestMatrixMatchesLocal(t *testing.T) {
	c := newBufClient(t)
	grid, err := c.Matrix(context.Background())
	require.NoError(t, err)
	require.Equal(t, risk.Matrix(), grid)
}

func TestHealth(t *testing.T) {
	c := newBufClient(t)
	st, err := c.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, st)
}

func TestMapError(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, mapError(status.Error(codes.InvalidArgument, "probability must be 1-5")), apperr.ErrValidation)
	require.ErrorIs(t, mapError(status.Error(codes.NotFound, "missing")), apperr.ErrNotFound)

	passed := mapError(status.Error(codes.Unavailable, "connection refused"))
	require.Equal(t, codes.Unavailable, status.Code(passed))

	plain := errors.New("boom")
	require.Same(t, plain, mapError(plain))
}
