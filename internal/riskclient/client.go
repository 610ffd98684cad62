// Package riskclient calls a remote MOC Studio risk service over gRPC.
package riskclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/httpapi"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/risk"
)

// Client wraps a connection to the risk service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client. Without options the transport is insecure.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Classify scores one matrix cell remotely.
func (c *Client) Classify(ctx context.Context, probability, severity int) (risk.Assessment, error) {
	in, err := structpb.NewStruct(map[string]any{"probability": probability, "severity": severity})
	if err != nil {
		return risk.Assessment{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(outgoing(ctx), httpapi.ClassifyMethod, in, out); err != nil {
		return risk.Assessment{}, mapError(err)
	}
	return decodeAssessment(out.AsMap())
}

// Matrix fetches the full 5x5 grid.
func (c *Client) Matrix(ctx context.Context) ([][]risk.Assessment, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(outgoing(ctx), httpapi.MatrixMethod, &structpb.Struct{}, out); err != nil {
		return nil, mapError(err)
	}
	rows, ok := out.AsMap()["rows"].([]any)
	if !ok {
		return nil, errors.New("riskclient: matrix response has no rows")
	}
	grid := make([][]risk.Assessment, 0, len(rows))
	for _, row := range rows {
		cells, ok := row.([]any)
		if !ok {
			return nil, errors.New("riskclient: malformed matrix row")
		}
		line := make([]risk.Assessment, 0, len(cells))
		for _, cell := range cells {
			m, ok := cell.(map[string]any)
			if !ok {
				return nil, errors.New("riskclient: malformed matrix cell")
			}
			as, err := decodeAssessment(m)
			if err != nil {
				return nil, err
			}
			line = append(line, as)
		}
		grid = append(grid, line)
	}
	return grid, nil
}

// Health returns the serving status reported by the remote health service.
func (c *Client) Health(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(outgoing(ctx), &healthpb.HealthCheckRequest{})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, mapError(err)
	}
	return resp.GetStatus(), nil
}

// WithTimeout returns a context with a default timeout for CLI tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}

func outgoing(ctx context.Context) context.Context {
	if rid := audit.RequestIDFromContext(ctx); rid != "" {
		return metadata.AppendToOutgoingContext(ctx, "x-request-id", rid)
	}
	return ctx
}

func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", apperr.ErrValidation, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, st.Message())
	}
	return err
}

func decodeAssessment(m map[string]any) (risk.Assessment, error) {
	var as risk.Assessment
	num := func(key string) (int, error) {
		v, ok := m[key].(float64)
		if !ok {
			return 0, fmt.Errorf("riskclient: field %s missing", key)
		}
		return int(v), nil
	}
	var err error
	if as.Probability, err = num("probability"); err != nil {
		return as, err
	}
	if as.Severity, err = num("severity"); err != nil {
		return as, err
	}
	if as.Score, err = num("score"); err != nil {
		return as, err
	}
	tier, _ := m["tier"].(string)
	if as.Tier, err = risk.ParseTier(tier); err != nil {
		return as, err
	}
	approval, _ := m["required_approval"].(string)
	if err := as.RequiredApproval.UnmarshalText([]byte(approval)); err != nil {
		return as, err
	}
	return as, nil
}
