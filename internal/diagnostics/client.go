package diagnostics

import (
	"context"
	"fmt"

	"github.com/rmacdonaldsmith/tagmesh/internal/alternatives"
	altpkg "github.com/rmacdonaldsmith/tagmesh/pkg/alternatives"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the diagnostics service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to target. Without options the connection is insecure.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return &Client{conn: conn}, nil
}

// QueryAlternatives fetches the routing table.
func (c *Client) QueryAlternatives(ctx context.Context) (altpkg.Snapshot, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, QueryAlternativesMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return alternatives.SnapshotFromStruct(out)
}

// GetStats fetches registry and bus counters as a generic map.
func (c *Client) GetStats(ctx context.Context) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, GetStatsMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Health checks the serving status of the diagnostics service.
func (c *Client) Health(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
