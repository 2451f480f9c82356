package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/rmacdonaldsmith/tagmesh/internal/alternatives"
	"github.com/rmacdonaldsmith/tagmesh/internal/logging"
	altpkg "github.com/rmacdonaldsmith/tagmesh/pkg/alternatives"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Source supplies the data served by the diagnostics service.
type Source interface {
	// Snapshot returns the current routing table, or false when no table is loaded.
	Snapshot() (altpkg.Snapshot, bool)
	Stats() (altpkg.Stats, bus.Statistics, bool)
}

// Server serves the diagnostics and health services.
type Server struct {
	mu       sync.Mutex
	config   Config
	source   Source
	grpc     *grpc.Server
	health   *health.Server
	listener net.Listener
	served   bool
	closed   bool
	logger   *slog.Logger
}

// NewServer creates a diagnostics server over source. Call Start or Serve.
func NewServer(config Config, source Source, logger *slog.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid diagnostics config: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	config.SetDefaults()

	s := &Server{
		config: config,
		source: source,
		grpc: grpc.NewServer(
			grpc.MaxRecvMsgSize(config.MaxMessageSize),
			grpc.MaxSendMsgSize(config.MaxMessageSize),
		),
		health: health.NewServer(),
		logger: logging.OrDiscard(logger).With("component", "diagnostics"),
	}
	RegisterDiagnosticsServer(s.grpc, s)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.SetServing(false)

	return s, nil
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	if err := s.Serve(lis); err != nil {
		lis.Close()
		return err
	}
	return nil
}

// Serve serves on lis in the background.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("diagnostics server is closed")
	}
	if s.served {
		return fmt.Errorf("diagnostics server already serving")
	}
	s.listener = lis
	s.served = true

	go func() {
		if err := s.grpc.Serve(lis); err != nil {
			s.logger.Warn("diagnostics server stopped", "error", err)
		}
	}()
	s.logger.Info("diagnostics server listening", "address", lis.Addr().String())
	return nil
}

// Addr returns the listening address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SetServing updates the reported health of the diagnostics service and the server as a whole.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Close stops the server gracefully. It is idempotent.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	return nil
}

// QueryAlternatives implements DiagnosticsServer.
func (s *Server) QueryAlternatives(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snapshot, ok := s.source.Snapshot()
	if !ok {
		return nil, status.Error(codes.Unavailable, "alternatives table is not loaded")
	}
	out, err := alternatives.RenderStruct(snapshot)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// GetStats implements DiagnosticsServer.
func (s *Server) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	registry, b, ok := s.source.Stats()
	if !ok {
		return nil, status.Error(codes.Unavailable, "alternatives table is not loaded")
	}

	owners := make(map[string]any, len(registry.Owners))
	for owner, count := range registry.Owners {
		owners[owner] = count
	}
	out, err := structpb.NewStruct(map[string]any{
		"rows":    registry.Rows,
		"entries": registry.Entries,
		"owners":  owners,
		"bus": map[string]any{
			"published":     b.Published,
			"delivered":     b.Delivered,
			"unrouted":      b.Unrouted,
			"overflow":      b.Overflow,
			"panics":        b.Panics,
			"subscriptions": b.Subscriptions,
		},
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Verify that Server implements the DiagnosticsServer interface at compile time
var _ DiagnosticsServer = (*Server)(nil)
