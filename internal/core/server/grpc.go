package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/solatis/labelkeeper/internal/core/api"
	"github.com/solatis/labelkeeper/internal/core/auth"
	"github.com/solatis/labelkeeper/internal/core/config"
	"github.com/solatis/labelkeeper/internal/core/logging"
	"github.com/solatis/labelkeeper/internal/core/metrics"
	"github.com/solatis/labelkeeper/internal/types"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const shutdownTimeout = 30 * time.Second

// GRPCServer manages gRPC server lifecycle.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	config   *config.ServerConfig
}

// NewGRPCServer creates gRPC server with the interceptor chain (logging,
// identity, metrics), tracing and service registration.
func NewGRPCServer(cfg *config.ServerConfig, service Service, resolver *auth.Resolver, m *metrics.Metrics, logger *slog.Logger) (*GRPCServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	if m == nil {
		return nil, fmt.Errorf("metrics cannot be nil")
	}

	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.MaxRecvMsgSize(int(cfg.MaxBodySize) + 1024),
		grpc.ChainUnaryInterceptor(
			UnaryRequestLoggingInterceptor(logger),
			resolver.UnaryInterceptor(),
			m.UnaryServerInterceptor(),
		),
	}

	server := grpc.NewServer(opts...)
	RegisterClassifierServer(server, &classifierService{service: service, timeout: cfg.RequestTimeout})

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ClassifierServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &GRPCServer{
		server: server,
		health: healthServer,
		config: cfg,
	}, nil
}

// Start binds listener and serves gRPC requests.
// Context is provided for API consistency but Serve blocks until Shutdown is called.
func (s *GRPCServer) Start(ctx context.Context) error {
	addr := s.config.GRPCAddr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	return s.Serve(listener)
}

// Serve serves gRPC requests on an existing listener.
func (s *GRPCServer) Serve(listener net.Listener) error {
	s.listener = listener
	return s.server.Serve(listener)
}

// Shutdown marks the server NOT_SERVING and gracefully stops it with a
// 30-second timeout.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-time.After(shutdownTimeout):
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}

// classifierService adapts Service to the Struct-based Classifier API.
type classifierService struct {
	service Service
	timeout time.Duration
}

func (c *classifierService) Process(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user := auth.UserIDFromContext(ctx)
	if user == "" {
		return nil, status.Error(codes.Internal, "missing user_id in context")
	}

	payload := req.GetFields()["payload"].GetStructValue()
	if payload == nil {
		return nil, status.Error(codes.InvalidArgument, "payload must be a JSON object")
	}
	single := req.GetFields()["single_label"].GetBoolValue()

	body, err := protojson.Marshal(payload)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("encode payload: %v", err))
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	result, err := c.service.Process(ctx, user, body, single)
	if err != nil {
		return nil, grpcError(ctx, err)
	}

	return structpb.NewStruct(map[string]any{
		"payload_id":       string(result.PayloadID),
		"labels":           stringsToAny(result.Labels),
		"applied_rule_ids": ruleIDsToAny(result.AppliedRuleIDs),
		"processed_at":     result.ProcessedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (c *classifierService) ExtractKeys(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	body, err := protojson.Marshal(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("encode sample: %v", err))
	}

	keys, err := c.service.ExtractKeys(body)
	if err != nil {
		return nil, grpcError(ctx, err)
	}

	return structpb.NewStruct(map[string]any{"keys": stringsToAny(keys)})
}

func (c *classifierService) Statistics(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user := auth.UserIDFromContext(ctx)
	if user == "" {
		return nil, status.Error(codes.Internal, "missing user_id in context")
	}

	fields := req.GetFields()
	filter, err := api.ParseStatsFilter(user,
		fields["label"].GetStringValue(),
		fields["from"].GetStringValue(),
		fields["to"].GetStringValue(),
	)
	if err != nil {
		return nil, grpcError(ctx, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	stats, err := c.service.Statistics(ctx, filter)
	if err != nil {
		return nil, grpcError(ctx, err)
	}

	byLabel := make([]any, len(stats.ByLabel))
	for i, lc := range stats.ByLabel {
		byLabel[i] = map[string]any{
			"label":      lc.Label,
			"count":      float64(lc.Count),
			"percentage": lc.Percentage,
		}
	}
	return structpb.NewStruct(map[string]any{
		"total_payloads": float64(stats.TotalPayloads),
		"by_label":       byLabel,
	})
}

func (c *classifierService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// grpcError converts a service error into a status error. Storage failures
// are logged and reported without detail.
func grpcError(ctx context.Context, err error) error {
	code := api.GRPCCode(err)
	if code == codes.Unavailable {
		logging.FromContext(ctx).Error("request failed", "error", err)
		return status.Error(code, "storage unavailable")
	}
	if errors.Is(err, types.ErrPayloadNotObject) {
		return status.Error(code, "payload must be a JSON object")
	}
	return status.Error(code, api.PublicMessage(err))
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func ruleIDsToAny(ids []types.RuleID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
