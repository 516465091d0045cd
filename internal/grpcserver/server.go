// Package grpcserver implements the DigestAdmin gRPC service and the
// standard health service.
//
// It delegates to the digest scheduler and handles only the gRPC transport
// concerns: error mapping and conversion of the pass summary to a
// google.protobuf.Struct.
package grpcserver

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"builderpulse/notification-service/internal/digest"
	"builderpulse/notification-service/internal/scheduler"
)

// DigestTrigger runs one digest pass. *scheduler.Scheduler implements it.
type DigestTrigger interface {
	RunNow(ctx context.Context) (digest.Summary, error)
}

// Server implements DigestAdminServer.
type Server struct {
	trigger DigestTrigger
	log     *zap.SugaredLogger
}

// NewServer constructs a Server backed by trigger.
func NewServer(trigger DigestTrigger, log *zap.SugaredLogger) *Server {
	return &Server{trigger: trigger, log: log.Named("grpc")}
}

// New builds a grpc.Server with DigestAdmin and health registered. The
// returned health server reports SERVING until the caller changes it.
func New(trigger DigestTrigger, log *zap.SugaredLogger) (*grpc.Server, *health.Server) {
	srv := NewServer(trigger, log)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(srv.logUnary))
	RegisterDigestAdminServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs, hs
}

// RunDigestOnce runs a pass and returns its summary. On failure the status
// carries the partial summary as a detail.
func (s *Server) RunDigestOnce(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	sum, err := s.trigger.RunNow(ctx)
	out, convErr := SummaryToStruct(sum)
	if convErr != nil {
		return nil, status.Error(codes.Internal, convErr.Error())
	}
	if err != nil {
		return nil, toGRPCError(err, out)
	}
	return out, nil
}

// SummaryToStruct converts a pass summary to a protobuf Struct with the same
// field names as the HTTP response.
func SummaryToStruct(sum digest.Summary) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"contractorsProcessed": sum.ContractorsProcessed,
		"notificationsSent":    sum.NotificationsSent,
		"emailsSent":           sum.EmailsSent,
		"contractorsFailed":    sum.ContractorsFailed,
	})
}

// toGRPCError maps domain errors to gRPC status codes.
func toGRPCError(err error, partial *structpb.Struct) error {
	var code codes.Code
	switch {
	case errors.Is(err, scheduler.ErrBusy), errors.Is(err, scheduler.ErrLockHeld):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}

	st := status.New(code, err.Error())
	if withSummary, derr := st.WithDetails(protoadapt.MessageV1Of(partial)); derr == nil {
		st = withSummary
	}
	return st.Err()
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.log.Warnw("rpc failed", "method", info.FullMethod, "code", status.Code(err), "took", time.Since(start), "err", err)
	} else {
		s.log.Debugw("rpc", "method", info.FullMethod, "took", time.Since(start))
	}
	return resp, err
}
