package observability

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/thorwhalen/pacing/internal/observability/logging"
	"github.com/thorwhalen/pacing/internal/observability/metrics"
)

const (
	callUnary  = "unary"
	callStream = "stream"
)

// UnaryServerInterceptor counts and times health Check calls.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observeCall(m, info.FullMethod, callUnary, start, err)
		return resp, err
	}
}

// StreamServerInterceptor counts and times streams. Health Watch streams
// stay open until the client leaves, so they are logged at info on close.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		observeCall(m, info.FullMethod, callStream, start, err)
		return err
	}
}

func observeCall(m *metrics.Metrics, method, kind string, start time.Time, err error) {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	elapsed := time.Since(start)
	code := status.Code(err).String()

	m.RecordGRPCRequest(method, code)
	m.RecordGRPCLatency(method, kind, elapsed.Seconds())

	logger := logging.WithComponent("grpc")
	ev := logger.Debug()
	if kind == callStream || err != nil {
		ev = logger.Info()
	}
	ev.Str("method", method).
		Str("kind", kind).
		Str("code", code).
		Dur("duration", elapsed).
		Msg("gRPC call finished")
}
