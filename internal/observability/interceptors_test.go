package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/thorwhalen/pacing/internal/observability/metrics"
)

func TestUnaryServerInterceptor_RecordsCode(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	intercept := UnaryServerInterceptor(m)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := intercept(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "resp", nil
	})
	if err != nil || resp != "resp" {
		t.Fatalf("unexpected result %v, %v", resp, err)
	}

	_, err = intercept(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound to pass through, got %v", err)
	}

	if got := testutil.ToFloat64(m.GRPCRequests.WithLabelValues(info.FullMethod, "OK")); got != 1 {
		t.Errorf("expected 1 OK call, got %v", got)
	}
	if got := testutil.ToFloat64(m.GRPCRequests.WithLabelValues(info.FullMethod, "NotFound")); got != 1 {
		t.Errorf("expected 1 NotFound call, got %v", got)
	}
}

func TestStreamServerInterceptor_RecordsLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	intercept := StreamServerInterceptor(m)
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch", IsServerStream: true}

	err := intercept(nil, nil, info, func(srv any, ss grpc.ServerStream) error {
		return status.Error(codes.Canceled, "client left")
	})
	if status.Code(err) != codes.Canceled {
		t.Fatalf("expected Canceled, got %v", err)
	}

	if got := testutil.ToFloat64(m.GRPCRequests.WithLabelValues(info.FullMethod, "Canceled")); got != 1 {
		t.Errorf("expected 1 Canceled stream, got %v", got)
	}
	if n := testutil.CollectAndCount(m.GRPCLatency, "pacing_grpc_request_duration_seconds"); n != 1 {
		t.Errorf("expected one latency series, got %d", n)
	}
}
