package server

import (
	"context"
	"time"

	"github.com/AnishMulay/sandsync/internal/log_service"
	"github.com/AnishMulay/sandsync/internal/metrics"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// ServerOptions returns the interceptors every DFSService server runs with:
// per-call debug logging and, when m is non-nil, request metrics.
func ServerOptions(ls log_service.LogService, m metrics.ServerMetrics) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unaryInterceptor(ls, m)),
		grpc.ChainStreamInterceptor(streamInterceptor(ls, m)),
	}
}

func observe(ls log_service.LogService, m metrics.ServerMetrics, method string, start time.Time, err error) {
	code := status.Code(err)
	elapsed := time.Since(start)

	ls.Debug(log_service.LogEvent{
		Message:  "RPC finished",
		Metadata: map[string]any{"method": method, "code": code.String(), "duration": elapsed.String()},
	})
	if m != nil {
		m.RecordRequest(method, code.String(), elapsed)
	}
}

func unaryInterceptor(ls log_service.LogService, m metrics.ServerMetrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(ls, m, info.FullMethod, start, err)
		return resp, err
	}
}

func streamInterceptor(ls log_service.LogService, m metrics.ServerMetrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		observe(ls, m, info.FullMethod, start, err)
		return err
	}
}
