package communication

import (
	"fmt"
	"net"
	"sync"

	"github.com/AnishMulay/sandsync/internal/log_service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer owns the listener and grpc.Server that expose DFSService, plus
// the standard health service.
type GRPCServer struct {
	listenAddress string
	grpcServer    *grpc.Server
	health        *health.Server
	ls            log_service.LogService

	mu       sync.Mutex
	listener net.Listener
	started  bool
	stopped  bool
}

func NewGRPCServer(addr string, ls log_service.LogService, opts ...grpc.ServerOption) *GRPCServer {
	s := &GRPCServer{
		listenAddress: addr,
		grpcServer:    grpc.NewServer(opts...),
		health:        health.NewServer(),
		ls:            ls,
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *GRPCServer) Register(srv DFSServer) {
	RegisterDFSServer(s.grpcServer, srv)
}

// Address returns the bound address once started, the configured one before.
func (s *GRPCServer) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.listenAddress
}

// Start listens on the configured TCP address and serves in the background.
func (s *GRPCServer) Start() error {
	s.ls.Info(log_service.LogEvent{
		Message:  "Starting GRPC server",
		Metadata: map[string]any{"address": s.listenAddress},
	})

	lis, err := net.Listen("tcp", s.listenAddress)
	if err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to listen on address",
			Metadata: map[string]any{"address": s.listenAddress, "error": err.Error()},
		})
		return fmt.Errorf("%w: %v", ErrGRPCListenFailed, err)
	}
	return s.StartListener(lis)
}

// StartListener serves on an existing listener (bufconn in tests).
func (s *GRPCServer) StartListener(lis net.Listener) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrServerAlreadyStarted
	}
	if _, ok := s.grpcServer.GetServiceInfo()[ServiceName]; !ok {
		s.mu.Unlock()
		return ErrServiceNotRegistered
	}
	s.listener = lis
	s.started = true
	s.mu.Unlock()

	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	s.ls.Info(log_service.LogEvent{
		Message:  "GRPC server started successfully",
		Metadata: map[string]any{"address": lis.Addr().String()},
	})

	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			s.ls.Error(log_service.LogEvent{
				Message:  "GRPC server error",
				Metadata: map[string]any{"address": lis.Addr().String(), "error": err.Error()},
			})
		}
	}()
	return nil
}

// Stop drains in-flight calls. Safe to call more than once.
func (s *GRPCServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.ls.Debug(log_service.LogEvent{
			Message:  "GRPC server already stopped, skipping",
			Metadata: map[string]any{"address": s.listenAddress},
		})
		return nil
	}

	s.ls.Info(log_service.LogEvent{
		Message:  "Stopping GRPC server",
		Metadata: map[string]any{"address": s.listenAddress},
	})

	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	s.stopped = true

	s.ls.Info(log_service.LogEvent{
		Message:  "GRPC server stopped successfully",
		Metadata: map[string]any{"address": s.listenAddress},
	})
	return nil
}
