package communication

import "google.golang.org/grpc"

// grpcDefaultMaxRecv is grpc-go's default receive limit.
const grpcDefaultMaxRecv = 4 * 1024 * 1024

// MaxMessageSize is the largest message either end must accept to carry one
// chunk of chunkSize bytes with its header fields. Compressed payloads may
// exceed the raw size slightly. Never below the gRPC default.
func MaxMessageSize(chunkSize int) int {
	size := chunkSize + chunkSize/8 + 64*1024
	if size < grpcDefaultMaxRecv {
		return grpcDefaultMaxRecv
	}
	return size
}

// ServerMessageOptions sizes the server's message limits for chunkSize.
func ServerMessageOptions(chunkSize int) []grpc.ServerOption {
	limit := MaxMessageSize(chunkSize)
	return []grpc.ServerOption{
		grpc.MaxRecvMsgSize(limit),
		grpc.MaxSendMsgSize(limit),
	}
}

// ClientMessageOptions sizes every call's message limits for chunkSize.
func ClientMessageOptions(chunkSize int) grpc.DialOption {
	limit := MaxMessageSize(chunkSize)
	return grpc.WithDefaultCallOptions(
		grpc.MaxCallRecvMsgSize(limit),
		grpc.MaxCallSendMsgSize(limit),
	)
}
