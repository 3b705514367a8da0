package communication

import "errors"

var (
	// Server startup/shutdown errors
	ErrServerStartFailed    = errors.New("failed to start server")
	ErrServerAlreadyStarted = errors.New("server already started")
	ErrServiceNotRegistered = errors.New("no service registered")

	// Client connection errors
	ErrClientCreateFailed = errors.New("failed to create client")
	ErrMissingTarget      = errors.New("server address is empty")

	// GRPC specific errors
	ErrGRPCListenFailed = errors.New("failed to listen on address")
)
