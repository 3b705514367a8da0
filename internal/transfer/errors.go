package transfer

import "errors"

var (
	ErrChunkTooLarge       = errors.New("chunk exceeds maximum size")
	ErrUnknownCompression  = errors.New("unknown compression")
	ErrDecompressionFailed = errors.New("failed to decompress chunk")
	ErrTempFileFailed      = errors.New("failed to create temporary file")
	ErrWriteFailed         = errors.New("failed to write chunk")
	ErrCommitFailed        = errors.New("failed to commit file")
	ErrReadFailed          = errors.New("failed to read file")
	ErrSessionClosed       = errors.New("transfer session already closed")
)
