package server

import (
	"context"
	"errors"
	"time"

	"github.com/AnishMulay/sandsync/internal/communication"
	"github.com/AnishMulay/sandsync/internal/file_service"
	"github.com/AnishMulay/sandsync/internal/lock_service"
	"github.com/AnishMulay/sandsync/internal/mount"
	"github.com/AnishMulay/sandsync/internal/transfer"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps a domain error onto the status vocabulary clients understand.
// Anything unrecognized ends the call as Canceled.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		return st.Err()
	}

	var held *lock_service.LockHeldError
	switch {
	case errors.As(err, &held):
		return communication.WriteLockHeldStatus(
			err.Error(),
			held.Lease.Filename,
			held.Lease.ClientID,
			held.Lease.Remaining(time.Now()),
		).Err()
	case errors.Is(err, file_service.ErrFileNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, file_service.ErrUnchanged):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, mount.ErrInvalidName),
		errors.Is(err, mount.ErrPathEscapesRoot),
		errors.Is(err, file_service.ErrNestedPath),
		errors.Is(err, lock_service.ErrInvalidClientID),
		errors.Is(err, lock_service.ErrInvalidFilename),
		errors.Is(err, transfer.ErrUnknownCompression):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Canceled, err.Error())
	}
}
