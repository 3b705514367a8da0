package lock_service

import "errors"

var (
	ErrLockHeld        = errors.New("write lock held by another client")
	ErrInvalidClientID = errors.New("client id is required")
	ErrInvalidFilename = errors.New("filename is required")
)
