package file_service

import "errors"

var (
	ErrFileNotFound     = errors.New("file not found")
	ErrUnchanged        = errors.New("file unchanged, no transfer needed")
	ErrNestedPath       = errors.New("nested paths are not supported")
	ErrStoreFailed      = errors.New("failed to store file")
	ErrChecksumMismatch = errors.New("stored content does not match header checksum")
	ErrFetchFailed      = errors.New("failed to open file for fetch")
	ErrDeleteFailed     = errors.New("failed to delete file")
	ErrListFailed       = errors.New("failed to list files")
)
