package sandlib

import "errors"

var (
	ErrMissingServer = errors.New("sandsync server address is empty")
	ErrMissingMount  = errors.New("sandsync mount directory is empty")

	// ErrLocalIO marks a failure on the client's own filesystem, before or
	// after any remote call.
	ErrLocalIO = errors.New("local file access failed")
)
