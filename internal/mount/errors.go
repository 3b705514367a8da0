package mount

import "errors"

var (
	ErrInvalidRoot     = errors.New("invalid mount root")
	ErrInvalidName     = errors.New("invalid file name")
	ErrPathEscapesRoot = errors.New("path escapes mount root")
)
