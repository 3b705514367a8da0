package file_record

import "errors"

var (
	ErrNotFound = errors.New("file not found")
	ErrIO       = errors.New("file access failed")
	ErrNotFile  = errors.New("not a regular file")
)
