package vfs

import (
	"errors"
	"fmt"
)

// Errors shared by every backend and by the mount layer. Backends wrap these
// with %w so callers can classify failures with errors.Is regardless of how
// much context was added along the way.
var (
	ErrNotFound      = errors.New("entry not found")
	ErrNotADirectory = errors.New("not a directory")
	ErrIsADirectory  = errors.New("is a directory")
	ErrBadHandle     = errors.New("bad file handle")
	ErrIO            = errors.New("i/o failure")
	ErrReadOnly      = errors.New("read-only filesystem")
	ErrNotSupported  = errors.New("operation not supported")
	ErrInvalidSource = errors.New("invalid source locator")
)

// PathError records an error together with the operation and archive path
// that produced it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err indicates a missing entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
