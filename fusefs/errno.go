package fusefs

import (
	"context"
	"errors"
	"syscall"

	"github.com/mirekys/fusefs/vfs"
)

// errnoFor maps the vfs error taxonomy onto the kernel's fixed errno
// vocabulary. Every adapter handler funnels its failures through here; no
// backend error reaches the kernel uninterpreted.
func errnoFor(err error) syscall.Errno {
	switch {
	case errors.Is(err, vfs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, vfs.ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, vfs.ErrIsADirectory):
		return syscall.EISDIR
	case errors.Is(err, vfs.ErrBadHandle):
		return syscall.EBADF
	case errors.Is(err, vfs.ErrReadOnly):
		return syscall.EROFS
	case errors.Is(err, vfs.ErrNotSupported):
		return syscall.ENOSYS
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return syscall.EINTR
	default:
		// ErrIO and anything unrecognized surface as an I/O failure;
		// archive corruption is not transient and is not retried.
		return syscall.EIO
	}
}
