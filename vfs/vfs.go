package vfs

import (
	"context"
	"io"
	"os"
	"path"
	"strings"
	"time"
)

// Kind classifies an archive entry.
type Kind int

const (
	// KindFile is a regular file.
	KindFile Kind = iota
	// KindDir is a directory.
	KindDir
	// KindSymlink is a symbolic link.
	KindSymlink
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return "file"
	}
}

// Entry is a point-in-time metadata snapshot of one archive entry. Backends
// hand out copies, never live references, so holding an Entry across calls
// is always safe.
type Entry struct {
	Path    string      // normalized absolute path, "/" for the root
	Kind    Kind        // file, directory, or symlink
	Size    int64       // size in bytes after decompression
	ModTime time.Time   // modification time recorded by the archive, zero if absent
	Mode    os.FileMode // fixed read-only permission mask
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDir
}

// DirEntry pairs a child name with its entry snapshot.
type DirEntry struct {
	Name  string
	Entry Entry
}

// Backend is the capability contract every archive backend satisfies.
//
// All operations are synchronous and read-only. Listings preserve the
// archive's own member order. Implementations must be safe for concurrent
// use; archives are immutable for the backend's lifetime, so repeated calls
// with the same arguments return the same results.
type Backend interface {
	// Resolve returns the entry snapshot at path, or ErrNotFound.
	Resolve(ctx context.Context, path string) (Entry, error)

	// List returns the children of a directory in archive order. It fails
	// with ErrNotFound for missing paths and ErrNotADirectory when the
	// entry is not a directory.
	List(ctx context.Context, path string) ([]DirEntry, error)

	// OpenReader starts a sequential read session over a file's content.
	// It fails with ErrIsADirectory for directories and ErrIO when the
	// member cannot be decoded. Sessions are independent: each carries its
	// own position and must be closed by the caller.
	OpenReader(ctx context.Context, path string) (io.ReadCloser, error)

	// Readlink returns the link target recorded for a symbolic link. It
	// fails with ErrNotSupported when the entry is not a link.
	Readlink(ctx context.Context, path string) (string, error)

	// Type returns the backend's locator scheme, e.g. "zip".
	Type() string

	// Close releases the archive. Idempotent.
	Close() error
}

// CleanPath normalizes p into the canonical path form used throughout the
// filesystem: absolute, "/"-separated, no trailing separator except for the
// root itself.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Split returns the parent path and final element of p in canonical form.
// The root is its own parent: Split("/") returns ("/", "").
func Split(p string) (parent, name string) {
	p = CleanPath(p)
	if p == "/" {
		return "/", ""
	}
	dir, file := path.Split(p)
	return CleanPath(dir), file
}
