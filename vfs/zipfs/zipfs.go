// Package zipfs serves ZIP archive contents through the vfs backend
// contract. The whole archive is indexed once at open time; member streams
// decompress lazily and sequentially.
package zipfs

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/mirekys/fusefs/vfs"
)

const (
	fileMode = 0o444
	dirMode  = 0o555

	// maxLinkTarget bounds how much of a symlink member is read as its
	// target path.
	maxLinkTarget = 4096
)

func init() {
	vfs.Register("zip", func(ctx context.Context, source string) (vfs.Backend, error) {
		return Open(ctx, source)
	})
}

// Backend serves one ZIP archive. The index maps are built during Open and
// never mutated afterwards, so lookups need no locking.
type Backend struct {
	source   string
	reader   *zip.ReadCloser
	entries  map[string]vfs.Entry // canonical path -> snapshot
	children map[string][]string  // directory path -> child names, archive order
	members  map[string]*zip.File // file/symlink path -> archive member
	once     sync.Once
	closeErr error
}

// Open reads the archive's central directory and builds the path index.
// Parent directories the archive never lists explicitly are synthesized
// with the archive file's own modification time.
func Open(ctx context.Context, source string) (*Backend, error) {
	reader, err := zip.OpenReader(source)
	if err != nil {
		return nil, fmt.Errorf("open zip archive %s: %w", source, err)
	}

	rootTime := time.Now()
	if info, err := os.Stat(source); err == nil {
		rootTime = info.ModTime()
	}

	b := &Backend{
		source:   source,
		reader:   reader,
		entries:  make(map[string]vfs.Entry, len(reader.File)+1),
		children: make(map[string][]string),
		members:  make(map[string]*zip.File, len(reader.File)),
	}
	b.entries["/"] = vfs.Entry{
		Path:    "/",
		Kind:    vfs.KindDir,
		Mode:    os.ModeDir | dirMode,
		ModTime: rootTime,
	}

	for _, f := range reader.File {
		b.addMember(f, rootTime)
	}
	return b, nil
}

// addMember indexes one archive member, synthesizing missing parents.
func (b *Backend) addMember(f *zip.File, rootTime time.Time) {
	name := vfs.CleanPath(f.Name)
	if name == "/" {
		return
	}
	isDir := strings.HasSuffix(f.Name, "/") || f.Mode().IsDir()

	entry := vfs.Entry{Path: name, ModTime: f.Modified}
	switch {
	case isDir:
		entry.Kind = vfs.KindDir
		entry.Mode = os.ModeDir | dirMode
	case f.Mode()&os.ModeSymlink != 0:
		entry.Kind = vfs.KindSymlink
		entry.Mode = os.ModeSymlink | 0o777
		entry.Size = int64(f.UncompressedSize64)
	default:
		entry.Kind = vfs.KindFile
		entry.Mode = fileMode
		entry.Size = int64(f.UncompressedSize64)
	}

	if prev, seen := b.entries[name]; seen {
		// Duplicate names keep the last occurrence, matching extraction
		// tools. A directory synthesized from a child path just picks up
		// its real metadata here.
		if prev.Kind == vfs.KindDir && isDir {
			prev.ModTime = f.Modified
			b.entries[name] = prev
			return
		}
		b.entries[name] = entry
		if !isDir {
			b.members[name] = f
		}
		return
	}

	parent, base := vfs.Split(name)
	b.ensureDir(parent, rootTime)
	b.entries[name] = entry
	b.children[parent] = append(b.children[parent], base)
	if !isDir {
		b.members[name] = f
	}
}

// ensureDir creates the directory chain down to dir if the archive has not
// listed it yet.
func (b *Backend) ensureDir(dir string, mtime time.Time) {
	if _, ok := b.entries[dir]; ok {
		return
	}
	parent, base := vfs.Split(dir)
	b.ensureDir(parent, mtime)
	b.entries[dir] = vfs.Entry{
		Path:    dir,
		Kind:    vfs.KindDir,
		Mode:    os.ModeDir | dirMode,
		ModTime: mtime,
	}
	b.children[parent] = append(b.children[parent], base)
}

// Resolve returns the entry snapshot at p.
func (b *Backend) Resolve(ctx context.Context, p string) (vfs.Entry, error) {
	name := vfs.CleanPath(p)
	entry, ok := b.entries[name]
	if !ok {
		return vfs.Entry{}, &vfs.PathError{Op: "resolve", Path: name, Err: vfs.ErrNotFound}
	}
	return entry, nil
}

// List returns the children of a directory in archive order.
func (b *Backend) List(ctx context.Context, p string) ([]vfs.DirEntry, error) {
	dir := vfs.CleanPath(p)
	entry, ok := b.entries[dir]
	if !ok {
		return nil, &vfs.PathError{Op: "list", Path: dir, Err: vfs.ErrNotFound}
	}
	if entry.Kind != vfs.KindDir {
		return nil, &vfs.PathError{Op: "list", Path: dir, Err: vfs.ErrNotADirectory}
	}

	names := b.children[dir]
	listing := make([]vfs.DirEntry, 0, len(names))
	for _, name := range names {
		listing = append(listing, vfs.DirEntry{
			Name:  name,
			Entry: b.entries[path.Join(dir, name)],
		})
	}
	return listing, nil
}

// OpenReader starts a sequential decompression stream over one member.
func (b *Backend) OpenReader(ctx context.Context, p string) (io.ReadCloser, error) {
	name := vfs.CleanPath(p)
	entry, ok := b.entries[name]
	if !ok {
		return nil, &vfs.PathError{Op: "open", Path: name, Err: vfs.ErrNotFound}
	}
	if entry.Kind == vfs.KindDir {
		return nil, &vfs.PathError{Op: "open", Path: name, Err: vfs.ErrIsADirectory}
	}

	rc, err := b.members[name].Open()
	if err != nil {
		return nil, &vfs.PathError{Op: "open", Path: name, Err: fmt.Errorf("%w: %v", vfs.ErrIO, err)}
	}
	return rc, nil
}

// Readlink returns a symlink member's target, which ZIP stores as the
// member body.
func (b *Backend) Readlink(ctx context.Context, p string) (string, error) {
	name := vfs.CleanPath(p)
	entry, ok := b.entries[name]
	if !ok {
		return "", &vfs.PathError{Op: "readlink", Path: name, Err: vfs.ErrNotFound}
	}
	if entry.Kind != vfs.KindSymlink {
		return "", &vfs.PathError{Op: "readlink", Path: name, Err: vfs.ErrNotSupported}
	}

	rc, err := b.members[name].Open()
	if err != nil {
		return "", &vfs.PathError{Op: "readlink", Path: name, Err: fmt.Errorf("%w: %v", vfs.ErrIO, err)}
	}
	defer rc.Close()

	target, err := io.ReadAll(io.LimitReader(rc, maxLinkTarget))
	if err != nil {
		return "", &vfs.PathError{Op: "readlink", Path: name, Err: fmt.Errorf("%w: %v", vfs.ErrIO, err)}
	}
	return string(target), nil
}

// Type returns the locator scheme.
func (b *Backend) Type() string {
	return "zip"
}

// Close releases the archive file. Idempotent.
func (b *Backend) Close() error {
	b.once.Do(func() {
		b.closeErr = b.reader.Close()
	})
	return b.closeErr
}
