package fusefs

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/mirekys/fusefs/vfs"
)

// fakeBackend is an in-memory backend that counts every call, so tests can
// assert how much backend work an operation triggered.
type fakeBackend struct {
	entries  map[string]vfs.Entry
	listings map[string][]vfs.DirEntry
	content  map[string][]byte

	resolveCalls atomic.Int64
	listCalls    atomic.Int64
	openCalls    atomic.Int64
}

// newFakeBackend builds a small fixed tree:
//
//	/top.txt        "top level"
//	/dir/file.txt   "hello world, backend bytes"
func newFakeBackend() *fakeBackend {
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	root := vfs.Entry{Path: "/", Kind: vfs.KindDir, Mode: os.ModeDir | 0o555, ModTime: mtime}
	dir := vfs.Entry{Path: "/dir", Kind: vfs.KindDir, Mode: os.ModeDir | 0o555, ModTime: mtime}
	top := vfs.Entry{Path: "/top.txt", Kind: vfs.KindFile, Mode: 0o444, Size: 9, ModTime: mtime}
	file := vfs.Entry{Path: "/dir/file.txt", Kind: vfs.KindFile, Mode: 0o444, Size: 26, ModTime: mtime}

	return &fakeBackend{
		entries: map[string]vfs.Entry{
			"/":             root,
			"/dir":          dir,
			"/top.txt":      top,
			"/dir/file.txt": file,
		},
		listings: map[string][]vfs.DirEntry{
			"/": {
				{Name: "top.txt", Entry: top},
				{Name: "dir", Entry: dir},
			},
			"/dir": {
				{Name: "file.txt", Entry: file},
			},
		},
		content: map[string][]byte{
			"/top.txt":      []byte("top level"),
			"/dir/file.txt": []byte("hello world, backend bytes"),
		},
	}
}

func (b *fakeBackend) calls() int64 {
	return b.resolveCalls.Load() + b.listCalls.Load() + b.openCalls.Load()
}

func (b *fakeBackend) Resolve(ctx context.Context, path string) (vfs.Entry, error) {
	b.resolveCalls.Add(1)
	entry, ok := b.entries[vfs.CleanPath(path)]
	if !ok {
		return vfs.Entry{}, &vfs.PathError{Op: "resolve", Path: path, Err: vfs.ErrNotFound}
	}
	return entry, nil
}

func (b *fakeBackend) List(ctx context.Context, path string) ([]vfs.DirEntry, error) {
	b.listCalls.Add(1)
	path = vfs.CleanPath(path)
	entry, ok := b.entries[path]
	if !ok {
		return nil, &vfs.PathError{Op: "list", Path: path, Err: vfs.ErrNotFound}
	}
	if !entry.IsDir() {
		return nil, &vfs.PathError{Op: "list", Path: path, Err: vfs.ErrNotADirectory}
	}
	return b.listings[path], nil
}

func (b *fakeBackend) OpenReader(ctx context.Context, path string) (io.ReadCloser, error) {
	b.openCalls.Add(1)
	path = vfs.CleanPath(path)
	entry, ok := b.entries[path]
	if !ok {
		return nil, &vfs.PathError{Op: "open", Path: path, Err: vfs.ErrNotFound}
	}
	if entry.IsDir() {
		return nil, &vfs.PathError{Op: "open", Path: path, Err: vfs.ErrIsADirectory}
	}
	return io.NopCloser(bytes.NewReader(b.content[path])), nil
}

func (b *fakeBackend) Readlink(ctx context.Context, path string) (string, error) {
	return "", &vfs.PathError{Op: "readlink", Path: path, Err: vfs.ErrNotSupported}
}

func (b *fakeBackend) Type() string { return "fake" }

func (b *fakeBackend) Close() error { return nil }
