package fusefs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mirekys/fusefs/vfs"
)

func newTestResolver(backend vfs.Backend, ttl time.Duration) *resolver {
	return newResolver(backend, ttl, DefaultShards, zap.NewNop())
}

func TestResolveIdempotent(t *testing.T) {
	backend := newFakeBackend()
	r := newTestResolver(backend, time.Minute)
	ctx := context.Background()

	first, ino1, err := r.Resolve(ctx, "/dir/file.txt")
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	second, ino2, err := r.Resolve(ctx, "/dir/file.txt")
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}

	if first != second {
		t.Errorf("snapshots differ: %+v vs %+v", first, second)
	}
	if ino1 != ino2 {
		t.Errorf("inodes differ: %d vs %d", ino1, ino2)
	}
	if ino1 == 0 || ino1 == rootInode {
		t.Errorf("file inode = %d, expected a fresh non-root inode", ino1)
	}
}

func TestResolveRootInode(t *testing.T) {
	r := newTestResolver(newFakeBackend(), time.Minute)

	entry, ino, err := r.Resolve(context.Background(), "/")
	if err != nil {
		t.Fatalf("Resolve root failed: %v", err)
	}
	if !entry.IsDir() {
		t.Error("root is not a directory")
	}
	if ino != rootInode {
		t.Errorf("root inode = %d, expected %d", ino, rootInode)
	}
}

func TestResolveNotFound(t *testing.T) {
	r := newTestResolver(newFakeBackend(), time.Minute)
	ctx := context.Background()

	tests := []struct {
		name string
		path string
	}{
		{name: "missing child of root", path: "/nope.txt"},
		{name: "missing child of directory", path: "/dir/nope.txt"},
		{name: "missing intermediate directory", path: "/ghost/file.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := r.Resolve(ctx, tt.path); !errors.Is(err, vfs.ErrNotFound) {
				t.Errorf("Resolve(%q) error = %v, expected ErrNotFound", tt.path, err)
			}
		})
	}
}

func TestResolveSingleflight(t *testing.T) {
	backend := newFakeBackend()
	r := newTestResolver(backend, time.Minute)
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			if _, _, err := r.Resolve(ctx, "/dir/file.txt"); err != nil {
				t.Errorf("Resolve failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// Resolving /dir/file.txt needs one root probe plus one listing each
	// for / and /dir, regardless of how many callers race.
	if got := backend.resolveCalls.Load(); got != 1 {
		t.Errorf("backend resolve calls = %d, expected 1", got)
	}
	if got := backend.listCalls.Load(); got != 2 {
		t.Errorf("backend list calls = %d, expected 2", got)
	}
}

func TestResolveTTLExpiryKeepsInode(t *testing.T) {
	backend := newFakeBackend()
	r := newTestResolver(backend, 10*time.Millisecond)
	ctx := context.Background()

	_, ino1, err := r.Resolve(ctx, "/top.txt")
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	callsBefore := backend.calls()

	time.Sleep(25 * time.Millisecond)

	_, ino2, err := r.Resolve(ctx, "/top.txt")
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}

	if backend.calls() == callsBefore {
		t.Error("expired entry was served without re-resolving")
	}
	if ino1 != ino2 {
		t.Errorf("inode changed across TTL expiry: %d vs %d", ino1, ino2)
	}
}

func TestInvalidateAllKeepsInodes(t *testing.T) {
	backend := newFakeBackend()
	r := newTestResolver(backend, time.Minute)
	ctx := context.Background()

	_, ino1, err := r.Resolve(ctx, "/dir")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	callsBefore := backend.calls()

	r.InvalidateAll()

	_, ino2, err := r.Resolve(ctx, "/dir")
	if err != nil {
		t.Fatalf("Resolve after invalidation failed: %v", err)
	}
	if backend.calls() == callsBefore {
		t.Error("invalidated entry was served from cache")
	}
	if ino1 != ino2 {
		t.Errorf("inode changed across invalidation: %d vs %d", ino1, ino2)
	}
}
