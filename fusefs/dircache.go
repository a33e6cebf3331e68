package fusefs

import (
	"context"
	"os"
	"sync"
	"time"

	"bazil.org/fuse"
	"github.com/taigrr/colorhash"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mirekys/fusefs/internal/metrics"
	"github.com/mirekys/fusefs/vfs"
)

// listing is one cached directory listing, synthetic entries included.
type listing struct {
	children []vfs.DirEntry
	cachedAt time.Time
}

type listingShard struct {
	mu       sync.RWMutex
	listings map[string]listing
	flight   singleflight.Group
}

// dirCache memoizes directory listings and maps backend entry snapshots to
// kernel attribute structs. Listings keep the backend's own member order,
// with "." and ".." prepended; they are cached under the same TTL and
// per-key singleflight discipline as path resolution.
type dirCache struct {
	backend  vfs.Backend
	resolver *resolver
	ttl      time.Duration
	shards   []*listingShard
	logger   *zap.Logger

	// Stamped onto every attribute reply; archives carry no ownership the
	// kernel could use.
	uid   uint32
	gid   uint32
	epoch time.Time // fallback timestamp for entries the archive left blank
}

func newDirCache(backend vfs.Backend, res *resolver, ttl time.Duration, shardCount int, logger *zap.Logger) *dirCache {
	shards := make([]*listingShard, shardCount)
	for i := range shards {
		shards[i] = &listingShard{listings: make(map[string]listing)}
	}
	return &dirCache{
		backend:  backend,
		resolver: res,
		ttl:      ttl,
		shards:   shards,
		logger:   logger,
		uid:      uint32(os.Getuid()),
		gid:      uint32(os.Getgid()),
		epoch:    time.Now(),
	}
}

func (d *dirCache) shardFor(path string) *listingShard {
	return d.shards[uint(colorhash.HashString(path))%uint(len(d.shards))]
}

// GetAttributes resolves path and fills a with the kernel-visible view of
// its entry snapshot.
func (d *dirCache) GetAttributes(ctx context.Context, path string, a *fuse.Attr) error {
	entry, inode, err := d.resolver.Resolve(ctx, path)
	if err != nil {
		return err
	}
	d.fillAttr(entry, inode, a)
	return nil
}

// fillAttr maps an entry snapshot onto kernel attribute fields. Modes are
// fixed to the read-only mask: 0444 for files, 0555 for directories so they
// stay traversable.
func (d *dirCache) fillAttr(entry vfs.Entry, inode uint64, a *fuse.Attr) {
	a.Inode = inode
	a.Size = uint64(entry.Size)
	a.Blocks = (uint64(entry.Size) + 511) / 512
	a.Uid = d.uid
	a.Gid = d.gid

	switch entry.Kind {
	case vfs.KindDir:
		a.Mode = os.ModeDir | 0o555
		a.Nlink = 2
	case vfs.KindSymlink:
		a.Mode = os.ModeSymlink | 0o777
		a.Nlink = 1
	default:
		a.Mode = 0o444
		a.Nlink = 1
	}

	mtime := entry.ModTime
	if mtime.IsZero() {
		mtime = d.epoch
	}
	a.Mtime = mtime
	a.Ctime = mtime
	a.Atime = mtime
}

// ListDirectory returns path's children in backend order with "." and ".."
// prepended. "." carries the directory's own entry; ".." its parent's.
func (d *dirCache) ListDirectory(ctx context.Context, path string) ([]vfs.DirEntry, error) {
	path = vfs.CleanPath(path)
	shard := d.shardFor(path)

	shard.mu.RLock()
	l, ok := shard.listings[path]
	shard.mu.RUnlock()
	if ok && time.Since(l.cachedAt) < d.ttl {
		return l.children, nil
	}

	v, err, _ := shard.flight.Do(path, func() (any, error) {
		shard.mu.RLock()
		l, ok := shard.listings[path]
		shard.mu.RUnlock()
		if ok && time.Since(l.cachedAt) < d.ttl {
			return l.children, nil
		}

		children, err := d.fetch(ctx, path)
		if err != nil {
			return nil, err
		}
		shard.mu.Lock()
		shard.listings[path] = listing{children: children, cachedAt: time.Now()}
		shard.mu.Unlock()
		return children, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]vfs.DirEntry), nil
}

func (d *dirCache) fetch(ctx context.Context, path string) ([]vfs.DirEntry, error) {
	self, _, err := d.resolver.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if !self.IsDir() {
		return nil, &vfs.PathError{Op: "readdir", Path: path, Err: vfs.ErrNotADirectory}
	}

	parentPath, _ := vfs.Split(path)
	parent, _, err := d.resolver.Resolve(ctx, parentPath)
	if err != nil {
		return nil, err
	}

	metrics.RecordBackendCall(d.backend.Type(), "list")
	backendChildren, err := d.backend.List(ctx, path)
	if err != nil {
		return nil, err
	}

	children := make([]vfs.DirEntry, 0, len(backendChildren)+2)
	children = append(children,
		vfs.DirEntry{Name: ".", Entry: self},
		vfs.DirEntry{Name: "..", Entry: parent},
	)
	children = append(children, backendChildren...)
	return children, nil
}
