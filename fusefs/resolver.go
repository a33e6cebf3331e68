package fusefs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taigrr/colorhash"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mirekys/fusefs/internal/metrics"
	"github.com/mirekys/fusefs/vfs"
)

// rootInode is the fixed inode of the mount root.
const rootInode = 1

// resolution is one cached path lookup: the backend's entry snapshot, the
// inode assigned to the path, and when the snapshot was taken.
type resolution struct {
	entry    vfs.Entry
	inode    uint64
	cachedAt time.Time
}

// resolverShard is one stripe of the resolution cache. Reads take the
// RWMutex shared; population is serialized per path by the shard's
// singleflight group.
type resolverShard struct {
	mu      sync.RWMutex
	entries map[string]resolution
	flight  singleflight.Group
}

// resolver maps kernel paths to backend entry snapshots. Snapshots older
// than the TTL are re-resolved; inodes are allocated once per path and
// survive both TTL expiry and InvalidateAll, so a path keeps its inode for
// the mount's lifetime.
type resolver struct {
	backend vfs.Backend
	ttl     time.Duration
	shards  []*resolverShard
	logger  *zap.Logger

	inodeMu   sync.Mutex
	inodes    map[string]uint64
	nextInode uint64
}

func newResolver(backend vfs.Backend, ttl time.Duration, shardCount int, logger *zap.Logger) *resolver {
	shards := make([]*resolverShard, shardCount)
	for i := range shards {
		shards[i] = &resolverShard{entries: make(map[string]resolution)}
	}
	return &resolver{
		backend:   backend,
		ttl:       ttl,
		shards:    shards,
		logger:    logger,
		inodes:    map[string]uint64{"/": rootInode},
		nextInode: rootInode,
	}
}

// shardFor stripes paths across shards so unrelated lookups never contend
// on one lock.
func (r *resolver) shardFor(path string) *resolverShard {
	return r.shards[uint(colorhash.HashString(path))%uint(len(r.shards))]
}

// inodeFor returns the path's inode, allocating the next counter value on
// first sight. Inodes are never reused.
func (r *resolver) inodeFor(path string) uint64 {
	r.inodeMu.Lock()
	defer r.inodeMu.Unlock()
	if ino, ok := r.inodes[path]; ok {
		return ino
	}
	r.nextInode++
	r.inodes[path] = r.nextInode
	return r.nextInode
}

// Resolve returns the entry snapshot and inode for path, consulting the
// cache first. On a miss or an expired snapshot the path is re-resolved
// against the backend: the parent is resolved recursively (itself cached),
// the parent's listing fetched, and the final name matched byte-for-byte.
// At most one backend resolution per path is in flight at a time;
// concurrent callers wait on the winner and share its result.
func (r *resolver) Resolve(ctx context.Context, path string) (vfs.Entry, uint64, error) {
	path = vfs.CleanPath(path)
	shard := r.shardFor(path)

	shard.mu.RLock()
	res, ok := shard.entries[path]
	shard.mu.RUnlock()
	if ok && time.Since(res.cachedAt) < r.ttl {
		return res.entry, res.inode, nil
	}

	v, err, _ := shard.flight.Do(path, func() (any, error) {
		// Double-check after winning the flight; a concurrent winner may
		// have repopulated the entry while this caller waited on the lock.
		shard.mu.RLock()
		res, ok := shard.entries[path]
		shard.mu.RUnlock()
		if ok && time.Since(res.cachedAt) < r.ttl {
			return res, nil
		}

		entry, err := r.lookup(ctx, path)
		if err != nil {
			return resolution{}, err
		}
		res = resolution{
			entry:    entry,
			inode:    r.inodeFor(path),
			cachedAt: time.Now(),
		}
		shard.mu.Lock()
		shard.entries[path] = res
		shard.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return vfs.Entry{}, 0, err
	}
	res = v.(resolution)
	return res.entry, res.inode, nil
}

// lookup resolves one path against the backend. The root probes the
// backend directly; everything else resolves its parent first and matches
// the final name in the parent's listing.
func (r *resolver) lookup(ctx context.Context, path string) (vfs.Entry, error) {
	if path == "/" {
		metrics.RecordBackendCall(r.backend.Type(), "resolve")
		return r.backend.Resolve(ctx, "/")
	}

	parent, name := vfs.Split(path)
	if _, _, err := r.Resolve(ctx, parent); err != nil {
		return vfs.Entry{}, err
	}

	metrics.RecordBackendCall(r.backend.Type(), "list")
	listing, err := r.backend.List(ctx, parent)
	if err != nil {
		return vfs.Entry{}, err
	}
	for _, child := range listing {
		if child.Name == name {
			return child.Entry, nil
		}
	}
	r.logger.Debug("path not found", zap.String("path", path))
	return vfs.Entry{}, fmt.Errorf("resolve %s: %w", path, vfs.ErrNotFound)
}

// InvalidateAll drops every cached snapshot but keeps the inode table;
// inode stability outlives staleness.
func (r *resolver) InvalidateAll() {
	for _, shard := range r.shards {
		shard.mu.Lock()
		shard.entries = make(map[string]resolution)
		shard.mu.Unlock()
	}
}
