// Package fusefs is the adapter between the kernel's FUSE operation stream
// and a vfs.Backend serving an immutable archive.
//
// Each kernel request passes through the same pipeline: resolve the path
// against the cache, call the backend on a miss, and translate the result
// (or the failure) into the reply vocabulary the kernel understands. The
// package is organized around the four structures that pipeline touches:
//
//   - resolver: TTL-bounded path -> entry cache with per-path singleflight
//     and the mount's inode table (resolver.go)
//   - dirCache: directory listings and kernel attribute mapping, with
//     synthetic "." and ".." entries (dircache.go)
//   - handleTable: live read sessions keyed by monotonic, never-reused
//     handle ids (handles.go)
//   - FS / Dir / File / Symlink: the bazil.org/fuse node types dispatching
//     kernel operations into the above (fs.go)
//
// Every failure funnels through one errno mapping (errno.go); no backend
// error reaches the kernel uninterpreted. The mount is read-only: all
// mutating operations fail with EROFS before touching the backend.
//
// Mount plumbing lives in options.go and mount.go: Options carries runtime
// configuration, Mount opens the backend from its locator, mounts, and
// serves until unmount.
package fusefs
