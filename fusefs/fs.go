package fusefs

import (
	"context"
	"path"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"go.uber.org/zap"

	"github.com/mirekys/fusefs/internal/metrics"
	"github.com/mirekys/fusefs/vfs"
)

// Conservative fixed figures for statfs; archive backends have no
// free-space concept.
const (
	statfsBlockSize = 4096
	statfsNameLen   = 255
)

// FS adapts a vfs.Backend to the kernel's FUSE operation stream. It owns
// the handle table exclusively; the resolver and directory cache are shared
// by all concurrent request handlers.
type FS struct {
	backend  vfs.Backend
	resolver *resolver
	dirs     *dirCache
	handles  *handleTable
	logger   *zap.Logger
}

var (
	_ fs.FS          = (*FS)(nil)
	_ fs.FSStatfser  = (*FS)(nil)
	_ fs.FSDestroyer = (*FS)(nil)
)

// New builds the adapter over an opened backend. The backend must outlive
// the returned FS; Mount handles that wiring for the common case.
func New(backend vfs.Backend, opts Options) *FS {
	opts.withDefaults()
	res := newResolver(backend, opts.TTL, opts.Shards, opts.Logger)
	return &FS{
		backend:  backend,
		resolver: res,
		dirs:     newDirCache(backend, res, opts.TTL, opts.Shards, opts.Logger),
		handles:  newHandleTable(backend, opts.Logger),
		logger:   opts.Logger,
	}
}

// Root returns the root directory node.
func (f *FS) Root() (fs.Node, error) {
	return &Dir{fsys: f, path: "/"}, nil
}

// Statfs reports fixed conservative capacity figures; archives have no
// free space to report.
func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	resp.Bsize = statfsBlockSize
	resp.Frsize = statfsBlockSize
	resp.Namelen = statfsNameLen
	metrics.RecordOp("statfs", "ok")
	return nil
}

// Destroy runs at unmount: every live read session is closed.
func (f *FS) Destroy() {
	f.handles.Drain()
}

// fail logs an operation failure and converts it to the kernel errno.
func (f *FS) fail(op, path string, err error) error {
	errno := errnoFor(err)
	metrics.RecordOp(op, "error")
	f.logger.Debug("operation failed",
		zap.String("op", op),
		zap.String("path", path),
		zap.Error(err))
	return errno
}

// Dir is the node type for directories.
type Dir struct {
	fsys *FS
	path string
}

var (
	_ fs.Node               = (*Dir)(nil)
	_ fs.NodeStringLookuper = (*Dir)(nil)
	_ fs.HandleReadDirAller = (*Dir)(nil)
	_ fs.NodeCreater        = (*Dir)(nil)
	_ fs.NodeMkdirer        = (*Dir)(nil)
	_ fs.NodeRemover        = (*Dir)(nil)
	_ fs.NodeRenamer        = (*Dir)(nil)
	_ fs.NodeSymlinker      = (*Dir)(nil)
	_ fs.NodeLinker         = (*Dir)(nil)
	_ fs.NodeMknoder        = (*Dir)(nil)
	_ fs.NodeSetattrer      = (*Dir)(nil)
)

// Attr fills in directory attributes.
func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	if err := d.fsys.dirs.GetAttributes(ctx, d.path, a); err != nil {
		return d.fsys.fail("getattr", d.path, err)
	}
	metrics.RecordOp("getattr", "ok")
	return nil
}

// Lookup resolves one child name to its node.
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	childPath := path.Join(d.path, name)
	entry, _, err := d.fsys.resolver.Resolve(ctx, childPath)
	if err != nil {
		return nil, d.fsys.fail("lookup", childPath, err)
	}
	metrics.RecordOp("lookup", "ok")
	return d.fsys.nodeFor(childPath, entry), nil
}

// ReadDirAll lists the directory in backend order, "." and ".." first.
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	children, err := d.fsys.dirs.ListDirectory(ctx, d.path)
	if err != nil {
		return nil, d.fsys.fail("readdir", d.path, err)
	}

	dirents := make([]fuse.Dirent, 0, len(children))
	for _, child := range children {
		dirents = append(dirents, fuse.Dirent{
			Inode: d.fsys.inodeForChild(d.path, child),
			Name:  child.Name,
			Type:  direntType(child.Entry.Kind),
		})
	}
	metrics.RecordOp("readdir", "ok")
	return dirents, nil
}

// Create fails read-only before touching the backend.
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	return nil, nil, d.fsys.fail("create", path.Join(d.path, req.Name), vfs.ErrReadOnly)
}

// Mkdir fails read-only before touching the backend.
func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	return nil, d.fsys.fail("mkdir", path.Join(d.path, req.Name), vfs.ErrReadOnly)
}

// Remove fails read-only before touching the backend.
func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	return d.fsys.fail("remove", path.Join(d.path, req.Name), vfs.ErrReadOnly)
}

// Rename fails read-only before touching the backend.
func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	return d.fsys.fail("rename", path.Join(d.path, req.OldName), vfs.ErrReadOnly)
}

// Symlink fails read-only before touching the backend.
func (d *Dir) Symlink(ctx context.Context, req *fuse.SymlinkRequest) (fs.Node, error) {
	return nil, d.fsys.fail("symlink", path.Join(d.path, req.NewName), vfs.ErrReadOnly)
}

// Link fails read-only before touching the backend.
func (d *Dir) Link(ctx context.Context, req *fuse.LinkRequest, old fs.Node) (fs.Node, error) {
	return nil, d.fsys.fail("link", path.Join(d.path, req.NewName), vfs.ErrReadOnly)
}

// Mknod fails read-only before touching the backend.
func (d *Dir) Mknod(ctx context.Context, req *fuse.MknodRequest) (fs.Node, error) {
	return nil, d.fsys.fail("mknod", path.Join(d.path, req.Name), vfs.ErrReadOnly)
}

// Setattr fails read-only before touching the backend.
func (d *Dir) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	return d.fsys.fail("setattr", d.path, vfs.ErrReadOnly)
}

// File is the node type for regular files.
type File struct {
	fsys *FS
	path string
}

var (
	_ fs.Node          = (*File)(nil)
	_ fs.NodeOpener    = (*File)(nil)
	_ fs.NodeSetattrer = (*File)(nil)
	_ fs.NodeFsyncer   = (*File)(nil)
)

// Attr fills in file attributes.
func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	if err := f.fsys.dirs.GetAttributes(ctx, f.path, a); err != nil {
		return f.fsys.fail("getattr", f.path, err)
	}
	metrics.RecordOp("getattr", "ok")
	return nil
}

// Open starts an independent read session; each open gets its own handle
// and cursor, with no de-duplication across opens of the same file. Write
// access fails read-only before the backend is touched.
func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if !req.Flags.IsReadOnly() {
		return nil, f.fsys.fail("open", f.path, vfs.ErrReadOnly)
	}

	entry, _, err := f.fsys.resolver.Resolve(ctx, f.path)
	if err != nil {
		return nil, f.fsys.fail("open", f.path, err)
	}
	id, err := f.fsys.handles.Open(ctx, f.path, entry)
	if err != nil {
		return nil, f.fsys.fail("open", f.path, err)
	}

	// Archive content is immutable for the mount's lifetime; let the
	// kernel keep its page cache across opens.
	resp.Flags |= fuse.OpenKeepCache
	resp.Handle = fuse.HandleID(id)
	metrics.RecordOp("open", "ok")
	return &fileHandle{fsys: f.fsys, id: id}, nil
}

// Setattr fails read-only before touching the backend.
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	return f.fsys.fail("setattr", f.path, vfs.ErrReadOnly)
}

// Fsync has nothing to flush on a read-only filesystem.
func (f *File) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	return f.fsys.fail("fsync", f.path, vfs.ErrReadOnly)
}

// fileHandle is one open read session, carried across read and release.
type fileHandle struct {
	fsys *FS
	id   uint64
}

var (
	_ fs.HandleReader   = (*fileHandle)(nil)
	_ fs.HandleReleaser = (*fileHandle)(nil)
)

// Read serves one kernel read through the handle table.
func (h *fileHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	data, err := h.fsys.handles.Read(ctx, h.id, req.Offset, req.Size)
	if err != nil {
		return h.fsys.fail("read", "", err)
	}
	resp.Data = data
	metrics.RecordOp("read", "ok")
	return nil
}

// Release closes the read session. Duplicate releases are no-ops.
func (h *fileHandle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	h.fsys.handles.Release(ctx, h.id)
	metrics.RecordOp("release", "ok")
	return nil
}

// Symlink is the node type for symbolic links.
type Symlink struct {
	fsys *FS
	path string
}

var (
	_ fs.Node           = (*Symlink)(nil)
	_ fs.NodeReadlinker = (*Symlink)(nil)
)

// Attr fills in link attributes.
func (s *Symlink) Attr(ctx context.Context, a *fuse.Attr) error {
	if err := s.fsys.dirs.GetAttributes(ctx, s.path, a); err != nil {
		return s.fsys.fail("getattr", s.path, err)
	}
	metrics.RecordOp("getattr", "ok")
	return nil
}

// Readlink returns the target the backend format recorded for the link.
func (s *Symlink) Readlink(ctx context.Context, req *fuse.ReadlinkRequest) (string, error) {
	metrics.RecordBackendCall(s.fsys.backend.Type(), "readlink")
	target, err := s.fsys.backend.Readlink(ctx, s.path)
	if err != nil {
		return "", s.fsys.fail("readlink", s.path, err)
	}
	metrics.RecordOp("readlink", "ok")
	return target, nil
}

// nodeFor picks the node type matching an entry's kind.
func (f *FS) nodeFor(p string, entry vfs.Entry) fs.Node {
	switch entry.Kind {
	case vfs.KindDir:
		return &Dir{fsys: f, path: p}
	case vfs.KindSymlink:
		return &Symlink{fsys: f, path: p}
	default:
		return &File{fsys: f, path: p}
	}
}

// inodeForChild maps a listing entry to the inode its path owns. "." and
// ".." reuse the directory's and parent's inodes.
func (f *FS) inodeForChild(dir string, child vfs.DirEntry) uint64 {
	switch child.Name {
	case ".":
		return f.resolver.inodeFor(dir)
	case "..":
		parent, _ := vfs.Split(dir)
		return f.resolver.inodeFor(parent)
	default:
		return f.resolver.inodeFor(path.Join(dir, child.Name))
	}
}

// direntType maps an entry kind onto the kernel's dirent type tags.
func direntType(k vfs.Kind) fuse.DirentType {
	switch k {
	case vfs.KindDir:
		return fuse.DT_Dir
	case vfs.KindSymlink:
		return fuse.DT_Link
	default:
		return fuse.DT_File
	}
}
