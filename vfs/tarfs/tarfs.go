// Package tarfs serves TAR archive contents through the vfs backend
// contract, with transparent decompression of gzip, zstd, lz4, and bzip2
// wrapped archives.
//
// The archive is scanned once at open time to build a path index that
// records, for every member, its metadata snapshot and the byte offset of
// its data within the decompressed stream. TAR has no central directory and
// no random access, so a read session re-opens the archive, re-wraps the
// decompressor, and discards bytes up to the member's recorded offset
// before serving its content.
package tarfs

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/mirekys/fusefs/vfs"
)

const (
	fileMode = 0o444
	dirMode  = 0o555
)

func init() {
	vfs.Register("tar", func(ctx context.Context, source string) (vfs.Backend, error) {
		return Open(ctx, source)
	})
}

// codec identifies the compression wrapping the tar stream.
type codec int

const (
	codecNone codec = iota
	codecGzip
	codecZstd
	codecLZ4
	codecBzip2
)

// Magic byte prefixes for the supported codecs.
var codecMagic = []struct {
	codec codec
	magic []byte
}{
	{codecGzip, []byte{0x1f, 0x8b}},
	{codecZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{codecLZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
	{codecBzip2, []byte("BZh")},
}

// member records where one file's data sits in the decompressed stream.
type member struct {
	dataOff int64
	size    int64
}

// Backend serves one TAR archive. Index maps are built during Open and
// never mutated afterwards, so lookups need no locking.
type Backend struct {
	source   string
	codec    codec
	entries  map[string]vfs.Entry // canonical path -> snapshot
	children map[string][]string  // directory path -> child names, archive order
	members  map[string]member    // file path -> data location
	links    map[string]string    // symlink path -> target
	once     sync.Once
}

// Open scans the archive and builds the path index. Compression is detected
// from the stream's magic bytes, falling back to the file extension when the
// magic is unrecognized.
func Open(ctx context.Context, source string) (*Backend, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open tar archive %s: %w", source, err)
	}
	defer f.Close()

	rootTime := time.Now()
	if info, err := f.Stat(); err == nil {
		rootTime = info.ModTime()
	}

	b := &Backend{
		source:   source,
		entries:  make(map[string]vfs.Entry),
		children: make(map[string][]string),
		members:  make(map[string]member),
		links:    make(map[string]string),
	}
	b.entries["/"] = vfs.Entry{
		Path:    "/",
		Kind:    vfs.KindDir,
		Mode:    os.ModeDir | dirMode,
		ModTime: rootTime,
	}

	br := bufio.NewReader(f)
	b.codec, err = detectCodec(br, source)
	if err != nil {
		return nil, fmt.Errorf("open tar archive %s: %w", source, err)
	}

	stream, closeStream, err := wrapDecompressor(br, b.codec)
	if err != nil {
		return nil, fmt.Errorf("open tar archive %s: %w", source, err)
	}
	defer closeStream()

	if err := b.scan(ctx, stream, rootTime); err != nil {
		return nil, fmt.Errorf("scan tar archive %s: %w", source, err)
	}
	b.resolveHardlinks()
	return b, nil
}

// detectCodec peeks at the stream's first bytes and matches them against the
// known magic numbers, falling back to the source's file extension.
func detectCodec(br *bufio.Reader, source string) (codec, error) {
	head, err := br.Peek(4)
	if err != nil && len(head) < 2 {
		return codecNone, fmt.Errorf("%w: archive too short", vfs.ErrIO)
	}
	for _, cm := range codecMagic {
		if bytes.HasPrefix(head, cm.magic) {
			return cm.codec, nil
		}
	}

	switch {
	case strings.HasSuffix(source, ".gz"), strings.HasSuffix(source, ".tgz"):
		return codecGzip, nil
	case strings.HasSuffix(source, ".zst"):
		return codecZstd, nil
	case strings.HasSuffix(source, ".lz4"):
		return codecLZ4, nil
	case strings.HasSuffix(source, ".bz2"), strings.HasSuffix(source, ".tbz2"):
		return codecBzip2, nil
	}
	return codecNone, nil
}

// wrapDecompressor layers the codec's reader over r. The returned cleanup
// func releases any decoder resources; it never closes r itself.
func wrapDecompressor(r io.Reader, c codec) (io.Reader, func(), error) {
	switch c {
	case codecGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: gzip: %v", vfs.ErrIO, err)
		}
		return zr, func() { zr.Close() }, nil
	case codecZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: zstd: %v", vfs.ErrIO, err)
		}
		return zr.IOReadCloser(), zr.Close, nil
	case codecLZ4:
		return lz4.NewReader(r), func() {}, nil
	case codecBzip2:
		return bzip2.NewReader(r), func() {}, nil
	default:
		return r, func() {}, nil
	}
}

// countingReader tracks the number of bytes consumed from the decompressed
// stream so member data offsets can be recorded during the scan.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// scan walks the archive once, indexing every member. After tar.Reader
// returns a header the underlying stream sits exactly at the start of that
// member's data, which is the offset a read session later skips to.
func (b *Backend) scan(ctx context.Context, stream io.Reader, rootTime time.Time) error {
	cr := &countingReader{r: stream}
	tr := tar.NewReader(cr)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", vfs.ErrIO, err)
		}
		b.addMember(hdr, cr.n, rootTime)
	}
}

// addMember indexes one archive member, synthesizing missing parents.
// Later duplicates win, matching how tar extraction overwrites.
func (b *Backend) addMember(hdr *tar.Header, dataOff int64, rootTime time.Time) {
	name := vfs.CleanPath(hdr.Name)
	if name == "/" {
		return
	}

	entry := vfs.Entry{Path: name, ModTime: hdr.ModTime}
	switch hdr.Typeflag {
	case tar.TypeDir:
		entry.Kind = vfs.KindDir
		entry.Mode = os.ModeDir | dirMode
	case tar.TypeSymlink:
		entry.Kind = vfs.KindSymlink
		entry.Mode = os.ModeSymlink | 0o777
	case tar.TypeLink:
		// Hard link to another member; data location is resolved after the
		// scan, once the target has certainly been seen.
		entry.Kind = vfs.KindFile
		entry.Mode = fileMode
	case tar.TypeReg:
		entry.Kind = vfs.KindFile
		entry.Mode = fileMode
		entry.Size = hdr.Size
	default:
		// Devices, fifos, and other special members have no read-only
		// file semantics to offer.
		return
	}

	if prev, seen := b.entries[name]; seen {
		if prev.Kind == vfs.KindDir && entry.Kind == vfs.KindDir {
			prev.ModTime = hdr.ModTime
			b.entries[name] = prev
			return
		}
		b.entries[name] = entry
	} else {
		parent, base := vfs.Split(name)
		b.ensureDir(parent, rootTime)
		b.entries[name] = entry
		b.children[parent] = append(b.children[parent], base)
	}

	delete(b.members, name)
	delete(b.links, name)
	switch hdr.Typeflag {
	case tar.TypeReg:
		b.members[name] = member{dataOff: dataOff, size: hdr.Size}
	case tar.TypeSymlink:
		b.links[name] = hdr.Linkname
	case tar.TypeLink:
		b.links[name] = vfs.CleanPath(hdr.Linkname)
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

// resolveHardlinks points every hard-link member at its target's data,
// chasing link chains and inheriting the target's size.
func (b *Backend) resolveHardlinks() {
	for name, entry := range b.entries {
		if entry.Kind != vfs.KindFile {
			continue
		}
		if _, ok := b.members[name]; ok {
			continue
		}
		target := b.links[name]
		for range len(b.links) {
			if m, ok := b.members[target]; ok {
				entry.Size = m.size
				b.entries[name] = entry
				b.members[name] = m
				break
			}
			next, ok := b.links[target]
			if !ok {
				break
			}
			target = next
		}
		delete(b.links, name)
	}
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

// OpenReader starts a sequential read session over one member's data. The
// archive is re-opened and the decompressed stream discarded up to the
// member's recorded offset; the session is bounded by the member's size.
func (b *Backend) OpenReader(ctx context.Context, p string) (io.ReadCloser, error) {
	name := vfs.CleanPath(p)
	entry, ok := b.entries[name]
	if !ok {
		return nil, &vfs.PathError{Op: "open", Path: name, Err: vfs.ErrNotFound}
	}
	if entry.Kind == vfs.KindDir {
		return nil, &vfs.PathError{Op: "open", Path: name, Err: vfs.ErrIsADirectory}
	}
	m, ok := b.members[name]
	if !ok {
		return nil, &vfs.PathError{Op: "open", Path: name, Err: fmt.Errorf("%w: dangling link", vfs.ErrIO)}
	}

	f, err := os.Open(b.source)
	if err != nil {
		return nil, &vfs.PathError{Op: "open", Path: name, Err: fmt.Errorf("%w: %v", vfs.ErrIO, err)}
	}
	stream, closeStream, err := wrapDecompressor(bufio.NewReader(f), b.codec)
	if err != nil {
		f.Close()
		return nil, &vfs.PathError{Op: "open", Path: name, Err: err}
	}
	if _, err := io.CopyN(io.Discard, stream, m.dataOff); err != nil {
		closeStream()
		f.Close()
		return nil, &vfs.PathError{Op: "open", Path: name, Err: fmt.Errorf("%w: %v", vfs.ErrIO, err)}
	}

	return &session{
		Reader: io.LimitReader(stream, m.size),
		close: func() error {
			closeStream()
			return f.Close()
		},
	}, nil
}

// session bounds a decompressed stream to one member's data.
type session struct {
	io.Reader
	close    func() error
	closedMu sync.Mutex
	closed   bool
}

// Close releases the session's file and decoder. Idempotent.
func (s *session) Close() error {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.close()
}

// Readlink returns a symlink member's target from its header's Linkname.
func (b *Backend) Readlink(ctx context.Context, p string) (string, error) {
	name := vfs.CleanPath(p)
	entry, ok := b.entries[name]
	if !ok {
		return "", &vfs.PathError{Op: "readlink", Path: name, Err: vfs.ErrNotFound}
	}
	if entry.Kind != vfs.KindSymlink {
		return "", &vfs.PathError{Op: "readlink", Path: name, Err: vfs.ErrNotSupported}
	}
	return b.links[name], nil
}

// Type returns the locator scheme.
func (b *Backend) Type() string {
	return "tar"
}

// Close releases the backend. The archive file itself is only held open by
// live read sessions, so there is nothing to tear down here.
func (b *Backend) Close() error {
	b.once.Do(func() {
		b.entries = nil
		b.children = nil
		b.members = nil
		b.links = nil
	})
	return nil
}
