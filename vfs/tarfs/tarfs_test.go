package tarfs

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/mirekys/fusefs/vfs"
)

// tarMember describes one member to write; order in the slice is archive
// order.
type tarMember struct {
	name     string
	content  string
	typeflag byte
	linkname string
}

func buildTar(t *testing.T, members []tarMember) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		typeflag := m.typeflag
		if typeflag == 0 {
			typeflag = tar.TypeReg
		}
		hdr := &tar.Header{
			Name:     m.name,
			Typeflag: typeflag,
			Linkname: m.linkname,
			Size:     int64(len(m.content)),
			Mode:     0o644,
			ModTime:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", m.name, err)
		}
		if _, err := tw.Write([]byte(m.content)); err != nil {
			t.Fatalf("write member %s: %v", m.name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}

func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

func openBackend(t *testing.T, path string) *Backend {
	t.Helper()

	b, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func readMember(t *testing.T, b *Backend, path string) []byte {
	t.Helper()

	rc, err := b.OpenReader(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenReader(%q) failed: %v", path, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %q: %v", path, err)
	}
	return data
}

func TestPlainArchive(t *testing.T) {
	raw := buildTar(t, []tarMember{
		{name: "dir/", typeflag: tar.TypeDir},
		{name: "dir/file.txt", content: "hello world"},
		{name: "dir/other.txt", content: "second member"},
	})
	b := openBackend(t, writeArchive(t, "test.tar", raw))
	ctx := context.Background()

	entry, err := b.Resolve(ctx, "/dir/file.txt")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if entry.Kind != vfs.KindFile || entry.Size != int64(len("hello world")) {
		t.Errorf("entry = %+v, expected regular file of %d bytes", entry, len("hello world"))
	}

	listing, err := b.List(ctx, "/dir")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"file.txt", "other.txt"}
	if len(listing) != len(want) {
		t.Fatalf("List returned %d entries, expected %d", len(listing), len(want))
	}
	for i, name := range want {
		if listing[i].Name != name {
			t.Errorf("listing[%d] = %q, expected %q", i, listing[i].Name, name)
		}
	}

	// The second member's data offset must skip past the first member.
	if got := readMember(t, b, "/dir/other.txt"); string(got) != "second member" {
		t.Errorf("content = %q, expected %q", got, "second member")
	}
	if got := readMember(t, b, "/dir/file.txt"); string(got) != "hello world" {
		t.Errorf("content = %q, expected %q", got, "hello world")
	}
}

func TestSymlinkAndHardlink(t *testing.T) {
	raw := buildTar(t, []tarMember{
		{name: "data.txt", content: "shared bytes"},
		{name: "sym", typeflag: tar.TypeSymlink, linkname: "data.txt"},
		{name: "hard", typeflag: tar.TypeLink, linkname: "data.txt"},
	})
	b := openBackend(t, writeArchive(t, "links.tar", raw))
	ctx := context.Background()

	target, err := b.Readlink(ctx, "/sym")
	if err != nil {
		t.Fatalf("Readlink failed: %v", err)
	}
	if target != "data.txt" {
		t.Errorf("target = %q, expected %q", target, "data.txt")
	}

	// Hard links read the target's data and inherit its size.
	entry, err := b.Resolve(ctx, "/hard")
	if err != nil {
		t.Fatalf("Resolve(hard) failed: %v", err)
	}
	if entry.Kind != vfs.KindFile || entry.Size != int64(len("shared bytes")) {
		t.Errorf("hard link entry = %+v, expected file of %d bytes", entry, len("shared bytes"))
	}
	if got := readMember(t, b, "/hard"); string(got) != "shared bytes" {
		t.Errorf("hard link content = %q, expected %q", got, "shared bytes")
	}

	if _, err := b.Readlink(ctx, "/data.txt"); !errors.Is(err, vfs.ErrNotSupported) {
		t.Errorf("Readlink(file) error = %v, expected ErrNotSupported", err)
	}
}

func TestCompressionAutodetect(t *testing.T) {
	raw := buildTar(t, []tarMember{
		{name: "file.txt", content: "compressed hello"},
	})

	tests := []struct {
		name     string
		filename string
		compress func(t *testing.T, raw []byte) []byte
	}{
		{
			name: "gzip by magic despite neutral extension",
			// No .gz suffix; only the magic bytes identify the codec.
			filename: "archive.dat",
			compress: func(t *testing.T, raw []byte) []byte {
				var buf bytes.Buffer
				zw := gzip.NewWriter(&buf)
				if _, err := zw.Write(raw); err != nil {
					t.Fatalf("gzip write: %v", err)
				}
				if err := zw.Close(); err != nil {
					t.Fatalf("gzip close: %v", err)
				}
				return buf.Bytes()
			},
		},
		{
			name:     "zstd",
			filename: "archive.tar.zst",
			compress: func(t *testing.T, raw []byte) []byte {
				var buf bytes.Buffer
				zw, err := zstd.NewWriter(&buf)
				if err != nil {
					t.Fatalf("zstd writer: %v", err)
				}
				if _, err := zw.Write(raw); err != nil {
					t.Fatalf("zstd write: %v", err)
				}
				if err := zw.Close(); err != nil {
					t.Fatalf("zstd close: %v", err)
				}
				return buf.Bytes()
			},
		},
		{
			name:     "lz4",
			filename: "archive.tar.lz4",
			compress: func(t *testing.T, raw []byte) []byte {
				var buf bytes.Buffer
				zw := lz4.NewWriter(&buf)
				if _, err := zw.Write(raw); err != nil {
					t.Fatalf("lz4 write: %v", err)
				}
				if err := zw.Close(); err != nil {
					t.Fatalf("lz4 close: %v", err)
				}
				return buf.Bytes()
			},
		},
		{
			name:     "uncompressed",
			filename: "archive.tar",
			compress: func(t *testing.T, raw []byte) []byte { return raw },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := openBackend(t, writeArchive(t, tt.filename, tt.compress(t, raw)))
			if got := readMember(t, b, "/file.txt"); string(got) != "compressed hello" {
				t.Errorf("content = %q, expected %q", got, "compressed hello")
			}
		})
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	raw := buildTar(t, []tarMember{
		{name: "file.txt", content: "abcdefghij"},
	})
	b := openBackend(t, writeArchive(t, "test.tar", raw))
	ctx := context.Background()

	s1, err := b.OpenReader(ctx, "/file.txt")
	if err != nil {
		t.Fatalf("first OpenReader failed: %v", err)
	}
	defer s1.Close()
	s2, err := b.OpenReader(ctx, "/file.txt")
	if err != nil {
		t.Fatalf("second OpenReader failed: %v", err)
	}
	defer s2.Close()

	buf := make([]byte, 5)
	if _, err := io.ReadFull(s1, buf); err != nil {
		t.Fatalf("read session 1: %v", err)
	}
	if string(buf) != "abcde" {
		t.Errorf("session 1 read %q, expected %q", buf, "abcde")
	}

	// The second session has its own cursor, unaffected by the first.
	if _, err := io.ReadFull(s2, buf); err != nil {
		t.Fatalf("read session 2: %v", err)
	}
	if string(buf) != "abcde" {
		t.Errorf("session 2 read %q, expected %q", buf, "abcde")
	}

	if err := s1.Close(); err != nil {
		t.Fatalf("close session 1: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("duplicate close: %v", err)
	}
}

func TestResolveErrors(t *testing.T) {
	raw := buildTar(t, []tarMember{
		{name: "file.txt", content: "x"},
	})
	b := openBackend(t, writeArchive(t, "test.tar", raw))
	ctx := context.Background()

	if _, err := b.Resolve(ctx, "/missing"); !errors.Is(err, vfs.ErrNotFound) {
		t.Errorf("Resolve(missing) error = %v, expected ErrNotFound", err)
	}
	if _, err := b.List(ctx, "/file.txt"); !errors.Is(err, vfs.ErrNotADirectory) {
		t.Errorf("List(file) error = %v, expected ErrNotADirectory", err)
	}
	if _, err := b.OpenReader(ctx, "/"); !errors.Is(err, vfs.ErrIsADirectory) {
		t.Errorf("OpenReader(root) error = %v, expected ErrIsADirectory", err)
	}
}
