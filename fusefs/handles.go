package fusefs

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mirekys/fusefs/internal/metrics"
	"github.com/mirekys/fusefs/vfs"
)

// openHandle is one live read session. The mutex serializes reads and
// release on the same handle; the cursor tracks how far the sequential
// backend session has advanced.
type openHandle struct {
	mu      sync.Mutex
	path    string
	entry   vfs.Entry
	token   string // session token, correlates log lines across open/read/release
	session io.ReadCloser
	cursor  int64
}

// handleTable tracks every open read session, keyed by handle ids drawn
// from a monotonic counter. Ids are never reused within a mount's lifetime,
// so a stale id from a released handle can only ever miss.
type handleTable struct {
	backend vfs.Backend
	logger  *zap.Logger

	mu      sync.RWMutex
	next    uint64
	handles map[uint64]*openHandle
}

func newHandleTable(backend vfs.Backend, logger *zap.Logger) *handleTable {
	return &handleTable{
		backend: backend,
		logger:  logger,
		handles: make(map[uint64]*openHandle),
	}
}

// Open starts a backend read session over the file at path and registers it
// under a fresh handle id. Directories fail with ErrIsADirectory before the
// backend is touched.
func (t *handleTable) Open(ctx context.Context, path string, entry vfs.Entry) (uint64, error) {
	if entry.IsDir() {
		return 0, &vfs.PathError{Op: "open", Path: path, Err: vfs.ErrIsADirectory}
	}

	metrics.RecordBackendCall(t.backend.Type(), "open")
	session, err := t.backend.OpenReader(ctx, path)
	if err != nil {
		return 0, err
	}

	h := &openHandle{
		path:    path,
		entry:   entry,
		token:   uuid.NewString(),
		session: session,
	}

	t.mu.Lock()
	t.next++
	id := t.next
	t.handles[id] = h
	t.mu.Unlock()

	metrics.HandleOpened()
	t.logger.Debug("handle opened",
		zap.Uint64("handle", id),
		zap.String("path", path),
		zap.String("session", h.token))
	return id, nil
}

// lookup returns the handle registered under id, or ErrBadHandle.
func (t *handleTable) lookup(id uint64) (*openHandle, error) {
	t.mu.RLock()
	h, ok := t.handles[id]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("handle %d: %w", id, vfs.ErrBadHandle)
	}
	return h, nil
}

// Read returns up to size bytes of the handle's file starting at offset.
// Backend sessions are strictly sequential, so an offset ahead of the
// cursor is reached by discarding the gap, and an offset behind it by
// transparently reopening the session and skipping forward from zero.
// Reads at or past end-of-file return an empty slice, not an error.
func (t *handleTable) Read(ctx context.Context, id uint64, offset int64, size int) ([]byte, error) {
	h, err := t.lookup(id)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if offset < h.cursor {
		if err := t.reopen(ctx, h); err != nil {
			return nil, err
		}
	}
	if offset > h.cursor {
		n, err := io.CopyN(io.Discard, h.session, offset-h.cursor)
		h.cursor += n
		if err == io.EOF {
			return []byte{}, nil
		}
		if err != nil {
			return nil, &vfs.PathError{Op: "read", Path: h.path, Err: fmt.Errorf("%w: %v", vfs.ErrIO, err)}
		}
	}

	buf := make([]byte, size)
	n, err := io.ReadFull(h.session, buf)
	h.cursor += int64(n)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, &vfs.PathError{Op: "read", Path: h.path, Err: fmt.Errorf("%w: %v", vfs.ErrIO, err)}
	}

	metrics.RecordRead(n)
	return buf[:n], nil
}

// reopen restarts the handle's backend session from the beginning of the
// file and resets the cursor.
func (t *handleTable) reopen(ctx context.Context, h *openHandle) error {
	h.session.Close()
	metrics.RecordBackendCall(t.backend.Type(), "open")
	session, err := t.backend.OpenReader(ctx, h.path)
	if err != nil {
		return err
	}
	h.session = session
	h.cursor = 0
	t.logger.Debug("session reopened for backward seek",
		zap.String("path", h.path),
		zap.String("session", h.token))
	return nil
}

// Release closes the handle's backend session and forgets the id. Unknown
// ids are a no-op so duplicate release calls never fail.
func (t *handleTable) Release(ctx context.Context, id uint64) {
	t.mu.Lock()
	h, ok := t.handles[id]
	delete(t.handles, id)
	t.mu.Unlock()
	if !ok {
		return
	}

	h.mu.Lock()
	h.session.Close()
	h.mu.Unlock()

	metrics.HandleReleased()
	t.logger.Debug("handle released",
		zap.Uint64("handle", id),
		zap.String("session", h.token))
}

// Drain releases every live handle. Called once at unmount.
func (t *handleTable) Drain() {
	t.mu.Lock()
	handles := t.handles
	t.handles = make(map[uint64]*openHandle)
	t.mu.Unlock()

	for id, h := range handles {
		h.mu.Lock()
		h.session.Close()
		h.mu.Unlock()
		metrics.HandleReleased()
		t.logger.Debug("handle drained", zap.Uint64("handle", id))
	}
}
