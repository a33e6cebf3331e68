package fusefs

import (
	"context"
	"fmt"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"go.uber.org/zap"

	"github.com/mirekys/fusefs/vfs"
)

// Mount opens the backend named by opts.Locator, mounts it read-only at
// opts.Mountpoint, and serves kernel requests until the filesystem is
// unmounted or ctx is cancelled. It returns only after the mount is torn
// down: handles drained, backend closed.
func Mount(ctx context.Context, opts Options) error {
	opts.withDefaults()
	logger := opts.Logger

	backend, err := vfs.Open(ctx, opts.Locator)
	if err != nil {
		return err
	}
	defer backend.Close()

	// Probe the root once before mounting so an unreadable archive fails
	// the mount instead of the first request.
	if _, err := backend.Resolve(ctx, "/"); err != nil {
		return fmt.Errorf("probe %s root: %w", opts.Locator, err)
	}

	if opts.Debug {
		fuse.Debug = func(msg interface{}) {
			logger.Debug("fuse protocol", zap.Any("msg", msg))
		}
	}

	mountOpts := []fuse.MountOption{
		fuse.FSName("fusefs"),
		fuse.Subtype(backend.Type()),
		fuse.ReadOnly(),
	}
	if opts.AllowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}

	conn, err := fuse.Mount(opts.Mountpoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("mount %s at %s: %w", opts.Locator, opts.Mountpoint, err)
	}
	defer conn.Close()

	filesystem := New(backend, opts)

	// A cancelled context unmounts, which makes Serve return. Destroy
	// drains the handle table on the way out.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("unmounting", zap.String("mountpoint", opts.Mountpoint))
			if err := fuse.Unmount(opts.Mountpoint); err != nil {
				logger.Warn("unmount failed", zap.Error(err))
			}
		case <-done:
		}
	}()

	logger.Info("mounted",
		zap.String("locator", opts.Locator),
		zap.String("mountpoint", opts.Mountpoint),
		zap.String("backend", backend.Type()))

	if err := fs.Serve(conn, filesystem); err != nil {
		return fmt.Errorf("serve %s: %w", opts.Mountpoint, err)
	}
	filesystem.Destroy()
	return nil
}

// Unmount detaches a mountpoint served by Mount. Safe to call from another
// goroutine or process context than the serving one.
func Unmount(mountpoint string) error {
	return fuse.Unmount(mountpoint)
}
