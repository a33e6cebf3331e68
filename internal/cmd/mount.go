package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mirekys/fusefs/fusefs"
	"github.com/mirekys/fusefs/internal/metrics"
	"github.com/mirekys/fusefs/version"
	_ "github.com/mirekys/fusefs/vfs/tarfs" // register tar:// locators
	_ "github.com/mirekys/fusefs/vfs/zipfs" // register zip:// locators
)

// mountFlags carries the root command's flag values into runMount.
type mountFlags struct {
	ttl         time.Duration
	allowOther  bool
	debug       bool
	logLevel    string
	metricsAddr string
}

func runMount(cmd *cobra.Command, args []string, flags *mountFlags) error {
	versionFlag, _ := cmd.Flags().GetBool("version")
	if versionFlag {
		version.PrintVersion("fusefs")
		return nil
	}

	source := args[0]
	mountpoint := args[1]

	logger, err := buildLogger(flags.logLevel, flags.debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if info, err := os.Stat(mountpoint); err != nil {
		return fmt.Errorf("mountpoint %s: %w", mountpoint, err)
	} else if !info.IsDir() {
		return fmt.Errorf("mountpoint %s is not a directory", mountpoint)
	}
	if archivePath := sourcePath(source); archivePath != "" && pathsOverlap(archivePath, mountpoint) {
		return fmt.Errorf("archive %s lies inside mountpoint %s", archivePath, mountpoint)
	}

	if flags.metricsAddr != "" {
		go func() {
			logger.Info("serving metrics", zap.String("addr", flags.metricsAddr))
			if err := http.ListenAndServe(flags.metricsAddr, metrics.Handler()); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", zap.String("version", version.GetFullVersion()))
	return fusefs.Mount(ctx, fusefs.Options{
		Locator:    source,
		Mountpoint: mountpoint,
		TTL:        flags.ttl,
		Logger:     logger,
		AllowOther: flags.allowOther,
		Debug:      flags.debug,
	})
}

// buildLogger constructs the process logger. Debug mode forces a
// development config at debug level; otherwise the production config runs
// at the requested level.
func buildLogger(level string, debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// sourcePath extracts the filesystem path portion of a locator, or "" when
// the locator is malformed (the mount itself reports that properly).
func sourcePath(locator string) string {
	_, rest, ok := strings.Cut(locator, "://")
	if !ok {
		return ""
	}
	return rest
}

// pathsOverlap reports whether one path contains the other. Mounting over
// the archive itself would make the backend unreadable mid-serve.
func pathsOverlap(path1, path2 string) bool {
	abs1, err1 := filepath.Abs(path1)
	abs2, err2 := filepath.Abs(path2)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(abs1, abs2)
	if err == nil && rel == "." {
		return true
	}
	if err == nil && !strings.HasPrefix(rel, "..") {
		return true
	}
	rel, err = filepath.Rel(abs2, abs1)
	if err == nil && !strings.HasPrefix(rel, "..") {
		return true
	}
	return false
}
