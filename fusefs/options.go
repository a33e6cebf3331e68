package fusefs

import (
	"time"

	"go.uber.org/zap"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultTTL    = 60 * time.Second
	DefaultShards = 16
)

// Options carries a mount's runtime configuration. The zero value is
// usable: defaults are filled in before anything reads the struct.
type Options struct {
	// Locator selects and addresses the backend, e.g. "zip://photos.zip".
	Locator string

	// Mountpoint is the directory the filesystem is mounted over.
	Mountpoint string

	// TTL bounds how long resolution and listing snapshots are served
	// before being re-fetched from the backend.
	TTL time.Duration

	// Shards is the stripe count of the resolution and listing caches.
	Shards int

	// Logger receives structured diagnostics; nil means discard.
	Logger *zap.Logger

	// AllowOther opens the mount to users other than the mounting one.
	AllowOther bool

	// Debug routes kernel-bridge protocol tracing into Logger at debug
	// level.
	Debug bool
}

func (o *Options) withDefaults() {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Shards <= 0 {
		o.Shards = DefaultShards
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}
