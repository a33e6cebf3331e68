package vfs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Opener creates a backend from the source portion of a locator. The source
// is passed through uninterpreted; its meaning belongs to the backend.
type Opener func(ctx context.Context, source string) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Opener)
)

// Register makes a backend available under the given locator scheme.
// Backend packages call it from init. Register panics if the scheme is
// already taken or the opener is nil.
func Register(scheme string, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if open == nil {
		panic("vfs: Register opener is nil")
	}
	if _, dup := registry[scheme]; dup {
		panic("vfs: Register called twice for scheme " + scheme)
	}
	registry[scheme] = open
}

// Schemes returns the sorted list of registered locator schemes.
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	schemes := make([]string, 0, len(registry))
	for s := range registry {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// ParseLocator splits a locator such as "zip://photos.zip" into its scheme
// and source parts. Malformed locators fail with ErrInvalidSource.
func ParseLocator(locator string) (scheme, source string, err error) {
	scheme, source, ok := strings.Cut(locator, "://")
	if !ok || scheme == "" {
		return "", "", fmt.Errorf("%w: %q (want scheme://source)", ErrInvalidSource, locator)
	}
	if source == "" {
		return "", "", fmt.Errorf("%w: %q has no source", ErrInvalidSource, locator)
	}
	return scheme, source, nil
}

// Open parses the locator, picks the backend registered for its scheme, and
// opens the source. The scheme decision is made here, once per mount; the
// returned backend never re-checks it.
func Open(ctx context.Context, locator string) (Backend, error) {
	scheme, source, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}

	registryMu.RLock()
	open, ok := registry[scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown scheme %q (have %s)",
			ErrInvalidSource, scheme, strings.Join(Schemes(), ", "))
	}

	backend, err := open(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", locator, err)
	}
	return backend, nil
}
