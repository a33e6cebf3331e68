// Package vfs defines the capability contract that archive backends satisfy
// and the locator mechanism that selects one at mount time.
//
// A Backend serves the contents of a single immutable archive: it resolves
// paths to entry snapshots, lists directories in archive order, and opens
// sequential read sessions over individual members. The mount layer in
// package fusefs consumes this contract; backend packages such as vfs/zipfs
// and vfs/tarfs provide it.
//
// Key Components:
//
// Capability Contract:
//   - Backend interface with Resolve, List, OpenReader, Readlink
//   - Entry and DirEntry metadata snapshots (never live references)
//   - Strictly sequential read sessions (io.ReadCloser)
//
// Locators:
//   - "scheme://source" strings select a backend implementation
//   - Register/Open scheme registry, populated by backend package inits
//   - The scheme choice happens once per mount, never per request
//
// Error Taxonomy:
//   - Sentinel errors (ErrNotFound, ErrNotADirectory, ...) shared by all
//     backends and the mount layer
//   - PathError wrapper carrying the operation and path that failed
//   - Classification via errors.Is through arbitrary wrapping
//
// Backends are read-only by contract: no operation mutates archive state,
// and every entry's permission bits carry a fixed read-only mask.
package vfs
