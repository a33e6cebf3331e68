// Package main provides the fusefs command-line interface.
//
// fusefs is a FUSE-based filesystem that mounts archive contents (ZIP, TAR,
// optionally compressed) as a real, read-only directory tree. The core is a
// caching adapter between the kernel's filesystem operations and an abstract
// archive backend; backends are selected by a locator scheme at mount time.
//
// Running fusefs SOURCE MOUNTPOINT mounts an archive; utility subcommands
// read archives without mounting:
//   - ls: List a directory of an archive
//   - cat: Print an archived file to stdout
package main
