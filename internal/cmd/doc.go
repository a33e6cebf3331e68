// Package cmd provides the command-line interface implementation for fusefs.
//
// This package contains the command implementations for the fusefs CLI tool.
// It uses the Cobra library for command structure and Fang for beautiful styling.
//
// The root command is the mount operation itself: fusefs SOURCE MOUNTPOINT
// mounts an archive read-only and serves it until interrupted or unmounted.
// Utility subcommands drive the backend layer directly, without a mount:
//   - ls: list one directory of an archive
//   - cat: stream one archived file to stdout
//
// Backend schemes (zip://, tar://) are enabled by this package's blank
// imports of the backend packages; adding a backend means adding an import.
package cmd
