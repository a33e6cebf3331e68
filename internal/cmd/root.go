package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates and returns the root cobra command for the fusefs CLI.
// The root command is itself the mount operation; archive utilities live in
// subcommands.
func NewRootCmd() *cobra.Command {
	opts := &mountFlags{}

	rootCmd := &cobra.Command{
		Use:   "fusefs SOURCE MOUNTPOINT",
		Short: "Mount an archive as a read-only filesystem",
		Long: `fusefs mounts the contents of an archive as a real, kernel-visible
read-only filesystem.

SOURCE is a backend locator of the form scheme://path, for example
zip://photos.zip or tar://backups/data.tar.gz. The scheme selects the
backend; the rest is the archive's path.

MOUNTPOINT is an existing directory to mount the archive over. Ordinary
tools (ls, cat, file managers) can then traverse and read the archive as
if it were a regular directory tree. Unmount with Ctrl-C or umount.`,
		Args: func(cmd *cobra.Command, args []string) error {
			versionFlag, _ := cmd.Flags().GetBool("version")
			if versionFlag {
				return nil // Skip argument validation for version flag
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMount(cmd, args, opts)
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information and exit")
	rootCmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "Metadata cache TTL (default 60s)")
	rootCmd.Flags().BoolVar(&opts.allowOther, "allow-other", false, "Allow other users to access the mount")
	rootCmd.Flags().BoolVar(&opts.debug, "debug", false, "Log kernel-bridge protocol traffic")
	rootCmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (off when empty)")

	groupUtilities := "utilities"

	rootCmd.AddGroup(&cobra.Group{
		ID:    groupUtilities,
		Title: "Utility Commands",
	})

	lsCmd := NewLsCmd()
	catCmd := NewCatCmd()

	lsCmd.GroupID = groupUtilities
	catCmd.GroupID = groupUtilities

	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(catCmd)

	return rootCmd
}
