package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/mirekys/fusefs/vfs"
)

// NewCatCmd creates and returns the cat subcommand for the fusefs CLI.
// It streams one archived file to stdout without mounting.
func NewCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat SOURCE PATH",
		Short: "Print an archived file without mounting",
		Long: `Stream the content of one file inside an archive to standard output.

SOURCE is a backend locator such as tar://backup.tar.gz. PATH is the
file's path within the archive.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCat(cmd, args[0], args[1])
		},
	}
}

func runCat(cmd *cobra.Command, source, path string) error {
	ctx := cmd.Context()

	backend, err := vfs.Open(ctx, source)
	if err != nil {
		return err
	}
	defer backend.Close()

	session, err := backend.OpenReader(ctx, path)
	if err != nil {
		return err
	}
	defer session.Close()

	_, err = io.Copy(cmd.OutOrStdout(), session)
	return err
}
