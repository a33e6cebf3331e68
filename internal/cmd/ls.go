package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mirekys/fusefs/vfs"
)

// NewLsCmd creates and returns the ls subcommand for the fusefs CLI.
// It lists one directory of an archive without mounting it.
func NewLsCmd() *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "ls SOURCE [PATH]",
		Short: "List a directory of an archive without mounting",
		Long: `List the entries of one directory inside an archive.

SOURCE is a backend locator such as zip://photos.zip. PATH is the
directory to list, defaulting to the archive root. Entries are printed
in archive order, the same order a mounted readdir would return.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) > 1 {
				dir = args[1]
			}
			return runLs(cmd, args[0], dir, long)
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show size and modification time")

	return cmd
}

func runLs(cmd *cobra.Command, source, dir string, long bool) error {
	ctx := cmd.Context()

	backend, err := vfs.Open(ctx, source)
	if err != nil {
		return err
	}
	defer backend.Close()

	children, err := backend.List(ctx, dir)
	if err != nil {
		return err
	}

	for _, child := range children {
		name := child.Name
		if child.Entry.IsDir() {
			name += "/"
		}
		if long {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\t%s\n",
				child.Entry.Mode, child.Entry.Size,
				child.Entry.ModTime.Format("2006-01-02 15:04"), name)
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
