package cmd

import (
	"fmt"

	"github.com/bsdinis/jiftool/internal/jif"
	"github.com/bsdinis/jiftool/internal/output"
	"github.com/spf13/cobra"
)

func addRenameCommand(parent *cobra.Command) {
	renameCmd := &cobra.Command{
		Use:   "rename JIFFILE OLDPATH NEWPATH",
		Short: "Rewrite a reference-file path recorded in a JIF",
		Long:  "Rename rewrites every pheader currently pointing at OLDPATH to point at NEWPATH instead, in place. Use this after moving a snapshot's backing file (e.g. a firecracker memfile) to a new location.",
		Args:  cobra.ExactArgs(3),
		RunE:  runRename,
	}
	parent.AddCommand(renameCmd)
}

func runRename(cmd *cobra.Command, args []string) error {
	path, oldPath, newPath := args[0], args[1], args[2]
	j, err := jif.Load(path)
	if err != nil {
		return err
	}
	j.RenameFile(oldPath, newPath)
	if err := j.Save(path); err != nil {
		return err
	}

	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), map[string]any{
			"path": path, "old": oldPath, "new": newPath,
		})
	}
	if !output.IsQuiet() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", path, oldPath, newPath)
	}
	return nil
}
