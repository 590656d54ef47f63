package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bsdinis/jiftool/internal/jif"
	"github.com/bsdinis/jiftool/internal/tui"
)

func addInspectCommand(parent *cobra.Command) {
	inspectCmd := &cobra.Command{
		Use:   "inspect JIFFILE",
		Short: "Interactively browse a JIF's pheaders and interval trees",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	parent.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	j, err := jif.Load(path)
	if err != nil {
		return err
	}

	p := tea.NewProgram(tui.NewInspectModel(path, j), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
