package cmd

import (
	"fmt"
	"os"

	"github.com/bsdinis/jiftool/internal/config"
	"github.com/bsdinis/jiftool/internal/jiflog"
	"github.com/bsdinis/jiftool/internal/output"
	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	jsonFlag    bool
	verboseFlag bool
	quietFlag   bool
	noColorFlag bool
	ConfigDir   string
)

// NewRootCmd builds the jiftool command tree.
func NewRootCmd() *cobra.Command {
	cmd := newRootCmd()
	addBuildCommand(cmd)
	addInspectCommand(cmd)
	addInfoCommand(cmd)
	addCompareCommand(cmd)
	addRenameCommand(cmd)
	addTraceCommand(cmd)
	addPlotCommand(cmd)
	addDoctorCommand(cmd)
	addFirecrackerCommand(cmd)
	return cmd
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "jiftool",
		Short:         "Inspect, build and transform JIF process snapshots",
		Long:          "jiftool — a CLI for building, inspecting, diffing and transforming JIF (JIF Image Format) memory snapshots.",
		Version:       fmt.Sprintf("jiftool v%s", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verboseFlag && quietFlag {
				return fmt.Errorf("--verbose and --quiet are mutually exclusive")
			}
			if jsonFlag {
				quietFlag = true
			}
			output.SetFlags(jsonFlag, quietFlag, verboseFlag)
			jiflog.SetVerbose(verboseFlag)
			config.SetConfigDir(ConfigDir)
			return nil
		},
	}

	rootCmd.SetVersionTemplate("{{.Version}}\n")

	pflags := rootCmd.PersistentFlags()
	pflags.BoolVarP(&jsonFlag, "json", "j", false, "Output as JSON")
	pflags.BoolVarP(&verboseFlag, "verbose", "v", false, "Extra detail to stderr")
	pflags.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	pflags.BoolVar(&noColorFlag, "no-color", false, "Disable ANSI colors")
	pflags.StringVar(&ConfigDir, "config-dir", "", "Override config directory (default: ~/.jiftool)")

	if v := os.Getenv("JIFTOOL_HOME"); v != "" && ConfigDir == "" {
		ConfigDir = v
	}
	if os.Getenv("NO_COLOR") != "" {
		noColorFlag = true
	}
	if os.Getenv("JIFTOOL_JSON") == "1" {
		jsonFlag = true
	}

	return rootCmd
}

// Execute runs the jiftool command tree against os.Args.
func Execute() error {
	cmd := NewRootCmd()
	return cmd.Execute()
}
