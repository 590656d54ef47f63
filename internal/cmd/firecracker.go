package cmd

import (
	"fmt"
	"time"

	"github.com/bsdinis/jiftool/internal/config"
	"github.com/bsdinis/jiftool/internal/jif"
	"github.com/bsdinis/jiftool/internal/output"
	"github.com/bsdinis/jiftool/internal/snapshot/firecracker"
	"github.com/spf13/cobra"
)

var (
	fcMemFileFlag    string
	fcGuestPhysBase  uint64
	fcOutFlag        string
	fcLiveFlag       bool
	fcBinFlag        string
	fcKernelFlag     string
	fcRootDriveFlag  string
	fcInstanceDir    string
	fcVCPUCountFlag  int64
	fcMemSizeMiBFlag int64
	fcBootWaitFlag   time.Duration
)

func addFirecrackerCommand(parent *cobra.Command) {
	fcCmd := &cobra.Command{
		Use:   "firecracker",
		Short: "Convert a Firecracker microVM snapshot into a JIF",
		Long: `Firecracker builds a JIF from a Firecracker microVM's guest memory.

With --memfile, an already-captured snapshot_mem file is converted directly.
Without it, jiftool searches the snapshot_search directories from
~/.jiftool/config.toml for a snapshot_mem file.

With --live, jiftool instead drives the firecracker-go-sdk directly: it
boots a microVM per --bin/--kernel/--root-drive, lets it run for
--boot-wait, pauses it, takes a fresh snapshot, and converts that.`,
		Args: cobra.NoArgs,
		RunE: runFirecracker,
	}
	fcCmd.Flags().StringVar(&fcMemFileFlag, "memfile", "", "Path to an already-captured snapshot_mem file")
	fcCmd.Flags().Uint64Var(&fcGuestPhysBase, "guest-phys-base", 0, "Guest-physical address the memfile's first byte corresponds to")
	fcCmd.Flags().StringVarP(&fcOutFlag, "output", "o", "", "Output .jif path (default: the memfile path, or --instance-dir under --live, with a .jif suffix)")

	fcCmd.Flags().BoolVar(&fcLiveFlag, "live", false, "Boot and snapshot a microVM via the firecracker-go-sdk instead of converting an existing memfile")
	fcCmd.Flags().StringVar(&fcBinFlag, "bin", "firecracker", "Path to the firecracker binary (--live only)")
	fcCmd.Flags().StringVar(&fcKernelFlag, "kernel", "", "Guest kernel image (--live only)")
	fcCmd.Flags().StringVar(&fcRootDriveFlag, "root-drive", "", "Guest root block device (--live only)")
	fcCmd.Flags().StringVar(&fcInstanceDir, "instance-dir", "", "Scratch directory for the API socket and snapshot files (--live only)")
	fcCmd.Flags().Int64Var(&fcVCPUCountFlag, "vcpus", 1, "Guest vCPU count (--live only)")
	fcCmd.Flags().Int64Var(&fcMemSizeMiBFlag, "mem-mib", 128, "Guest memory size in MiB (--live only)")
	fcCmd.Flags().DurationVar(&fcBootWaitFlag, "boot-wait", 2*time.Second, "How long the guest runs before being paused and snapshotted (--live only)")

	parent.AddCommand(fcCmd)
}

func runFirecracker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var memPath string
	var j *jif.Jif

	if fcLiveFlag {
		if fcInstanceDir == "" {
			return fmt.Errorf("--live requires --instance-dir")
		}
		j, err = firecracker.SnapshotAndBuildJIF(cmd.Context(), firecracker.SnapshotConfig{
			BinPath:         fcBinFlag,
			KernelImagePath: fcKernelFlag,
			RootDrivePath:   fcRootDriveFlag,
			InstanceDir:     fcInstanceDir,
			VCPUCount:       fcVCPUCountFlag,
			MemSizeMiB:      fcMemSizeMiBFlag,
			BootWait:        fcBootWaitFlag,
		})
		if err != nil {
			return err
		}
		memPath = fcInstanceDir
	} else {
		memPath = fcMemFileFlag
		if memPath == "" {
			memPath, err = firecracker.FindMemFile(cfg.SnapshotSearch)
			if err != nil {
				return err
			}
		}
		j, err = firecracker.BuildJIF(firecracker.Config{MemFilePath: memPath, GuestPhysBase: fcGuestPhysBase})
		if err != nil {
			return err
		}
	}

	outPath := fcOutFlag
	if outPath == "" {
		outPath = memPath + ".jif"
	}
	if err := j.Save(outPath); err != nil {
		return err
	}

	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), map[string]any{
			"source": memPath,
			"output": outPath,
		})
	}
	if !output.IsQuiet() {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s from %s\n", outPath, memPath)
	}
	return nil
}
