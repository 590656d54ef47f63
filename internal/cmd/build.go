package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bsdinis/jiftool/internal/config"
	"github.com/bsdinis/jiftool/internal/jif"
	"github.com/bsdinis/jiftool/internal/jif/dedup"
	"github.com/bsdinis/jiftool/internal/jif/page"
	"github.com/bsdinis/jiftool/internal/jif/pheader"
	"github.com/bsdinis/jiftool/internal/jif/prefetch"
	"github.com/bsdinis/jiftool/internal/output"
	"github.com/spf13/cobra"
)

var (
	buildVAddrFlag     uint64
	buildRefFlag       string
	buildRefBeginFlag  uint64
	buildOutFlag       string
	buildWindowingFlag string
)

func addBuildCommand(parent *cobra.Command) {
	buildCmd := &cobra.Command{
		Use:   "build RAWFILE",
		Short: "Build a JIF from a raw memory dump",
		Long: `Build builds a single-pheader JIF from a raw private-memory dump.

With no --ref, the dump is scanned for zero-page runs and an Anonymous
pheader is produced (gaps resolve to the zero page). With --ref, the dump
is diffed page-by-page against the reference file starting at --ref-begin,
and a Reference pheader is produced (unchanged pages become gaps resolved
from the reference file).`,
		Args: cobra.ExactArgs(1),
		RunE: runBuild,
	}
	buildCmd.Flags().Uint64Var(&buildVAddrFlag, "vaddr", 0, "Virtual address the dump starts at")
	buildCmd.Flags().StringVar(&buildRefFlag, "ref", "", "Reference file to diff against")
	buildCmd.Flags().Uint64Var(&buildRefBeginFlag, "ref-begin", 0, "Offset into --ref where the comparison starts")
	buildCmd.Flags().StringVarP(&buildOutFlag, "output", "o", "", "Output .jif path (default: RAWFILE with .jif suffix)")
	buildCmd.Flags().StringVar(&buildWindowingFlag, "windowing", "", "Prefetch windowing strategy override (defaults to .jifrc/config.toml resolution)")
	parent.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	rawPath := args[0]
	data, err := os.ReadFile(rawPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", rawPath, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	p := &pheader.Pheader{
		VBegin:      buildVAddrFlag,
		Prot:        pheader.ProtRead | pheader.ProtWrite,
		DataSegment: data,
	}

	var readRef func(ref pheader.RefRange) ([]byte, error)
	if buildRefFlag != "" {
		base, err := os.ReadFile(buildRefFlag)
		if err != nil {
			return fmt.Errorf("reading --ref %s: %w", buildRefFlag, err)
		}
		if buildRefBeginFlag > uint64(len(base)) {
			return fmt.Errorf("--ref-begin %d is past the end of %s (%d bytes)", buildRefBeginFlag, buildRefFlag, len(base))
		}
		p.Ref = &pheader.RefRange{Path: buildRefFlag, Begin: buildRefBeginFlag, End: uint64(len(base))}
		readRef = func(ref pheader.RefRange) ([]byte, error) {
			return base[ref.Begin:], nil
		}
	}

	if err := p.BuildITree(readRef); err != nil {
		if buildRefFlag == "" {
			return fmt.Errorf("scanning for zero pages: %w", err)
		}
		return fmt.Errorf("diffing against %s: %w", buildRefFlag, err)
	}
	p.VEnd = p.Tree.VRange[1]

	dd := dedup.NewWithCapacity(cfg.DedupCapacityHint)
	pheader.DedupeOnto(p.Tree, dd)
	j := &jif.Jif{Pheaders: []*pheader.Pheader{p}, Dedup: dd}

	strategy, err := config.ResolveWindowing(cfg, filepath.Dir(rawPath), buildWindowingFlag)
	if err != nil {
		return err
	}
	if strategy != "" && strategy != "none" {
		totalPages := (p.VEnd - p.VBegin) / page.Size
		pw := prefetch.Uniform(totalPages, cfg.FractureWorkers)
		j.Windows = &pw
	}

	outPath := buildOutFlag
	if outPath == "" {
		outPath = rawPath + ".jif"
	}
	if err := j.Save(outPath); err != nil {
		return err
	}

	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), map[string]any{
			"output":        outPath,
			"vaddr_begin":   p.VBegin,
			"vaddr_end":     p.VEnd,
			"dedup_entries": dd.Len(),
			"windowing":     strategy,
		})
	}
	if !output.IsQuiet() {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%#x-%#x, %d deduped entries)\n", outPath, p.VBegin, p.VEnd, dd.Len())
	}
	return nil
}
