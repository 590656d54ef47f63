package cmd

import (
	"fmt"
	"os"

	"github.com/bsdinis/jiftool/internal/config"
	"github.com/bsdinis/jiftool/internal/jif"
	"github.com/bsdinis/jiftool/internal/jif/itree"
	"github.com/bsdinis/jiftool/internal/jif/ord"
	"github.com/bsdinis/jiftool/internal/output"
	"github.com/bsdinis/jiftool/internal/trace"
	"github.com/spf13/cobra"
)

func addTraceCommand(parent *cobra.Command) {
	traceCmd := &cobra.Command{
		Use:   "trace JIFFILE TRACEFILE",
		Short: "Derive an ordering section from a recorded access trace",
		Long:  "Trace parses a TRACEFILE of \"<usecs>: <addr>\" lines (as emitted by the junction tracer), reduces it to the sequence of first-touched pages, and writes it back into JIFFILE as the ordering section.",
		Args:  cobra.ExactArgs(2),
		RunE:  runTrace,
	}
	parent.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	jifPath, tracePath := args[0], args[1]

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	j, err := jif.Load(jifPath)
	if err != nil {
		return err
	}

	f, err := os.Open(tracePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", tracePath, err)
	}
	defer f.Close()

	accesses, err := trace.ReadTrace(f)
	if err != nil {
		return err
	}
	j.Ord = trace.ToOrdChunks(j, accesses)

	// Every ord-chunk boundary is a point the recorded access order wants
	// page-fault resolution to split on, so each pheader's tree is
	// fractured at those boundaries and its pieces lowered into the
	// canonical token-backed form before the file is rewritten.
	boundaries := ord.Boundaries(j.Ord)
	var nFractured int
	for _, p := range j.Pheaders {
		fractured, err := itree.Fracture(p.Tree, boundaries, j.Dedup, cfg.FractureWorkers)
		if err != nil {
			return fmt.Errorf("fracturing pheader %#x-%#x: %w", p.VBegin, p.VEnd, err)
		}
		p.Tree = fractured
		nFractured++
	}

	if err := j.Save(jifPath); err != nil {
		return err
	}

	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), map[string]any{
			"n_accesses":   len(accesses),
			"n_ord_chunks": len(j.Ord),
			"n_pheaders":   nFractured,
			"n_boundaries": len(boundaries),
		})
	}
	if !output.IsQuiet() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d accesses -> %d ordering chunk(s), %d pheader(s) fractured at %d boundary(ies)\n",
			jifPath, len(accesses), len(j.Ord), nFractured, len(boundaries))
	}
	return nil
}
