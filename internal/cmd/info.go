package cmd

import (
	"fmt"

	"github.com/bsdinis/jiftool/internal/jif"
	"github.com/bsdinis/jiftool/internal/output"
	"github.com/spf13/cobra"
)

func addInfoCommand(parent *cobra.Command) {
	infoCmd := &cobra.Command{
		Use:   "info JIFFILE",
		Short: "Print a summary of a JIF's pheaders, dedup table and ordering section",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
	parent.AddCommand(infoCmd)
}

type pheaderInfo struct {
	VBegin    uint64 `json:"vbegin"`
	VEnd      uint64 `json:"vend"`
	Prot      string `json:"prot"`
	Flavor    string `json:"flavor"`
	RefPath   string `json:"ref_path,omitempty"`
	NIntervals int   `json:"n_intervals"`
	NDataIntervals int `json:"n_data_intervals"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	j, err := jif.Load(args[0])
	if err != nil {
		return err
	}

	infos := make([]pheaderInfo, 0, len(j.Pheaders))
	for _, p := range j.Pheaders {
		flavor := "anonymous"
		refPath := ""
		if p.Ref != nil {
			flavor = "reference"
			refPath = p.Ref.Path
		}
		infos = append(infos, pheaderInfo{
			VBegin: p.VBegin, VEnd: p.VEnd,
			Prot:           p.Prot.String(),
			Flavor:         flavor,
			RefPath:        refPath,
			NIntervals:     p.Tree.NIntervals(),
			NDataIntervals: p.Tree.NDataIntervals(),
		})
	}

	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), map[string]any{
			"pheaders":     infos,
			"n_ord_chunks": len(j.Ord),
			"dedup_entries": j.Dedup.Len(),
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%d pheader(s), %d dedup entries, %d ord chunk(s)\n", len(infos), j.Dedup.Len(), len(j.Ord))
	for i, pi := range infos {
		fmt.Fprintf(w, "  [%d] %#x-%#x %s %s", i, pi.VBegin, pi.VEnd, pi.Prot, pi.Flavor)
		if pi.RefPath != "" {
			fmt.Fprintf(w, " ref=%s", pi.RefPath)
		}
		fmt.Fprintf(w, " intervals=%d data=%d\n", pi.NIntervals, pi.NDataIntervals)
	}
	return nil
}
