package cmd

import (
	"fmt"

	"github.com/bsdinis/jiftool/internal/jif"
	"github.com/bsdinis/jiftool/internal/output"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

func addDoctorCommand(parent *cobra.Command) {
	doctorCmd := &cobra.Command{
		Use:   "doctor JIFFILE",
		Short: "Validate a JIF's structural invariants",
		Long:  "Doctor loads JIFFILE and checks every pheader's interval tree for the invariants itree.Build enforces at construction time (sorted, non-intersecting, in-range, no explicit Zero slots in Anonymous trees), reporting every violation found rather than stopping at the first.",
		Args:  cobra.ExactArgs(1),
		RunE:  runDoctor,
	}
	parent.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	path := args[0]
	j, err := jif.Load(path)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for i, p := range j.Pheaders {
		if err := p.Tree.Validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("pheader %d (%#x-%#x): %w", i, p.VBegin, p.VEnd, err))
		}
	}

	if output.IsJSON() {
		var problems []string
		if result != nil {
			for _, e := range result.Errors {
				problems = append(problems, e.Error())
			}
		}
		return output.PrintJSON(cmd.OutOrStdout(), map[string]any{
			"path":    path,
			"ok":      result == nil,
			"n_pheaders": len(j.Pheaders),
			"problems": problems,
		})
	}

	w := cmd.OutOrStdout()
	if result == nil {
		if !output.IsQuiet() {
			fmt.Fprintf(w, "%s: OK (%d pheaders)\n", path, len(j.Pheaders))
		}
		return nil
	}

	result.ErrorFormat = func(errs []error) string {
		var out string
		for _, e := range errs {
			out += fmt.Sprintf("  [FAIL] %s\n", e)
		}
		return out
	}
	fmt.Fprintf(w, "%s: %d problem(s)\n%s", path, len(result.Errors), result)
	return fmt.Errorf("validation failed")
}
