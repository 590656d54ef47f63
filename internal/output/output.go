// Package output centralizes jiftool's stdout contract: plain text by
// default, a JSON envelope under --json, and the exit codes each command
// returns to the shell.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bsdinis/jiftool/internal/jif/jiferr"
)

// Exit codes
const (
	ExitSuccess     = 0
	ExitError       = 1
	ExitInvalidJIF  = 2 // malformed container, bad magic/version, validation failure
	ExitNotFound    = 4 // input file or referenced snapshot file missing
	ExitInterrupted = 130
)

var (
	flagJSON    bool
	flagQuiet   bool
	flagVerbose bool
)

// SetFlags is called by the root command's PersistentPreRunE to propagate
// the global --json/--quiet/--verbose flags down to leaf commands.
func SetFlags(jsonMode, quiet, verbose bool) {
	flagJSON = jsonMode
	flagQuiet = quiet
	flagVerbose = verbose
}

// IsJSON returns true when --json mode is active.
func IsJSON() bool { return flagJSON }

// IsQuiet returns true when --quiet mode is active.
func IsQuiet() bool { return flagQuiet }

// IsVerbose returns true when --verbose mode is active.
func IsVerbose() bool { return flagVerbose }

// PrintJSON marshals v as indented JSON and writes it to w.
func PrintJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// PrintError writes a JSON error envelope to w. Under non-JSON mode callers
// should fall back to a plain fmt.Fprintln of message instead.
func PrintError(w io.Writer, code string, message string) error {
	return PrintJSON(w, map[string]string{
		"error":   code,
		"message": message,
	})
}

// ExitCodeFor maps a command error to the process exit code jiftool reports
// to the shell: nil succeeds, a missing input/reference file is reported
// distinctly from a structurally invalid JIF, and everything else falls
// back to the generic error code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, os.ErrNotExist) {
		return ExitNotFound
	}

	var pheaderErr *jiferr.PheaderError
	var nodeErr *jiferr.ITreeNodeError
	var intervalErr *jiferr.IntervalError
	switch {
	case errors.As(err, &pheaderErr), errors.As(err, &nodeErr), errors.As(err, &intervalErr):
		return ExitInvalidJIF
	}

	for _, sentinel := range []error{
		jiferr.ErrBadMagic, jiferr.ErrBadVersion, jiferr.ErrBadAlignment, jiferr.ErrTruncated,
		jiferr.ErrBadPathnameOff, jiferr.ErrBadITreeIndex, jiferr.ErrOutOfRange, jiferr.ErrIntersecting,
		jiferr.ErrRangeNotCovered, jiferr.ErrNotCompact, jiferr.ErrNotInOrder, jiferr.ErrZeroInAnon,
		jiferr.ErrDataGap, jiferr.ErrDiscontiguous,
	} {
		if errors.Is(err, sentinel) {
			return ExitInvalidJIF
		}
	}

	return ExitError
}
