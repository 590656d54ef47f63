// Package jiflog configures jiftool's logrus logger. Verbosity is gated by
// the root command's --verbose flag; everything else uses logrus's default
// formatter so log lines stay greppable in CI output.
package jiflog

import (
	"os"

	log "github.com/sirupsen/logrus"
)

var std = log.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetLevel(log.WarnLevel)
}

// SetVerbose raises the logger to Debug level when verbose is true, and
// resets it to Warn otherwise. Called from the root command's
// PersistentPreRunE once --verbose has been parsed.
func SetVerbose(verbose bool) {
	if verbose {
		std.SetLevel(log.DebugLevel)
		return
	}
	std.SetLevel(log.WarnLevel)
}

// Entry returns a logrus entry scoped to component, e.g. jiflog.Entry("fracture").
func Entry(component string) *log.Entry {
	return std.WithField("component", component)
}

// Logger exposes the configured *log.Logger directly, for callers (such as
// the firecracker snapshot source) that need a full *logrus.Logger rather
// than a scoped *log.Entry.
func Logger() *log.Logger {
	return std
}
