package logging

import (
	"io"
	"os"

	"github.com/fatih/color"
)

// Markers are the user-visible lines a run prints besides its log records:
// start/finish banners, one line per spawned command and failure notices.
var (
	startColor   = color.New(color.FgCyan, color.Bold)
	finishColor  = color.New(color.FgGreen, color.Bold)
	commandColor = color.New(color.Faint)
	failureColor = color.New(color.FgRed, color.Bold)

	markerOut io.Writer = os.Stderr
)

// SetMarkerOutput redirects markers. Colors are kept only for terminals.
func SetMarkerOutput(w io.Writer) {
	markerOut = w
}

func Start(format string, args ...interface{}) {
	startColor.Fprintf(markerOut, "=== "+format+" ===\n", args...)
}

func Finish(format string, args ...interface{}) {
	finishColor.Fprintf(markerOut, "=== "+format+" ===\n", args...)
}

func Command(cmdline string) {
	commandColor.Fprintf(markerOut, "⏳ %s\n", cmdline)
}

func Failure(format string, args ...interface{}) {
	failureColor.Fprintf(markerOut, "✗ "+format+"\n", args...)
}
