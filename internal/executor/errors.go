package executor

import (
	"fmt"
	"time"
)

// Cell identifies one (workload, variant, invocation) execution.
type Cell struct {
	Workload   string
	Variant    string
	Invocation int
	// AllowFailure accepts a non-zero exit, for workloads that report success that way.
	AllowFailure bool
	// Timeout overrides the executor default when non-zero.
	Timeout time.Duration
}

func (c Cell) String() string {
	return fmt.Sprintf("%s/%s#%d", c.Workload, c.Variant, c.Invocation)
}

// ExecutionFailure means the spawned command failed to start or exited
// non-zero. It is isolated to its cell.
type ExecutionFailure struct {
	Cell     Cell
	Command  string
	ExitCode int
	Err      error
}

func (e *ExecutionFailure) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s: command exited with status %d", e.Cell, e.ExitCode)
	}
	return fmt.Sprintf("%s: command failed: %v", e.Cell, e.Err)
}

func (e *ExecutionFailure) Unwrap() error {
	return e.Err
}

// ParseFailure means the command succeeded but its report was missing or malformed.
type ParseFailure struct {
	Cell   Cell
	Report string
	Reason string
	Err    error
}

func (e *ParseFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: report %s: %s: %v", e.Cell, e.Report, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: report %s: %s", e.Cell, e.Report, e.Reason)
}

func (e *ParseFailure) Unwrap() error {
	return e.Err
}
