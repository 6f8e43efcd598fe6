package command

import (
	"fmt"
	"path/filepath"
	"strings"

	"alloc-bench/internal/config"
	"alloc-bench/internal/registry"
)

// Command is a fully wrapped process description. It is executed as an
// argument vector, never through a shell.
type Command struct {
	Program string
	Args    []string
	Dir     string
	// Env is added on top of the inherited environment of the spawned process.
	Env []string
	// Stdin names a file fed to the process, empty for none.
	Stdin string
	// Overlay is the variant selection, whether it travels in Env or inside Args.
	Overlay []string
}

// Argv returns Program followed by Args.
func (c Command) Argv() []string {
	return append([]string{c.Program}, c.Args...)
}

// String renders the command for the audit log.
func (c Command) String() string {
	var parts []string
	if c.Dir != "" {
		parts = append(parts, "cd", quote(c.Dir), "&&")
	}
	for _, kv := range c.Env {
		parts = append(parts, quote(kv))
	}
	for _, arg := range c.Argv() {
		parts = append(parts, quote(arg))
	}
	if c.Stdin != "" {
		parts = append(parts, "<", quote(c.Stdin))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.ContainsAny(s, " \t\n'\"\\$`&|;<>()*?[]#~!{}") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}

// Invocation is everything needed to compose one cell's command.
type Invocation struct {
	Variant  registry.Variant
	Workload registry.Workload
	Index    int
}

// Composer wraps workloads according to the run's mode. It holds no state
// besides the configuration and never touches the filesystem.
type Composer struct {
	rc *config.RunConfiguration
}

func NewComposer(rc *config.RunConfiguration) *Composer {
	return &Composer{rc: rc}
}

// ReportPath is the file the sampling tool writes in stat mode.
func (c *Composer) ReportPath() string {
	return c.rc.ReportPath
}

func (c *Composer) Compose(inv Invocation) (Command, error) {
	if inv.Variant.Name == "" {
		return Command{}, config.Errorf("invocation has no variant")
	}
	if len(inv.Workload.Argv) == 0 {
		return Command{}, config.Errorf("workload %q has no command", inv.Workload.Name)
	}
	if inv.Variant.Activation.Kind == registry.Preload && inv.Variant.Activation.Library == "" {
		return Command{}, config.Errorf("variant %s: no artifact to preload", inv.Variant.Name)
	}

	overlay := inv.Variant.Activation.Overlay()
	cmd := Command{
		Dir:     inv.Workload.Dir,
		Stdin:   inv.Workload.Input,
		Overlay: overlay,
	}

	switch c.rc.Mode {
	case config.ModeStat:
		cmd.Program = c.rc.Perf
		cmd.Args = []string{"stat", "--no-scale", "-x", ",", "-o", c.rc.ReportPath,
			"-e", strings.Join(c.rc.EventsOrDefault(), ",")}
		cmd.Args = append(cmd.Args, envWrapped(overlay, inv.Workload.Argv)...)

	case config.ModeRecord:
		if len(c.rc.Events) > 1 {
			return Command{}, config.Errorf("record mode accepts at most one event, got %d", len(c.rc.Events))
		}
		cmd.Program = c.rc.Perf
		cmd.Args = []string{"record", "-o", c.rc.TracePath}
		if len(c.rc.Events) == 1 {
			cmd.Args = append(cmd.Args, "-e", c.rc.Events[0])
		}
		cmd.Args = append(cmd.Args, envWrapped(overlay, inv.Workload.Argv)...)

	case config.ModeTest:
		cmd.Program = inv.Workload.Argv[0]
		cmd.Args = append([]string(nil), inv.Workload.Argv[1:]...)
		cmd.Env = overlay

	case config.ModeInteractive:
		cmd.Program = c.rc.Debugger
		cmd.Args = debuggerArgs(c.rc.Debugger, overlay, inv.Workload.Argv)

	default:
		return Command{}, config.Errorf("unsupported mode %s", c.rc.Mode)
	}

	return cmd, nil
}

// envWrapped places the overlay on an inner env invocation so the
// sampling tool itself runs without the variant's allocator.
func envWrapped(overlay, argv []string) []string {
	args := []string{"--", "env"}
	args = append(args, overlay...)
	return append(args, argv...)
}

func debuggerArgs(debugger string, overlay, argv []string) []string {
	var args []string
	if strings.Contains(filepath.Base(debugger), "lldb") {
		for _, kv := range overlay {
			args = append(args, "-o", fmt.Sprintf("settings set target.env-vars %s", kv))
		}
		args = append(args, "--")
		return append(args, argv...)
	}
	for _, kv := range overlay {
		args = append(args, "-ex", fmt.Sprintf("set environment %s", kv))
	}
	args = append(args, "--args")
	return append(args, argv...)
}
