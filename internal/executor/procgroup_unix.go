//go:build darwin || linux

package executor

import (
	"os/exec"
	"syscall"
)

// isolate makes the process a group leader, so the sampling tool and the
// workload it wraps can be killed together.
func isolate(proc *exec.Cmd) {
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killTree kills the process group led by proc, or only proc when it was
// not isolated.
func killTree(proc *exec.Cmd) error {
	if proc.SysProcAttr != nil && proc.SysProcAttr.Setpgid {
		return syscall.Kill(-proc.Process.Pid, syscall.SIGKILL)
	}
	return proc.Process.Kill()
}
