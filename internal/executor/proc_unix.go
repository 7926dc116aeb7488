//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

var shellArgv = []string{"sh", "-c"}

// exitCommandNotFound is what sh reports when the executable cannot be found.
const exitCommandNotFound = 127

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup kills the child and every process it started.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
