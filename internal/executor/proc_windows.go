//go:build windows

package executor

import (
	"os/exec"
	"syscall"
)

var shellArgv = []string{"cmd", "/C"}

// exitCommandNotFound is what cmd.exe reports for an unknown command.
const exitCommandNotFound = 9009

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
