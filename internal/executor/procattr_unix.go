//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// setProcGroup puts the command in its own process group so the whole
// tree is killed when the context expires.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}
}
