//go:build !windows

package supervisor

import (
	"errors"

	"golang.org/x/sys/unix"
)

// processAlive checks if a process with the given PID is still running
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// Signal 0 checks existence; EPERM means it exists under another user.
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
