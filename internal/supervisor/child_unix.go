//go:build !windows

package supervisor

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// unixChild runs the command through sh on a PTY, or on a pipe when no
// PTY can be allocated.
type unixChild struct {
	cmd      *exec.Cmd
	ptmx     *os.File
	pipe     *os.File
	output   io.Reader
	fallback bool
}

func startChild(spec childSpec) (child, error) {
	c := &unixChild{cmd: shellCmd(spec)}
	if spec.UsePTY {
		if err := c.startPTY(); err == nil {
			return c, nil
		}
		// pty.Start may have partially configured cmd.
		c.cmd = shellCmd(spec)
	}
	if err := c.startPipe(); err != nil {
		return nil, err
	}
	return c, nil
}

func shellCmd(spec childSpec) *exec.Cmd {
	cmd := exec.Command("sh", "-c", spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	return cmd
}

// startPTY starts the command as a session leader on a new PTY, so its
// process group id equals its pid.
func (c *unixChild) startPTY() error {
	var size *pty.Winsize
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if s, err := pty.GetsizeFull(os.Stdout); err == nil {
			size = s
		}
	}
	ptmx, err := pty.StartWithSize(c.cmd, size)
	if err != nil {
		return err
	}
	c.ptmx = ptmx
	c.output = ptmx
	return nil
}

// startPipe starts the command in its own process group with stdout and
// stderr sharing one pipe, which keeps their interleaving.
func (c *unixChild) startPipe() error {
	c.fallback = true

	r, w, err := os.Pipe()
	if err != nil {
		return err
	}
	c.cmd.Stdout = w
	c.cmd.Stderr = w
	c.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := c.cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return err
	}
	w.Close()
	c.pipe = r
	c.output = r
	return nil
}

func (c *unixChild) Output() io.Reader { return c.output }

func (c *unixChild) Pid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

func (c *unixChild) Wait() error { return c.cmd.Wait() }

// Terminate sends SIGTERM to the whole process group.
func (c *unixChild) Terminate() error {
	return c.signalGroup(unix.SIGTERM)
}

// Kill sends SIGKILL to the whole process group.
func (c *unixChild) Kill() error {
	return c.signalGroup(unix.SIGKILL)
}

func (c *unixChild) signalGroup(sig unix.Signal) error {
	pid := c.Pid()
	if pid <= 0 {
		return nil
	}
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func (c *unixChild) Close() error {
	switch {
	case c.ptmx != nil:
		return c.ptmx.Close()
	case c.pipe != nil:
		return c.pipe.Close()
	}
	return nil
}

func (c *unixChild) Fallback() bool { return c.fallback }

// ptyAvailable reports whether a PTY can be opened on this system.
func ptyAvailable() error {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return err
	}
	tty.Close()
	return ptmx.Close()
}
