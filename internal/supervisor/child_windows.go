//go:build windows

package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/UserExistsError/conpty"
	"golang.org/x/sys/windows"
)

// conptyChild runs the command on a Windows pseudo console.
type conptyChild struct {
	cpty *conpty.ConPty
}

func (c *conptyChild) Output() io.Reader { return c.cpty }
func (c *conptyChild) Pid() int          { return c.cpty.Pid() }
func (c *conptyChild) Fallback() bool    { return false }
func (c *conptyChild) Close() error      { return c.cpty.Close() }

func (c *conptyChild) Wait() error {
	code, err := c.cpty.Wait(context.Background())
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("exit status %d", code)
	}
	return nil
}

func (c *conptyChild) Terminate() error { return taskkill(c.Pid(), false) }
func (c *conptyChild) Kill() error      { return taskkill(c.Pid(), true) }

// pipeChild is the fallback when ConPTY is unavailable.
type pipeChild struct {
	cmd  *exec.Cmd
	pipe *os.File
}

func (c *pipeChild) Output() io.Reader { return c.pipe }
func (c *pipeChild) Wait() error       { return c.cmd.Wait() }
func (c *pipeChild) Close() error      { return c.pipe.Close() }
func (c *pipeChild) Fallback() bool    { return true }

func (c *pipeChild) Pid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

func (c *pipeChild) Terminate() error { return taskkill(c.Pid(), false) }
func (c *pipeChild) Kill() error      { return taskkill(c.Pid(), true) }

func startChild(spec childSpec) (child, error) {
	if spec.UsePTY && conpty.IsConPtyAvailable() {
		var opts []conpty.ConPtyOption
		if spec.Dir != "" {
			opts = append(opts, conpty.ConPtyWorkDir(spec.Dir))
		}
		if spec.Env != nil {
			opts = append(opts, conpty.ConPtyEnv(spec.Env))
		}
		cpty, err := conpty.Start(`cmd.exe /C `+spec.Command, opts...)
		if err == nil {
			return &conptyChild{cpty: cpty}, nil
		}
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("cmd", "/C", spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	w.Close()
	return &pipeChild{cmd: cmd, pipe: r}, nil
}

// taskkill ends the process tree rooted at pid.
func taskkill(pid int, force bool) error {
	if pid <= 0 {
		return nil
	}
	args := []string{"/T", "/PID", strconv.Itoa(pid)}
	if force {
		args = append([]string{"/F"}, args...)
	}
	return exec.Command("taskkill", args...).Run()
}

func ptyAvailable() error {
	if !conpty.IsConPtyAvailable() {
		return fmt.Errorf("ConPTY is not available on this Windows version")
	}
	return nil
}
