package supervisor

import (
	"io"
	"sync"
	"time"
)

// childSpec describes how to start the supervised process.
type childSpec struct {
	Command string
	Dir     string
	Env     []string
	UsePTY  bool
}

// child is a running supervised process. Output carries stdout and stderr
// combined. Terminate asks the process tree to exit; Kill forces it.
type child interface {
	Output() io.Reader
	Pid() int
	Wait() error
	Terminate() error
	Kill() error
	Close() error
	Fallback() bool
}

// proc tracks one child and the goroutines reading it.
type proc struct {
	child   child
	started time.Time

	chunks  chan []byte   // closed when output reaches EOF
	exited  chan struct{} // closed after Wait returns
	err     error         // Wait result, valid once exited is closed
	release chan struct{} // closed when nobody reads chunks any more
	once    sync.Once
}

const readBufferSize = 4096

func newProc(c child) *proc {
	p := &proc{
		child:   c,
		started: time.Now(),
		chunks:  make(chan []byte, 64),
		exited:  make(chan struct{}),
		release: make(chan struct{}),
	}
	go p.read()
	go p.wait()
	return p
}

// read forwards raw output. It ends on EOF or on the error a PTY reports
// once the child side is gone.
func (p *proc) read() {
	defer close(p.chunks)
	buf := make([]byte, readBufferSize)
	for {
		n, err := p.child.Output().Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case p.chunks <- chunk:
			case <-p.release:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *proc) wait() {
	p.err = p.child.Wait()
	close(p.exited)
}

func (p *proc) hasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// discard stops delivery of further output.
func (p *proc) discard() {
	p.once.Do(func() { close(p.release) })
}
