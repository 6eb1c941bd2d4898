package supervisor

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalHandler turns SIGINT/SIGTERM into a graceful stop. A second signal
// kills the child and exits immediately.
type SignalHandler struct {
	stop  func()
	force func()
	out   Output
	exit  func(code int)

	mu       sync.Mutex
	received int

	sigChan chan os.Signal
	done    chan struct{}
	once    sync.Once
}

// NewSignalHandler creates a handler calling stop on the first signal and
// force on the second.
func NewSignalHandler(stop, force func(), out Output) *SignalHandler {
	if out == nil {
		out = discardOutput{}
	}
	return &SignalHandler{
		stop:  stop,
		force: force,
		out:   out,
		exit:  os.Exit,
	}
}

// Setup registers the signal handlers. Call Close to unregister.
func (h *SignalHandler) Setup() {
	h.sigChan = make(chan os.Signal, 2)
	h.done = make(chan struct{})
	signal.Notify(h.sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-h.sigChan:
				h.Handle(sig)
			case <-h.done:
				return
			}
		}
	}()
}

// Close unregisters the handlers.
func (h *SignalHandler) Close() {
	if h.sigChan == nil {
		return
	}
	h.once.Do(func() {
		signal.Stop(h.sigChan)
		close(h.done)
	})
}

// Handle processes one signal.
func (h *SignalHandler) Handle(sig os.Signal) {
	h.mu.Lock()
	h.received++
	n := h.received
	h.mu.Unlock()

	if n == 1 {
		h.out.Warning(fmt.Sprintf("Received %v, stopping (press Ctrl+C again to force)...", sig))
		h.stop()
		return
	}

	h.out.Error("Forcing shutdown")
	if h.force != nil {
		h.force()
	}
	h.exit(1)
}
