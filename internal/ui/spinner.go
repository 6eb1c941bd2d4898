package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	// SpinnerInterval is the time between spinner frame updates
	SpinnerInterval = 100 * time.Millisecond
)

// Spinner shows that the supervisor is waiting on something, such as a
// model reply.
type Spinner struct {
	label      string
	startTime  time.Time
	frames     []rune
	frameIndex int
	isTTY      bool
	mu         sync.Mutex
	active     bool
	paused     bool
	stopChan   chan struct{}
	doneChan   chan struct{}
	writer     io.Writer
}

var defaultFrames = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// NewSpinner creates a new Spinner
func NewSpinner(label string, writer io.Writer) *Spinner {
	if writer == nil {
		writer = os.Stdout
	}

	isTTY := false
	if f, ok := writer.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	return &Spinner{
		label:     label,
		startTime: time.Now(),
		frames:    defaultFrames,
		isTTY:     isTTY,
		writer:    writer,
	}
}

// Start begins the spinner animation
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.startTime = time.Now()
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	s.mu.Unlock()

	go s.loop()
}

// Stop stops the spinner and prints finalMessage if non-empty. A stopped
// spinner may be started again.
func (s *Spinner) Stop(finalMessage string) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()

	close(s.stopChan)
	<-s.doneChan

	s.ClearLine()
	if finalMessage != "" {
		fmt.Fprintln(s.writer, finalMessage)
	}
}

// Pause temporarily stops the spinner animation
func (s *Spinner) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume continues the spinner animation
func (s *Spinner) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// ClearLine clears the current line (for TTY mode)
func (s *Spinner) ClearLine() {
	if s.isTTY {
		fmt.Fprint(s.writer, "\r\033[K")
	}
}

// IsTTY returns whether the output is a TTY
func (s *Spinner) IsTTY() bool {
	return s.isTTY
}

// Duration returns the time since the spinner was last started.
func (s *Spinner) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startTime)
}

func (s *Spinner) loop() {
	defer close(s.doneChan)

	// Non-TTY mode: print once and wait
	if !s.isTTY {
		fmt.Fprintf(s.writer, "%s...\n", s.label)
		<-s.stopChan
		return
	}

	ticker := time.NewTicker(SpinnerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.render()
		}
	}
}

func (s *Spinner) render() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || !s.active {
		return
	}

	elapsed := time.Since(s.startTime)
	frame := s.frames[s.frameIndex]
	s.frameIndex = (s.frameIndex + 1) % len(s.frames)

	fmt.Fprintf(s.writer, "\r%s%c%s %s... (%d:%02d)",
		colorGreen, frame, colorReset, s.label, int(elapsed.Minutes()), int(elapsed.Seconds())%60)
}
