package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/muesli/cancelreader"
)

// Console owns the operator's input stream. A single goroutine reads lines;
// a pending Prompt receives the next line, otherwise lines go to Lines.
// Lines nobody has taken yet are held in order and never keep a prompt
// from being answered.
type Console struct {
	reader cancelreader.CancelReader
	out    io.Writer

	lines       chan string
	promptReady chan struct{}
	done        chan struct{} // closed by Close
	ended chan struct{} // closed when the reader goroutine returns

	mu      sync.Mutex
	waiter  chan string
	held    []string
	started bool
	once    sync.Once
}

// NewConsole wraps in. Prompts are written to out.
func NewConsole(in io.Reader, out io.Writer) (*Console, error) {
	r, err := cancelreader.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return &Console{
		reader: r,
		out:    out,
		lines:       make(chan string),
		promptReady: make(chan struct{}, 1),
		done:        make(chan struct{}),
		ended:       make(chan struct{}),
	}, nil
}

// Start launches the reader goroutine. It is safe to call more than once.
func (c *Console) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	go c.readLoop()
}

// Lines delivers operator lines not claimed by a prompt. It is closed when
// input ends or the console is closed.
func (c *Console) Lines() <-chan string {
	return c.lines
}

func (c *Console) readLoop() {
	defer close(c.ended)
	defer close(c.lines)

	scanner := bufio.NewScanner(c.reader)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		c.mu.Lock()
		waiter := c.waiter
		c.waiter = nil
		if waiter == nil {
			c.held = append(c.held, line)
		}
		c.mu.Unlock()

		if waiter != nil {
			waiter <- line
		}
		if !c.deliver(true) {
			return
		}
	}
	c.deliver(false)
}

// deliver hands held lines to Lines. With yield set it returns early when a
// prompt is waiting so the next line read can answer it. It reports false
// once the console is closed.
func (c *Console) deliver(yield bool) bool {
	for {
		c.mu.Lock()
		if len(c.held) == 0 {
			c.mu.Unlock()
			return true
		}
		next := c.held[0]
		c.mu.Unlock()

		select {
		case c.lines <- next:
			c.mu.Lock()
			c.held = c.held[1:]
			c.mu.Unlock()
		case <-c.promptReady:
			if yield && c.prompting() {
				return true
			}
		case <-c.done:
			return false
		}
	}
}

func (c *Console) prompting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiter != nil
}

// Prompt writes question and returns the next line typed, ahead of any
// consumer of Lines.
func (c *Console) Prompt(ctx context.Context, question string) (string, error) {
	waiter := make(chan string, 1)

	c.mu.Lock()
	if c.waiter != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("another prompt is pending")
	}
	c.waiter = waiter
	c.mu.Unlock()

	select {
	case c.promptReady <- struct{}{}:
	default:
	}

	fmt.Fprintf(c.out, "%s ", question)

	select {
	case line := <-waiter:
		return strings.TrimSpace(line), nil
	case <-ctx.Done():
		c.clearWaiter(waiter)
		return "", ctx.Err()
	case <-c.ended:
		c.clearWaiter(waiter)
		// The reader may have handed over a final line before ending.
		select {
		case line := <-waiter:
			return strings.TrimSpace(line), nil
		default:
		}
		return "", io.EOF
	}
}

func (c *Console) clearWaiter(w chan string) {
	c.mu.Lock()
	if c.waiter == w {
		c.waiter = nil
	}
	c.mu.Unlock()
}

// Confirm asks a yes/no question; only "y" and "yes" count as yes.
func (c *Console) Confirm(ctx context.Context, question string) (bool, error) {
	answer, err := c.Prompt(ctx, question+" [y/N]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Close cancels the pending read and waits for the reader goroutine.
// Readers that cannot be cancelled (not a file) must reach EOF on their own.
func (c *Console) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.reader.Cancel()
	})

	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.ended
	}
	return c.reader.Close()
}
