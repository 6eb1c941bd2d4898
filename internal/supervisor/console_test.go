package supervisor

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestConsole(t *testing.T) (*Console, *io.PipeWriter, *bytes.Buffer) {
	t.Helper()
	r, w := io.Pipe()
	var out bytes.Buffer
	c, err := NewConsole(r, &out)
	require.NoError(t, err)
	c.Start()
	return c, w, &out
}

func TestConsole_Lines(t *testing.T) {
	defer goleak.VerifyNone(t)
	c, w, _ := newTestConsole(t)

	go func() {
		io.WriteString(w, "first\r\nsecond\n")
		w.Close()
	}()

	var got []string
	for line := range c.Lines() {
		got = append(got, line)
	}
	assert.Equal(t, []string{"first", "second"}, got)
	require.NoError(t, c.Close())
}

func TestConsole_PromptTakesPriority(t *testing.T) {
	defer goleak.VerifyNone(t)
	c, w, out := newTestConsole(t)

	answer := make(chan bool, 1)
	go func() {
		ok, _ := c.Confirm(context.Background(), "Apply this fix?")
		answer <- ok
	}()

	// Wait for the prompt to register before typing.
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.waiter != nil
	}, time.Second, 5*time.Millisecond)

	go func() {
		io.WriteString(w, "YES\nnext instruction\n")
		w.Close()
	}()

	assert.True(t, <-answer)
	assert.Equal(t, "next instruction", <-c.Lines())
	assert.Contains(t, out.String(), "Apply this fix? [y/N]")

	_, open := <-c.Lines()
	assert.False(t, open)
	require.NoError(t, c.Close())
}

func TestConsole_ConfirmDefaultsToNo(t *testing.T) {
	defer goleak.VerifyNone(t)
	c, w, _ := newTestConsole(t)

	answer := make(chan bool, 1)
	go func() {
		ok, _ := c.Confirm(context.Background(), "Apply?")
		answer <- ok
	}()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.waiter != nil
	}, time.Second, 5*time.Millisecond)

	io.WriteString(w, "\n")
	assert.False(t, <-answer)

	w.Close()
	require.NoError(t, c.Close())
}

func TestConsole_PromptCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)
	c, w, _ := newTestConsole(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Prompt(ctx, "?")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The line goes to Lines now that nobody is prompting.
	go io.WriteString(w, "hello\n")
	assert.Equal(t, "hello", <-c.Lines())

	w.Close()
	require.NoError(t, c.Close())
}

func TestConsole_PromptAfterEOF(t *testing.T) {
	defer goleak.VerifyNone(t)
	c, w, _ := newTestConsole(t)
	w.Close()

	_, err := c.Prompt(context.Background(), "?")
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, c.Close())
}

func TestConsole_UnreadLineDoesNotBlockPrompt(t *testing.T) {
	defer goleak.VerifyNone(t)
	c, w, _ := newTestConsole(t)

	// Nobody drains Lines while the operator hits Enter.
	_, err := io.WriteString(w, "\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.held) == 1
	}, time.Second, 5*time.Millisecond)

	answer := make(chan bool, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ok, err := c.Confirm(ctx, "Apply this fix?")
		assert.NoError(t, err)
		answer <- ok
	}()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.waiter != nil
	}, time.Second, 5*time.Millisecond)

	go func() {
		io.WriteString(w, "y\n")
		w.Close()
	}()

	assert.True(t, <-answer)
	assert.Equal(t, "", <-c.Lines())
	_, open := <-c.Lines()
	assert.False(t, open)
	require.NoError(t, c.Close())
}
