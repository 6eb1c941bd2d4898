// Package ui formats the supervisor's own messages on the terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/silver2dream/devmend/internal/steps"
)

// OutputFormatter handles formatted console output with colors. It is safe
// for concurrent use; each call writes whole lines.
type OutputFormatter struct {
	mu        sync.Mutex
	writer    io.Writer
	useColors bool
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// NewOutputFormatter creates a new OutputFormatter
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}
	return &OutputFormatter{
		writer:    w,
		useColors: colorsEnabled(w),
	}
}

// NewPlainFormatter returns a formatter that never emits escape codes.
func NewPlainFormatter(w io.Writer) *OutputFormatter {
	return &OutputFormatter{writer: w}
}

func colorsEnabled(w io.Writer) bool {
	// Disable colors on Windows (unless using Windows Terminal)
	if runtime.GOOS == "windows" && os.Getenv("WT_SESSION") == "" {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// Writer returns the underlying writer.
func (o *OutputFormatter) Writer() io.Writer {
	return o.writer
}

// Success prints a success message with green checkmark
func (o *OutputFormatter) Success(msg string) {
	o.mark(colorGreen, "✓", msg)
}

// Error prints an error message with red cross
func (o *OutputFormatter) Error(msg string) {
	o.mark(colorRed, "✗", msg)
}

// Warning prints a warning message with yellow warning sign
func (o *OutputFormatter) Warning(msg string) {
	o.mark(colorYellow, "⚠️", msg)
}

// Notice prints a supervisor message, set apart from child output.
func (o *OutputFormatter) Notice(msg string) {
	o.mark(colorCyan, "[devmend]", msg)
}

// Info prints an info message
func (o *OutputFormatter) Info(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.writer, msg)
}

// Raw writes bytes unchanged.
func (o *OutputFormatter) Raw(p []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writer.Write(p)
}

func (o *OutputFormatter) mark(color, symbol, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.useColors {
		fmt.Fprintf(o.writer, "%s%s%s %s\n", color, symbol, colorReset, msg)
	} else {
		fmt.Fprintf(o.writer, "%s %s\n", symbol, msg)
	}
}

// Explanation prints the model's diagnosis as it streams in.
func (o *OutputFormatter) Explanation(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		fmt.Fprintf(o.writer, "%s %s\n", o.Cyan("│"), line)
	}
}

// Proposal prints the numbered fix steps in a box.
func (o *OutputFormatter) Proposal(title string, list []steps.Step) {
	var b strings.Builder
	b.WriteString(o.Bold(title))
	for i, s := range list {
		fmt.Fprintf(&b, "\n%d. %s", i+1, s.Summary())
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.useColors {
		fmt.Fprintln(o.writer, b.String())
		return
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("6")).
		Padding(0, 1)
	fmt.Fprintln(o.writer, box.Render(b.String()))
}

// Bold returns the string wrapped in bold formatting
func (o *OutputFormatter) Bold(s string) string {
	if o.useColors {
		return colorBold + s + colorReset
	}
	return s
}

// Cyan returns the string wrapped in cyan formatting
func (o *OutputFormatter) Cyan(s string) string {
	if o.useColors {
		return colorCyan + s + colorReset
	}
	return s
}
