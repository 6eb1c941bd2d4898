package classify

import "strings"

// DefaultContextLines is the capacity of a TrailingContext.
const DefaultContextLines = 10

// TrailingContext keeps the most recent output lines. It is owned by the
// output loop and is not safe for concurrent use.
type TrailingContext struct {
	lines []string
	start int
	size  int
}

// NewTrailingContext creates a ring buffer holding capacity lines.
func NewTrailingContext(capacity int) *TrailingContext {
	if capacity <= 0 {
		capacity = DefaultContextLines
	}
	return &TrailingContext{lines: make([]string, capacity)}
}

// Add appends a line, evicting the oldest one when full.
func (t *TrailingContext) Add(line string) {
	idx := (t.start + t.size) % len(t.lines)
	t.lines[idx] = line
	if t.size < len(t.lines) {
		t.size++
		return
	}
	t.start = (t.start + 1) % len(t.lines)
}

// Lines returns the buffered lines, oldest first.
func (t *TrailingContext) Lines() []string {
	out := make([]string, t.size)
	for i := 0; i < t.size; i++ {
		out[i] = t.lines[(t.start+i)%len(t.lines)]
	}
	return out
}

// String joins the buffered lines with newlines.
func (t *TrailingContext) String() string {
	return strings.Join(t.Lines(), "\n")
}

// Len returns the number of buffered lines.
func (t *TrailingContext) Len() int {
	return t.size
}

// Clear empties the buffer.
func (t *TrailingContext) Clear() {
	clear(t.lines)
	t.start = 0
	t.size = 0
}
