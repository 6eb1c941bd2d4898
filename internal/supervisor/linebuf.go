package supervisor

import "bytes"

// maxLineLength bounds a line that never sees a newline, such as a progress
// bar redrawn with carriage returns.
const maxLineLength = 64 * 1024

// lineBuffer splits raw output chunks into lines.
type lineBuffer struct {
	buf []byte
}

// Feed appends chunk and returns the lines it completed, without their
// line terminators.
func (b *lineBuffer) Feed(chunk []byte) []string {
	b.buf = append(b.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, clean(b.buf[:i]))
		b.buf = b.buf[i+1:]
	}
	if len(b.buf) >= maxLineLength {
		lines = append(lines, clean(b.buf))
		b.buf = nil
	}
	if len(b.buf) == 0 {
		b.buf = nil
	}
	return lines
}

// Flush returns the unterminated remainder, if any.
func (b *lineBuffer) Flush() (string, bool) {
	if len(b.buf) == 0 {
		return "", false
	}
	line := clean(b.buf)
	b.buf = nil
	return line, true
}

// clean drops carriage returns; a PTY ends lines with CRLF.
func clean(p []byte) string {
	return string(bytes.ReplaceAll(p, []byte{'\r'}, nil))
}
