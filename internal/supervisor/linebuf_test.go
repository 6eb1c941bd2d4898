package supervisor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineBuffer(t *testing.T) {
	var b lineBuffer

	assert.Empty(t, b.Feed([]byte("Error: can")))
	assert.Equal(t, []string{"Error: cannot find module"}, b.Feed([]byte("not find module\r\nnext")))
	assert.Equal(t, []string{"next", "", "last"}, b.Feed([]byte("\n\nlast\n")))

	_, ok := b.Flush()
	assert.False(t, ok)

	b.Feed([]byte("tail"))
	line, ok := b.Flush()
	assert.True(t, ok)
	assert.Equal(t, "tail", line)
}

func TestLineBuffer_ForceFlushLongLine(t *testing.T) {
	var b lineBuffer
	lines := b.Feed([]byte(strings.Repeat("x", maxLineLength)))
	if assert.Len(t, lines, 1) {
		assert.Len(t, lines[0], maxLineLength)
	}
	_, ok := b.Flush()
	assert.False(t, ok)
}
