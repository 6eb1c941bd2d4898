package steps

import "strings"

const (
	cdataOpen  = "<![CDATA["
	cdataClose = "]]>"

	// maxTagLen bounds how far a '<' is examined before it is treated as text.
	maxTagLen = 128
)

type tagStatus int

const (
	tagIncomplete tagStatus = iota
	tagInvalid
	tagComplete
	tagCDATA
)

type tag struct {
	name    string
	closing bool
	length  int
}

// scanTag examines s, which must start with '<'. Whitespace is accepted
// around the slash and the name, so "< step >", "</ type\n>" and "<step\n>"
// are all tags. tagIncomplete means s ends before a decision can be made.
func scanTag(s string) (tag, tagStatus) {
	if len(s) > 1 && s[1] == '!' {
		n := min(len(s), len(cdataOpen))
		if s[:n] != cdataOpen[:n] {
			return tag{}, tagInvalid
		}
		if len(s) < len(cdataOpen) {
			return tag{}, tagIncomplete
		}
		return tag{length: len(cdataOpen)}, tagCDATA
	}

	i := 1
	skipSpace := func() {
		for i < len(s) && i < maxTagLen && isSpace(s[i]) {
			i++
		}
	}

	skipSpace()
	closing := false
	if i < len(s) && s[i] == '/' {
		closing = true
		i++
		skipSpace()
	}
	start := i
	for i < len(s) && i < maxTagLen && isNameByte(s[i]) {
		i++
	}
	name := s[start:i]
	if name != "" && !isLetter(name[0]) {
		return tag{}, tagInvalid
	}
	skipSpace()

	if i >= maxTagLen {
		return tag{}, tagInvalid
	}
	if i >= len(s) {
		return tag{}, tagIncomplete
	}
	if s[i] != '>' || name == "" {
		return tag{}, tagInvalid
	}
	return tag{name: strings.ToLower(name), closing: closing, length: i + 1}, tagComplete
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isNameByte(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '.' || c == ':'
}

// cdataTail returns how many trailing bytes of s could begin "]]>".
func cdataTail(s string) int {
	switch {
	case strings.HasSuffix(s, "]]"):
		return 2
	case strings.HasSuffix(s, "]"):
		return 1
	}
	return 0
}
