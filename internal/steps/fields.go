package steps

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

type field struct {
	name  string
	inner string
}

// parseStep extracts the sub-fields of a complete step body. It returns nil
// when the step has no usable type; the reason is among the records.
func parseStep(body string) (*Step, []Record) {
	fields, problems := splitFields(body)

	var records []Record
	for _, p := range problems {
		records = append(records, diagnostic("%s", p))
	}

	step := Step{}
	for _, f := range fields {
		value, repaired := fieldValue(f.inner)
		if repaired {
			records = append(records, diagnostic("repaired unescaped '&' in <%s>", f.name))
		}
		switch f.name {
		case "type":
			step.Type = StepType(strings.ToLower(value))
		case "command":
			step.Command = value
		case "operation":
			step.Operation = strings.ToUpper(value)
		case "filename", "path":
			step.Filename = value
		case "content":
			step.Content = value
		default:
			if step.Params == nil {
				step.Params = make(map[string]string)
			}
			step.Params[f.name] = value
		}
	}

	if step.Type == "" {
		return nil, append(records, diagnostic("step without <type> dropped: %s", abbreviate(body, 80)))
	}
	if !step.Type.Valid() {
		return nil, append(records, diagnostic("step with unknown type %q dropped", step.Type))
	}
	return &step, records
}

// splitFields returns the top-level elements of a step body in order.
func splitFields(body string) ([]field, []string) {
	var fields []field
	var problems []string

	pos := 0
	for pos < len(body) {
		i := strings.IndexByte(body[pos:], '<')
		if i < 0 {
			break
		}
		i += pos

		t, status := scanTag(body[i:])
		if status == tagCDATA {
			j := strings.Index(body[i:], cdataClose)
			if j < 0 {
				break
			}
			pos = i + j + len(cdataClose)
			continue
		}
		if status != tagComplete || t.closing {
			pos = i + 1
			continue
		}

		start := i + t.length
		end, next, ok := findClose(body, start, t.name)
		if !ok {
			problems = append(problems, "unterminated <"+t.name+"> in step")
			fields = append(fields, field{name: t.name, inner: body[start:]})
			break
		}
		fields = append(fields, field{name: t.name, inner: body[start:end]})
		pos = next
	}
	return fields, problems
}

// findClose locates the close tag for name starting at from, skipping CDATA
// sections and nested elements of the same name. It returns the offset of
// the close tag and the offset just past it.
func findClose(body string, from int, name string) (int, int, bool) {
	depth := 0
	pos := from
	for pos < len(body) {
		i := strings.IndexByte(body[pos:], '<')
		if i < 0 {
			return 0, 0, false
		}
		i += pos

		t, status := scanTag(body[i:])
		switch status {
		case tagCDATA:
			j := strings.Index(body[i:], cdataClose)
			if j < 0 {
				return 0, 0, false
			}
			pos = i + j + len(cdataClose)
			continue
		case tagComplete:
			if t.name == name {
				if !t.closing {
					depth++
				} else if depth == 0 {
					return i, i + t.length, true
				} else {
					depth--
				}
			}
			pos = i + t.length
			continue
		}
		pos = i + 1
	}
	return 0, 0, false
}

// fieldValue turns the inner text of a field into its value. When the field
// holds CDATA, the payloads are returned verbatim and surrounding text is
// ignored. Otherwise the text is trimmed and entity-decoded; repaired is set
// when a bare '&' had to be kept literally.
func fieldValue(inner string) (value string, repaired bool) {
	if !strings.Contains(inner, cdataOpen) {
		return unescape(strings.TrimSpace(inner))
	}

	var b strings.Builder
	rest := inner
	for {
		i := strings.Index(rest, cdataOpen)
		if i < 0 {
			break
		}
		rest = rest[i+len(cdataOpen):]
		j := strings.Index(rest, cdataClose)
		if j < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:j])
		rest = rest[j+len(cdataClose):]
	}
	return b.String(), false
}

// unescape decodes XML entities. Model output frequently contains bare
// ampersands ("a && b"); those are kept as-is and reported.
func unescape(s string) (string, bool) {
	if !strings.Contains(s, "&") {
		return s, false
	}

	var b strings.Builder
	b.Grow(len(s))
	repaired := false
	for i := 0; i < len(s); {
		if s[i] != '&' {
			b.WriteByte(s[i])
			i++
			continue
		}
		if semi := strings.IndexByte(s[i:], ';'); semi > 1 && semi <= 10 {
			if r, ok := decodeEntity(s[i+1 : i+semi]); ok {
				b.WriteString(r)
				i += semi + 1
				continue
			}
		}
		b.WriteByte('&')
		repaired = true
		i++
	}
	return b.String(), repaired
}

func decodeEntity(name string) (string, bool) {
	switch name {
	case "lt":
		return "<", true
	case "gt":
		return ">", true
	case "amp":
		return "&", true
	case "quot":
		return `"`, true
	case "apos":
		return "'", true
	}
	if strings.HasPrefix(name, "#x") || strings.HasPrefix(name, "#X") {
		n, err := strconv.ParseInt(name[2:], 16, 32)
		if err != nil {
			return "", false
		}
		return codePoint(n)
	}
	if strings.HasPrefix(name, "#") {
		n, err := strconv.ParseInt(name[1:], 10, 32)
		if err != nil {
			return "", false
		}
		return codePoint(n)
	}
	return "", false
}

// codePoint rejects NUL, negative values and anything utf8 cannot encode.
func codePoint(n int64) (string, bool) {
	r := rune(n)
	if n <= 0 || !utf8.ValidRune(r) {
		return "", false
	}
	return string(r), true
}

func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
