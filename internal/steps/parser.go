package steps

import "strings"

type mode int

const (
	modeOutside mode = iota
	modeExplanation
	modeStep
	modeCDATA
)

func (m mode) String() string {
	switch m {
	case modeOutside:
		return "OUTSIDE"
	case modeExplanation:
		return "IN_EXPLANATION"
	case modeStep:
		return "IN_STEP"
	case modeCDATA:
		return "IN_CDATA"
	}
	return "UNKNOWN"
}

// State is the incremental parser. The zero value is ready to use.
//
// A State has a single owner: Consume and Flush mutate it and must not be
// called concurrently.
type State struct {
	mode  mode
	outer mode // mode to return to when a CDATA section ends

	// pending holds input that has not been classified yet: at most a
	// partial tag or the start of a CDATA terminator.
	pending string

	// body accumulates the text of the open explanation or step.
	body []byte
}

// InStep reports whether the parser is inside a <step> element.
func (s *State) InStep() bool {
	return s.mode == modeStep || (s.mode == modeCDATA && s.outer == modeStep)
}

// Pending returns the input held back for the next chunk.
func (s *State) Pending() string {
	return s.pending
}

// Consume feeds one chunk and returns every record completed by it, in
// input order. Incomplete trailing input is retained for the next call.
func (s *State) Consume(chunk string) []Record {
	s.pending += chunk

	var out []Record
	limit := 4*len(s.pending) + 1024
	for iter := 0; ; iter++ {
		if iter >= limit {
			out = append(out, diagnostic("parser stopped after %d iterations in %s; %d bytes held", iter, s.mode, len(s.pending)))
			return out
		}
		progressed, records := s.advance()
		out = append(out, records...)
		if !progressed {
			return out
		}
	}
}

// Flush ends the stream. An unterminated step is dropped with a diagnostic;
// an unterminated explanation is emitted as is. The state is reset.
func (s *State) Flush() []Record {
	var out []Record
	current := s.mode
	if current == modeCDATA {
		current = s.outer
	}
	switch current {
	case modeStep:
		out = append(out, diagnostic("reply ended inside an unterminated <step>; step dropped"))
	case modeExplanation:
		text, _ := fieldValue(string(s.body))
		out = append(out, diagnostic("reply ended inside an unterminated <explanation>"))
		if text != "" {
			out = append(out, Record{Kind: KindExplanation, Text: text})
		}
	}
	*s = State{}
	return out
}

// advance consumes one token in the current mode. It returns false when
// nothing more can be done without further input.
func (s *State) advance() (bool, []Record) {
	switch s.mode {
	case modeOutside:
		return s.advanceOutside(), nil
	case modeCDATA:
		return s.advanceCDATA(), nil
	default:
		return s.advanceBody()
	}
}

func (s *State) advanceOutside() bool {
	p := s.pending
	i := strings.IndexByte(p, '<')
	if i < 0 {
		s.pending = ""
		return false
	}
	t, status := scanTag(p[i:])
	switch status {
	case tagIncomplete:
		s.pending = p[i:]
		return false
	case tagInvalid:
		s.pending = p[i+1:]
		return true
	case tagCDATA:
		// Stray CDATA between elements is skipped.
		s.body = s.body[:0]
		s.outer = modeOutside
		s.mode = modeCDATA
		s.pending = p[i+t.length:]
		return true
	}

	s.pending = p[i+t.length:]
	if !t.closing {
		switch t.name {
		case "explanation":
			s.mode = modeExplanation
			s.body = s.body[:0]
		case "step":
			s.mode = modeStep
			s.body = s.body[:0]
		}
	}
	return true
}

func (s *State) advanceCDATA() bool {
	p := s.pending
	j := strings.Index(p, cdataClose)
	if j < 0 {
		keep := cdataTail(p)
		s.body = append(s.body, p[:len(p)-keep]...)
		s.pending = p[len(p)-keep:]
		return false
	}
	end := j + len(cdataClose)
	s.body = append(s.body, p[:end]...)
	s.pending = p[end:]
	s.mode = s.outer
	if s.mode == modeOutside {
		s.body = s.body[:0]
	}
	return true
}

// advanceBody handles IN_EXPLANATION and IN_STEP: text is accumulated
// verbatim until the matching close tag.
func (s *State) advanceBody() (bool, []Record) {
	p := s.pending
	i := strings.IndexByte(p, '<')
	if i < 0 {
		s.body = append(s.body, p...)
		s.pending = ""
		return false, nil
	}
	s.body = append(s.body, p[:i]...)

	t, status := scanTag(p[i:])
	switch status {
	case tagIncomplete:
		s.pending = p[i:]
		return false, nil
	case tagInvalid:
		s.body = append(s.body, '<')
		s.pending = p[i+1:]
		return true, nil
	case tagCDATA:
		s.body = append(s.body, cdataOpen...)
		s.outer = s.mode
		s.mode = modeCDATA
		s.pending = p[i+t.length:]
		return true, nil
	}

	if s.closes(t) {
		s.pending = p[i+t.length:]
		return true, s.finish()
	}
	if s.interrupts(t) {
		// Leave the tag in pending so OUTSIDE sees it next.
		records := append([]Record{diagnostic("<%s> closed implicitly by <%s%s>", s.elementName(), closingMark(t), t.name)}, s.finish()...)
		s.pending = p[i:]
		return true, records
	}

	s.body = append(s.body, p[i:i+t.length]...)
	s.pending = p[i+t.length:]
	return true, nil
}

func (s *State) elementName() string {
	if s.mode == modeExplanation {
		return "explanation"
	}
	return "step"
}

func (s *State) closes(t tag) bool {
	return t.closing && t.name == s.elementName()
}

// interrupts reports whether t can only appear once the open element is
// over, meaning its close tag went missing.
func (s *State) interrupts(t tag) bool {
	if t.closing {
		return t.name == "steps" || t.name == "response"
	}
	return t.name == "step" || t.name == "steps"
}

// finish emits the element held in body and returns to OUTSIDE.
func (s *State) finish() []Record {
	body := string(s.body)
	kind := s.mode
	s.body = s.body[:0]
	s.mode = modeOutside

	if kind == modeExplanation {
		text, _ := fieldValue(body)
		return []Record{{Kind: KindExplanation, Text: text}}
	}
	step, records := parseStep(body)
	if step != nil {
		records = append(records, Record{Kind: KindStep, Step: *step})
	}
	return records
}

func closingMark(t tag) string {
	if t.closing {
		return "/"
	}
	return ""
}
