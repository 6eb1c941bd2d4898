// Package steps reconstructs fix steps from a model reply that arrives as a
// stream of arbitrary text chunks.
//
// The reply follows a loose XML shape:
//
//	<response>
//	  <explanation>...</explanation>
//	  <steps>
//	    <step><type>shell</type><command>...</command></step>
//	    <step><type>file</type><operation>UPDATE</operation><filename>...</filename><content><![CDATA[ ... ]]></content></step>
//	  </steps>
//	</response>
//
// Tags may carry stray whitespace or newlines and may be split anywhere across
// chunk boundaries. CDATA payloads are passed through byte for byte.
package steps

import "fmt"

// StepType identifies what a step does.
type StepType string

const (
	TypeShell       StepType = "shell"
	TypeFile        StepType = "file"
	TypeExplanation StepType = "explanation"
	TypeMetadata    StepType = "metadata"
)

// Valid reports whether t is one of the known step types.
func (t StepType) Valid() bool {
	switch t {
	case TypeShell, TypeFile, TypeExplanation, TypeMetadata:
		return true
	}
	return false
}

// File operations carried by file steps.
const (
	OpCreate = "CREATE"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Step is one discrete instruction extracted from a reply.
// Steps are never modified after they are emitted.
type Step struct {
	Type      StepType
	Command   string
	Operation string
	Filename  string
	Content   string
	Params    map[string]string
}

// Summary returns a one-line description used when proposing the step.
func (s Step) Summary() string {
	switch s.Type {
	case TypeShell:
		return fmt.Sprintf("run: %s", s.Command)
	case TypeFile:
		return fmt.Sprintf("%s %s", s.Operation, s.Filename)
	case TypeExplanation:
		return "note: " + firstLine(s.Content)
	default:
		return fmt.Sprintf("%s %s", s.Type, s.Operation)
	}
}

// Kind distinguishes the records emitted by the parser.
type Kind int

const (
	KindStep Kind = iota
	KindExplanation
	KindDiagnostic
)

func (k Kind) String() string {
	switch k {
	case KindStep:
		return "step"
	case KindExplanation:
		return "explanation"
	case KindDiagnostic:
		return "diagnostic"
	}
	return "unknown"
}

// Record is one unit of parser output. Step is set for KindStep, Text for
// KindExplanation and KindDiagnostic.
type Record struct {
	Kind Kind
	Step Step
	Text string
}

func diagnostic(format string, args ...any) Record {
	return Record{Kind: KindDiagnostic, Text: fmt.Sprintf(format, args...)}
}

// Parse runs a complete reply through a fresh parser.
func Parse(text string) []Record {
	var s State
	records := s.Consume(text)
	return append(records, s.Flush()...)
}

// Steps filters the step records out of records, keeping their order.
func Steps(records []Record) []Step {
	var out []Step
	for _, r := range records {
		if r.Kind == KindStep {
			out = append(out, r.Step)
		}
	}
	return out
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
