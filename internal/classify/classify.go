// Package classify recognises server failure signatures in output lines.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Handler tags returned by the default patterns.
const (
	TagModuleResolution = "module_resolution"
	TagSyntax           = "syntax_error"
	TagCompile          = "compile_error"
	TagPortInUse        = "port_in_use"
	TagPanic            = "panic"
	TagUnhandled        = "unhandled_exception"
	TagGeneric          = "generic_error"
)

// Pattern maps a line signature to a handler tag.
type Pattern struct {
	Regex *regexp.Regexp
	Tag   string
}

// Ordered from most to least specific; the first match wins.
var defaultPatterns = []struct{ expr, tag string }{
	{`cannot find module|module not found|no module named|could not resolve|can't resolve|cannot resolve|unresolved import|failed to resolve import|importerror|modulenotfounderror|no required module provides package|package .* is not in std`, TagModuleResolution},
	{`syntaxerror|syntax error|unexpected token|parse error|unexpected end of (input|file)|unterminated string`, TagSyntax},
	{`failed to compile|compilation failed|compile error|build failed|error ts\d+|cannot use .* as .* value|undefined: `, TagCompile},
	{`eaddrinuse|address already in use|port \d+ is already in use`, TagPortInUse},
	{`^panic: |^fatal error: |goroutine \d+ \[running\]`, TagPanic},
	{`unhandled(promise)?rejection|uncaught exception|traceback \(most recent call last\)|unhandled exception`, TagUnhandled},
	{`\berror:|\berror\]|^error |\[error\]`, TagGeneric},
}

// DefaultPatterns returns a fresh copy of the built-in pattern table.
func DefaultPatterns() []Pattern {
	patterns := make([]Pattern, 0, len(defaultPatterns))
	for _, p := range defaultPatterns {
		patterns = append(patterns, Pattern{Regex: regexp.MustCompile(`(?i)` + p.expr), Tag: p.tag})
	}
	return patterns
}

// ParsePattern compiles a user pattern of the form "tag=regex". Matching is
// always case-insensitive.
func ParsePattern(spec string) (Pattern, error) {
	tag, expr, ok := strings.Cut(spec, "=")
	tag = strings.TrimSpace(tag)
	if !ok || tag == "" || expr == "" {
		return Pattern{}, fmt.Errorf("invalid pattern %q (expected tag=regex)", spec)
	}
	re, err := regexp.Compile(`(?i)` + expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid pattern %q: %w", spec, err)
	}
	return Pattern{Regex: re, Tag: tag}, nil
}

// Classifier tests lines against a fixed pattern table. It is safe for
// concurrent use because the table is never modified after construction.
type Classifier struct {
	patterns []Pattern
}

// New creates a Classifier over patterns, or the default table when none
// are given.
func New(patterns ...Pattern) *Classifier {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	return &Classifier{patterns: patterns}
}

// WithExtra returns a Classifier that tries the user patterns before the
// default table.
func WithExtra(specs []string) (*Classifier, error) {
	var patterns []Pattern
	for _, spec := range specs {
		p, err := ParsePattern(spec)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return New(append(patterns, DefaultPatterns()...)...), nil
}

// Classify returns the tag of the first pattern matching line.
func (c *Classifier) Classify(line string) (string, bool) {
	clean := strings.TrimSpace(ansi.Strip(line))
	if clean == "" {
		return "", false
	}
	for _, p := range c.patterns {
		if p.Regex.MatchString(clean) {
			return p.Tag, true
		}
	}
	return "", false
}
