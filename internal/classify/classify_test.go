package classify

import (
	"testing"
)

func TestClassify_DefaultPatterns(t *testing.T) {
	c := New()

	tests := []struct {
		name    string
		line    string
		wantTag string
		wantOK  bool
	}{
		{"node missing module", "Error: Cannot find module './utils'", TagModuleResolution, true},
		{"vite unresolved import", `[vite] Internal server error: Failed to resolve import "./Foo" from "src/App.tsx".`, TagModuleResolution, true},
		{"python import", "ModuleNotFoundError: No module named 'flask'", TagModuleResolution, true},
		{"js syntax", "SyntaxError: Unexpected token '}'", TagSyntax, true},
		{"webpack compile", "Failed to compile.", TagCompile, true},
		{"typescript", "src/app.ts(3,5): error TS2304: Cannot find name 'foo'.", TagCompile, true},
		{"go undefined", "./main.go:12:2: undefined: handler", TagCompile, true},
		{"port in use", "Error: listen EADDRINUSE: address already in use :::3000", TagPortInUse, true},
		{"go panic", "panic: runtime error: index out of range [3] with length 2", TagPanic, true},
		{"python traceback", "Traceback (most recent call last):", TagUnhandled, true},
		{"generic error", "Error: something broke", TagGeneric, true},
		{"bracketed error", "[ERROR] request failed", TagGeneric, true},
		{"case insensitive", "ERROR: disk full", TagGeneric, true},
		{"ansi coloured", "\x1b[31mError:\x1b[0m boom", TagGeneric, true},
		{"normal log", "  ➜  Local:   http://localhost:5173/", "", false},
		{"zero errors", "compiled with 0 errors", "", false},
		{"blank", "   ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, ok := c.Classify(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("Classify(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if tag != tt.wantTag {
				t.Errorf("Classify(%q) tag = %q, want %q", tt.line, tag, tt.wantTag)
			}
		})
	}
}

func TestWithExtra_UserPatternsWin(t *testing.T) {
	c, err := WithExtra([]string{"db_down=connection refused.*5432"})
	if err != nil {
		t.Fatalf("WithExtra: %v", err)
	}

	tag, ok := c.Classify("Error: connect ECONNREFUSED 127.0.0.1:5432 connection refused on 5432")
	if !ok || tag != "db_down" {
		t.Errorf("got (%q, %v), want (db_down, true)", tag, ok)
	}

	tag, ok = c.Classify("SyntaxError: bad")
	if !ok || tag != TagSyntax {
		t.Errorf("defaults should still apply, got (%q, %v)", tag, ok)
	}
}

func TestParsePattern_Invalid(t *testing.T) {
	for _, spec := range []string{"", "noequals", "=regex", "tag=", "tag=(unclosed"} {
		if _, err := ParsePattern(spec); err == nil {
			t.Errorf("ParsePattern(%q) expected error", spec)
		}
	}
}

func TestTrailingContext_Bounded(t *testing.T) {
	tc := NewTrailingContext(3)
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		tc.Add(l)
	}

	if tc.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", tc.Len())
	}
	if got := tc.String(); got != "c\nd\ne" {
		t.Errorf("String() = %q, want %q", got, "c\nd\ne")
	}

	tc.Clear()
	if tc.Len() != 0 || tc.String() != "" {
		t.Errorf("Clear() left %d lines", tc.Len())
	}

	tc.Add("f")
	if got := tc.Lines(); len(got) != 1 || got[0] != "f" {
		t.Errorf("Lines() after clear = %v", got)
	}
}

func TestTrailingContext_DefaultCapacity(t *testing.T) {
	tc := NewTrailingContext(0)
	for i := 0; i < 25; i++ {
		tc.Add("line")
	}
	if tc.Len() != DefaultContextLines {
		t.Errorf("Len() = %d, want %d", tc.Len(), DefaultContextLines)
	}
}
