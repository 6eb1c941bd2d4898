package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/silver2dream/devmend/internal/steps"
)

func TestNewOutputFormatter(t *testing.T) {
	var buf bytes.Buffer
	formatter := NewOutputFormatter(&buf)

	if formatter.writer != &buf {
		t.Error("writer not set correctly")
	}
	if formatter.useColors {
		t.Error("a buffer is not a terminal; colors should be off")
	}
}

func TestNewOutputFormatter_NilWriter(t *testing.T) {
	formatter := NewOutputFormatter(nil)
	if formatter == nil {
		t.Fatal("NewOutputFormatter returned nil")
	}
}

func TestOutputFormatter_Marks(t *testing.T) {
	tests := []struct {
		name   string
		print  func(*OutputFormatter, string)
		symbol string
	}{
		{"success", (*OutputFormatter).Success, "✓"},
		{"error", (*OutputFormatter).Error, "✗"},
		{"warning", (*OutputFormatter).Warning, "⚠️"},
		{"notice", (*OutputFormatter).Notice, "[devmend]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.print(NewPlainFormatter(&buf), "hello")
			want := tt.symbol + " hello\n"
			if got := buf.String(); got != want {
				t.Errorf("output = %q, want %q", got, want)
			}
		})
	}
}

func TestOutputFormatter_Colors(t *testing.T) {
	var buf bytes.Buffer
	formatter := &OutputFormatter{writer: &buf, useColors: true}

	formatter.Success("done")
	if !strings.Contains(buf.String(), colorGreen) {
		t.Error("expected green escape code")
	}
	if got := formatter.Bold("x"); got != colorBold+"x"+colorReset {
		t.Errorf("Bold() = %q", got)
	}
}

func TestOutputFormatter_Explanation(t *testing.T) {
	var buf bytes.Buffer
	NewPlainFormatter(&buf).Explanation("line one\nline two\n")

	want := "│ line one\n│ line two\n"
	if got := buf.String(); got != want {
		t.Errorf("Explanation() = %q, want %q", got, want)
	}
}

func TestOutputFormatter_Proposal(t *testing.T) {
	var buf bytes.Buffer
	NewPlainFormatter(&buf).Proposal("Proposed fix", []steps.Step{
		{Type: steps.TypeShell, Command: "npm install"},
		{Type: steps.TypeFile, Operation: steps.OpUpdate, Filename: "src/app.js"},
	})

	output := buf.String()
	for _, want := range []string{"Proposed fix", "1. run: npm install", "2. UPDATE src/app.js"} {
		if !strings.Contains(output, want) {
			t.Errorf("Proposal output missing %q:\n%s", want, output)
		}
	}
}

func TestOutputFormatter_ProposalBoxed(t *testing.T) {
	var buf bytes.Buffer
	formatter := &OutputFormatter{writer: &buf, useColors: true}
	formatter.Proposal("Fix", []steps.Step{{Type: steps.TypeShell, Command: "ls"}})

	if !strings.Contains(buf.String(), "run: ls") {
		t.Errorf("boxed proposal missing step: %q", buf.String())
	}
}
