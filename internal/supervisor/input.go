package supervisor

import (
	"regexp"
	"strings"
)

// CommandKind classifies an operator input line.
type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdExit
	CmdRestart
	CmdHelp
	CmdStatus
	CmdInstruction
)

// Command is a parsed operator line.
type Command struct {
	Kind   CommandKind
	Text   string   // instruction text
	Images []string // attached image paths
}

// imageCommand matches "image <path> <instruction>" and "img: <path> <instruction>".
// The path may be quoted to contain spaces.
var imageCommand = regexp.MustCompile(`(?is)^(?:image|img:)\s+(?:"([^"]+)"|'([^']+)'|(\S+))\s*(.*)$`)

// ParseCommand interprets one line typed by the operator.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{Kind: CmdNone}
	}

	switch strings.ToLower(line) {
	case "exit", "quit":
		return Command{Kind: CmdExit}
	case "restart":
		return Command{Kind: CmdRestart}
	case "help", "?":
		return Command{Kind: CmdHelp}
	case "status":
		return Command{Kind: CmdStatus}
	}

	if m := imageCommand.FindStringSubmatch(line); m != nil {
		path := m[1] + m[2] + m[3]
		return Command{
			Kind:   CmdInstruction,
			Text:   strings.TrimSpace(m[4]),
			Images: []string{path},
		}
	}

	return Command{Kind: CmdInstruction, Text: line}
}

const helpText = `Commands:
  <text>                      ask for a change or fix in plain language
  image <path> <text>         same, with a screenshot or mockup attached
  img: <path> <text>          alias for image
  restart                     restart the dev server
  status                      show supervisor state
  help                        show this help
  exit, quit                  stop the dev server and exit`
