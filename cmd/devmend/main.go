package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/silver2dream/devmend/internal/buildinfo"
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
)

func init() {
	// Disable colors on Windows or when asked to
	if runtime.GOOS == "windows" || os.Getenv("NO_COLOR") != "" {
		colorReset = ""
		colorRed = ""
		colorYellow = ""
		colorBold = ""
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	switch args[0] {
	case "--version", "-v", "version":
		fmt.Println(buildinfo.Version)
		return 0
	case "--help", "-h":
		usage()
		return 0
	case "monitor":
		return cmdMonitor(args[1:])
	case "doctor":
		return cmdDoctor(args[1:])
	case "help":
		if len(args) >= 2 {
			return cmdHelp(args[1])
		}
		usage()
		return 0
	default:
		errorf("Unknown command: %s\n\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `devmend - keep a dev server running and fix what breaks it

Usage:
  devmend <command> [options]

Commands:
  monitor   Start the dev server under supervision
  doctor    Check that monitoring can start
  version   Show version
  help      Show help for a command

Examples:
  devmend monitor
  devmend monitor --command "npm run dev"
  devmend monitor --yes --backend codex
  devmend doctor

Run 'devmend help <command>' for more information.
`)
}

func cmdHelp(command string) int {
	switch command {
	case "monitor":
		usageMonitor()
	case "doctor":
		usageDoctor()
	case "version":
		fmt.Println("Show the devmend version.")
	default:
		errorf("Unknown command: %s\n", command)
		return 2
	}
	return 0
}

func warn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s⚠%s %s", colorYellow, colorReset, fmt.Sprintf(format, args...))
}

func errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%sError:%s %s", colorRed, colorReset, fmt.Sprintf(format, args...))
}

func bold(s string) string {
	return colorBold + s + colorReset
}
