package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/silver2dream/devmend/internal/config"
	derrors "github.com/silver2dream/devmend/internal/errors"
	"github.com/silver2dream/devmend/internal/llm"
	"github.com/silver2dream/devmend/internal/project"
	"github.com/silver2dream/devmend/internal/supervisor"
	"github.com/silver2dream/devmend/internal/ui"
)

func usageDoctor() {
	fmt.Fprint(os.Stderr, `Check that monitoring can start

Runs the checks 'devmend monitor' performs before starting: lock file,
configuration, start command, model backend and terminal support.

Usage:
  devmend doctor [options]

Options:
  --dir DIR       Project root [default: .]
  --command CMD   Start command to check instead of the configured one

Examples:
  devmend doctor
  devmend doctor --dir ../shop
`)
}

func cmdDoctor(args []string) int {
	fs := pflag.NewFlagSet("doctor", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = usageDoctor

	dir := fs.String("dir", ".", "")
	command := fs.String("command", "", "")
	showHelp := fs.BoolP("help", "h", false, "")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showHelp {
		usageDoctor()
		return 0
	}

	root, err := filepath.Abs(*dir)
	if err != nil {
		errorf("%v\n", err)
		return derrors.ExitGeneralError
	}

	output := ui.NewOutputFormatter(os.Stdout)
	return runDoctor(root, *command, output)
}

func runDoctor(root, command string, output *ui.OutputFormatter) int {
	// The config check reports load errors; fall back to defaults here so
	// the remaining checks still run.
	cfg, err := config.Load(config.Path(root))
	if err != nil {
		cfg = &config.Config{}
	}

	meta := project.New(root, cfg)
	meta.Override = command

	var backend supervisor.Backend
	if b, err := selectBackend(cfg, root); err == nil {
		backend = b
	} else {
		backend = unknownBackend{name: cfg.Backend(), err: err}
	}

	checker := supervisor.NewPreflightChecker(root, meta.StartCommand, backend, cfg.UsePTY())
	results, err := checker.RunAll()

	for _, r := range results {
		msg := fmt.Sprintf("%s: %s", r.Name, r.Message)
		switch {
		case r.Passed:
			output.Success(msg)
		case r.Fatal:
			output.Error(msg)
		default:
			output.Warning(msg)
		}
	}

	if err != nil {
		fmt.Fprintln(output.Writer())
		output.Error(fmt.Sprintf("Pre-flight check failed: %v", err))
		return derrors.GetExitCode(derrors.NewPreflightError(err.Error()))
	}

	fmt.Fprintln(output.Writer())
	output.Success("All checks passed.")
	return derrors.ExitSuccess
}

// unknownBackend reports a backend name the registry does not know.
type unknownBackend struct {
	name string
	err  error
}

func (b unknownBackend) Name() string { return b.name }

func (b unknownBackend) Available() error {
	return fmt.Errorf("%w: %v", llm.ErrBackendUnavailable, b.err)
}
