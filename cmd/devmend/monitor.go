package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/silver2dream/devmend/internal/classify"
	"github.com/silver2dream/devmend/internal/config"
	derrors "github.com/silver2dream/devmend/internal/errors"
	"github.com/silver2dream/devmend/internal/executor"
	"github.com/silver2dream/devmend/internal/llm"
	"github.com/silver2dream/devmend/internal/logging"
	"github.com/silver2dream/devmend/internal/project"
	"github.com/silver2dream/devmend/internal/repair"
	"github.com/silver2dream/devmend/internal/supervisor"
	"github.com/silver2dream/devmend/internal/ui"
)

func usageMonitor() {
	fmt.Fprint(os.Stderr, `Start the dev server under supervision

Errors in its output are sent to the model backend and the proposed fix is
applied after confirmation. Type an instruction at any time to request a
change; type 'help' for the list of commands.

Usage:
  devmend monitor [options]

Options:
  --command CMD       Start command (default: config, then detection)
  --dir DIR           Project root [default: .]
  --yes               Apply fixes without asking
  --idle DUR          Silence before the idle notice, 0 to disable [default: 5s]
  --max-retries N     Restart attempts before giving up [default: 3]
  --max-depth N       Follow-up repair attempts per episode [default: 3]
  --backend NAME      Model backend: claude-code, codex, command [default: claude-code]
  --model NAME        Model passed to the backend
  --no-pty            Run the dev server on pipes instead of a terminal
  --dry-run           Show fixes without changing files or running commands
  --verbose           Debug logging

Examples:
  devmend monitor
  devmend monitor --command "go run ./cmd/server"
  devmend monitor --yes --max-depth 1
`)
}

// monitorOptions holds the monitor command line.
type monitorOptions struct {
	Command    string
	Dir        string
	Yes        bool
	Idle       time.Duration
	MaxRetries int
	MaxDepth   int
	Backend    string
	Model      string
	NoPTY      bool
	DryRun     bool
	Verbose    bool
	Help       bool

	changed map[string]bool
}

func parseMonitorFlags(args []string) (*monitorOptions, error) {
	fs := pflag.NewFlagSet("monitor", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = usageMonitor

	opts := &monitorOptions{}
	fs.StringVar(&opts.Command, "command", "", "")
	fs.StringVar(&opts.Dir, "dir", ".", "")
	fs.BoolVarP(&opts.Yes, "yes", "y", false, "")
	fs.DurationVar(&opts.Idle, "idle", config.DefaultIdleThreshold, "")
	fs.IntVar(&opts.MaxRetries, "max-retries", config.DefaultMaxRetries, "")
	fs.IntVar(&opts.MaxDepth, "max-depth", config.DefaultMaxDepth, "")
	fs.StringVar(&opts.Backend, "backend", "", "")
	fs.StringVar(&opts.Model, "model", "", "")
	fs.BoolVar(&opts.NoPTY, "no-pty", false, "")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "")
	fs.BoolVar(&opts.Verbose, "verbose", false, "")
	fs.BoolVarP(&opts.Help, "help", "h", false, "")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	opts.changed = map[string]bool{}
	fs.Visit(func(f *pflag.Flag) { opts.changed[f.Name] = true })
	return opts, nil
}

// apply overrides configuration values with the flags that were given.
func (o *monitorOptions) apply(cfg *config.Config) {
	if o.changed["command"] {
		cfg.Project.StartCommand = o.Command
	}
	if o.changed["idle"] {
		cfg.Monitor.IdleThreshold = config.Duration(o.Idle)
	}
	if o.changed["max-retries"] {
		n := o.MaxRetries
		cfg.Monitor.MaxRetries = &n
	}
	if o.changed["max-depth"] {
		n := o.MaxDepth
		cfg.Repair.MaxDepth = &n
	}
	if o.changed["backend"] {
		cfg.Repair.Backend = o.Backend
	}
	if o.changed["model"] {
		cfg.Repair.Model = o.Model
	}
	if o.Yes {
		cfg.Repair.AutoApprove = true
	}
	if o.NoPTY {
		usePTY := false
		cfg.Monitor.UsePTY = &usePTY
	}
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}
}

// supervisorConfig maps the configuration file onto supervisor settings.
func supervisorConfig(cfg *config.Config, root string) supervisor.Config {
	workdir := root
	if w := cfg.Project.Workdir; w != "" {
		if filepath.IsAbs(w) {
			workdir = w
		} else {
			workdir = filepath.Join(root, w)
		}
	}

	var logs []string
	for _, p := range cfg.Monitor.WatchLogs {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		logs = append(logs, p)
	}

	return supervisor.Config{
		Dir:           workdir,
		IdleThreshold: cfg.Monitor.IdleThreshold.Or(config.DefaultIdleThreshold),
		MaxRetries:    cfg.MaxRetries(),
		GracePeriod:   cfg.Monitor.GracePeriod.Or(config.DefaultGracePeriod),
		KillTimeout:   cfg.Monitor.KillTimeout.Or(config.DefaultKillTimeout),
		PollInterval:  cfg.Monitor.PollInterval.Or(config.DefaultPollInterval),
		StableAfter:   cfg.Monitor.StableAfter.Or(config.DefaultStableAfter),
		UsePTY:        cfg.UsePTY(),
		WatchLogs:     logs,
		ContextLines:  classify.DefaultContextLines,
	}
}

// selectBackend returns the configured model backend.
func selectBackend(cfg *config.Config, root string) (llm.Backend, error) {
	timeout := cfg.Repair.Timeout.Or(config.DefaultRepairTimeout)

	if cfg.Backend() == "command" {
		b := llm.NewCommandBackend(cfg.Repair.Command)
		b.Dir = root
		b.Timeout = timeout
		return b, nil
	}

	reg := llm.DefaultRegistry(cfg.Repair.Model)
	b, err := reg.Get(cfg.Backend())
	if err != nil {
		return nil, err
	}
	switch b := b.(type) {
	case *llm.ClaudeBackend:
		b.Dir = root
		b.Timeout = timeout
	case *llm.CodexBackend:
		b.Dir = root
		b.Timeout = timeout
	}
	return b, nil
}

func logDir(cfg *config.Config, root string) string {
	dir := cfg.Logging.Dir
	if dir == "" {
		return filepath.Join(root, config.Dir, "logs")
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return dir
}

func cmdMonitor(args []string) int {
	opts, err := parseMonitorFlags(args)
	if err != nil {
		return 2
	}
	if opts.Help {
		usageMonitor()
		return 0
	}
	return exitCode(runMonitor(opts))
}

func exitCode(err error) int {
	if err == nil {
		return derrors.ExitSuccess
	}
	errorf("%v\n", err)
	return derrors.GetExitCode(err)
}

func runMonitor(opts *monitorOptions) error {
	root, err := filepath.Abs(opts.Dir)
	if err != nil {
		return derrors.NewGeneralErrorWithCause("invalid project directory", err)
	}

	output := ui.NewOutputFormatter(os.Stdout)

	configPath := config.Path(root)
	cfg, err := config.Load(configPath)
	if err != nil {
		return derrors.NewConfigErrorWithCause("failed to load config", err)
	}
	opts.apply(cfg)
	if problems := append(cfg.Validate(), cfg.ValidatePaths(root)...); len(problems) > 0 {
		for _, p := range problems {
			output.Error(p.Error())
		}
		return derrors.NewConfigError(fmt.Sprintf("%d configuration problem(s) in %s", len(problems), configPath))
	}

	classifier, err := classify.WithExtra(cfg.Repair.ExtraPatterns)
	if err != nil {
		return derrors.NewConfigErrorWithCause("repair.extra_patterns", err)
	}

	logger, closeLog, err := logging.New(logging.Options{
		Dir:       logDir(cfg, root),
		Level:     cfg.LogLevel(),
		Format:    cfg.Logging.Format,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	if err != nil {
		return derrors.NewGeneralErrorWithCause("failed to open log", err)
	}
	defer closeLog()

	lock := supervisor.NewLockManager(supervisor.LockPath(root), strings.Join(os.Args, " "))
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, supervisor.ErrLockHeld) {
			return derrors.NewLockHeldError("cannot start monitor", err)
		}
		return derrors.NewGeneralErrorWithCause("cannot start monitor", err)
	}
	defer lock.Release()

	meta := project.New(root, cfg)
	meta.Override = opts.Command
	command, err := meta.StartCommand()
	if err != nil {
		return derrors.NewPreflightError(fmt.Sprintf("%v; set project.start_command in %s or pass --command", err, configPath))
	}

	backend, err := selectBackend(cfg, root)
	if err != nil {
		return derrors.NewConfigErrorWithCause("repair.backend", err)
	}
	if err := backend.Available(); err != nil {
		output.Warning(fmt.Sprintf("%v; errors will be reported but not fixed", err))
	}

	exec := executor.New(root, logger.Named("executor"))
	exec.DryRun = opts.DryRun

	console, err := supervisor.NewConsole(os.Stdin, os.Stdout)
	if err != nil {
		return derrors.NewGeneralErrorWithCause("cannot read input", err)
	}
	console.Start()
	defer console.Close()

	sup := supervisor.New(supervisorConfig(cfg, root),
		supervisor.WithClassifier(classifier),
		supervisor.WithLogger(logger),
		supervisor.WithOutput(output),
		supervisor.WithInput(console),
		supervisor.WithCommandResolver(meta.StartCommand),
	)

	coord := repair.NewCoordinator(repair.Config{
		MaxDepth:    cfg.MaxDepth(),
		AutoApprove: cfg.Repair.AutoApprove,
		Timeout:     cfg.Repair.Timeout.Or(config.DefaultRepairTimeout),
	}, repair.Deps{
		LLM:       backend,
		Executor:  exec,
		Metadata:  meta,
		Restarter: sup,
		Operator:  console,
		Display:   output,
		Spinner:   ui.NewSpinner("Asking "+backend.Name(), os.Stdout),
		Logger:    logger,
	})
	sup.Attach(coord)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := project.Watch(ctx, configPath, logger.Named("watch"), func() {
			reloadConfig(meta, configPath, sup, output, logger)
		})
		if err != nil {
			logger.Warn("config watch disabled", zap.Error(err))
		}
	}()

	signals := supervisor.NewSignalHandler(sup.Stop, sup.Kill, output)
	signals.Setup()
	defer signals.Close()

	output.Info(fmt.Sprintf("%s %s in %s", bold("devmend"), "monitoring", root))
	output.Info(fmt.Sprintf("Start command: %s", command))
	if opts.DryRun {
		output.Warning("Dry run: fixes are shown but not applied")
	}
	output.Info("Type 'help' for commands.")

	logger.Info("monitor starting",
		zap.String("root", root),
		zap.String("command", command),
		zap.String("backend", backend.Name()),
		zap.Int("max_depth", cfg.MaxDepth()),
		zap.Int("max_retries", cfg.MaxRetries()))

	runErr := sup.Run(ctx)
	cancel()
	wg.Wait()

	if runErr != nil {
		logger.Error("monitor stopped", zap.Error(runErr))
		if errors.Is(runErr, supervisor.ErrRetriesExhausted) {
			return derrors.NewRetriesExhaustedError("the dev server could not be kept running", runErr)
		}
		return derrors.NewGeneralErrorWithCause("monitor failed", runErr)
	}

	output.Success("Stopped.")
	logger.Info("monitor stopped")
	return nil
}

// restarter is the part of the supervisor reloadConfig needs.
type restarter interface {
	RequestRestart(reason string)
}

// reloadConfig re-reads the configuration after the file changed and
// restarts the dev server when its start command changed.
func reloadConfig(meta *project.Metadata, path string, sup restarter, output *ui.OutputFormatter, logger *zap.Logger) {
	logger = logging.OrNop(logger)

	cfg, err := config.Load(path)
	if err != nil {
		output.Warning(fmt.Sprintf("Ignoring config change: %v", err))
		return
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		output.Warning(fmt.Sprintf("Ignoring config change: %v", problems[0]))
		return
	}

	before, _ := meta.StartCommand()
	meta.SetConfig(cfg)
	after, _ := meta.StartCommand()

	logger.Info("config reloaded", zap.String("path", path))
	if before != after {
		output.Notice(fmt.Sprintf("Start command changed to %q", after))
		sup.RequestRestart("start command changed")
	}
}
