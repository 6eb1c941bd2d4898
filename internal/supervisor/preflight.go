package supervisor

import (
	"fmt"
	"path/filepath"

	"github.com/silver2dream/devmend/internal/classify"
	"github.com/silver2dream/devmend/internal/config"
)

// Backend is the part of an LLM backend preflight needs.
type Backend interface {
	Name() string
	Available() error
}

// PreflightChecker performs checks before the monitor starts.
type PreflightChecker struct {
	root         string
	lockFile     string
	configPath   string
	startCommand func() (string, error)
	backend      Backend
	usePTY       bool

	config *config.Config
}

// CheckResult represents the result of a single check
type CheckResult struct {
	Name    string
	Passed  bool
	Message string
	Fatal   bool // a failed fatal check prevents the monitor from starting
}

// NewPreflightChecker creates a checker for the project at root.
// startCommand and backend may be nil to skip their checks.
func NewPreflightChecker(root string, startCommand func() (string, error), backend Backend, usePTY bool) *PreflightChecker {
	return &PreflightChecker{
		root:         root,
		lockFile:     LockPath(root),
		configPath:   config.Path(root),
		startCommand: startCommand,
		backend:      backend,
		usePTY:       usePTY,
	}
}

// RunAll executes every check in order. It stops at the first fatal
// failure and returns an error describing it.
func (p *PreflightChecker) RunAll() ([]CheckResult, error) {
	checks := []func() CheckResult{
		p.CheckLockFile,
		p.CheckConfig,
		p.CheckStartCommand,
		p.CheckBackend,
		p.CheckPTY,
	}

	var results []CheckResult
	for _, check := range checks {
		r := check()
		results = append(results, r)
		if !r.Passed && r.Fatal {
			return results, fmt.Errorf("%s check failed: %s", r.Name, r.Message)
		}
	}
	return results, nil
}

// CheckLockFile checks if another monitor is running
func (p *PreflightChecker) CheckLockFile() CheckResult {
	lock := NewLockManager(p.lockFile, "")

	if info, alive := lock.Holder(); info != nil {
		if alive {
			return CheckResult{
				Name:    "Lock File",
				Passed:  false,
				Fatal:   true,
				Message: heldError(info).Error(),
			}
		}
		return CheckResult{
			Name:    "Lock File",
			Passed:  true,
			Message: fmt.Sprintf("Stale lock from PID %d, will be taken over", info.PID),
		}
	}

	return CheckResult{
		Name:    "Lock File",
		Passed:  true,
		Message: "No other monitor running",
	}
}

// CheckConfig loads and validates the configuration file
func (p *PreflightChecker) CheckConfig() CheckResult {
	cfg, err := config.Load(p.configPath)
	if err != nil {
		return CheckResult{Name: "Config", Fatal: true, Message: err.Error()}
	}

	problems := cfg.Validate()
	problems = append(problems, cfg.ValidatePaths(p.root)...)
	if len(problems) > 0 {
		return CheckResult{Name: "Config", Fatal: true, Message: problems[0].Error()}
	}
	if _, err := classify.WithExtra(cfg.Repair.ExtraPatterns); err != nil {
		return CheckResult{Name: "Config", Fatal: true, Message: err.Error()}
	}

	p.config = cfg

	name := cfg.Project.Name
	if name == "" {
		name = filepath.Base(p.root)
	}
	return CheckResult{
		Name:    "Config",
		Passed:  true,
		Message: fmt.Sprintf("Valid config for project: %s", name),
	}
}

// CheckStartCommand checks that a start command can be determined
func (p *PreflightChecker) CheckStartCommand() CheckResult {
	if p.startCommand == nil {
		return CheckResult{Name: "Start Command", Passed: true, Message: "skipped"}
	}
	command, err := p.startCommand()
	if err != nil {
		return CheckResult{Name: "Start Command", Fatal: true, Message: err.Error()}
	}
	return CheckResult{Name: "Start Command", Passed: true, Message: command}
}

// CheckBackend checks that the LLM backend can be invoked. A missing
// backend is reported but does not prevent monitoring.
func (p *PreflightChecker) CheckBackend() CheckResult {
	if p.backend == nil {
		return CheckResult{Name: "LLM Backend", Passed: true, Message: "skipped"}
	}
	if err := p.backend.Available(); err != nil {
		return CheckResult{
			Name:    "LLM Backend",
			Message: fmt.Sprintf("%s: %v (errors will be reported but not fixed)", p.backend.Name(), err),
		}
	}
	return CheckResult{Name: "LLM Backend", Passed: true, Message: p.backend.Name()}
}

// CheckPTY checks if a PTY can be allocated. Failure is not fatal; the
// child then runs on pipes.
func (p *PreflightChecker) CheckPTY() CheckResult {
	if !p.usePTY {
		return CheckResult{Name: "PTY", Passed: true, Message: "disabled, using pipes"}
	}
	if err := ptyAvailable(); err != nil {
		return CheckResult{
			Name:    "PTY",
			Message: fmt.Sprintf("unavailable (%v), will fall back to pipes", err),
		}
	}
	return CheckResult{Name: "PTY", Passed: true, Message: "PTY available"}
}

// Config returns the configuration loaded by CheckConfig.
func (p *PreflightChecker) Config() *config.Config {
	return p.config
}
