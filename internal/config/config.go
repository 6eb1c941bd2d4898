// Package config loads the devmend configuration file (.devmend/config.yaml).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default file locations, relative to the project root.
const (
	Dir      = ".devmend"
	FileName = "config.yaml"
)

// Defaults applied to missing values.
const (
	DefaultIdleThreshold = 5 * time.Second
	DefaultMaxRetries    = 3
	DefaultGracePeriod   = time.Second
	DefaultKillTimeout   = 10 * time.Second
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultStableAfter   = 10 * time.Second
	DefaultMaxDepth      = 3
	DefaultBackend       = "claude-code"
	DefaultRepairTimeout = 5 * time.Minute
	DefaultLogLevel      = "info"
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxFiles   = 10
)

// Config represents .devmend/config.yaml
type Config struct {
	Project ProjectConfig `yaml:"project"`
	Monitor MonitorConfig `yaml:"monitor"`
	Repair  RepairConfig  `yaml:"repair"`
	Logging LoggingConfig `yaml:"logging"`
}

// ProjectConfig describes the supervised project
type ProjectConfig struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	StartCommand string `yaml:"start_command"`
	Workdir      string `yaml:"workdir"`
	Notes        string `yaml:"notes"` // free text passed to the model with every request
}

// MonitorConfig holds supervisor settings
type MonitorConfig struct {
	IdleThreshold Duration `yaml:"idle_threshold"`
	MaxRetries    *int     `yaml:"max_retries"`
	GracePeriod   Duration `yaml:"grace_period"`
	KillTimeout   Duration `yaml:"kill_timeout"`
	PollInterval  Duration `yaml:"poll_interval"`
	StableAfter   Duration `yaml:"stable_after"`
	WatchLogs     []string `yaml:"watch_logs"`
	UsePTY        *bool    `yaml:"use_pty"`
}

// RepairConfig holds repair coordinator settings
type RepairConfig struct {
	MaxDepth      *int     `yaml:"max_depth"`
	AutoApprove   bool     `yaml:"auto_approve"`
	Backend       string   `yaml:"backend"` // claude-code, codex, command
	Model         string   `yaml:"model"`
	Command       string   `yaml:"command"` // used by the "command" backend
	Timeout       Duration `yaml:"timeout"`
	ExtraPatterns []string `yaml:"extra_patterns"` // tag=regex
}

// LoggingConfig holds diagnostic log settings
type LoggingConfig struct {
	Dir       string `yaml:"dir"`
	Level     string `yaml:"level"`  // debug, info, warn, error
	Format    string `yaml:"format"` // json, console
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// UnmarshalYAML parses values such as "5s" or "250ms".
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Or returns d, or fallback when d is unset.
func (d Duration) Or(fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return time.Duration(d)
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field    string
	Message  string
	Expected string
}

func (e ValidationError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("%s: %s (expected: %s)", e.Field, e.Message, e.Expected)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Path returns the config file path for a project root.
func Path(root string) string {
	return filepath.Join(root, Dir, FileName)
}

// Load reads and parses the configuration file. A missing file yields an
// empty Config so that every value falls back to its default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// MaxRetries returns the restart retry ceiling.
func (c *Config) MaxRetries() int {
	if c.Monitor.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *c.Monitor.MaxRetries
}

// MaxDepth returns the repair recursion cap.
func (c *Config) MaxDepth() int {
	if c.Repair.MaxDepth == nil {
		return DefaultMaxDepth
	}
	return *c.Repair.MaxDepth
}

// UsePTY reports whether the child should run on a pseudo-terminal.
func (c *Config) UsePTY() bool {
	if c.Monitor.UsePTY == nil {
		return true
	}
	return *c.Monitor.UsePTY
}

// Backend returns the configured LLM backend name.
func (c *Config) Backend() string {
	if c.Repair.Backend == "" {
		return DefaultBackend
	}
	return c.Repair.Backend
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() string {
	if c.Logging.Level == "" {
		return DefaultLogLevel
	}
	return c.Logging.Level
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if n := c.MaxRetries(); n < 0 {
		errors = append(errors, ValidationError{
			Field:    "monitor.max_retries",
			Message:  fmt.Sprintf("invalid value: %d", n),
			Expected: "0 or greater",
		})
	}

	if n := c.MaxDepth(); n < 0 {
		errors = append(errors, ValidationError{
			Field:    "repair.max_depth",
			Message:  fmt.Sprintf("invalid value: %d", n),
			Expected: "0 or greater",
		})
	}

	switch c.Backend() {
	case "claude-code", "codex":
	case "command":
		if c.Repair.Command == "" {
			errors = append(errors, ValidationError{
				Field:   "repair.command",
				Message: "required when repair.backend is command",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:    "repair.backend",
			Message:  fmt.Sprintf("invalid value: %s", c.Repair.Backend),
			Expected: "claude-code, codex, or command",
		})
	}

	switch c.LogLevel() {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:    "logging.level",
			Message:  fmt.Sprintf("invalid value: %s", c.Logging.Level),
			Expected: "debug, info, warn, or error",
		})
	}

	if f := c.Logging.Format; f != "" && f != "json" && f != "console" {
		errors = append(errors, ValidationError{
			Field:    "logging.format",
			Message:  fmt.Sprintf("invalid value: %s", f),
			Expected: "json or console",
		})
	}

	return errors
}

// ValidatePaths checks that referenced paths exist
func (c *Config) ValidatePaths(baseDir string) []ValidationError {
	var errors []ValidationError

	if c.Project.Workdir != "" {
		dir := c.Project.Workdir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(baseDir, dir)
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			errors = append(errors, ValidationError{
				Field:   "project.workdir",
				Message: fmt.Sprintf("path does not exist: %s", c.Project.Workdir),
			})
		}
	}

	return errors
}
