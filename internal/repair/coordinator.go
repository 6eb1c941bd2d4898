// Package repair runs repair episodes: it asks the model for a fix, shows
// it to the operator, applies it and asks the supervisor to restart,
// retrying with the accumulated history up to a fixed depth.
package repair

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/silver2dream/devmend/internal/executor"
	"github.com/silver2dream/devmend/internal/steps"
)

// DefaultMaxDepth is the number of retries after the first attempt.
const DefaultMaxDepth = 3

var (
	// ErrDepthExceeded ends an episode whose every attempt failed.
	ErrDepthExceeded = errors.New("repair attempts exhausted")

	// ErrDeclined ends an episode the operator refused to apply.
	ErrDeclined = errors.New("fix declined by operator")
)

// LLM produces a reply for a prompt, streaming chunks to onChunk.
type LLM interface {
	Complete(ctx context.Context, prompt string, onChunk func(string)) (string, error)
}

// Executor applies shell and file steps.
type Executor interface {
	RunShell(ctx context.Context, command string) (string, error)
	ApplyFileOp(ctx context.Context, op executor.FileOp) error
}

// Metadata supplies project context and records metadata steps.
type Metadata interface {
	ProjectContext() string
	Remember(key, value string) error
}

// Restarter restarts the supervised process once it is safe to do so.
type Restarter interface {
	RequestRestart(reason string)
}

// Operator answers yes/no questions.
type Operator interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Display shows progress to the operator.
type Display interface {
	Notice(msg string)
	Success(msg string)
	Warning(msg string)
	Error(msg string)
	Explanation(text string)
	Proposal(title string, list []steps.Step)
}

// Spinner indicates that the coordinator is waiting on the model.
type Spinner interface {
	Start()
	Stop(finalMessage string)
}

// Config controls episode limits.
type Config struct {
	MaxDepth    int           // retries after the first attempt
	AutoApprove bool          // apply fixes without asking
	Timeout     time.Duration // per model request; zero means none
}

// Deps are the collaborators of a Coordinator. Spinner and Logger are
// optional.
type Deps struct {
	LLM       LLM
	Executor  Executor
	Metadata  Metadata
	Restarter Restarter
	Operator  Operator
	Display   Display
	Spinner   Spinner
	Logger    *zap.Logger
}

// Coordinator runs repair episodes. Callers serialize Handle; the
// supervisor does so with its processing flag.
type Coordinator struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg Config, deps Deps) *Coordinator {
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{cfg: cfg, deps: deps, log: log.Named("repair")}
}

// attemptOutcome is the result of one model round trip plus execution.
type attemptOutcome struct {
	applied  bool   // every step succeeded
	terminal error  // ends the episode without further attempts
	summary  string // what happened, carried into the next prompt
}

// Handle runs one repair episode for trigger. It makes at most
// MaxDepth+1 attempts; each retry sees the history of the earlier ones.
func (c *Coordinator) Handle(ctx context.Context, trigger Trigger) Result {
	episode := uuid.NewString()
	log := c.log.With(zap.String("episode", episode), zap.Stringer("trigger", trigger.Kind))
	log.Info("repair episode started", zap.String("text", trigger.Text), zap.String("tag", trigger.Tag))

	switch trigger.Kind {
	case TriggerError:
		c.deps.Display.Notice(fmt.Sprintf("Looking for a fix for the %s", tagLabel(trigger.Tag)))
	case TriggerInstruction:
		c.deps.Display.Notice("Working on: " + trigger.Text)
	}

	var history []string
	result := Result{EpisodeID: episode}
	for depth := 0; ; depth++ {
		if depth > c.cfg.MaxDepth {
			log.Warn("repair episode failed", zap.Int("attempts", result.Attempts))
			c.deps.Display.Error(fmt.Sprintf("Giving up after %d attempts; fix it manually or type an instruction.", result.Attempts))
			result.Err = ErrDepthExceeded
			return result
		}
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}

		result.Attempts++
		if depth > 0 {
			c.deps.Display.Notice(fmt.Sprintf("Retrying (attempt %d of %d)", depth+1, c.cfg.MaxDepth+1))
		}

		outcome := c.attempt(ctx, log.With(zap.Int("depth", depth)), trigger, depth, history)
		if outcome.applied {
			log.Info("repair episode succeeded", zap.Int("attempts", result.Attempts))
			c.deps.Display.Success("Fix applied")
			if c.deps.Restarter != nil {
				c.deps.Restarter.RequestRestart("fix applied")
			}
			result.Success = true
			return result
		}
		if outcome.terminal != nil {
			log.Info("repair episode ended", zap.Error(outcome.terminal))
			result.Err = outcome.terminal
			return result
		}
		history = append(history, outcome.summary)
	}
}

func (c *Coordinator) attempt(ctx context.Context, log *zap.Logger, trigger Trigger, depth int, history []string) attemptOutcome {
	prompt := buildPrompt(promptInput{
		Trigger:        trigger,
		ProjectContext: c.deps.Metadata.ProjectContext(),
		Attempt:        depth,
		MaxAttempts:    c.cfg.MaxDepth + 1,
		History:        history,
	})
	log.Debug("sending repair request", zap.Int("prompt_bytes", len(prompt)))

	proposed, explanation, err := c.ask(ctx, log, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return attemptOutcome{terminal: ctx.Err()}
		}
		log.Warn("model request failed", zap.Error(err))
		c.deps.Display.Error("Model request failed: " + err.Error())
		return attemptOutcome{summary: "The model request failed: " + err.Error()}
	}

	var actions []steps.Step
	for _, s := range proposed {
		if s.Type == steps.TypeExplanation {
			c.deps.Display.Explanation(s.Content)
			continue
		}
		actions = append(actions, s)
	}
	if len(actions) == 0 {
		log.Warn("reply contained no steps")
		c.deps.Display.Warning("The model proposed no steps")
		return attemptOutcome{summary: "Explanation: " + explanation + "\nThe reply contained no usable steps."}
	}

	c.deps.Display.Proposal(fmt.Sprintf("Proposed fix (%d steps)", len(actions)), actions)
	if !c.cfg.AutoApprove {
		ok, err := c.deps.Operator.Confirm(ctx, "Apply this fix?")
		if err != nil {
			return attemptOutcome{terminal: err}
		}
		if !ok {
			c.deps.Display.Warning("Fix declined")
			return attemptOutcome{terminal: ErrDeclined}
		}
	}

	report, err := c.apply(ctx, log, actions)
	if err != nil {
		if ctx.Err() != nil {
			return attemptOutcome{terminal: ctx.Err()}
		}
		c.deps.Display.Error(err.Error())
		return attemptOutcome{summary: "Explanation: " + explanation + "\n" + report}
	}
	return attemptOutcome{applied: true}
}

// ask streams the model reply through the step parser. Explanations are
// shown as soon as they are complete.
func (c *Coordinator) ask(ctx context.Context, log *zap.Logger, prompt string) ([]steps.Step, string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	var (
		state       steps.State
		proposed    []steps.Step
		explanation []string
		waiting     = c.deps.Spinner != nil
	)
	if waiting {
		c.deps.Spinner.Start()
	}
	stopSpinner := func() {
		if waiting {
			c.deps.Spinner.Stop("")
			waiting = false
		}
	}
	defer stopSpinner()

	handle := func(records []steps.Record) {
		for _, r := range records {
			switch r.Kind {
			case steps.KindExplanation:
				stopSpinner()
				explanation = append(explanation, r.Text)
				c.deps.Display.Explanation(r.Text)
			case steps.KindStep:
				proposed = append(proposed, r.Step)
			case steps.KindDiagnostic:
				log.Debug("reply parse diagnostic", zap.String("detail", r.Text))
			}
		}
	}

	reply, err := c.deps.LLM.Complete(ctx, prompt, func(chunk string) {
		handle(state.Consume(chunk))
	})
	handle(state.Flush())
	log.Debug("model reply received", zap.Int("reply_bytes", len(reply)), zap.Int("steps", len(proposed)))
	if err != nil {
		return nil, "", err
	}
	return proposed, strings.Join(explanation, "\n"), nil
}

// apply runs steps in order and stops at the first failure. The returned
// report lists what ran, for the next attempt's prompt.
func (c *Coordinator) apply(ctx context.Context, log *zap.Logger, list []steps.Step) (string, error) {
	var report strings.Builder
	report.WriteString("Steps applied:\n")

	for i, s := range list {
		c.deps.Display.Notice(fmt.Sprintf("[%d/%d] %s", i+1, len(list), s.Summary()))
		output, err := c.applyStep(ctx, s)
		fmt.Fprintf(&report, "%d. %s", i+1, s.Summary())
		if err != nil {
			log.Warn("step failed", zap.Int("step", i+1), zap.String("summary", s.Summary()), zap.Error(err))
			fmt.Fprintf(&report, " FAILED: %v\n", err)
			if out := strings.TrimSpace(output); out != "" {
				fmt.Fprintf(&report, "Output:\n%s\n", out)
			}
			if skipped := len(list) - i - 1; skipped > 0 {
				fmt.Fprintf(&report, "%d later steps were not run.\n", skipped)
			}
			return report.String(), fmt.Errorf("step %d (%s) failed: %w", i+1, s.Summary(), err)
		}
		report.WriteString(" ok\n")
	}
	return report.String(), nil
}

func (c *Coordinator) applyStep(ctx context.Context, s steps.Step) (string, error) {
	switch s.Type {
	case steps.TypeShell:
		return c.deps.Executor.RunShell(ctx, s.Command)
	case steps.TypeFile:
		return "", c.deps.Executor.ApplyFileOp(ctx, executor.FileOp{
			Operation: s.Operation,
			Path:      s.Filename,
			Content:   s.Content,
		})
	case steps.TypeMetadata:
		key := s.Params["key"]
		if s.Operation == "DELETE" {
			return "", c.deps.Metadata.Remember(key, "")
		}
		return "", c.deps.Metadata.Remember(key, s.Params["value"])
	}
	return "", fmt.Errorf("unsupported step type %q", s.Type)
}

func tagLabel(tag string) string {
	if tag == "" {
		return "error"
	}
	return strings.ReplaceAll(tag, "_", " ") + " error"
}
