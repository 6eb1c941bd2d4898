// Package supervisor runs the dev server, watches its output for failures
// and hands them, along with operator instructions, to a repairer.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/silver2dream/devmend/internal/classify"
	"github.com/silver2dream/devmend/internal/repair"
)

// ErrRetriesExhausted is returned by Run when the child could not be kept
// running within MaxRetries restarts.
var ErrRetriesExhausted = errors.New("restart retries exhausted")

var errStopped = errors.New("supervisor stopped")

// Phase is the lifecycle state of the supervisor.
type Phase int32

const (
	PhaseStopped Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseRestarting
)

func (p Phase) String() string {
	switch p {
	case PhaseStopped:
		return "stopped"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseRestarting:
		return "restarting"
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

// Config controls the supervised process.
type Config struct {
	Command       string        // start command, used when no resolver is set
	Dir           string        // working directory of the child
	Env           []string      // child environment; nil inherits
	IdleThreshold time.Duration // silence before the idle notice; zero disables it
	MaxRetries    int
	GracePeriod   time.Duration // pause between stopping and respawning
	KillTimeout   time.Duration // wait after SIGTERM before SIGKILL
	PollInterval  time.Duration
	StableAfter   time.Duration // uptime after which the retry count resets
	UsePTY        bool
	WatchLogs     []string // extra log files to tail
	ContextLines  int      // size of the trailing context
}

// DefaultConfig returns the default supervisor settings.
func DefaultConfig() Config {
	return Config{
		IdleThreshold: 5 * time.Second,
		MaxRetries:    3,
		GracePeriod:   time.Second,
		KillTimeout:   10 * time.Second,
		PollInterval:  100 * time.Millisecond,
		StableAfter:   10 * time.Second,
		UsePTY:        true,
		ContextLines:  classify.DefaultContextLines,
	}
}

// Repairer handles a repair episode.
type Repairer interface {
	Handle(ctx context.Context, trigger repair.Trigger) repair.Result
}

// Output is where the supervisor echoes child output and its own notices.
type Output interface {
	Raw(p []byte)
	Notice(msg string)
	Info(msg string)
	Success(msg string)
	Warning(msg string)
	Error(msg string)
}

// InputSource delivers operator lines. The channel is closed when input
// ends.
type InputSource interface {
	Lines() <-chan string
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClassifier replaces the default error classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(s *Supervisor) { s.classifier = c }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// WithOutput sets the operator-facing output.
func WithOutput(o Output) Option {
	return func(s *Supervisor) { s.out = o }
}

// WithInput enables the operator input loop.
func WithInput(in InputSource) Option {
	return func(s *Supervisor) { s.input = in }
}

// WithCommandResolver makes every spawn ask resolve for the start command,
// so a changed configuration takes effect on the next restart.
func WithCommandResolver(resolve func() (string, error)) Option {
	return func(s *Supervisor) { s.resolve = resolve }
}

// Supervisor keeps one child process running.
//
// The control goroutine owns the child, the trailing context and the idle
// state. processing is the single guard between automatic repairs and
// operator instructions; restartRequested is written by any goroutine and
// consumed only by the control goroutine.
type Supervisor struct {
	cfg        Config
	classifier *classify.Classifier
	log        *zap.Logger
	out        Output
	input      InputSource
	resolve    func() (string, error)
	start      func(childSpec) (child, error)

	phase            atomic.Int32
	processing       atomic.Bool
	restartRequested atomic.Bool
	retryCount       atomic.Int32
	running          atomic.Bool

	mu            sync.Mutex
	repairer      Repairer
	current       *proc
	restartReason string

	trailMu sync.Mutex
	trail   *classify.TrailingContext

	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Supervisor. Zero durations in cfg take their defaults.
func New(cfg Config, opts ...Option) *Supervisor {
	def := DefaultConfig()
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = def.KillTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = def.StableAfter
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.ContextLines <= 0 {
		cfg.ContextLines = def.ContextLines
	}

	s := &Supervisor{
		cfg:    cfg,
		start:  startChild,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.classifier == nil {
		s.classifier = classify.New()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("supervisor")
	if s.out == nil {
		s.out = discardOutput{}
	}
	if s.resolve == nil {
		command := cfg.Command
		s.resolve = func() (string, error) {
			if strings.TrimSpace(command) == "" {
				return "", errors.New("no start command configured")
			}
			return command, nil
		}
	}
	s.trail = classify.NewTrailingContext(cfg.ContextLines)
	return s
}

// Attach sets the repairer used for classified errors and instructions.
func (s *Supervisor) Attach(r Repairer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repairer = r
}

func (s *Supervisor) getRepairer() Repairer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repairer
}

// State returns the current phase.
func (s *Supervisor) State() Phase {
	return Phase(s.phase.Load())
}

func (s *Supervisor) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

// RetryCount returns the number of restarts since the child was last
// considered healthy.
func (s *Supervisor) RetryCount() int {
	return int(s.retryCount.Load())
}

// Processing reports whether a repair or instruction is in flight.
func (s *Supervisor) Processing() bool {
	return s.processing.Load()
}

// Pid returns the pid of the current child, or 0.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return s.current.child.Pid()
}

// Stop ends Run. It is safe to call more than once and from any goroutine.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Kill forcefully ends the current child's process tree.
func (s *Supervisor) Kill() {
	s.mu.Lock()
	p := s.current
	s.mu.Unlock()
	if p != nil {
		p.child.Kill()
	}
}

// RequestRestart asks for a restart. While a repair or instruction is in
// flight the restart waits until it completes.
func (s *Supervisor) RequestRestart(reason string) {
	s.mu.Lock()
	s.restartReason = reason
	s.mu.Unlock()
	s.restartRequested.Store(true)
	if s.processing.Load() {
		s.log.Debug("restart deferred until current work completes", zap.String("reason", reason))
	}
	s.poke()
}

func (s *Supervisor) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run starts the child and supervises it until Stop, ctx cancellation or
// retry exhaustion. Every goroutine it starts has returned when Run does.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("supervisor is already running")
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	logLines := make(chan LogLine, 64)
	for _, path := range s.cfg.WatchLogs {
		tailer := NewLogTailer(path, logLines, s.cfg.PollInterval)
		g.Go(func() error { return tailer.Run(gctx) })
	}

	if s.input != nil {
		g.Go(func() error { return s.inputLoop(gctx, g) })
	}

	g.Go(func() error {
		defer cancel()
		return s.controlLoop(gctx, g, logLines)
	})

	err := g.Wait()
	s.setPhase(PhaseStopped)
	return err
}

// controlLoop owns the child for its whole life.
func (s *Supervisor) controlLoop(ctx context.Context, g *errgroup.Group, logLines <-chan LogLine) error {
	defer s.shutdown()

	s.setPhase(PhaseStarting)
	if err := s.spawnWithRetry(ctx, false); err != nil {
		return stopResult(err)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var (
		p          = s.proc()
		chunks     = p.chunks
		lines      lineBuffer
		idle       = newIdleTracker(s.cfg.IdleThreshold, time.Now())
		exitedAt   time.Time
		exitLogged bool
	)

	reset := func() {
		p = s.proc()
		chunks = p.chunks
		lines = lineBuffer{}
		idle.Output(time.Now())
		exitedAt = time.Time{}
		exitLogged = false
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.stopCh:
			return nil

		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				if line, ok := lines.Flush(); ok {
					s.handleLine(ctx, g, "", line)
				}
				continue
			}
			s.out.Raw(chunk)
			idle.Output(time.Now())
			for _, line := range lines.Feed(chunk) {
				s.handleLine(ctx, g, "", line)
			}

		case l := <-logLines:
			s.out.Info(fmt.Sprintf("[%s] %s", l.Source, l.Text))
			s.handleLine(ctx, g, l.Source, l.Text)

		case <-s.wake:

		case <-ticker.C:
		}

		now := time.Now()

		if !s.processing.Load() && idle.Check(now) {
			s.out.Notice(fmt.Sprintf("No output for %s. Type an instruction, or 'help' for commands.", s.cfg.IdleThreshold))
		}

		if s.RetryCount() > 0 && !p.hasExited() && now.Sub(p.started) >= s.cfg.StableAfter {
			s.log.Debug("child stable, retry count reset", zap.Int("retries", s.RetryCount()))
			s.retryCount.Store(0)
		}

		if s.restartRequested.Load() && !s.processing.Load() {
			s.restartRequested.Store(false)
			if err := s.restart(ctx, s.takeRestartReason(), false); err != nil {
				return stopResult(err)
			}
			reset()
			continue
		}

		if p.hasExited() {
			if exitedAt.IsZero() {
				exitedAt = now
			}
			if !exitLogged {
				s.log.Info("child exited", zap.Int("pid", p.child.Pid()), zap.Error(p.err))
				exitLogged = true
			}
			// Let trailing output reach the classifier first; a repair it
			// starts owns the next restart.
			drained := chunks == nil || now.Sub(exitedAt) >= s.cfg.KillTimeout
			if drained && !s.processing.Load() {
				if err := s.restart(ctx, exitReason(p.err), true); err != nil {
					return stopResult(err)
				}
				reset()
			}
		}
	}
}

func stopResult(err error) error {
	if errors.Is(err, errStopped) {
		return nil
	}
	return err
}

func exitReason(err error) string {
	if err == nil {
		return "process exited"
	}
	return fmt.Sprintf("process exited (%v)", err)
}

func (s *Supervisor) takeRestartReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason := s.restartReason
	s.restartReason = ""
	if reason == "" {
		reason = "restart requested"
	}
	return reason
}

func (s *Supervisor) proc() *proc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// handleLine records a line in the trailing context and, when nothing is
// in flight, classifies it and starts a repair on a hit.
func (s *Supervisor) handleLine(ctx context.Context, g *errgroup.Group, source, line string) {
	s.trailMu.Lock()
	s.trail.Add(line)
	s.trailMu.Unlock()

	if s.processing.Load() {
		return
	}
	tag, ok := s.classifier.Classify(line)
	if !ok {
		return
	}

	rep := s.getRepairer()
	if rep == nil {
		s.log.Warn("error detected but no repairer attached", zap.String("tag", tag), zap.String("line", line))
		return
	}
	if !s.processing.CompareAndSwap(false, true) {
		return
	}

	s.trailMu.Lock()
	trailing := s.trail.String()
	s.trail.Clear()
	s.trailMu.Unlock()

	s.log.Info("error detected", zap.String("tag", tag), zap.String("source", source), zap.String("line", line))
	s.out.Warning(fmt.Sprintf("Detected %s: %s", strings.ReplaceAll(tag, "_", " "), strings.TrimSpace(line)))

	trigger := repair.Trigger{
		Kind:    repair.TriggerError,
		Text:    line,
		Tag:     tag,
		Context: trailing,
	}
	g.Go(func() error {
		defer s.finishProcessing()
		res := rep.Handle(ctx, trigger)
		s.log.Info("repair finished",
			zap.String("episode", res.EpisodeID),
			zap.Bool("success", res.Success),
			zap.Int("attempts", res.Attempts),
			zap.Error(res.Err))
		return nil
	})
}

func (s *Supervisor) finishProcessing() {
	s.processing.Store(false)
	s.poke()
}

// inputLoop reads operator lines until input ends or ctx is done. It never
// waits on a repair, so exit and status work while a fix is in progress.
func (s *Supervisor) inputLoop(ctx context.Context, g *errgroup.Group) error {
	lines := s.input.Lines()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				s.log.Debug("operator input closed")
				return nil
			}
			s.dispatch(ctx, g, ParseCommand(line))
		}
	}
}

func (s *Supervisor) dispatch(ctx context.Context, g *errgroup.Group, cmd Command) {
	switch cmd.Kind {
	case CmdNone:
	case CmdExit:
		s.out.Notice("Stopping.")
		s.Stop()
	case CmdRestart:
		s.RequestRestart("requested by operator")
	case CmdHelp:
		s.out.Info(helpText)
	case CmdStatus:
		s.out.Info(s.status())
	case CmdInstruction:
		s.instruct(ctx, g, cmd)
	}
}

func (s *Supervisor) status() string {
	pid := "-"
	if n := s.Pid(); n > 0 {
		pid = fmt.Sprintf("%d", n)
	}
	busy := "idle"
	if s.Processing() {
		busy = "working on a fix"
	}
	return fmt.Sprintf("state: %s, pid: %s, restarts: %d/%d, %s",
		s.State(), pid, s.RetryCount(), s.cfg.MaxRetries, busy)
}

// instruct hands an operator instruction to the repairer on its own
// goroutine. Input arriving meanwhile is rejected like during an error fix.
func (s *Supervisor) instruct(ctx context.Context, g *errgroup.Group, cmd Command) {
	if cmd.Text == "" && len(cmd.Images) == 0 {
		return
	}
	for _, img := range cmd.Images {
		if _, err := os.Stat(img); err != nil {
			s.out.Error(fmt.Sprintf("Cannot read image %s: %v", img, err))
			return
		}
	}

	rep := s.getRepairer()
	if rep == nil {
		s.out.Warning("No repair backend attached; instruction ignored.")
		return
	}
	if !s.processing.CompareAndSwap(false, true) {
		s.out.Notice("Busy with a fix. Try again when it completes.")
		return
	}

	s.trailMu.Lock()
	trailing := s.trail.String()
	s.trailMu.Unlock()

	s.log.Info("operator instruction", zap.String("text", cmd.Text), zap.Strings("images", cmd.Images))
	trigger := repair.Trigger{
		Kind:    repair.TriggerInstruction,
		Text:    cmd.Text,
		Context: trailing,
		Images:  cmd.Images,
	}
	g.Go(func() error {
		defer s.finishProcessing()
		res := rep.Handle(ctx, trigger)
		s.log.Info("instruction finished",
			zap.String("episode", res.EpisodeID),
			zap.Bool("success", res.Success),
			zap.Error(res.Err))
		return nil
	})
}

// spawnWithRetry starts the child, retrying failed spawns up to MaxRetries.
// A successful spawn resets the retry count when resetOnSuccess is set.
func (s *Supervisor) spawnWithRetry(ctx context.Context, resetOnSuccess bool) error {
	for {
		err := s.spawn()
		if err == nil {
			if resetOnSuccess {
				s.retryCount.Store(0)
			}
			s.setPhase(PhaseRunning)
			return nil
		}

		n := int(s.retryCount.Add(1))
		s.log.Error("failed to start process", zap.Error(err), zap.Int("retry", n))
		s.out.Error(fmt.Sprintf("Failed to start: %v", err))
		if n > s.cfg.MaxRetries {
			s.out.Error(fmt.Sprintf("Giving up after %d attempts.", n))
			return ErrRetriesExhausted
		}
		if err := s.sleep(ctx, s.cfg.GracePeriod); err != nil {
			return err
		}
	}
}

func (s *Supervisor) spawn() error {
	command, err := s.resolve()
	if err != nil {
		return err
	}

	c, err := s.start(childSpec{
		Command: command,
		Dir:     s.cfg.Dir,
		Env:     s.cfg.Env,
		UsePTY:  s.cfg.UsePTY,
	})
	if err != nil {
		return fmt.Errorf("failed to start %q: %w", command, err)
	}
	if s.cfg.UsePTY && c.Fallback() {
		s.log.Warn("PTY unavailable, using pipes")
	}

	p := newProc(c)
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()

	s.log.Info("process started", zap.String("command", command), zap.Int("pid", c.Pid()), zap.Bool("pty", !c.Fallback()))
	s.out.Notice(fmt.Sprintf("Started: %s (pid %d)", command, c.Pid()))
	return nil
}

// restart stops the current child and spawns a new one. A crash counts
// against MaxRetries; a requested restart resets the count once the new
// child is up.
func (s *Supervisor) restart(ctx context.Context, reason string, crashed bool) error {
	s.setPhase(PhaseRestarting)
	s.log.Info("restarting", zap.String("reason", reason), zap.Bool("crashed", crashed))
	s.out.Notice(fmt.Sprintf("Restarting: %s", reason))

	s.terminate(s.proc())

	if crashed {
		n := int(s.retryCount.Add(1))
		if n > s.cfg.MaxRetries {
			s.out.Error(fmt.Sprintf("Process keeps exiting; giving up after %d restarts.", n-1))
			return ErrRetriesExhausted
		}
	}

	if err := s.sleep(ctx, s.cfg.GracePeriod); err != nil {
		return err
	}
	return s.spawnWithRetry(ctx, !crashed)
}

// terminate stops p's process tree: SIGTERM, then SIGKILL after
// KillTimeout. Output produced meanwhile is still echoed.
func (s *Supervisor) terminate(p *proc) {
	if p == nil {
		return
	}

	if !p.hasExited() {
		if err := p.child.Terminate(); err != nil {
			s.log.Debug("terminate failed", zap.Error(err))
		}
		timer := time.NewTimer(s.cfg.KillTimeout)
		chunks := p.chunks
	wait:
		for {
			select {
			case <-p.exited:
				break wait
			case chunk, ok := <-chunks:
				if !ok {
					chunks = nil
					continue
				}
				s.out.Raw(chunk)
			case <-timer.C:
				s.log.Warn("process ignored SIGTERM, killing", zap.Int("pid", p.child.Pid()))
				p.child.Kill()
				<-p.exited
				break wait
			}
		}
		timer.Stop()
	} else {
		// Background jobs of the exited shell share its process group.
		p.child.Kill()
	}

	p.discard()
	p.child.Close()

	// The reader exits once the closed output returns an error.
	drain := time.NewTimer(s.cfg.KillTimeout)
	defer drain.Stop()
	for {
		select {
		case _, ok := <-p.chunks:
			if !ok {
				return
			}
		case <-drain.C:
			s.log.Warn("output reader did not finish", zap.Int("pid", p.child.Pid()))
			return
		}
	}
}

// shutdown stops the current child when the control loop ends.
func (s *Supervisor) shutdown() {
	p := s.proc()
	s.terminate(p)
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errStopped
	case <-s.stopCh:
		return errStopped
	}
}

type discardOutput struct{}

func (discardOutput) Raw([]byte)     {}
func (discardOutput) Notice(string)  {}
func (discardOutput) Info(string)    {}
func (discardOutput) Success(string) {}
func (discardOutput) Warning(string) {}
func (discardOutput) Error(string)   {}
