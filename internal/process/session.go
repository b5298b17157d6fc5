package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/encodenode/internal/ffmpeg"
	"github.com/smazurov/encodenode/internal/logging"
)

// DefaultExcerptLines is how many trailing diagnostic lines a failure keeps.
const DefaultExcerptLines = 10

// maxExcerptLineLen truncates each retained line.
const maxExcerptLineLen = 300

// Request describes one engine run.
type Request struct {
	Invocation ffmpeg.Invocation
	// Duration is the input length in seconds, used for percent complete.
	Duration float64
}

// Options configures a Session. Every callback is optional and is invoked
// without the session lock held.
type Options struct {
	ID           string
	Controller   Controller
	Logger       *slog.Logger
	EngineLogger *slog.Logger
	ExcerptLines int

	OnStateChange func(old, next State)
	OnProgress    func(p ffmpeg.Progress)
	OnLine        func(line string)
	// OnExit receives the terminal Result exactly once.
	OnExit func(res Result)
}

// Session owns one engine process from spawn to terminal state.
type Session struct {
	opts       Options
	controller Controller
	logger     *slog.Logger
	engineLog  *slog.Logger
	tail       *logging.RingBuffer[string]

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	command   string
	duration  float64
	progress  ffmpeg.Progress
	cancelled bool
	exited    bool
	startedAt time.Time
	endedAt   time.Time
	result    Result

	done chan struct{}
}

// NewSession creates an idle session.
func NewSession(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("process")
	}
	if opts.EngineLogger == nil {
		opts.EngineLogger = logging.GetLogger("ffmpeg")
	}
	if opts.Controller == nil {
		opts.Controller = NewTreeController(opts.Logger)
	}
	if opts.ExcerptLines <= 0 {
		opts.ExcerptLines = DefaultExcerptLines
	}
	logger := opts.Logger
	engineLog := opts.EngineLogger
	if opts.ID != "" {
		logger = logger.With("session", opts.ID)
		engineLog = engineLog.With("session", opts.ID)
	}
	return &Session{
		opts:       opts,
		controller: opts.Controller,
		logger:     logger,
		engineLog:  engineLog,
		tail:       logging.NewRingBuffer[string](opts.ExcerptLines),
		state:      StateIdle,
		done:       make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.opts.ID
}

// Start spawns the engine with stdout and stderr merged into one stream.
// A spawn failure is returned and also becomes the terminal Result. When
// ctx is cancelled the session is stopped.
func (s *Session) Start(ctx context.Context, req Request) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	inv := req.Invocation
	s.command = inv.String()
	s.duration = req.Duration

	pr, pw, err := os.Pipe()
	if err != nil {
		s.mu.Unlock()
		return s.spawnFailed(inv.Binary, err)
	}

	cmd := exec.Command(inv.Binary, inv.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		s.mu.Unlock()
		return s.spawnFailed(inv.Binary, err)
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()

	s.cmd = cmd
	s.state = StateRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("Encode started", "pid", cmd.Process.Pid, "command", s.command)
	s.notifyState(StateIdle, StateRunning)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		s.drain(pr)
	}()
	go s.wait(cmd, pr, drained)

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				if err := s.Stop(); err != nil {
					s.logger.Warn("Failed to stop on context cancellation", "error", err)
				}
			case <-s.done:
			}
		}()
	}
	return nil
}

func (s *Session) spawnFailed(binary string, cause error) error {
	serr := &SpawnError{Binary: binary, Cause: cause}
	s.logger.Error("Failed to start encode", "binary", binary, "error", cause)
	s.finish(Result{State: StateFailed, ExitCode: -1, Err: serr})
	return serr
}

// wait reaps the engine, lets the reader reach end of stream, then records
// the terminal state.
func (s *Session) wait(cmd *exec.Cmd, pr *os.File, drained <-chan struct{}) {
	waitErr := cmd.Wait()

	s.mu.Lock()
	s.exited = true
	cancelled := s.cancelled
	s.mu.Unlock()

	if err := s.controller.TerminateTree(cmd.Process); err != nil {
		s.logger.Debug("Post-exit sweep reported errors", "error", err)
	}
	<-drained
	_ = pr.Close()

	res := Result{ExitCode: exitCodeFromError(waitErr)}
	switch {
	case cancelled:
		res.State = StateCancelled
		res.Err = ErrCancelled
	case waitErr == nil:
		res.State = StateCompleted
	default:
		excerpt := s.tail.ReadAll()
		res.State = StateFailed
		res.Excerpt = excerpt
		res.Err = &RuntimeFailure{
			ExitCode: res.ExitCode,
			Summary:  ffmpeg.FailureLine(excerpt),
			Excerpt:  excerpt,
		}
	}

	switch res.State {
	case StateCompleted:
		s.logger.Info("Encode completed")
	case StateCancelled:
		s.logger.Info("Encode cancelled", "exit_code", res.ExitCode)
	default:
		s.logger.Error("Encode failed", "exit_code", res.ExitCode, "error", res.Err)
	}
	s.finish(res)
}

// finish records the terminal Result and fires callbacks once.
func (s *Session) finish(res Result) {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	old := s.state
	s.state = res.State
	s.endedAt = time.Now()
	if !s.startedAt.IsZero() {
		res.Elapsed = s.endedAt.Sub(s.startedAt)
	}
	s.result = res
	close(s.done)
	s.mu.Unlock()

	if !CanTransition(old, res.State) && CanTransition(old, StateRunning) {
		// The engine finished while reported as paused; it had been
		// running again by the time it exited.
		s.logger.Debug("Engine exited while paused", "state", res.State)
		s.notifyState(old, StateRunning)
		old = StateRunning
	}
	s.notifyState(old, res.State)
	if s.opts.OnExit != nil {
		s.opts.OnExit(res)
	}
}

// drain consumes the merged output until every writer is gone.
func (s *Session) drain(r io.Reader) {
	scanner := newLineScanner(r)
	for scanner.Scan() {
		line := trimLine(scanner.Text())
		if line == "" {
			continue
		}
		s.handleLine(line)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.logger.Warn("Error reading engine output", "error", err)
	}
}

func (s *Session) handleLine(line string) {
	level, msg := ffmpeg.LineLevel(line)
	s.engineLog.Log(context.Background(), level, msg)

	if s.opts.OnLine != nil {
		s.opts.OnLine(line)
	}

	sample, ok := ffmpeg.ParseProgress(line, s.totalDuration())
	if !ok {
		if !ffmpeg.IsStatusLine(line) {
			s.tail.Write(truncate(line, maxExcerptLineLen))
		}
		return
	}

	s.mu.Lock()
	s.progress = s.progress.Merge(sample)
	latest := s.progress
	s.mu.Unlock()

	if s.opts.OnProgress != nil {
		s.opts.OnProgress(latest)
	}
}

func (s *Session) totalDuration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Pause suspends the engine tree. It is a no-op unless Running.
func (s *Session) Pause() error {
	return s.toggle(StateRunning, StatePaused, s.controller.Pause)
}

// Resume continues a paused engine tree. It is a no-op unless Paused.
func (s *Session) Resume() error {
	return s.toggle(StatePaused, StateRunning, s.controller.Resume)
}

func (s *Session) toggle(from, to State, op func(*os.Process) error) error {
	s.mu.Lock()
	if s.state != from || s.exited || s.cancelled {
		s.mu.Unlock()
		return nil
	}
	if err := op(s.cmd.Process); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", to, err)
	}
	// An engine that exited before the signal landed is still signalable
	// until reaped. Leave its state alone so wait reports the exit.
	if s.rootExited() {
		s.mu.Unlock()
		s.logger.Debug("Engine already exited, ignoring state change", "to", to)
		return nil
	}
	s.state = to
	s.mu.Unlock()

	s.logger.Info("Encode state changed", "from", from, "to", to)
	s.notifyState(from, to)
	return nil
}

func (s *Session) rootExited() bool {
	checker, ok := s.controller.(ExitChecker)
	return ok && checker.Exited(s.cmd.Process)
}

// Stop kills the engine tree. The session ends Cancelled even if the
// engine manages to exit cleanly first. Stop is a no-op before Start and
// after exit.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.state.IsActive() || s.exited || s.cancelled {
		s.mu.Unlock()
		return nil
	}
	s.cancelled = true
	proc := s.cmd.Process
	err := s.controller.TerminateTree(proc)
	s.mu.Unlock()

	s.logger.Info("Encode stop requested", "pid", proc.Pid)
	if err != nil {
		return fmt.Errorf("terminate: %w", err)
	}
	return nil
}

// Done is closed once the terminal Result is available.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session is terminal and returns its Result.
func (s *Session) Wait() Result {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the latest merged progress sample.
func (s *Session) Progress() ffmpeg.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Info returns a snapshot for status reporting.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:        s.opts.ID,
		State:     s.state,
		Command:   s.command,
		Duration:  s.duration,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
		Progress:  s.progress,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		info.PID = s.cmd.Process.Pid
	}
	if s.state.IsTerminal() {
		info.ExitCode = s.result.ExitCode
		if s.result.Err != nil {
			info.LastError = s.result.Err.Error()
		}
	}
	return info
}

func (s *Session) notifyState(old, next State) {
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(old, next)
	}
}

// exitCodeFromError returns 0 for nil, the process exit code for an
// ExitError (-1 when killed by a signal), and 1 otherwise.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
