package process

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/smazurov/encodenode/internal/ffmpeg"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func shRequest(script string, duration float64) Request {
	return Request{
		Invocation: ffmpeg.Invocation{Binary: "sh", Args: []string{"-c", script}},
		Duration:   duration,
	}
}

func newTestSession(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = "test"
	}
	opts.Logger = testLogger()
	opts.EngineLogger = testLogger()
	return NewSession(opts)
}

// waitResult waits for the terminal result, failing the test on timeout.
func waitResult(t *testing.T, s *Session, timeout time.Duration) Result {
	t.Helper()
	select {
	case <-s.Done():
		return s.Wait()
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for session; state=%s", s.State())
		return Result{}
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// recordingController wraps a Controller and counts calls.
type recordingController struct {
	inner Controller

	mu        sync.Mutex
	pauses    int
	resumes   int
	terminate int
}

func (c *recordingController) Pause(p *os.Process) error {
	c.mu.Lock()
	c.pauses++
	c.mu.Unlock()
	return c.inner.Pause(p)
}

func (c *recordingController) Resume(p *os.Process) error {
	c.mu.Lock()
	c.resumes++
	c.mu.Unlock()
	return c.inner.Resume(p)
}

func (c *recordingController) TerminateTree(p *os.Process) error {
	c.mu.Lock()
	c.terminate++
	c.mu.Unlock()
	return c.inner.TerminateTree(p)
}

func (c *recordingController) Exited(p *os.Process) bool {
	checker, ok := c.inner.(ExitChecker)
	return ok && checker.Exited(p)
}

// politeController asks the root to exit instead of killing it.
type politeController struct{}

func (politeController) Pause(*os.Process) error  { return nil }
func (politeController) Resume(*os.Process) error { return nil }
func (politeController) TerminateTree(p *os.Process) error {
	if err := p.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func TestSessionCompletesWithProgress(t *testing.T) {
	var mu sync.Mutex
	var samples []ffmpeg.Progress
	var states []State

	s := newTestSession(Options{
		OnProgress: func(p ffmpeg.Progress) {
			mu.Lock()
			samples = append(samples, p)
			mu.Unlock()
		},
		OnStateChange: func(_, next State) {
			mu.Lock()
			states = append(states, next)
			mu.Unlock()
		},
	})

	script := `printf 'frame=1 fps=0 size=100KiB time=00:00:05.00 speed=2.0x\r'; printf 'frame=2 time=00:00:10.00 speed=2.5x\n'; exit 0`
	if err := s.Start(context.Background(), shRequest(script, 20)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	res := waitResult(t, s, 5*time.Second)
	if res.State != StateCompleted || res.Err != nil || res.ExitCode != 0 {
		t.Fatalf("result = %+v", res)
	}

	p := s.Progress()
	if p.Elapsed != 10 || p.Speed != 2.5 || p.SizeKiB != 100 || p.Percent != 50 {
		t.Errorf("Progress() = %+v", p)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(samples) != 2 {
		t.Errorf("progress callbacks = %d, want 2", len(samples))
	}
	want := []State{StateRunning, StateCompleted}
	if len(states) != len(want) || states[0] != want[0] || states[1] != want[1] {
		t.Errorf("states = %v, want %v", states, want)
	}
}

func TestSessionFailureCarriesExcerpt(t *testing.T) {
	s := newTestSession(Options{ExcerptLines: 3})

	script := `echo 'line one'; echo 'line two'; echo 'Error initializing output stream 0:0' >&2; echo 'frame=1 time=00:00:01.00 speed=1x'; echo 'Conversion failed!' >&2; exit 3`
	if err := s.Start(context.Background(), shRequest(script, 10)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	res := waitResult(t, s, 5*time.Second)
	if res.State != StateFailed || res.ExitCode != 3 {
		t.Fatalf("result = %+v", res)
	}

	var rf *RuntimeFailure
	if !errors.As(res.Err, &rf) {
		t.Fatalf("Err = %T %v, want *RuntimeFailure", res.Err, res.Err)
	}
	want := []string{"line two", "Error initializing output stream 0:0", "Conversion failed!"}
	if strings.Join(rf.Excerpt, "|") != strings.Join(want, "|") {
		t.Errorf("Excerpt = %q, want %q", rf.Excerpt, want)
	}
	if rf.Summary != "Conversion failed!" {
		t.Errorf("Summary = %q", rf.Summary)
	}
	if info := s.Info(); info.ExitCode != 3 || info.LastError == "" {
		t.Errorf("Info() = %+v", info)
	}
}

func TestSessionSpawnFailure(t *testing.T) {
	var exits int
	var mu sync.Mutex
	s := newTestSession(Options{OnExit: func(Result) {
		mu.Lock()
		exits++
		mu.Unlock()
	}})

	req := Request{Invocation: ffmpeg.Invocation{Binary: "/nonexistent/encodenode-engine"}}
	err := s.Start(context.Background(), req)

	var spawn *SpawnError
	if !errors.As(err, &spawn) {
		t.Fatalf("Start() error = %v, want *SpawnError", err)
	}

	res := waitResult(t, s, time.Second)
	if res.State != StateFailed || !errors.As(res.Err, &spawn) {
		t.Errorf("result = %+v", res)
	}

	if err := s.Start(context.Background(), req); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if exits != 1 {
		t.Errorf("OnExit calls = %d, want 1", exits)
	}
}

func TestSessionStopBeforeStartIsNoop(t *testing.T) {
	s := newTestSession(Options{})
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := s.Pause(); err != nil {
		t.Errorf("Pause() error = %v", err)
	}
	if err := s.Resume(); err != nil {
		t.Errorf("Resume() error = %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %s, want idle", s.State())
	}
}

func TestSessionStopCancels(t *testing.T) {
	s := newTestSession(Options{})
	script := `trap '' INT TERM; echo started; while :; do sleep 0.1; done`
	if err := s.Start(context.Background(), shRequest(script, 0)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	res := waitResult(t, s, 5*time.Second)
	if res.State != StateCancelled || !errors.Is(res.Err, ErrCancelled) {
		t.Errorf("result = %+v", res)
	}
}

func TestSessionStopIsCancelledEvenOnCleanExit(t *testing.T) {
	s := newTestSession(Options{Controller: politeController{}})
	script := `trap 'exit 0' TERM; while :; do sleep 0.1; done`
	if err := s.Start(context.Background(), shRequest(script, 0)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	res := waitResult(t, s, 5*time.Second)
	if res.State != StateCancelled {
		t.Errorf("State = %s, want cancelled", res.State)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestSessionContextCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newTestSession(Options{})
	if err := s.Start(ctx, shRequest("sleep 30", 0)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	if res := waitResult(t, s, 5*time.Second); res.State != StateCancelled {
		t.Errorf("State = %s, want cancelled", res.State)
	}
}

func TestSessionPauseResume(t *testing.T) {
	ctrl := &recordingController{inner: NewTreeController(testLogger())}
	s := newTestSession(Options{Controller: ctrl})
	if err := s.Start(context.Background(), shRequest("while :; do sleep 0.05; done", 0)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Resume while running is ignored.
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if s.State() != StatePaused {
		t.Fatalf("State() = %s, want paused", s.State())
	}
	pid := s.Info().PID
	waitFor(t, 2*time.Second, func() bool { return procState(pid) == "T" })

	if err := s.Pause(); err != nil {
		t.Fatalf("second Pause() error = %v", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if s.State() != StateRunning {
		t.Fatalf("State() = %s, want running", s.State())
	}

	// A paused tree must still die on stop.
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if res := waitResult(t, s, 5*time.Second); res.State != StateCancelled {
		t.Errorf("State = %s, want cancelled", res.State)
	}

	if err := s.Pause(); err != nil {
		t.Errorf("Pause() after exit error = %v", err)
	}
	if s.State() != StateCancelled {
		t.Errorf("State() after Pause on terminal = %s", s.State())
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.pauses != 2 || ctrl.resumes != 1 {
		t.Errorf("pauses=%d resumes=%d, want 2 and 1", ctrl.pauses, ctrl.resumes)
	}
}

func TestSessionStopKillsDescendants(t *testing.T) {
	var mu sync.Mutex
	var childPID int
	s := newTestSession(Options{OnLine: func(line string) {
		if pid, err := strconv.Atoi(line); err == nil {
			mu.Lock()
			childPID = pid
			mu.Unlock()
		}
	}})

	if err := s.Start(context.Background(), shRequest("sleep 30 & echo $!; wait", 0)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var child int
	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		child = childPID
		return child > 0
	})

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	waitResult(t, s, 5*time.Second)
	waitFor(t, 2*time.Second, func() bool {
		st := procState(child)
		return st == "" || st == "Z" || st == "X"
	})
}

func TestSessionCompletionReapsLingeringHelpers(t *testing.T) {
	s := newTestSession(Options{})
	// The background sleep inherits the output pipe and outlives the root.
	if err := s.Start(context.Background(), shRequest("sleep 30 & exit 0", 0)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res := waitResult(t, s, 5*time.Second); res.State != StateCompleted {
		t.Errorf("State = %s, want completed", res.State)
	}
}

// procState returns the one-letter state of pid from /proc, or "" when the
// process no longer exists.
func procState(pid int) string {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return ""
	}
	s := string(data)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+3 > len(s) {
		return ""
	}
	return s[i+2 : i+3]
}

func TestSessionPauseRacingExitKeepsTransitionsLegal(t *testing.T) {
	for i := range 100 {
		var (
			mu    sync.Mutex
			moves []string
		)
		s := newTestSession(Options{
			ID: "race-" + strconv.Itoa(i),
			OnStateChange: func(old, next State) {
				if !CanTransition(old, next) {
					mu.Lock()
					moves = append(moves, string(old)+" -> "+string(next))
					mu.Unlock()
				}
			},
		})
		if err := s.Start(context.Background(), shRequest("exit 0", 0)); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

	loop:
		for {
			select {
			case <-s.Done():
				break loop
			default:
			}
			if err := s.Pause(); err != nil {
				t.Fatalf("Pause() error = %v", err)
			}
			// A pause that caught the engine alive must be undone so it can exit.
			if s.State() == StatePaused {
				if err := s.Resume(); err != nil {
					t.Fatalf("Resume() error = %v", err)
				}
			}
		}

		if res := waitResult(t, s, 5*time.Second); res.State != StateCompleted {
			t.Fatalf("session %d state = %s, want completed", i, res.State)
		}
		mu.Lock()
		if len(moves) > 0 {
			t.Fatalf("session %d reported illegal transitions: %v", i, moves)
		}
		mu.Unlock()
	}
}
