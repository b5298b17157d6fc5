package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	gops "github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

// maxTreeDepth bounds the descendant walk.
const maxTreeDepth = 16

// Controller halts, resumes and kills a process together with everything
// it spawned. Implementations must treat an already-exited process as a
// no-op rather than an error.
type Controller interface {
	Pause(p *os.Process) error
	Resume(p *os.Process) error
	TerminateTree(p *os.Process) error
}

// ExitChecker is implemented by controllers that can tell a root which has
// exited but is not yet reaped from a live one. Signals still succeed
// against such a zombie.
type ExitChecker interface {
	Exited(p *os.Process) bool
}

// TreeController signals the root through its *os.Process handle, which is
// safe against pid reuse once reaped, then walks descendants from /proc so
// helpers that left the process group are still reached. Sessions start
// the root as a group leader, so the whole group is signalled as well.
type TreeController struct {
	logger *slog.Logger
}

// NewTreeController creates the default Controller.
func NewTreeController(logger *slog.Logger) *TreeController {
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeController{logger: logger}
}

// Pause stops the root, then every descendant.
func (c *TreeController) Pause(p *os.Process) error {
	return c.signalTree(p, unix.SIGSTOP, (*gops.Process).Suspend)
}

// Resume continues the root, then every descendant.
func (c *TreeController) Resume(p *os.Process) error {
	return c.signalTree(p, unix.SIGCONT, (*gops.Process).Resume)
}

func (c *TreeController) signalTree(p *os.Process, sig unix.Signal, each func(*gops.Process) error) error {
	if p == nil {
		return nil
	}
	if err := p.Signal(sig); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return fmt.Errorf("signal %s to %d: %w", unix.SignalName(sig), p.Pid, err)
	}
	for _, d := range c.descendants(p.Pid) {
		if err := each(d); err != nil && !isGone(err) {
			c.logger.Debug("Failed to signal descendant", "pid", d.Pid, "signal", unix.SignalName(sig), "error", err)
		}
	}
	c.signalGroup(p.Pid, sig)
	return nil
}

// TerminateTree freezes the root so it cannot spawn more children, kills
// descendants deepest first, kills the root, and finally sweeps the process
// group. Called after the root was reaped it only performs the sweep, which
// removes helpers still holding the output pipe.
func (c *TreeController) TerminateTree(p *os.Process) error {
	if p == nil {
		return nil
	}

	var errs []error
	if err := p.Signal(unix.SIGSTOP); err == nil {
		for _, d := range c.descendants(p.Pid) {
			if err := d.Kill(); err != nil && !isGone(err) {
				errs = append(errs, fmt.Errorf("kill descendant %d: %w", d.Pid, err))
			}
		}
		if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill %d: %w", p.Pid, err))
		}
	} else if !errors.Is(err, os.ErrProcessDone) {
		errs = append(errs, fmt.Errorf("freeze %d: %w", p.Pid, err))
	}

	c.signalGroup(p.Pid, unix.SIGKILL)
	return errors.Join(errs...)
}

// Exited reports whether p is gone or a zombie waiting to be reaped.
func (c *TreeController) Exited(p *os.Process) bool {
	if p == nil {
		return true
	}
	proc, err := gops.NewProcess(int32(p.Pid))
	if err != nil {
		return true
	}
	status, err := proc.Status()
	if err != nil {
		return isGone(err)
	}
	return slices.Contains(status, gops.Zombie)
}

// descendants returns every live descendant of pid, deepest first.
func (c *TreeController) descendants(pid int) []*gops.Process {
	root, err := gops.NewProcess(int32(pid))
	if err != nil {
		return nil
	}

	var out []*gops.Process
	seen := map[int32]bool{root.Pid: true}
	level := []*gops.Process{root}
	for depth := 0; depth < maxTreeDepth && len(level) > 0; depth++ {
		var next []*gops.Process
		for _, proc := range level {
			children, err := proc.Children()
			if err != nil {
				if !errors.Is(err, gops.ErrorNoChildren) && !isGone(err) {
					c.logger.Debug("Failed to list children", "pid", proc.Pid, "error", err)
				}
				continue
			}
			for _, child := range children {
				if seen[child.Pid] {
					continue
				}
				seen[child.Pid] = true
				next = append(next, child)
			}
		}
		out = append(out, next...)
		level = next
	}
	slices.Reverse(out)
	return out
}

// signalGroup signals every member of the group led by pgid.
func (c *TreeController) signalGroup(pgid int, sig unix.Signal) {
	if pgid <= 1 {
		return
	}
	if err := unix.Kill(-pgid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		c.logger.Debug("Failed to signal process group", "pgid", pgid, "signal", unix.SignalName(sig), "error", err)
	}
}

func isGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) ||
		errors.Is(err, unix.ESRCH) ||
		errors.Is(err, gops.ErrorProcessNotRunning)
}
