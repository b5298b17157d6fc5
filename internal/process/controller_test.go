package process

import (
	"os/exec"
	"syscall"
	"testing"
	"time"
)

func startGroupLeader(t *testing.T, script string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	})
	return cmd
}

func TestTreeControllerExitedProcessIsNoop(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	c := NewTreeController(testLogger())
	if err := c.Pause(cmd.Process); err != nil {
		t.Errorf("Pause() error = %v", err)
	}
	if err := c.Resume(cmd.Process); err != nil {
		t.Errorf("Resume() error = %v", err)
	}
	if err := c.TerminateTree(cmd.Process); err != nil {
		t.Errorf("TerminateTree() error = %v", err)
	}
	if err := c.TerminateTree(nil); err != nil {
		t.Errorf("TerminateTree(nil) error = %v", err)
	}
}

func TestTreeControllerPauseResumeTree(t *testing.T) {
	cmd := startGroupLeader(t, "sleep 30 & wait")
	c := NewTreeController(testLogger())

	var children []int
	waitFor(t, 2*time.Second, func() bool {
		children = children[:0]
		for _, d := range c.descendants(cmd.Process.Pid) {
			children = append(children, int(d.Pid))
		}
		return len(children) == 1
	})

	if err := c.Pause(cmd.Process); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return procState(cmd.Process.Pid) == "T" && procState(children[0]) == "T"
	})

	if err := c.Resume(cmd.Process); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return procState(cmd.Process.Pid) != "T" && procState(children[0]) != "T"
	})
}

func TestTreeControllerTerminateTree(t *testing.T) {
	cmd := startGroupLeader(t, "sleep 30 & sleep 30 & wait")
	c := NewTreeController(testLogger())

	var children []int
	waitFor(t, 2*time.Second, func() bool {
		children = children[:0]
		for _, d := range c.descendants(cmd.Process.Pid) {
			children = append(children, int(d.Pid))
		}
		return len(children) == 2
	})

	if err := c.TerminateTree(cmd.Process); err != nil {
		t.Fatalf("TerminateTree() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err == nil {
			t.Error("Wait() error = nil, want signal exit")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("root not reaped after TerminateTree")
	}

	for _, pid := range children {
		waitFor(t, 2*time.Second, func() bool {
			st := procState(pid)
			return st == "" || st == "Z" || st == "X"
		})
	}
}

func TestTreeControllerExitedDetectsZombie(t *testing.T) {
	c := NewTreeController(testLogger())

	live := startGroupLeader(t, "sleep 30")
	if c.Exited(live.Process) {
		t.Error("Exited() = true for a running process")
	}

	cmd := exec.Command("sh", "-c", "exit 0")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Not reaped yet, so the pid stays a zombie until Wait.
	waitFor(t, 2*time.Second, func() bool { return c.Exited(cmd.Process) })
	if err := c.Pause(cmd.Process); err != nil {
		t.Errorf("Pause() on zombie error = %v", err)
	}
	if err := cmd.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !c.Exited(cmd.Process) {
		t.Error("Exited() = false after reaping")
	}
	if !c.Exited(nil) {
		t.Error("Exited(nil) = false")
	}
}
