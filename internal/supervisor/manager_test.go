package supervisor

import (
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	cerrors "github.com/turtacn/Custodia/pkg/errors"
)

func waitDone(t *testing.T, pm *ProcessManager, timeout time.Duration) int {
	t.Helper()
	select {
	case <-pm.Done():
		return pm.ExitStatus()
	case <-time.After(timeout):
		t.Fatal("Timed out waiting for child exit")
		return 0
	}
}

func TestProcessManager_GroupLeader(t *testing.T) {
	pm := New()
	handle, err := pm.Start([]string{"sleep", "10"}, nil, false)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pm.TerminateGroup(handle.Pgid)

	if handle.Pgid != handle.Pid {
		t.Errorf("Expected pgid == pid, got pid=%d pgid=%d", handle.Pid, handle.Pgid)
	}

	pgid, err := syscall.Getpgid(handle.Pid)
	if err != nil {
		t.Fatalf("Getpgid failed: %v", err)
	}
	if pgid != handle.Pid {
		t.Errorf("Child should lead its own process group, got %d", pgid)
	}
}

func TestProcessManager_ExitStatus(t *testing.T) {
	pm := New()
	if _, err := pm.Start([]string{"sh", "-c", "exit 3"}, nil, false); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if status := waitDone(t, pm, 5*time.Second); status != 3 {
		t.Errorf("Expected exit status 3, got %d", status)
	}
}

func TestProcessManager_Poll(t *testing.T) {
	pm := New()
	if _, err := pm.Start([]string{"sleep", "0.2"}, nil, false); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, done := pm.Poll(); done {
		t.Error("Poll should report running immediately after start")
	}

	waitDone(t, pm, 5*time.Second)
	status, done := pm.Poll()
	if !done {
		t.Fatal("Poll should report done after exit")
	}
	if status != 0 {
		t.Errorf("Expected status 0, got %d", status)
	}
}

func TestProcessManager_EmptyCommand(t *testing.T) {
	pm := New()
	if _, err := pm.Start(nil, nil, false); err == nil {
		t.Error("Start(nil) should return an error")
	}
}

func TestProcessManager_LaunchFailure(t *testing.T) {
	pm := New()
	_, err := pm.Start([]string{"/nonexistent/custodia-no-such-binary"}, nil, true)
	if err == nil {
		t.Fatal("Expected launch failure")
	}
	if cerrors.CodeOf(err) != cerrors.ErrCodeLaunchFailed {
		t.Errorf("Expected ErrCodeLaunchFailed, got %d", cerrors.CodeOf(err))
	}

	// Artifacts must not leak when the launch never happened.
	outPath, errPath := pm.ArtifactPaths()
	if outPath != "" || errPath != "" {
		t.Errorf("Artifact paths should be cleared, got %q %q", outPath, errPath)
	}
}

func TestProcessManager_Capture(t *testing.T) {
	pm := New()
	if _, err := pm.Start([]string{"sh", "-c", "echo captured-out; echo captured-err >&2"}, nil, true); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, pm, 5*time.Second)

	outPath, errPath := pm.ArtifactPaths()
	if outPath == "" || errPath == "" {
		t.Fatal("Expected artifact paths with capture enabled")
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "captured-out") {
		t.Errorf("stdout artifact missing content, got %q", out)
	}
	errOut, err := os.ReadFile(errPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(errOut), "captured-err") {
		t.Errorf("stderr artifact missing content, got %q", errOut)
	}

	pm.Cleanup()
	if _, err := os.Stat(outPath); !os.IsNotExist(err) {
		t.Errorf("stdout artifact should be removed, stat err %v", err)
	}
	if _, err := os.Stat(errPath); !os.IsNotExist(err) {
		t.Errorf("stderr artifact should be removed, stat err %v", err)
	}

	// Second call is a no-op.
	pm.Cleanup()
}

func TestProcessManager_NoCaptureNoArtifacts(t *testing.T) {
	pm := New()
	if _, err := pm.Start([]string{"true"}, nil, false); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, pm, 5*time.Second)

	outPath, errPath := pm.ArtifactPaths()
	if outPath != "" || errPath != "" {
		t.Errorf("No artifacts expected without capture, got %q %q", outPath, errPath)
	}
	pm.Cleanup()
}

func TestProcessManager_TerminateGroup_Graceful(t *testing.T) {
	pm := New()
	handle, err := pm.Start([]string{"sleep", "100"}, nil, false)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	start := time.Now()
	pm.TerminateGroup(handle.Pgid)
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("SIGTERM should end sleep within one grace period, took %s", elapsed)
	}

	status := waitDone(t, pm, time.Second)
	if status != 128+int(syscall.SIGTERM) {
		t.Errorf("Expected 128+SIGTERM, got %d", status)
	}
}

func TestProcessManager_TerminateGroup_Escalates(t *testing.T) {
	pm := New()
	pm.grace = 200 * time.Millisecond

	// Child ignores SIGTERM, forcing the SIGKILL step.
	handle, err := pm.Start([]string{"sh", "-c", `trap "" TERM; sleep 100`}, nil, false)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Give the shell a moment to install the trap.
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	pm.TerminateGroup(handle.Pgid)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Escalation should finish within two grace periods, took %s", elapsed)
	}

	status := waitDone(t, pm, 2*time.Second)
	if status != 128+int(syscall.SIGKILL) {
		t.Errorf("Expected 128+SIGKILL, got %d", status)
	}

	// The whole group must be gone.
	if err := syscall.Kill(-handle.Pgid, syscall.Signal(0)); err != syscall.ESRCH {
		t.Errorf("Expected ESRCH probing dead group, got %v", err)
	}
}

func TestProcessManager_TerminateGroup_RacedExit(t *testing.T) {
	pm := New()
	handle, err := pm.Start([]string{"true"}, nil, false)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, pm, 5*time.Second)

	// The group is already gone; escalation must treat that as success.
	start := time.Now()
	pm.TerminateGroup(handle.Pgid)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Terminating a dead group should be instant, took %s", elapsed)
	}
}
