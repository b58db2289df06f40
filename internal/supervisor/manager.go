package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/turtacn/Custodia/internal/monitor"
	"github.com/turtacn/Custodia/pkg/consts"
	cerrors "github.com/turtacn/Custodia/pkg/errors"
	"github.com/turtacn/Custodia/pkg/logger"
)

// Handle identifies the running child process. It is only meaningful while
// the child is live; once the exit status is collected it is stale.
type Handle struct {
	Pid       int
	Pgid      int
	StartedAt time.Time
}

// ProcessManager handles the lifecycle of a single supervised child.
// It launches the child as the leader of its own process group, collects
// the exit status asynchronously, and performs group-wide termination
// escalation. One ProcessManager tracks exactly one child.
type ProcessManager struct {
	cmd    *exec.Cmd
	handle *Handle

	stdout     *os.File
	stderr     *os.File
	stdoutPath string
	stderrPath string

	done   chan struct{} // closed once the exit status is collected
	status int

	grace time.Duration
}

// New creates a new ProcessManager instance.
func New() *ProcessManager {
	return &ProcessManager{
		done:  make(chan struct{}),
		grace: consts.GracePeriod,
	}
}

// Start launches the child described by argv (argv[0] is the executable)
// in a fresh process group whose id equals the child's pid. When capture
// is true, stdout and stderr are redirected to unique temporary files so
// a later recovery command can inspect them; otherwise the child inherits
// the supervisor's streams.
func (pm *ProcessManager) Start(argv []string, env []string, capture bool) (*Handle, error) {
	if len(argv) == 0 {
		return nil, cerrors.New(cerrors.ErrCodeConfigInvalid, "Start", "empty command", nil)
	}

	pm.cmd = exec.Command(argv[0], argv[1:]...)
	pm.cmd.Env = append(os.Environ(), env...)
	pm.cmd.Stdout = os.Stdout
	pm.cmd.Stderr = os.Stderr
	setSysProcAttr(pm.cmd)

	if capture {
		if err := pm.openArtifacts(); err != nil {
			return nil, err
		}
		pm.cmd.Stdout = pm.stdout
		pm.cmd.Stderr = pm.stderr
	}

	logger.Log.Info("Supervisor: launching child", "cmd", argv, "capture", capture)
	if err := pm.cmd.Start(); err != nil {
		if pm.stdout != nil {
			pm.stdout.Close()
		}
		if pm.stderr != nil {
			pm.stderr.Close()
		}
		pm.Cleanup()
		return nil, cerrors.New(cerrors.ErrCodeLaunchFailed, "Start", "starting child process", err)
	}

	pm.handle = &Handle{
		Pid:       pm.cmd.Process.Pid,
		Pgid:      pm.cmd.Process.Pid,
		StartedAt: time.Now(),
	}

	go func() {
		pm.status = exitStatusOf(pm.cmd.Wait())
		if pm.stdout != nil {
			pm.stdout.Close()
		}
		if pm.stderr != nil {
			pm.stderr.Close()
		}
		close(pm.done)
	}()

	return pm.handle, nil
}

func (pm *ProcessManager) openArtifacts() error {
	out, err := os.CreateTemp("", "custodia-stdout-*")
	if err != nil {
		return cerrors.New(cerrors.ErrCodeLaunchFailed, "Start", "creating stdout artifact", err)
	}
	errf, err := os.CreateTemp("", "custodia-stderr-*")
	if err != nil {
		out.Close()
		os.Remove(out.Name())
		return cerrors.New(cerrors.ErrCodeLaunchFailed, "Start", "creating stderr artifact", err)
	}
	pm.stdout, pm.stderr = out, errf
	pm.stdoutPath, pm.stderrPath = out.Name(), errf.Name()
	return nil
}

// Poll reports the exit status without blocking. The bool is false while
// the child is still running.
func (pm *ProcessManager) Poll() (int, bool) {
	select {
	case <-pm.done:
		return pm.status, true
	default:
		return 0, false
	}
}

// Done is closed once the child's exit status has been collected. The
// escalator waits on it instead of a blind sleep.
func (pm *ProcessManager) Done() <-chan struct{} {
	return pm.done
}

// ExitStatus is only valid after Done is closed.
func (pm *ProcessManager) ExitStatus() int {
	return pm.status
}

// ArtifactPaths returns the captured stdout and stderr file paths. Both
// are empty when capture was not requested.
func (pm *ProcessManager) ArtifactPaths() (string, string) {
	return pm.stdoutPath, pm.stderrPath
}

// TerminateGroup escalates termination of the whole process group: a
// graceful SIGTERM, one grace period, then SIGKILL and a final grace
// period. A group that is already gone counts as success. Delivery errors
// are logged and swallowed; escalation is best-effort and never fails the
// run.
func (pm *ProcessManager) TerminateGroup(pgid int) {
	logger.Log.Warn("Supervisor: sending SIGTERM to process group", "pgid", pgid)
	if pm.signalAndWait(pgid, syscall.SIGTERM) {
		return
	}

	logger.Log.Warn("Supervisor: group still alive, sending SIGKILL", "pgid", pgid)
	pm.signalAndWait(pgid, syscall.SIGKILL)
}

// signalAndWait delivers sig to the group and waits up to one grace period
// for the child to be reaped. It returns true once the group is gone.
// A failed send other than ESRCH skips the grace wait so the next
// escalation step is not delayed by a signal that never arrived.
func (pm *ProcessManager) signalAndWait(pgid int, sig syscall.Signal) bool {
	if err := signalGroup(pgid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			// Raced exit: the group disappeared before the signal landed.
			return true
		}
		logger.Log.Error("Supervisor: signal delivery failed",
			"err", cerrors.New(cerrors.ErrCodeSignalDelivery, "TerminateGroup", "sending "+sig.String(), err),
			"pgid", pgid)
		return false
	}
	monitor.EscalationsTotal.WithLabelValues(sig.String()).Inc()

	select {
	case <-pm.done:
		return true
	case <-time.After(pm.grace):
		return false
	}
}

// Cleanup removes the captured artifact files. It is idempotent: a second
// call, or a call when capture was never configured, is a no-op.
func (pm *ProcessManager) Cleanup() {
	if pm.stdoutPath != "" {
		if err := os.Remove(pm.stdoutPath); err != nil && !os.IsNotExist(err) {
			logger.Log.Warn("Supervisor: removing stdout artifact", "path", pm.stdoutPath, "err", err)
		}
		pm.stdoutPath = ""
	}
	if pm.stderrPath != "" {
		if err := os.Remove(pm.stderrPath); err != nil && !os.IsNotExist(err) {
			logger.Log.Warn("Supervisor: removing stderr artifact", "path", pm.stderrPath, "err", err)
		}
		pm.stderrPath = ""
	}
}
