//go:build unix

package supervisor

import (
	"errors"
	"os/exec"
	"syscall"
)

// setSysProcAttr makes the child the leader of a new process group so a
// group-wide signal reaches any descendants it spawns.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup delivers sig to every member of the process group.
func signalGroup(pgid int, sig syscall.Signal) error {
	return syscall.Kill(-pgid, sig)
}

// exitStatusOf decodes the result of exec.Cmd.Wait into a shell-style exit
// status: the child's own code, or 128+signal when a signal killed it.
func exitStatusOf(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return 128 + int(ws.Signal())
			}
			return ws.ExitStatus()
		}
		return ee.ExitCode()
	}
	// Wait itself failed; there is no status to report.
	return -1
}
