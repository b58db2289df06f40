package orchestrator

import (
	"strconv"
	"strings"

	"github.com/turtacn/Custodia/internal/monitor"
	"github.com/turtacn/Custodia/pkg/consts"
	"github.com/turtacn/Custodia/pkg/logger"
)

// BuildRecoveryCommand substitutes the operator template tokens with the
// run's outcome. Tokens are exact and case-sensitive: {EXIT} is the
// decimal exit status, {TIMEOUT} is 1 when the run timed out and 0
// otherwise, {STDOUT} and {STDERR} are the captured artifact paths. This
// is the single place an untrusted-format string is interpreted; the
// result is handed to the shell as-is.
func BuildRecoveryCommand(template string, res *RunResult) string {
	timedOut := "0"
	if res.TimedOut() {
		timedOut = "1"
	}
	r := strings.NewReplacer(
		"{EXIT}", strconv.Itoa(res.Status),
		"{TIMEOUT}", timedOut,
		"{STDOUT}", res.StdoutPath,
		"{STDERR}", res.StderrPath,
	)
	return r.Replace(template)
}

// shouldRecover reports whether status is in the configured trigger set.
// The timeout sentinel matches like any other code.
func (e *Engine) shouldRecover(status int) bool {
	for _, c := range e.opts.TriggerCodes {
		if c == status {
			return true
		}
	}
	return false
}

// dispatchRecovery runs the substituted command line through a narrowed
// engine with a hard timeout. The parent run's status is final by now;
// whatever happens here is only logged and counted.
func (e *Engine) dispatchRecovery(res *RunResult) {
	cmdline := BuildRecoveryCommand(e.opts.ErrorExec, res)
	logger.Log.Warn("Recovery: dispatching error-exec", "cmd", cmdline, "status", res.Status)

	nested := NewRecoveryEngine(consts.RecoveryTimeout)
	recRes, err := nested.Run([]string{"/bin/sh", "-c", cmdline})

	switch {
	case recRes.TimedOut():
		monitor.RecoveryRunsTotal.WithLabelValues("timed_out").Inc()
		logger.Log.Error("Recovery: error-exec timed out", "err", err)
	case err != nil || recRes.Status != 0:
		monitor.RecoveryRunsTotal.WithLabelValues("failed").Inc()
		logger.Log.Error("Recovery: error-exec failed", "status", recRes.Status, "err", err)
	default:
		monitor.RecoveryRunsTotal.WithLabelValues("ok").Inc()
		logger.Log.Info("Recovery: error-exec completed", "status", recRes.Status)
	}
}
