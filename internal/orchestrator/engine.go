package orchestrator

import (
	"fmt"
	"os"
	"time"

	"github.com/turtacn/Custodia/internal/delay"
	"github.com/turtacn/Custodia/internal/monitor"
	"github.com/turtacn/Custodia/internal/supervisor"
	"github.com/turtacn/Custodia/pkg/consts"
	cerrors "github.com/turtacn/Custodia/pkg/errors"
	"github.com/turtacn/Custodia/pkg/fsm"
	"github.com/turtacn/Custodia/pkg/logger"
)

// Options is the immutable configuration of one engine instance.
type Options struct {
	// Timeout is the wall-clock budget for the child; 0 means unbounded.
	Timeout time.Duration
	// DelayMax is the exclusive upper bound of the random startup delay.
	DelayMax time.Duration
	// AbortSignal interrupts an in-progress startup delay. May be nil.
	AbortSignal os.Signal
	// ErrorExec is the recovery command template; empty disables recovery.
	ErrorExec string
	// TriggerCodes are the exit statuses that activate ErrorExec.
	TriggerCodes []int
	// Env is appended to the supervisor's environment for the child.
	Env []string
}

// RunResult is the outcome of a single supervised run.
type RunResult struct {
	// Status is the child's exit status, consts.ExitTimedOut when the run
	// was killed for exceeding its budget, or consts.ExitLaunchFailed when
	// the child never started.
	Status int
	// StdoutPath and StderrPath point at the captured output artifacts.
	// Both are empty unless recovery was configured, and stale once the
	// run's cleanup has released them.
	StdoutPath string
	StderrPath string
}

// TimedOut reports whether the run was killed for exceeding its budget.
func (r *RunResult) TimedOut() bool {
	return r.Status == consts.ExitTimedOut
}

// Engine supervises exactly one child process per Run: randomized delay,
// launch in an isolated process group, timeout-bounded monitoring,
// termination escalation, and recovery dispatch.
type Engine struct {
	opts    Options
	fsm     *fsm.StateMachine
	process *supervisor.ProcessManager
	gate    *delay.Gate

	// nested marks the narrowed recovery engine, which must never dispatch
	// a recovery of its own.
	nested bool

	poll time.Duration
}

// NewEngine creates an engine from opts. A nil trigger set falls back to
// the default.
func NewEngine(opts Options) *Engine {
	if opts.TriggerCodes == nil {
		opts.TriggerCodes = append([]int(nil), consts.DefaultTriggerCodes...)
	}
	e := &Engine{
		opts:    opts,
		fsm:     fsm.New(fsm.State(consts.StateIdle)),
		process: supervisor.New(),
		gate:    delay.NewGate(opts.DelayMax, opts.AbortSignal),
		poll:    consts.PollInterval,
	}
	e.setupFSM()
	return e
}

// NewRecoveryEngine creates the narrowed engine used to run the recovery
// command: a hard timeout, no startup delay, no nested recovery. The
// narrowing is what keeps the recursion finite.
func NewRecoveryEngine(timeout time.Duration) *Engine {
	e := NewEngine(Options{Timeout: timeout})
	e.nested = true
	return e
}

func (e *Engine) setupFSM() {
	add := func(from, to consts.RunState, ev string) {
		e.fsm.AddTransition(fsm.State(from), fsm.State(to), fsm.Event(ev), nil)
	}

	add(consts.StateIdle, consts.StateDelaying, "delay")
	add(consts.StateDelaying, consts.StateLaunching, "launch")
	add(consts.StateLaunching, consts.StateMonitoring, "monitor")
	add(consts.StateLaunching, consts.StateLaunchFailed, "fail")
	add(consts.StateMonitoring, consts.StateExited, "exited")
	add(consts.StateMonitoring, consts.StateTimedOut, "timeout")
	add(consts.StateTimedOut, consts.StateTerminating, "terminate")
	add(consts.StateExited, consts.StateRecovering, "recover")
	add(consts.StateTerminating, consts.StateRecovering, "recover")
	add(consts.StateExited, consts.StateCleaned, "clean")
	add(consts.StateTerminating, consts.StateCleaned, "clean")
	add(consts.StateRecovering, consts.StateCleaned, "clean")

	e.fsm.MarkTerminal(fsm.State(consts.StateCleaned))
	e.fsm.MarkTerminal(fsm.State(consts.StateLaunchFailed))
}

// State exposes the current run state.
func (e *Engine) State() consts.RunState {
	return consts.RunState(e.fsm.Current())
}

// Abort interrupts an in-progress startup delay. It has no effect once
// the child is launched; a running child can only be stopped through the
// timeout path.
func (e *Engine) Abort() {
	e.gate.Abort()
}

// Run supervises argv (argv[0] is the executable) to completion. The
// returned error is non-nil for a launch failure or a timeout; both are
// reportable-but-handled conditions already reflected in the result's
// Status.
func (e *Engine) Run(argv []string) (*RunResult, error) {
	e.fsm.Fire(fsm.Event("delay"))
	e.gate.Wait()
	e.fsm.Fire(fsm.Event("launch"))

	start := time.Now()
	capture := e.opts.ErrorExec != ""
	handle, err := e.process.Start(argv, e.opts.Env, capture)
	if err != nil {
		e.fsm.Fire(fsm.Event("fail"))
		monitor.RunsTotal.WithLabelValues("launch_failed").Inc()
		logger.Log.Error("Engine: launch failed", "cmd", argv, "err", err)
		return &RunResult{Status: consts.ExitLaunchFailed}, err
	}

	e.fsm.Fire(fsm.Event("monitor"))
	logger.Log.Info("Engine: monitoring child", "pid", handle.Pid, "timeout", e.opts.Timeout.String())

	status, timedOut := e.monitorChild()

	res := &RunResult{Status: status}
	res.StdoutPath, res.StderrPath = e.process.ArtifactPaths()

	var runErr error
	if timedOut {
		e.fsm.Fire(fsm.Event("timeout"))
		logger.Log.Warn("Engine: timeout exceeded, escalating termination",
			"pgid", handle.Pgid, "timeout", e.opts.Timeout.String())
		e.fsm.Fire(fsm.Event("terminate"))
		e.process.TerminateGroup(handle.Pgid)
		res.Status = consts.ExitTimedOut
		runErr = cerrors.New(cerrors.ErrCodeTimeoutExceeded, "Run",
			fmt.Sprintf("child exceeded %s budget", e.opts.Timeout), nil)
		monitor.RunsTotal.WithLabelValues("timed_out").Inc()
	} else {
		e.fsm.Fire(fsm.Event("exited"))
		logger.Log.Info("Engine: child exited", "status", status)
		monitor.RunsTotal.WithLabelValues("exited").Inc()
	}
	monitor.RunDuration.Observe(time.Since(start).Seconds())

	e.finish(res)
	return res, runErr
}

// monitorChild polls for completion once per tick and enforces the
// wall-clock budget. A child observed to exit in the same cycle the
// timeout expires counts as a normal exit.
func (e *Engine) monitorChild() (int, bool) {
	start := time.Now()
	for {
		if status, done := e.process.Poll(); done {
			return status, false
		}
		if e.opts.Timeout > 0 && time.Since(start) >= e.opts.Timeout {
			if status, done := e.process.Poll(); done {
				return status, false
			}
			return 0, true
		}
		time.Sleep(e.poll)
	}
}

// finish dispatches recovery when it is configured and the exit status is
// in the trigger set, then releases the artifacts. The artifacts are
// removed even when dispatch itself fails.
func (e *Engine) finish(res *RunResult) {
	defer e.process.Cleanup()

	if !e.nested && e.opts.ErrorExec != "" && e.shouldRecover(res.Status) {
		e.fsm.Fire(fsm.Event("recover"))
		e.dispatchRecovery(res)
	}
	e.fsm.Fire(fsm.Event("clean"))
}
