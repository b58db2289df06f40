package consts

import "time"

// RunState defines the lifecycle state of a single supervised run.
type RunState string

const (
	StateIdle         RunState = "IDLE"
	StateDelaying     RunState = "DELAYING"      // Randomized pre-launch delay
	StateLaunching    RunState = "LAUNCHING"     // Fork & Exec
	StateMonitoring   RunState = "MONITORING"    // Poll loop
	StateExited       RunState = "EXITED"        // Child exited on its own
	StateTimedOut     RunState = "TIMED_OUT"     // Wall-clock budget exceeded
	StateTerminating  RunState = "TERMINATING"   // Group signal escalation
	StateRecovering   RunState = "RECOVERING"    // error-exec dispatch
	StateCleaned      RunState = "CLEANED"       // Terminal: artifacts released
	StateLaunchFailed RunState = "LAUNCH_FAILED" // Terminal: child never started
)

// Reserved exit statuses. ExitTimedOut sits outside the valid process
// exit-code range so it can never collide with a real child status.
const (
	ExitTimedOut     = -99
	ExitLaunchFailed = 127
)

const (
	// PollInterval bounds timeout-detection latency in the monitor loop.
	PollInterval = 1 * time.Second
	// GracePeriod is how long the escalator waits after each group signal.
	GracePeriod = 1 * time.Second
	// RecoveryTimeout is the hard budget for the error-exec command.
	RecoveryTimeout = 5 * time.Hour
)

// DefaultTriggerCodes is the exit-code set that activates error-exec when
// none is configured.
var DefaultTriggerCodes = []int{1}
