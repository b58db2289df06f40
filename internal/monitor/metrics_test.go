package monitor

import (
	"testing"
	"time"
)

func TestMetricsInitialization(t *testing.T) {
	addr := "127.0.0.1:0" // Random port
	InitMetrics(addr)

	// Increment metrics to see if they are working
	RunsTotal.WithLabelValues("exited").Inc()
	RunDuration.Observe(0.5)

	// Briefly check if we can reach the metrics endpoint
	time.Sleep(100 * time.Millisecond)
}

func TestMetricsValues(t *testing.T) {
	// Just verify we can use them
	RunsTotal.WithLabelValues("timed_out").Inc()
	EscalationsTotal.WithLabelValues("SIGTERM").Inc()
	RecoveryRunsTotal.WithLabelValues("ok").Inc()
	RunDuration.Observe(1.0)
}
