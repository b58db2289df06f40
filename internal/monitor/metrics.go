package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/turtacn/Custodia/pkg/logger"
)

var (
	// RunDuration tracks wall-clock duration of supervised runs in seconds.
	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "custodia_run_duration_seconds",
		Help: "Wall-clock duration of supervised runs",
	})
	// RunsTotal counts supervised runs, partitioned by outcome
	// (exited, timed_out, launch_failed).
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custodia_runs_total",
		Help: "Total number of supervised runs",
	}, []string{"outcome"})
	// EscalationsTotal counts termination signals sent to process groups,
	// partitioned by signal name.
	EscalationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custodia_escalations_total",
		Help: "Total number of group termination signals sent",
	}, []string{"signal"})
	// RecoveryRunsTotal counts error-exec dispatches, partitioned by result
	// (ok, failed, timed_out).
	RecoveryRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custodia_recovery_runs_total",
		Help: "Total number of recovery command dispatches",
	}, []string{"result"})
)

// InitMetrics registers Prometheus metrics and starts an HTTP server to expose them.
// It takes an address string (e.g., ":9090") on which to listen for requests.
func InitMetrics(addr string) {
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(EscalationsTotal)
	prometheus.MustRegister(RecoveryRunsTotal)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		logger.Log.Info("Metrics server starting", "addr", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Log.Error("Metrics server failed", "err", err)
		}
	}()
}
