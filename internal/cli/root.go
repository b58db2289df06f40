package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/turtacn/Custodia/internal/monitor"
	"github.com/turtacn/Custodia/internal/orchestrator"
	"github.com/turtacn/Custodia/pkg/consts"
	"github.com/turtacn/Custodia/pkg/logger"
	"github.com/turtacn/Custodia/pkg/protocol"
)

var (
	cfgFile string

	flagTimeout     int
	flagDelayRandom int
	flagErrorExec   string
	flagErrorCodes  string
	flagLogLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "custodia",
	Short: "Custodia: single-shot process supervisor",
}

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Supervise a single command to completion",
	Long: `Run launches the command in its own process group, optionally after a
randomized startup delay (interruptible with SIGUSR1), enforces a wall-clock
timeout, and on a qualifying exit status dispatches the configured error-exec
shell template with {EXIT}, {TIMEOUT}, {STDOUT} and {STDERR} substituted.

The process exits with the child's status; a timed-out child exits 254 and a
child that could not be launched exits 127.`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runSupervised(cmd, args))
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		if cfgFile == "" {
			fmt.Fprintln(os.Stderr, "validate requires --config")
			os.Exit(2)
		}
		if _, err := protocol.LoadConfig(cfgFile); err != nil {
			fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
			os.Exit(2)
		}
		fmt.Printf("%s: OK\n", cfgFile)
	},
}

func runSupervised(cmd *cobra.Command, args []string) int {
	// Operator convenience: a .env next to the invocation is merged into
	// the environment before anything else reads it.
	godotenv.Load()

	cfg := &protocol.Config{}
	if cfgFile != "" {
		loaded, err := protocol.LoadConfig(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			return 2
		}
		cfg = loaded
	}
	mergeFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error in config: %v\n", err)
		return 2
	}

	logger.InitLogger(cfg.Observability.LogLevel)
	if cfg.Observability.MetricsPort != "" {
		monitor.InitMetrics(cfg.Observability.MetricsPort)
	}

	argv := args
	if len(argv) == 0 {
		argv = cfg.Service.Command
	}
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "no command given: pass one after -- or set service.command")
		return 2
	}

	codes, _ := cfg.Supervision.TriggerCodes() // validated above

	engine := orchestrator.NewEngine(orchestrator.Options{
		Timeout:      cfg.Supervision.TimeoutDuration(),
		DelayMax:     cfg.Supervision.DelayDuration(),
		AbortSignal:  syscall.SIGUSR1,
		ErrorExec:    cfg.Supervision.ErrorExec,
		TriggerCodes: codes,
		Env:          cfg.Service.Env,
	})

	res, err := engine.Run(argv)
	if err != nil {
		logger.Log.Error("Run finished abnormally", "err", err, "status", res.Status)
	}
	return mapExitStatus(res.Status)
}

// mergeFlags applies explicitly set flags over file-loaded values.
func mergeFlags(cmd *cobra.Command, cfg *protocol.Config) {
	f := cmd.Flags()
	if f.Changed("timeout") {
		cfg.Supervision.Timeout = flagTimeout
	}
	if f.Changed("delay-random") {
		cfg.Supervision.DelayRandom = flagDelayRandom
	}
	if f.Changed("error-exec") {
		cfg.Supervision.ErrorExec = flagErrorExec
	}
	if f.Changed("error-exec-exit-codes") {
		cfg.Supervision.ErrorExecExitCodes = flagErrorCodes
	}
	if f.Changed("log-level") {
		cfg.Observability.LogLevel = flagLogLevel
	}
}

// mapExitStatus folds the engine's status contract into the 0-255 range
// the OS can carry: the timeout sentinel becomes 254, everything else
// passes through.
func mapExitStatus(status int) int {
	if status == consts.ExitTimedOut {
		return 254
	}
	if status < 0 {
		return 255
	}
	return status
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (.yaml or .toml)")

	runCmd.Flags().IntVar(&flagTimeout, "timeout", 0, "kill the command after this many seconds (0 = unbounded)")
	runCmd.Flags().IntVar(&flagDelayRandom, "delay-random", 0, "sleep a random 0..N-1 seconds before launching")
	runCmd.Flags().StringVar(&flagErrorExec, "error-exec", "", "shell template run on a qualifying exit status")
	runCmd.Flags().StringVar(&flagErrorCodes, "error-exec-exit-codes", "", "comma-separated exit codes that trigger error-exec (default 1)")
	runCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
