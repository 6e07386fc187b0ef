package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tgmirror/tgmirror/internal/logger"
	"github.com/tgmirror/tgmirror/internal/telemetry"
	"github.com/tgmirror/tgmirror/pkg/config"
	"github.com/tgmirror/tgmirror/pkg/engine"
	"github.com/tgmirror/tgmirror/pkg/governor"
	"github.com/tgmirror/tgmirror/pkg/store"
	"github.com/tgmirror/tgmirror/pkg/transport/telegram"

	// Import prometheus metrics to register init() functions
	_ "github.com/tgmirror/tgmirror/pkg/metrics/prometheus"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tgmirror forwarding engine",
	Long: `Start the forwarding engine with the specified configuration.

Every session marked active in the database is connected and begins
monitoring its channels. By default, the engine runs in the background
(daemon mode). Use --foreground to run in the foreground for debugging or
when managed by a process supervisor.

Examples:
  # Start in background (default)
  tgmirror start

  # Start in foreground
  tgmirror start --foreground

  # Start with custom config file
  tgmirror start --config /etc/tgmirror/config.yaml

  # Start with environment variable overrides
  TGMIRROR_LOGGING_LEVEL=DEBUG tgmirror start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/tgmirror/tgmirror.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/tgmirror/tgmirror.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "tgmirror",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}

	// Initialize metrics FIRST (before creating components that record them)
	metricsResult := config.InitializeMetrics(cfg)

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}()
	logger.Info("Database ready", "type", cfg.Database.Type)

	gov := governor.New(cfg.Rate)
	dialer := &telegram.Dialer{
		APIID:    cfg.Transport.APIID,
		APIHash:  cfg.Transport.APIHash,
		Sessions: st,
	}

	opts := []engine.Option{}
	if metricsResult.Forwarder != nil {
		opts = append(opts, engine.WithMetrics(metricsResult.Forwarder))
	}
	eng := engine.New(st, dialer, gov, engineConfig(cfg), opts...)

	// Serve /metrics if enabled
	if metricsResult.Server != nil {
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
		go func() {
			if err := metricsResult.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer shutdownCancel()
			if err := metricsResult.Server.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
		}()
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Watch the config file for live log-level changes
	stopWatch, err := watchConfig(GetConfigFile())
	if err != nil {
		logger.Warn("config watch unavailable", "error", err)
	} else {
		defer stopWatch()
	}

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Engine is running. Press Ctrl+C to stop.")
	<-sigChan
	signal.Stop(sigChan)
	logger.Info("Shutdown signal received, initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Error("engine shutdown error", "error", err)
		return err
	}
	logger.Info("Engine stopped gracefully")

	return nil
}

// engineConfig maps the file configuration onto the engine's runtime knobs.
func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		ChunkSize:              cfg.Dispatch.ChunkSize,
		InterChunkDelay:        cfg.Dispatch.InterChunkDelay,
		RetryMaxAttempts:       cfg.Retry.MaxAttempts,
		RetryBaseDelay:         cfg.Retry.BaseDelay,
		RetryMaxDelay:          cfg.Retry.MaxDelay,
		RetentionAge:           cfg.Retention.MessageAge,
		CleanupInterval:        cfg.Retention.CleanupInterval,
		SweepBatchSize:         cfg.Retention.SweepBatchSize,
		MembershipSyncInterval: cfg.Membership.SyncInterval,
		MaxParticipants:        cfg.Membership.MaxParticipants,
		ResumeCheckInterval:    cfg.Supervisor.ResumeCheckInterval,
		SpamBackoff:            cfg.Supervisor.SpamBackoff,
		Queue:                  cfg.Queue,
	}
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// startDaemon starts the engine as a background daemon process.
func startDaemon() error {
	stateDir := GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check if already running
	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("tgmirror is already running (PID %d)\nUse 'tgmirror stop' to stop the running instance", pid)
					}
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	logPath := logFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	daemon := exec.Command(executable, daemonArgs...)

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	daemon.Stdout = logFileHandle
	daemon.Stderr = logFileHandle

	// Detach from parent process
	daemon.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := daemon.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	_ = logFileHandle.Close()

	fmt.Printf("tgmirror started in background (PID %d)\n", daemon.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'tgmirror stop' to stop the engine")
	fmt.Println("Use 'tgmirror status' to check engine status")

	return nil
}
