package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tgmirror/tgmirror/pkg/models"
)

var statusPidFile string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine and fleet status",
	Long: `Display the current status of the tgmirror engine and its fleet.

Checks whether the engine process is running and summarizes the database:
registered sessions with their state, monitored channels and ledger totals.

Examples:
  # Check status
  tgmirror status

  # Check status with custom PID file
  tgmirror status --pid-file /var/run/tgmirror.pid`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/tgmirror/tgmirror.pid)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	running := false
	pid := 0
	if pidData, err := os.ReadFile(pidPath); err == nil {
		if p, err := strconv.Atoi(strings.TrimSpace(string(pidData))); err == nil {
			if process, err := os.FindProcess(p); err == nil {
				// FindProcess always succeeds on Unix; signal 0 probes liveness.
				if process.Signal(syscall.Signal(0)) == nil {
					running = true
					pid = p
				}
			}
		}
	}

	fmt.Println()
	fmt.Println("tgmirror Engine Status")
	fmt.Println("======================")
	fmt.Println()
	if running {
		fmt.Printf("  Engine:     \033[32m● Running\033[0m (PID %d)\n", pid)
	} else {
		fmt.Printf("  Engine:     \033[31m○ Stopped\033[0m\n")
	}

	_, st, err := openStore()
	if err != nil {
		fmt.Println()
		fmt.Printf("  Database unavailable: %v\n", err)
		fmt.Println()
		return nil
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	channels, err := st.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list channels: %w", err)
	}
	stats, err := st.Statistics(ctx, models.StatsFilter{})
	if err != nil {
		return fmt.Errorf("failed to aggregate ledger: %w", err)
	}

	active := 0
	for _, s := range sessions {
		if s.Status == models.SessionActive {
			active++
		}
	}
	monitored := 0
	for _, ch := range channels {
		if ch.ForwardEnabled {
			monitored++
		}
	}

	fmt.Printf("  Sessions:   %d registered, %d active\n", len(sessions), active)
	fmt.Printf("  Channels:   %d known, %d forwarding\n", len(channels), monitored)
	fmt.Println()
	fmt.Println("  Ledger")
	fmt.Printf("    Sent:     %d\n", stats.Sent)
	fmt.Printf("    Pending:  %d\n", stats.Pending)
	fmt.Printf("    Failed:   %d\n", stats.Failed)
	fmt.Printf("    Skipped:  %d\n", stats.Skipped)
	fmt.Printf("    Deleted:  %d\n", stats.Deleted)
	fmt.Println()

	return nil
}
