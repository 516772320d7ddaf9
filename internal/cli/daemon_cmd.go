package cli

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inboxdock/inboxdock/internal/config"
	"github.com/inboxdock/inboxdock/internal/daemon/server"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the inboxdockd host",
	Long:  `Manage the inboxdockd host process.`,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show host process status",
	RunE:  runDaemonStatus,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the host",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the host",
	RunE:  runDaemonStop,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	running, info, err := config.IsHostRunning()
	if err != nil {
		return fmt.Errorf("failed to check host status: %w", err)
	}

	if running && info != nil {
		fmt.Printf("Host is already running (PID %d, port %d).\n", info.PID, info.Port)
		return nil
	}

	if info != nil {
		_ = config.RemoveHostInfo()
	}

	fmt.Print("Starting host...")
	if startErr := startDaemon(); startErr != nil {
		fmt.Println()
		return startErr
	}

	_, fresh, err := config.IsHostRunning()
	if err != nil || fresh == nil {
		fmt.Println(" started.")
		return nil
	}

	fmt.Printf(" started (PID %d, port %d).\n", fresh.PID, fresh.Port)
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	running, info, err := config.IsHostRunning()
	if err != nil {
		return err
	}

	if !running || info == nil {
		fmt.Println("Host is not running.")
		return nil
	}

	uptime := time.Since(info.StartedAt).Truncate(time.Second)

	fmt.Println("Host is running.")
	fmt.Printf("  Host:       %s\n", info.Host)
	fmt.Printf("  Port:       %d\n", info.Port)
	fmt.Printf("  PID:        %d\n", info.PID)
	fmt.Printf("  Uptime:     %s\n", uptime)
	if info.RelayURL != "" {
		fmt.Printf("  Relay:      %s\n", info.RelayURL)
	}
	return nil
}

// runDaemonStop asks the host to quit over the control port so the quit
// hooks run, and falls back to SIGTERM.
func runDaemonStop(cmd *cobra.Command, args []string) error {
	running, info, err := config.IsHostRunning()
	if err != nil {
		return fmt.Errorf("failed to check host status: %w", err)
	}

	if !running || info == nil {
		fmt.Println("Host is not running.")
		return nil
	}

	quitErr := withHost(func(ctx context.Context, c *server.Client) error {
		return c.Quit(ctx)
	})
	if quitErr != nil {
		process, err := os.FindProcess(info.PID)
		if err != nil {
			return fmt.Errorf("failed to find host process: %w", err)
		}
		if err := process.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to send stop signal: %w", err)
		}
	}

	// Poll for shutdown (max 5 seconds)
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		stillRunning, _, err := config.IsHostRunning()
		if err == nil && !stillRunning {
			fmt.Println("Host stopped.")
			return nil
		}
	}

	return fmt.Errorf("host did not stop within timeout")
}
