package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/inboxdock/inboxdock/internal/config"
)

const daemonBinary = "inboxdockd"

// EnsureDaemon makes sure the host is running, starting it if necessary.
func EnsureDaemon() error {
	running, info, err := config.IsHostRunning()
	if err != nil {
		return fmt.Errorf("failed to check host status: %w", err)
	}

	if running {
		return nil
	}

	// Clean up stale host info if it exists
	if info != nil {
		_ = config.RemoveHostInfo()
	}

	return startDaemon()
}

// startDaemon starts the host process in the background.
func startDaemon() error {
	daemonPath, err := findDaemonBinary()
	if err != nil {
		return err
	}

	cmd := exec.Command(daemonPath)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start host: %w", err)
	}
	_ = cmd.Process.Release()

	// Wait for the host to be ready (max 5 seconds)
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		running, _, err := config.IsHostRunning()
		if err == nil && running {
			return nil
		}
	}

	return fmt.Errorf("host failed to start within timeout")
}

// findDaemonBinary locates the inboxdockd binary.
func findDaemonBinary() (string, error) {
	// Try PATH first
	if path, err := exec.LookPath(daemonBinary); err == nil {
		return path, nil
	}

	// Try next to the current executable
	if execPath, err := os.Executable(); err == nil {
		daemonPath := filepath.Join(filepath.Dir(execPath), daemonBinary)
		if _, err := os.Stat(daemonPath); err == nil {
			return daemonPath, nil
		}
	}

	// Try build directory
	if _, err := os.Stat("./build/" + daemonBinary); err == nil {
		return "./build/" + daemonBinary, nil
	}

	return "", fmt.Errorf("%s not found. Install or build it first", daemonBinary)
}
