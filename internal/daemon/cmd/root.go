// Package cmd implements the inboxdockd command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inboxdock/inboxdock/internal/config"
	"github.com/inboxdock/inboxdock/internal/daemon/shell"
	"github.com/inboxdock/inboxdock/internal/models"
)

var (
	foreground    bool
	logLevel      string
	logFile       string
	port          int
	maildirFlag   string
	externalAgent bool
)

var rootCmd = &cobra.Command{
	Use:   "inboxdockd",
	Short: "Keep a mailbox docked in the system tray",
	Long: `inboxdockd hosts the mailbox surface, mirrors its unread count on the
tray icon and answers the inboxdock CLI over a local control port.`,
	SilenceUsage: true,
	RunE:         runHost,
}

// Execute runs the daemon command line.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.StringVar(&logFile, "log-file", "", `Log file path, or "console" for stderr`)

	rootCmd.Flags().BoolVar(&foreground, "foreground", false, "Run in foreground without a tray icon (for development)")
	rootCmd.Flags().IntVar(&port, "port", 0, "Control port (0 for dynamic allocation)")
	rootCmd.Flags().StringVar(&maildirFlag, "maildir", "", "Maildir to observe (overrides account.maildir)")
	rootCmd.Flags().BoolVar(&externalAgent, "external-agent", false, "Run the content agent in a child process")

	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(daemonVersionCmd)
}

// initLogging applies flags over the log section of settings.yaml.
func initLogging() error {
	settings, err := config.LoadSettings()
	if err != nil {
		// A broken settings file is reported by the host once logging works.
		settings = models.NewSettings()
	}

	level, file := settings.Log.Level, settings.Log.File
	if level == "" {
		level = "info"
	}
	if logLevel != "" {
		level = logLevel
	}
	if logFile != "" {
		file = logFile
	}
	if file == "" && !foreground {
		if file, err = config.DefaultLogFile(); err != nil {
			return err
		}
	}
	return config.InitLog(level, file)
}

func runHost(cmd *cobra.Command, args []string) error {
	if err := config.EnsureGlobalDir(); err != nil {
		return fmt.Errorf("failed to create global directory: %w", err)
	}
	if err := initLogging(); err != nil {
		return err
	}
	entry := config.Component("inboxdockd")

	running, info, err := config.IsHostRunning()
	if err != nil {
		return fmt.Errorf("failed to check host status: %w", err)
	}
	if running {
		return fmt.Errorf("host already running on port %d (PID %d)", info.Port, info.PID)
	}

	sh, err := shell.New(shell.Options{
		Port:          port,
		Maildir:       maildirFlag,
		ExternalAgent: externalAgent,
		Headless:      foreground,
	}, entry)
	if err != nil {
		return err
	}

	if foreground {
		entry.Info("running in foreground mode (no system tray)")
		return runForeground(sh, entry)
	}
	entry.Info("running in background mode (with system tray)")
	return runWithTray(sh, entry)
}

// runForeground blocks until a signal arrives or the user quits.
func runForeground(sh *shell.Shell, entry *log.Entry) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sh.Start(context.Background()); err != nil {
		_ = sh.Shutdown()
		return err
	}

	select {
	case <-sigCtx.Done():
		entry.Info("received signal, shutting down")
		requestQuit(sh, entry)
	case <-sh.Done():
		entry.Info("quit requested, shutting down")
	}

	if err := sh.Shutdown(); err != nil {
		return err
	}
	fmt.Println("Host stopped")
	return nil
}

// runWithTray runs the tray on the main goroutine. systray.Run must occupy it
// on macOS.
func runWithTray(sh *shell.Shell, entry *log.Entry) error {
	tray := sh.Systray()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var startErr error
	onStart := func() {
		if err := sh.Start(ctx); err != nil {
			startErr = err
			entry.Errorf("failed to start host: %v", err)
			tray.Quit()
			return
		}

		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			select {
			case sig := <-sigCh:
				entry.Infof("received signal %v, shutting down", sig)
				requestQuit(sh, entry)
			case <-sh.Done():
				entry.Info("quit requested, shutting down")
			}
			tray.Quit()
		}()
	}

	var stopErr error
	onExit := func() {
		stopErr = sh.Shutdown()
		fmt.Println("Host stopped")
	}

	// Blocks until the tray exits.
	tray.Run(onStart, onExit)

	if startErr != nil {
		return startErr
	}
	return stopErr
}

// requestQuit runs the quit hooks so a signal behaves like the Quit menu item.
func requestQuit(sh *shell.Shell, entry *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sh.Quit(ctx); err != nil {
		entry.Debugf("quit request failed: %v", err)
	}
}
