package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inboxdock/inboxdock/internal/config"
	"github.com/inboxdock/inboxdock/internal/content"
	"github.com/inboxdock/inboxdock/internal/content/maildir"
)

var (
	agentRelay   string
	agentMaildir string
	agentAddress string
)

// agentCmd is started by the host in external mode. It is hidden because
// users have no reason to run it by hand.
var agentCmd = &cobra.Command{
	Use:    "agent",
	Short:  "Run the content agent against a host relay",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if agentRelay == "" {
			return errors.New("--relay is required")
		}
		level := logLevel
		if level == "" {
			level = "info"
		}
		if err := config.InitLog(level, logFile); err != nil {
			return err
		}
		entry := config.Component("agent")

		dir := agentMaildir
		if dir == "" {
			var err error
			if dir, err = config.DefaultMaildir(); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		agent := content.NewAgent(
			maildir.Factory(dir, agentAddress, config.Component("maildir")),
			content.WithLogger(entry),
		)
		return content.RunRemote(ctx, agentRelay, agent, entry)
	},
}

func init() {
	agentCmd.Flags().StringVar(&agentRelay, "relay", "", "Relay WebSocket URL")
	agentCmd.Flags().StringVar(&agentMaildir, "maildir", "", "Maildir to observe")
	agentCmd.Flags().StringVar(&agentAddress, "address", "", "Account address reported to the host")
}
