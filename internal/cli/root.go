// Package cli implements the inboxdock CLI commands.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "inboxdock",
	Short: "Control the inboxdock tray host",
	Long: `inboxdock talks to the running inboxdockd host: it shows the unread
count, toggles the mailbox window, manages settings and updates.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add subcommands (alphabetical)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(devtoolsCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(quitCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
}
