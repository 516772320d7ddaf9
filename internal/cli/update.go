package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/inboxdock/inboxdock/internal/daemon/server"
)

var updateDownload bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for a new inboxdockd release",
	Long: `Ask the host to check for a new release. With --download an
available release is downloaded and installed after a short delay; the host
restarts itself afterwards.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHost(func(ctx context.Context, c *server.Client) error {
			if updateDownload {
				if err := c.DownloadUpdate(ctx); err != nil {
					return rpcError(err)
				}
				fmt.Println(styleUpdate.Render("Downloading update..."))
				return nil
			}

			if err := c.CheckForUpdates(ctx); err != nil {
				return rpcError(err)
			}
			fmt.Println("Checking for updates...")
			return reportCheck(ctx, c)
		})
	},
}

func init() {
	updateCmd.Flags().BoolVar(&updateDownload, "download", false, "Download the available update")
}

// reportCheck polls the host until the check settles.
func reportCheck(ctx context.Context, c *server.Client) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		st, err := c.Status(ctx)
		if err != nil {
			return rpcError(err)
		}
		switch st.UpdatePhase {
		case "checking":
		case "available":
			fmt.Printf("%s %s\n", styleUpdate.Render("Update available:"), styleVersion.Render(st.UpdateVersion))
			fmt.Println(styleHint.Render("Run `inboxdock update --download` to install it."))
			return nil
		case "idle":
			fmt.Printf("Up to date (%s).\n", st.Version)
			return nil
		default:
			fmt.Printf("Update %s %s\n", st.UpdatePhase, st.UpdateVersion)
			return nil
		}

		select {
		case <-ctx.Done():
			fmt.Println(styleWarning.Render("Still checking; see the host notifications for the result."))
			return nil
		case <-ticker.C:
		}
	}
}
