package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/status"

	"github.com/inboxdock/inboxdock/internal/daemon/server"
	"github.com/inboxdock/inboxdock/internal/notify"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the unread count and host state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHost(func(ctx context.Context, c *server.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				return rpcError(err)
			}
			printStatus(os.Stdout, st, time.Now())
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the mailbox window, starting the host if needed",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return EnsureDaemon()
	},
	RunE: hostAction("Window shown.", (*server.Client).ShowWindow),
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Show or hide the mailbox window",
	Args:  cobra.NoArgs,
	RunE:  hostAction("", (*server.Client).ToggleWindow),
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the mailbox window (it keeps running in the tray)",
	Args:  cobra.NoArgs,
	RunE:  hostAction("", (*server.Client).CloseWindow),
}

var quitCmd = &cobra.Command{
	Use:   "quit",
	Short: "Quit the host",
	Args:  cobra.NoArgs,
	RunE:  hostAction("Quit requested.", (*server.Client).Quit),
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the content surface",
	Args:  cobra.NoArgs,
	RunE:  hostAction("Content reloaded.", (*server.Client).ReloadContent),
}

var devtoolsCmd = &cobra.Command{
	Use:   "devtools",
	Short: "Ask the content agent to log its diagnostics",
	Args:  cobra.NoArgs,
	RunE:  hostAction("Diagnostics written to the host log.", (*server.Client).OpenDevTools),
}

var openCmd = &cobra.Command{
	Use:   "open <url>",
	Short: "Navigate the content surface, or open the address externally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHost(func(ctx context.Context, c *server.Client) error {
			internal, err := c.Navigate(ctx, args[0])
			if err != nil {
				return rpcError(err)
			}
			if internal {
				fmt.Println("Opened in the mailbox window.")
			} else {
				fmt.Println("Opened in the default handler.")
			}
			return nil
		})
	},
}

func hostAction(done string, call func(*server.Client, context.Context) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withHost(func(ctx context.Context, c *server.Client) error {
			if err := call(c, ctx); err != nil {
				return rpcError(err)
			}
			if done != "" {
				fmt.Println(styleSuccess.Render(done))
			}
			return nil
		})
	}
}

// rpcError strips the transport prefix from control service errors.
func rpcError(err error) error {
	if err == nil {
		return nil
	}
	if s, ok := status.FromError(err); ok {
		return errors.New(s.Message())
	}
	return err
}

func printStatus(w io.Writer, st *server.HostStatus, now time.Time) {
	badge := badgeRead.Render("No unread messages.")
	if st.UnreadCount > 0 {
		badge = badgeUnread.Render(notify.UnreadText(st.UnreadCount))
	}

	fmt.Fprintf(w, "  %s %s\n", styleBrand.Render(st.Address), badge)
	row := func(label, value string) {
		fmt.Fprintf(w, "    %s %s\n", styleLabel.Render(fmt.Sprintf("%-9s", label)), styleValue.Render(value))
	}

	if !st.ObservedAt.IsZero() {
		row("Observed", now.Sub(st.ObservedAt).Truncate(time.Second).String()+" ago")
	}
	row("Window", st.Window)
	content := st.ContentMode
	if st.ContentAttached {
		content += ", attached"
	} else {
		content += ", detached"
	}
	row("Content", content)
	if st.RelayURL != "" {
		row("Relay", st.RelayURL)
	}

	update := st.UpdatePhase
	if st.UpdateVersion != "" {
		update += " " + st.UpdateVersion
	}
	if st.UpdatePhase == "downloading" {
		update += fmt.Sprintf(" (%.0f%%)", st.UpdateProgress)
	}
	row("Updates", update)
	row("Host", fmt.Sprintf("%s, PID %d, up %s", st.Version, st.PID, now.Sub(st.StartedAt).Truncate(time.Second)))
	if st.Quitting {
		fmt.Fprintln(w, "    "+styleWarning.Render("Quitting"))
	}

	if len(st.Toasts) > 0 {
		last := st.Toasts[len(st.Toasts)-1]
		fmt.Fprintf(w, "    %s %s\n", styleLabel.Render("Toast    "), styleHint.Render(last.Message))
	}
}
