package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inboxdock/inboxdock/internal/config"
	"github.com/inboxdock/inboxdock/internal/daemon/server"
)

var settingsCmd = &cobra.Command{
	Use:     "settings",
	Aliases: []string{"config"},
	Short:   "Read and change settings",
	Long: `Read and change ~/.inboxdock/settings.yaml by dotted key path, e.g.
"notifications.enabled" or "updates.check_frequency".

When the host is running the change goes through it and applies
immediately; otherwise the file is edited directly.`,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSettings(
			func(ctx context.Context, c *server.Client) error {
				v, err := c.GetSetting(ctx, args[0])
				if err != nil {
					return rpcError(err)
				}
				fmt.Println(v)
				return nil
			},
			func(store *config.Store) error {
				v, err := store.GetString(args[0])
				if err != nil {
					return err
				}
				fmt.Println(v)
				return nil
			},
		)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := withSettings(
			func(ctx context.Context, c *server.Client) error {
				return rpcError(c.SetSetting(ctx, args[0], args[1]))
			},
			func(store *config.Store) error {
				return store.Set(args[0], args[1])
			},
		)
		if err != nil {
			return err
		}
		fmt.Println(styleSuccess.Render(fmt.Sprintf("%s set to %s", args[0], args[1])))
		return nil
	},
}

var settingsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List every setting",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var list []server.Setting
		err := withSettings(
			func(ctx context.Context, c *server.Client) error {
				var err error
				list, err = c.ListSettings(ctx)
				return rpcError(err)
			},
			func(store *config.Store) error {
				keys, err := store.Keys()
				if err != nil {
					return err
				}
				for _, key := range keys {
					v, err := store.GetString(key)
					if err != nil {
						return err
					}
					list = append(list, server.Setting{Key: key, Value: v})
				}
				return nil
			},
		)
		if err != nil {
			return err
		}
		for _, s := range list {
			fmt.Printf("%s %s\n", styleLabel.Render(s.Key+":"), styleValue.Render(s.Value))
		}
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

// withSettings routes through the running host, or edits the file when no
// host is running.
func withSettings(remote func(context.Context, *server.Client) error, local func(*config.Store) error) error {
	err := withHost(remote)
	if !errors.Is(err, ErrHostNotRunning) {
		return err
	}

	path, err := config.GlobalSettingsFile()
	if err != nil {
		return err
	}
	store, err := config.OpenStore(path)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	return local(store)
}
