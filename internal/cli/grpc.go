package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inboxdock/inboxdock/internal/config"
	"github.com/inboxdock/inboxdock/internal/daemon/server"
)

// ErrHostNotRunning is returned when no host info file points at a live host.
var ErrHostNotRunning = errors.New("inboxdockd is not running (start it with `inboxdock daemon start`)")

const callTimeout = 10 * time.Second

// connectHost dials the control service of the running host.
func connectHost() (*server.Client, error) {
	running, info, err := config.IsHostRunning()
	if err != nil {
		return nil, fmt.Errorf("failed to load host info: %w", err)
	}
	if !running || info == nil {
		return nil, ErrHostNotRunning
	}
	return server.Dial(fmt.Sprintf("%s:%d", info.Host, info.Port))
}

// withHost runs fn against the running host with a bounded context.
func withHost(fn func(ctx context.Context, c *server.Client) error) error {
	client, err := connectHost()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return fn(ctx, client)
}
