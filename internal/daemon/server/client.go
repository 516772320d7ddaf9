package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Client calls the control service of a running daemon.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon at addr ("host:port"). The connection is lazy;
// errors surface on the first call.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

func (c *Client) call(ctx context.Context, method string) error {
	return c.invoke(ctx, method, &emptypb.Empty{}, &emptypb.Empty{})
}

// Status returns the host status.
func (c *Client) Status(ctx context.Context) (*HostStatus, error) {
	out := new(HostStatus)
	if err := c.invoke(ctx, "GetStatus", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ShowWindow shows the main window.
func (c *Client) ShowWindow(ctx context.Context) error { return c.call(ctx, "ShowWindow") }

// ToggleWindow shows or hides the main window.
func (c *Client) ToggleWindow(ctx context.Context) error { return c.call(ctx, "ToggleWindow") }

// CloseWindow closes the main window the way the window manager would.
func (c *Client) CloseWindow(ctx context.Context) error { return c.call(ctx, "CloseWindow") }

// Quit asks the host to quit.
func (c *Client) Quit(ctx context.Context) error { return c.call(ctx, "Quit") }

// CheckForUpdates starts an update check.
func (c *Client) CheckForUpdates(ctx context.Context) error { return c.call(ctx, "CheckForUpdates") }

// DownloadUpdate downloads an available update.
func (c *Client) DownloadUpdate(ctx context.Context) error { return c.call(ctx, "DownloadUpdate") }

// ReloadContent reloads the content surface.
func (c *Client) ReloadContent(ctx context.Context) error { return c.call(ctx, "ReloadContent") }

// OpenDevTools asks the content agent for diagnostics.
func (c *Client) OpenDevTools(ctx context.Context) error { return c.call(ctx, "OpenDevTools") }

// Navigate sends url to the navigation policy. It reports whether the
// content surface handled it.
func (c *Client) Navigate(ctx context.Context, url string) (bool, error) {
	out := new(NavigateResult)
	if err := c.invoke(ctx, "Navigate", &NavigateRequest{URL: url}, out); err != nil {
		return false, err
	}
	return out.Internal, nil
}

// GetSetting reads one setting.
func (c *Client) GetSetting(ctx context.Context, key string) (string, error) {
	out := new(Setting)
	if err := c.invoke(ctx, "GetSetting", &SettingKey{Key: key}, out); err != nil {
		return "", err
	}
	return out.Value, nil
}

// SetSetting writes one setting.
func (c *Client) SetSetting(ctx context.Context, key, value string) error {
	return c.invoke(ctx, "SetSetting", &Setting{Key: key, Value: value}, &emptypb.Empty{})
}

// ListSettings returns every leaf setting.
func (c *Client) ListSettings(ctx context.Context) ([]Setting, error) {
	out := new(SettingList)
	if err := c.invoke(ctx, "ListSettings", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.Settings, nil
}
