package shell

import (
	"context"
	"errors"
	"os"

	"github.com/skratchdot/open-golang/open"

	"github.com/inboxdock/inboxdock/internal/buildinfo"
	"github.com/inboxdock/inboxdock/internal/daemon/server"
	"github.com/inboxdock/inboxdock/internal/host"
	"github.com/inboxdock/inboxdock/internal/models"
	"github.com/inboxdock/inboxdock/internal/updatemanager"
)

// ErrNoSurface is returned when content is reloaded before Start.
var ErrNoSurface = errors.New("content surface not loaded")

// Status implements server.Host.
func (s *Shell) Status(ctx context.Context) (*server.HostStatus, error) {
	var (
		coord   host.Status
		updates updatemanager.State
	)
	if err := s.loop.Call(ctx, func() {
		coord = s.coord.Status()
		updates = s.updates.State()
	}); err != nil {
		return nil, err
	}

	mode := s.store.Settings().Content.Mode
	if s.opts.ExternalAgent {
		mode = models.ContentExternal
	}

	return &server.HostStatus{
		Version:         buildinfo.Version,
		PID:             os.Getpid(),
		StartedAt:       s.startedAt,
		Address:         coord.Identity.Address,
		UnreadCount:     coord.Unread.Count,
		ObservedAt:      coord.Unread.ObservedAt,
		Window:          coord.Window.String(),
		Quitting:        coord.ForceQuit,
		ContentMode:     mode,
		ContentAttached: s.relay.Attached(),
		RelayURL:        s.relayURL,
		UpdatePhase:     updates.Phase.String(),
		UpdateVersion:   updates.Version,
		UpdateProgress:  updates.ProgressPct,
		Toasts:          s.messenger.Recent(),
	}, nil
}

// ShowWindow implements server.Host.
func (s *Shell) ShowWindow(ctx context.Context) error {
	return s.loop.Call(ctx, s.coord.ShowWindow)
}

// ToggleWindow implements server.Host.
func (s *Shell) ToggleWindow(ctx context.Context) error {
	return s.loop.Call(ctx, s.coord.ToggleWindow)
}

// CloseWindow implements server.Host. Without a quit request the close is
// turned into a hide.
func (s *Shell) CloseWindow(context.Context) error {
	s.window.RequestClose()
	return nil
}

// Quit implements server.Host.
func (s *Shell) Quit(ctx context.Context) error {
	return s.loop.Call(ctx, s.coord.RequestQuit)
}

// CheckForUpdates implements server.Host.
func (s *Shell) CheckForUpdates(ctx context.Context) error {
	var err error
	if callErr := s.loop.Call(ctx, func() { err = s.updates.Check() }); callErr != nil {
		return callErr
	}
	return err
}

// DownloadUpdate implements server.Host.
func (s *Shell) DownloadUpdate(ctx context.Context) error {
	var err error
	if callErr := s.loop.Call(ctx, func() { err = s.updates.Download() }); callErr != nil {
		return callErr
	}
	return err
}

// ReloadContent implements server.Host. The new session lives as long as the
// host, not the request.
func (s *Shell) ReloadContent(context.Context) error {
	if s.surface == nil {
		return ErrNoSurface
	}
	return s.surface.Reload(s.ctx)
}

// Navigate implements server.Host. Addresses inside the content origin reload
// the surface; everything else goes to the system handler.
func (s *Shell) Navigate(ctx context.Context, url string) (bool, error) {
	if !s.relay.WillNavigate(url) {
		return false, nil
	}
	if err := s.ReloadContent(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// OpenDevTools implements server.Host.
func (s *Shell) OpenDevTools(ctx context.Context) error {
	var err error
	if callErr := s.loop.Call(ctx, func() { err = s.coord.OpenDevTools() }); callErr != nil {
		return callErr
	}
	return err
}

// GetSetting implements server.Host.
func (s *Shell) GetSetting(_ context.Context, key string) (string, error) {
	return s.store.GetString(key)
}

// SetSetting implements server.Host.
func (s *Shell) SetSetting(_ context.Context, key, value string) error {
	return s.store.Set(key, value)
}

// ListSettings implements server.Host.
func (s *Shell) ListSettings(context.Context) ([]server.Setting, error) {
	keys, err := s.store.Keys()
	if err != nil {
		return nil, err
	}
	out := make([]server.Setting, 0, len(keys))
	for _, key := range keys {
		value, err := s.store.GetString(key)
		if err != nil {
			return nil, err
		}
		out = append(out, server.Setting{Key: key, Value: value})
	}
	return out, nil
}

// trayActions routes menu clicks onto the dispatch loop.
type trayActions struct {
	s *Shell
}

func (a trayActions) ToggleWindow() {
	a.s.loop.Post(a.s.coord.ToggleWindow)
}

func (a trayActions) CheckForUpdates() {
	a.s.loop.Post(func() {
		if err := a.s.updates.Check(); err != nil {
			a.s.messenger.Info(err.Error())
		}
	})
}

func (a trayActions) SetAutostart(enabled bool) {
	go func() {
		if err := a.s.store.SetValue("autostart", enabled); err != nil {
			a.s.log.Warnf("failed to save autostart: %v", err)
		}
	}()
}

func (a trayActions) OpenWebsite() {
	go func() {
		if err := open.Run(WebsiteURL); err != nil {
			a.s.log.Warnf("failed to open %s: %v", WebsiteURL, err)
		}
	}()
}

func (a trayActions) Quit() {
	a.s.loop.Post(a.s.coord.RequestQuit)
}
