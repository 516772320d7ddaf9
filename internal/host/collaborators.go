// Package host contains the coordinator that owns host-visible application
// state and turns content events into UI side effects.
package host

import (
	"context"

	"github.com/inboxdock/inboxdock/internal/channel"
	"github.com/inboxdock/inboxdock/internal/models"
)

// Tray is the notification area icon.
type Tray interface {
	SetUnreadIndicator(unread bool)
	SetTooltip(text string)
}

// CloseEvent is passed to close handlers. Preventing it keeps the window alive.
type CloseEvent struct {
	prevented bool
}

// PreventDefault cancels the close.
func (e *CloseEvent) PreventDefault() {
	e.prevented = true
}

// Prevented reports whether a handler cancelled the close.
func (e *CloseEvent) Prevented() bool {
	return e.prevented
}

// Window is the main application window. Its handlers run on the dispatch loop.
type Window interface {
	SetTitle(title string)
	Show()
	Hide()
	Bounds() models.Rect
	// Close requests a close; handlers registered with OnClose may prevent it.
	Close()
	OnClose(fn func(*CloseEvent))
	OnClosed(fn func())
	OnReady(fn func())
}

// Notifier shows desktop notifications.
type Notifier interface {
	NotifyUnreadCount(n int)
}

// Relay is the host side of the content boundary.
type Relay interface {
	Subscribe(name channel.Name, h channel.Handler) func()
	Send(ctx context.Context, m channel.Message) error
}
