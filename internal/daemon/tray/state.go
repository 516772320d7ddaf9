// Package tray implements the system tray icon and menu for the daemon.
package tray

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Menu labels.
const (
	LabelToggle    = "Toggle Window"
	LabelUpdates   = "Check for Updates"
	LabelAutostart = "Start at Login"
	LabelWebsite   = "Website"
	LabelQuit      = "Quit"
)

// Actions are invoked from menu clicks. Implementations must not block.
type Actions interface {
	ToggleWindow()
	CheckForUpdates()
	SetAutostart(enabled bool)
	OpenWebsite()
	Quit()
}

// state is the icon state shared by both tray implementations.
type state struct {
	mu      sync.Mutex
	unread  bool
	tooltip string
}

func (s *state) set(unread *bool, tooltip *string) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if unread != nil {
		s.unread = *unread
	}
	if tooltip != nil {
		s.tooltip = *tooltip
	}
	return s.unread, s.tooltip
}

// Unread reports the last indicator value.
func (s *state) Unread() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Tooltip reports the last tooltip.
func (s *state) Tooltip() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tooltip
}

// Headless keeps the tray state without a display. Used in foreground mode
// and on hosts without a status notifier.
type Headless struct {
	state
	log *log.Entry
}

// NewHeadless creates a tray with no visible icon.
func NewHeadless(entry *log.Entry) *Headless {
	return &Headless{log: entry.WithField("component", "tray")}
}

// SetUnreadIndicator implements host.Tray.
func (h *Headless) SetUnreadIndicator(unread bool) {
	h.set(&unread, nil)
	h.log.Debugf("unread indicator: %t", unread)
}

// SetTooltip implements host.Tray.
func (h *Headless) SetTooltip(text string) {
	h.set(nil, &text)
	h.log.Debugf("tooltip: %s", text)
}
