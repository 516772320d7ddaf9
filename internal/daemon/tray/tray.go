package tray

import (
	"github.com/getlantern/systray"
	log "github.com/sirupsen/logrus"
)

// Systray is the notification area icon backed by systray.
type Systray struct {
	state
	actions   Actions
	log       *log.Entry
	autostart bool

	ready chan struct{}
	quit  chan struct{}

	toggleItem    *systray.MenuItem
	updatesItem   *systray.MenuItem
	autostartItem *systray.MenuItem
	websiteItem   *systray.MenuItem
	quitItem      *systray.MenuItem
}

// NewSystray creates the tray. Call Run from the main goroutine.
func NewSystray(actions Actions, autostart bool, entry *log.Entry) *Systray {
	return &Systray{
		actions:   actions,
		log:       entry.WithField("component", "tray"),
		autostart: autostart,
		ready:     make(chan struct{}),
		quit:      make(chan struct{}),
	}
}

// Run starts the system tray. This blocks the calling goroutine (must be main).
// onStart is called when the tray is ready, onExit when it exits.
func (t *Systray) Run(onStart, onExit func()) {
	systray.Run(func() {
		t.onReady()
		if onStart != nil {
			onStart()
		}
	}, func() {
		close(t.quit)
		if onExit != nil {
			onExit()
		}
	})
}

// Quit signals the tray to exit.
func (t *Systray) Quit() {
	systray.Quit()
}

func (t *Systray) onReady() {
	unread, tooltip := t.set(nil, nil)
	systray.SetTemplateIcon(iconFor(unread), iconFor(unread))
	systray.SetTooltip(tooltip)

	t.toggleItem = systray.AddMenuItem(LabelToggle, "Show or hide the mailbox window")
	systray.AddSeparator()
	t.updatesItem = systray.AddMenuItem(LabelUpdates, "Check for a newer release")
	t.autostartItem = systray.AddMenuItemCheckbox(LabelAutostart, "Launch when you log in", t.autostart)
	t.websiteItem = systray.AddMenuItem(LabelWebsite, "Open the project website")
	systray.AddSeparator()
	t.quitItem = systray.AddMenuItem(LabelQuit, "Quit the application")

	close(t.ready)
	go t.handleClicks()
}

func (t *Systray) handleClicks() {
	for {
		select {
		case <-t.quit:
			return
		case <-t.toggleItem.ClickedCh:
			t.actions.ToggleWindow()
		case <-t.updatesItem.ClickedCh:
			t.actions.CheckForUpdates()
		case <-t.autostartItem.ClickedCh:
			enabled := !t.autostartItem.Checked()
			if enabled {
				t.autostartItem.Check()
			} else {
				t.autostartItem.Uncheck()
			}
			t.actions.SetAutostart(enabled)
		case <-t.websiteItem.ClickedCh:
			t.actions.OpenWebsite()
		case <-t.quitItem.ClickedCh:
			t.actions.Quit()
		}
	}
}

func (t *Systray) isReady() bool {
	select {
	case <-t.ready:
		return true
	default:
		return false
	}
}

// SetUnreadIndicator implements host.Tray. Values set before the tray is
// ready are applied on startup.
func (t *Systray) SetUnreadIndicator(unread bool) {
	t.set(&unread, nil)
	if t.isReady() {
		icon := iconFor(unread)
		systray.SetTemplateIcon(icon, icon)
	}
}

// SetTooltip implements host.Tray.
func (t *Systray) SetTooltip(text string) {
	t.set(nil, &text)
	if t.isReady() {
		systray.SetTooltip(text)
	}
}
