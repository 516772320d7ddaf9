// Package notify renders desktop notifications and toast messages.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	log "github.com/sirupsen/logrus"
)

// NotifyFunc shows one desktop notification. beeep.Notify and beeep.Alert
// match it.
type NotifyFunc func(title, message string, icon any) error

// Desktop shows the unread-count notification.
type Desktop struct {
	title  string
	icon   any
	notify NotifyFunc
	log    *log.Entry
}

// NewDesktop creates a notifier titled with the application name.
func NewDesktop(title string, icon any, entry *log.Entry) *Desktop {
	return &Desktop{
		title:  title,
		icon:   icon,
		notify: beeep.Notify,
		log:    entry.WithField("component", "notifier"),
	}
}

// UnreadText returns the notification body for n unread messages.
func UnreadText(n int) string {
	if n == 1 {
		return "1 unread message."
	}
	return fmt.Sprintf("%d unread messages.", n)
}

// NotifyUnreadCount implements host.Notifier. It does not block the caller.
func (d *Desktop) NotifyUnreadCount(n int) {
	if n <= 0 {
		return
	}
	text := UnreadText(n)
	go func() {
		if err := d.notify(d.title, text, d.icon); err != nil {
			d.log.Warnf("failed to show notification: %v", err)
		}
	}()
}

// Kind is the toast flavour.
type Kind string

// Toast kinds.
const (
	KindInfo    Kind = "info"
	KindConfirm Kind = "confirm"
)

// Toast is one message sent to the user.
type Toast struct {
	Kind    Kind      `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

const historySize = 20

// Messenger is the toast messenger. Info toasts are plain notifications,
// confirm toasts use the alert style.
type Messenger struct {
	title   string
	icon    any
	info    NotifyFunc
	confirm NotifyFunc
	log     *log.Entry

	mu     sync.Mutex
	recent []Toast
}

// NewMessenger creates a messenger that delivers through beeep.
func NewMessenger(title string, icon any, entry *log.Entry) *Messenger {
	return &Messenger{
		title:   title,
		icon:    icon,
		info:    beeep.Notify,
		confirm: beeep.Alert,
		log:     entry.WithField("component", "toast"),
	}
}

// Info implements appctx.Toaster.
func (m *Messenger) Info(message string) {
	m.send(KindInfo, m.title, message)
}

// Confirm implements appctx.Toaster.
func (m *Messenger) Confirm(message string) {
	m.send(KindConfirm, m.title, message)
}

func (m *Messenger) send(kind Kind, title, message string) {
	m.mu.Lock()
	m.recent = append(m.recent, Toast{Kind: kind, Title: title, Message: message, SentAt: time.Now()})
	if len(m.recent) > historySize {
		m.recent = m.recent[len(m.recent)-historySize:]
	}
	m.mu.Unlock()

	m.log.Infof("%s: %s", kind, message)

	deliver := m.info
	if kind == KindConfirm {
		deliver = m.confirm
	}
	go func() {
		if err := deliver(title, message, m.icon); err != nil {
			m.log.Warnf("failed to show toast: %v", err)
		}
	}()
}

// Recent returns the last toasts, oldest first.
func (m *Messenger) Recent() []Toast {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Toast(nil), m.recent...)
}
