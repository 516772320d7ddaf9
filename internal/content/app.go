// Package content implements the observer agent that runs inside the
// isolated content surface, and the hosting glue that connects it to the
// relay.
package content

import "context"

// EventKind is an embedded application event the agent can observe.
type EventKind string

// Observable application events.
const (
	ItemAdded    EventKind = "item-added"
	MarkedRead   EventKind = "marked-read"
	MarkedUnread EventKind = "marked-unread"
	ItemDeleted  EventKind = "item-deleted"
)

// App is the embedded application living inside the content surface.
type App interface {
	// Start boots the application. It must not block until loaded.
	Start(ctx context.Context) error
	// Loaded is closed once the application signals it is ready.
	Loaded() <-chan struct{}
	// Observe registers fn for kind and returns its unsubscribe function.
	Observe(kind EventKind, fn func()) func()
	// UserAddress returns the signed-in identity, if known.
	UserAddress() (string, bool)
	// UnreadInboxCount computes a fresh unread snapshot.
	UnreadInboxCount() (int, error)
	Close() error
}

// Factory builds a fresh application for each session.
type Factory func() (App, error)
