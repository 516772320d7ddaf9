// Package appctx holds the process-wide collaborators shared by the host
// components. One Context is built at startup and passed to every
// constructor that needs it.
package appctx

import (
	log "github.com/sirupsen/logrus"

	"github.com/inboxdock/inboxdock/internal/config"
	"github.com/inboxdock/inboxdock/internal/dispatch"
)

// Toaster shows one-way messages in the primary UI surface.
type Toaster interface {
	Info(message string)
	Confirm(message string)
}

// Context is the explicit application context.
type Context struct {
	AppName string
	Log     *log.Entry
	Loop    *dispatch.Loop
	Config  *config.Store
	Toast   Toaster
}

// Logger returns the context logger tagged with a component name.
func (c *Context) Logger(component string) *log.Entry {
	return c.Log.WithField("component", component)
}
