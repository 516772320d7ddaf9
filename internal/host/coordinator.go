package host

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/inboxdock/inboxdock/internal/appctx"
	"github.com/inboxdock/inboxdock/internal/channel"
	"github.com/inboxdock/inboxdock/internal/dispatch"
)

// DefaultQueryTimeout bounds how long a query may stay unanswered before
// another one is allowed.
const DefaultQueryTimeout = 10 * time.Second

const sendTimeout = time.Second

// UnreadState is the last unread snapshot pulled from the content surface.
type UnreadState struct {
	Count      int
	ObservedAt time.Time
}

// Identity is the account shown in the content surface.
type Identity struct {
	Address string
}

// WindowState is the lifecycle state of the main window.
type WindowState int

// Window lifecycle states.
const (
	NoWindow WindowState = iota
	Created
	Visible
	Hidden
	Destroyed
)

func (s WindowState) String() string {
	switch s {
	case NoWindow:
		return "none"
	case Created:
		return "created"
	case Visible:
		return "visible"
	case Hidden:
		return "hidden"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("window(%d)", int(s))
	}
}

// Status is a point-in-time copy of the coordinator state.
type Status struct {
	Unread        UnreadState
	Identity      Identity
	Window        WindowState
	ForceQuit     bool
	QueryInFlight bool
}

// Coordinator owns UnreadState, Identity, the window lifecycle and the
// ForceQuit latch. All methods except ForceQuit must run on the dispatch loop.
type Coordinator struct {
	app      *appctx.Context
	loop     *dispatch.Loop
	log      *log.Entry
	relay    Relay
	tray     Tray
	notifier Notifier
	window   Window

	bindings channel.Bindings

	unread      UnreadState
	identity    Identity
	windowState WindowState
	forceQuit   atomic.Bool

	nextRequest  uint64
	inflight     uint64
	requery      bool
	queryTimer   *dispatch.Timer
	queryTimeout time.Duration

	readyHooks []func()
	quitHooks  []func()
	now        func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithQueryTimeout overrides DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.queryTimeout = d }
}

// WithClock overrides the time source used for ObservedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a coordinator. Call Start to bind it to the relay.
func New(app *appctx.Context, relay Relay, tray Tray, notifier Notifier, opts ...Option) *Coordinator {
	c := &Coordinator{
		app:          app,
		loop:         app.Loop,
		log:          app.Logger("coordinator"),
		relay:        relay,
		tray:         tray,
		notifier:     notifier,
		queryTimeout: DefaultQueryTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to content events.
func (c *Coordinator) Start() {
	c.bindings.Add(c.relay.Subscribe(channel.ContentChanged, c.handleContentChanged))
	c.bindings.Add(c.relay.Subscribe(channel.UnreadCountReply, c.handleUnreadCountReply))
	c.bindings.Add(c.relay.Subscribe(channel.SessionEstablished, c.handleSessionEstablished))
}

// Stop drops the relay subscriptions and any pending query timer.
func (c *Coordinator) Stop() {
	c.bindings.Release()
	c.stopQueryTimer()
}

// OnReady registers fn to run after the window became ready.
func (c *Coordinator) OnReady(fn func()) {
	c.readyHooks = append(c.readyHooks, fn)
}

// OnQuit registers fn to run once when the application quits.
func (c *Coordinator) OnQuit(fn func()) {
	c.quitHooks = append(c.quitHooks, fn)
}

// Status returns a copy of the current state.
func (c *Coordinator) Status() Status {
	return Status{
		Unread:        c.unread,
		Identity:      c.identity,
		Window:        c.windowState,
		ForceQuit:     c.forceQuit.Load(),
		QueryInFlight: c.inflight != 0,
	}
}

// ForceQuit reports the quit latch. Safe from any goroutine.
func (c *Coordinator) ForceQuit() bool {
	return c.forceQuit.Load()
}

func (c *Coordinator) handleContentChanged(channel.Message) {
	if c.inflight != 0 {
		c.requery = true
		return
	}
	c.issueQuery()
}

// issueQuery sends a fire-and-forget query. The reply arrives later as its
// own dispatch turn.
func (c *Coordinator) issueQuery() {
	c.nextRequest++
	id := c.nextRequest

	msg, err := channel.New(channel.QueryUnreadCount, id, nil)
	if err != nil {
		c.log.Errorf("failed to build query: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := c.relay.Send(ctx, msg); err != nil {
		c.log.Debugf("content unavailable, query %d not sent: %v", id, err)
		return
	}

	c.inflight = id
	c.requery = false
	c.stopQueryTimer()
	c.queryTimer = c.loop.AfterFunc(c.queryTimeout, func() {
		if c.inflight != id {
			return
		}
		c.log.Debugf("query %d timed out", id)
		c.inflight = 0
		c.queryTimer = nil
		if c.requery {
			c.issueQuery()
		}
	})
}

func (c *Coordinator) stopQueryTimer() {
	if c.queryTimer != nil {
		c.queryTimer.Stop()
		c.queryTimer = nil
	}
}

func (c *Coordinator) handleUnreadCountReply(m channel.Message) {
	if c.inflight == 0 || m.RequestID != c.inflight {
		c.log.Debugf("discarding stale %s (in flight: %d)", m, c.inflight)
		return
	}

	var reply channel.UnreadCount
	if err := m.Decode(&reply); err != nil {
		c.log.Warnf("malformed %s: %v", m, err)
		c.settleQuery()
		return
	}
	if reply.Count < 0 {
		c.log.Warnf("discarding negative unread count %d", reply.Count)
		c.settleQuery()
		return
	}

	c.unread = UnreadState{Count: reply.Count, ObservedAt: c.now()}
	c.tray.SetUnreadIndicator(reply.Count > 0)
	if reply.Count > 0 && c.app.Config.NotificationsEnabled() {
		c.notifier.NotifyUnreadCount(reply.Count)
	}
	c.log.Debugf("unread count is now %d", reply.Count)

	c.settleQuery()
}

// settleQuery clears the in-flight query and issues the one that was
// requested meanwhile, if any.
func (c *Coordinator) settleQuery() {
	c.inflight = 0
	c.stopQueryTimer()
	if c.requery {
		c.issueQuery()
	}
}

func (c *Coordinator) handleSessionEstablished(m channel.Message) {
	var session channel.Session
	if err := m.Decode(&session); err != nil {
		c.log.Warnf("malformed %s: %v", m, err)
		session.Address = channel.UnknownAddress
	}
	if session.Address == "" {
		session.Address = channel.UnknownAddress
	}

	// Queries sent to a previous session will never be answered.
	c.inflight = 0
	c.requery = false
	c.stopQueryTimer()

	c.identity = Identity{Address: session.Address}
	title := c.Title()
	if c.window != nil && c.windowState != Destroyed {
		c.window.SetTitle(title)
	}
	c.tray.SetTooltip(title)
	c.log.Infof("content session %s established for %s", session.SessionID, session.Address)
}

// Title is the window title and tray tooltip for the current identity.
func (c *Coordinator) Title() string {
	if c.identity.Address == "" {
		return c.app.AppName
	}
	return fmt.Sprintf("%s | %s", c.identity.Address, c.app.AppName)
}

// OpenDevTools asks the content agent to expose its diagnostics.
func (c *Coordinator) OpenDevTools() error {
	msg, err := channel.New(channel.OpenDevTools, 0, nil)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return c.relay.Send(ctx, msg)
}
