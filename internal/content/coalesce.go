package content

import (
	"slices"
	"time"
)

// CoalescePolicy decides which application events collapse into a single
// content-changed signal.
//
// The first trigger arms a window; triggers inside the window are absorbed.
// When the window closes one signal is emitted and further triggers are
// absorbed until the host consumes it with a query. A signal left
// unconsumed for MaxPending is treated as lost so the next trigger emits
// again.
type CoalescePolicy struct {
	Name       string
	Triggers   []EventKind
	Window     time.Duration
	MaxPending time.Duration
	// OnLoad treats the application's loaded signal as a trigger.
	OnLoad bool
}

// DefaultCoalescePolicy collapses every inbox mutation.
var DefaultCoalescePolicy = CoalescePolicy{
	Name:       "inbox-mutations",
	Triggers:   []EventKind{ItemAdded, MarkedRead, MarkedUnread, ItemDeleted},
	Window:     50 * time.Millisecond,
	MaxPending: 10 * time.Second,
	OnLoad:     true,
}

// Covers reports whether kind is one of the policy triggers.
func (p CoalescePolicy) Covers(kind EventKind) bool {
	return slices.Contains(p.Triggers, kind)
}

type coalescer struct {
	policy       CoalescePolicy
	armed        bool
	pending      bool
	pendingSince time.Time
	absorbed     int
}

func newCoalescer(p CoalescePolicy) *coalescer {
	return &coalescer{policy: p}
}

// trigger records an event and reports whether the window should be armed.
func (c *coalescer) trigger(now time.Time) bool {
	if c.pending {
		if c.policy.MaxPending <= 0 || now.Sub(c.pendingSince) < c.policy.MaxPending {
			c.absorbed++
			return false
		}
		c.pending = false
	}
	if c.armed {
		c.absorbed++
		return false
	}
	c.armed = true
	return true
}

// fire closes the window and reports whether a signal must be emitted.
func (c *coalescer) fire(now time.Time) bool {
	if !c.armed {
		return false
	}
	c.armed = false
	c.pending = true
	c.pendingSince = now
	return true
}

// consume marks the outstanding signal as answered.
func (c *coalescer) consume() {
	c.pending = false
}
