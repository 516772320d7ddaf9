// Package window models the main window without a rendering toolkit. The
// content surface is shown by the OS browser or an external viewer; this
// type only tracks the lifecycle the coordinator drives.
package window

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/inboxdock/inboxdock/internal/dispatch"
	"github.com/inboxdock/inboxdock/internal/host"
	"github.com/inboxdock/inboxdock/internal/models"
)

// Headless implements host.Window. Handler registration and Close must run
// on the dispatch loop; Snapshot is safe from any goroutine.
type Headless struct {
	loop *dispatch.Loop
	log  *log.Entry

	onClose  []func(*host.CloseEvent)
	onClosed []func()
	onReady  []func()

	mu        sync.Mutex
	title     string
	visible   bool
	destroyed bool
	bounds    models.Rect
}

// Snapshot is the observable window state.
type Snapshot struct {
	Title     string
	Visible   bool
	Destroyed bool
	Bounds    models.Rect
}

// New creates a hidden window with the given geometry.
func New(loop *dispatch.Loop, bounds models.Rect, entry *log.Entry) *Headless {
	return &Headless{
		loop:   loop,
		log:    entry.WithField("component", "window"),
		bounds: bounds,
	}
}

// Open fires the ready handlers on the loop.
func (w *Headless) Open() {
	w.loop.Post(func() {
		for _, fn := range w.onReady {
			fn()
		}
	})
}

// RequestClose posts a close request, as a window manager would.
func (w *Headless) RequestClose() {
	w.loop.Post(w.Close)
}

// SetTitle implements host.Window.
func (w *Headless) SetTitle(title string) {
	w.mu.Lock()
	w.title = title
	w.mu.Unlock()
	w.log.Debugf("title: %s", title)
}

// Show implements host.Window.
func (w *Headless) Show() {
	w.setVisible(true)
}

// Hide implements host.Window.
func (w *Headless) Hide() {
	w.setVisible(false)
}

func (w *Headless) setVisible(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return
	}
	w.visible = v
}

// Bounds implements host.Window.
func (w *Headless) Bounds() models.Rect {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bounds
}

// Resize changes the geometry, as a user drag would.
func (w *Headless) Resize(r models.Rect) {
	w.mu.Lock()
	w.bounds = r
	w.mu.Unlock()
}

// Close implements host.Window.
func (w *Headless) Close() {
	w.mu.Lock()
	destroyed := w.destroyed
	w.mu.Unlock()
	if destroyed {
		return
	}

	e := &host.CloseEvent{}
	for _, fn := range w.onClose {
		fn(e)
	}
	if e.Prevented() {
		return
	}

	w.mu.Lock()
	w.destroyed = true
	w.visible = false
	w.mu.Unlock()

	for _, fn := range w.onClosed {
		fn()
	}
}

// OnClose implements host.Window.
func (w *Headless) OnClose(fn func(*host.CloseEvent)) {
	w.onClose = append(w.onClose, fn)
}

// OnClosed implements host.Window.
func (w *Headless) OnClosed(fn func()) {
	w.onClosed = append(w.onClosed, fn)
}

// OnReady implements host.Window.
func (w *Headless) OnReady(fn func()) {
	w.onReady = append(w.onReady, fn)
}

// Snapshot returns the current state.
func (w *Headless) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{Title: w.title, Visible: w.visible, Destroyed: w.destroyed, Bounds: w.bounds}
}
