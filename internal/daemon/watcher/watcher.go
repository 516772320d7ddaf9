// Package watcher handles file system watching for the host and the
// mailbox application.
package watcher

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// EventType represents the type of file system event.
type EventType int

// Event types for file system changes.
const (
	EventSettingsChanged EventType = iota
	EventMailboxChanged
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 100 * time.Millisecond

// Event represents a debounced file system change.
type Event struct {
	Type EventType
	Path string
}

type target struct {
	typ EventType
	key string // debounce key and reported path
}

// Watcher watches files and directories and reports debounced changes.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	eventsChan chan Event
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	files      map[string]target // file path -> target
	dirs       map[string]target // directory path -> target
	delay      time.Duration
	debounce   map[string]*time.Timer
	debounceMu sync.Mutex
	log        *log.Entry
}

// New creates a new file system watcher.
func New(entry *log.Entry) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher:  fsWatcher,
		eventsChan: make(chan Event, 100),
		done:       make(chan struct{}),
		files:      make(map[string]target),
		dirs:       make(map[string]target),
		delay:      DefaultDebounce,
		debounce:   make(map[string]*time.Timer),
		log:        entry,
	}

	return w, nil
}

// SetDebounce changes the quiet period. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.delay = d
}

// Events returns the channel for receiving events.
func (w *Watcher) Events() <-chan Event {
	return w.eventsChan
}

// Start starts processing events.
func (w *Watcher) Start() {
	go w.processEvents()
}

// Stop stops the watcher. Pending debounced events are discarded.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsWatcher.Close()

		w.debounceMu.Lock()
		for path, timer := range w.debounce {
			timer.Stop()
			delete(w.debounce, path)
		}
		w.debounceMu.Unlock()
	})
}

// WatchSettings reports changes to the settings file at path. The parent
// directory is watched so atomic replacements are seen.
func (w *Watcher) WatchSettings(path string) error {
	path = filepath.Clean(path)
	if err := w.fsWatcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	w.mu.Lock()
	w.files[path] = target{typ: EventSettingsChanged, key: path}
	w.mu.Unlock()

	w.log.Debugf("watching settings %s", path)
	return nil
}

// WatchMailbox reports changes under a Maildir's new/ and cur/ folders as a
// single debounced event keyed by root.
func (w *Watcher) WatchMailbox(root string) error {
	root = filepath.Clean(root)
	t := target{typ: EventMailboxChanged, key: root}

	for _, sub := range []string{"new", "cur"} {
		dir := filepath.Join(root, sub)
		if err := w.fsWatcher.Add(dir); err != nil {
			return err
		}
		w.mu.Lock()
		w.dirs[dir] = t
		w.mu.Unlock()
	}

	w.log.Debugf("watching mailbox %s", root)
	return nil
}

// UnwatchMailbox stops reporting changes for root.
func (w *Watcher) UnwatchMailbox(root string) {
	root = filepath.Clean(root)

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range []string{"new", "cur"} {
		dir := filepath.Join(root, sub)
		delete(w.dirs, dir)
		_ = w.fsWatcher.Remove(dir)
	}
}

// processEvents processes file system events.
func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.log.Tracef("fsnotify: %s %s", event.Op, event.Name)
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warnf("watcher error: %v", err)
		}
	}
}

// handleEvent routes a raw event to its target.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Rename matters: atomic writes (write tmp, rename onto target) surface as
	// renames, and Maildir moves messages between new/ and cur/ the same way.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}

	path := filepath.Clean(event.Name)

	w.mu.RLock()
	t, ok := w.files[path]
	if !ok {
		t, ok = w.dirs[filepath.Dir(path)]
	}
	w.mu.RUnlock()
	if !ok {
		return
	}

	w.debounceEvent(t.key, func() {
		w.emit(Event{Type: t.typ, Path: t.key})
	})
}

// debounceEvent debounces events for the same key.
func (w *Watcher) debounceEvent(key string, fn func()) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, ok := w.debounce[key]; ok {
		timer.Stop()
	}

	w.debounce[key] = time.AfterFunc(w.delay, func() {
		w.debounceMu.Lock()
		delete(w.debounce, key)
		w.debounceMu.Unlock()
		fn()
	})
}

func (w *Watcher) emit(e Event) {
	select {
	case w.eventsChan <- e:
	case <-w.done:
	}
}
