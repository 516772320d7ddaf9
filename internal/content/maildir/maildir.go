// Package maildir implements the mailbox application shown in the content
// surface on top of a local Maildir.
package maildir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/inboxdock/inboxdock/internal/content"
	"github.com/inboxdock/inboxdock/internal/daemon/watcher"
)

// Flags carried in a Maildir info suffix.
const (
	flagSeen    = 'S'
	flagTrashed = 'T'
	infoPrefix  = ":2,"
)

// message is the observable state of one Maildir entry.
type message struct {
	Seen    bool
	Trashed bool
}

type snapshot map[string]message

// Mailbox is a content.App backed by a Maildir directory.
type Mailbox struct {
	root    string
	address string
	log     *log.Entry

	watcher *watcher.Watcher
	loaded  chan struct{}
	done    chan struct{}
	closed  sync.Once

	mu        sync.Mutex
	last      snapshot
	nextID    int
	observers map[content.EventKind]map[int]func()
}

// New creates a mailbox for root. address may be empty when unknown.
func New(root, address string, entry *log.Entry) *Mailbox {
	return &Mailbox{
		root:      root,
		address:   address,
		log:       entry,
		loaded:    make(chan struct{}),
		done:      make(chan struct{}),
		observers: make(map[content.EventKind]map[int]func()),
	}
}

// Factory returns a content.Factory producing fresh mailboxes for root.
func Factory(root, address string, entry *log.Entry) content.Factory {
	return func() (content.App, error) {
		return New(root, address, entry), nil
	}
}

// Start creates the Maildir layout if needed, watches it and performs the
// initial scan in the background.
func (m *Mailbox) Start(ctx context.Context) error {
	for _, sub := range []string{"new", "cur", "tmp"} {
		if err := os.MkdirAll(filepath.Join(m.root, sub), 0700); err != nil {
			return fmt.Errorf("create maildir %s: %w", sub, err)
		}
	}

	w, err := watcher.New(m.log)
	if err != nil {
		return fmt.Errorf("create mailbox watcher: %w", err)
	}
	if err := w.WatchMailbox(m.root); err != nil {
		w.Stop()
		return fmt.Errorf("watch maildir %s: %w", m.root, err)
	}
	m.watcher = w
	w.Start()

	go m.run(ctx)
	return nil
}

func (m *Mailbox) run(ctx context.Context) {
	initial, err := scan(m.root)
	if err != nil {
		m.log.Warnf("initial maildir scan failed: %v", err)
		initial = snapshot{}
	}
	m.mu.Lock()
	m.last = initial
	m.mu.Unlock()
	close(m.loaded)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-m.watcher.Events():
			m.refresh()
		}
	}
}

func (m *Mailbox) refresh() {
	next, err := scan(m.root)
	if err != nil {
		m.log.Warnf("maildir scan failed: %v", err)
		return
	}

	m.mu.Lock()
	events := diff(m.last, next)
	m.last = next
	m.mu.Unlock()

	for _, kind := range events {
		m.dispatch(kind)
	}
}

func (m *Mailbox) dispatch(kind content.EventKind) {
	m.mu.Lock()
	bound := m.observers[kind]
	ids := make([]int, 0, len(bound))
	for id := range bound {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, bound[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Loaded is closed after the initial scan.
func (m *Mailbox) Loaded() <-chan struct{} {
	return m.loaded
}

// Observe registers fn for kind.
func (m *Mailbox) Observe(kind content.EventKind, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	if m.observers[kind] == nil {
		m.observers[kind] = make(map[int]func())
	}
	m.observers[kind][id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers[kind], id)
	}
}

// UserAddress returns the configured account address.
func (m *Mailbox) UserAddress() (string, bool) {
	return m.address, m.address != ""
}

// UnreadInboxCount rescans the Maildir and counts unread live messages.
func (m *Mailbox) UnreadInboxCount() (int, error) {
	snap, err := scan(m.root)
	if err != nil {
		return 0, err
	}
	return snap.unread(), nil
}

// Close stops watching the Maildir.
func (m *Mailbox) Close() error {
	m.closed.Do(func() {
		close(m.done)
		if m.watcher != nil {
			m.watcher.Stop()
		}
	})
	return nil
}

func (s snapshot) unread() int {
	n := 0
	for _, msg := range s {
		if !msg.Seen && !msg.Trashed {
			n++
		}
	}
	return n
}

// scan reads new/ and cur/. Messages in new/ have no flags yet.
func scan(root string) (snapshot, error) {
	snap := make(snapshot)
	for _, sub := range []string{"new", "cur"} {
		entries, err := os.ReadDir(filepath.Join(root, sub))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			id, msg := parseName(entry.Name())
			snap[id] = msg
		}
	}
	return snap, nil
}

// parseName splits "unique:2,FLAGS" into the unique id and its flags.
func parseName(name string) (string, message) {
	id, info, found := strings.Cut(name, infoPrefix)
	if !found {
		return name, message{}
	}
	return id, message{
		Seen:    strings.ContainsRune(info, flagSeen),
		Trashed: strings.ContainsRune(info, flagTrashed),
	}
}

// diff classifies the changes between two scans.
func diff(prev, next snapshot) []content.EventKind {
	var events []content.EventKind
	add := func(kind content.EventKind) {
		events = append(events, kind)
	}

	ids := make([]string, 0, len(next))
	for id := range next {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		cur := next[id]
		old, existed := prev[id]
		switch {
		case !existed:
			if !cur.Trashed {
				add(content.ItemAdded)
			}
		case !old.Trashed && cur.Trashed:
			add(content.ItemDeleted)
		case !old.Seen && cur.Seen:
			add(content.MarkedRead)
		case old.Seen && !cur.Seen:
			add(content.MarkedUnread)
		}
	}

	for id, old := range prev {
		if _, ok := next[id]; !ok && !old.Trashed {
			add(content.ItemDeleted)
		}
	}
	return events
}
