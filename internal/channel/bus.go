package channel

import (
	"sort"
	"sync"
)

// Handler receives messages published on a channel.
type Handler func(Message)

// Bus routes messages to handlers by channel name. Every subscription returns
// its own unsubscribe function.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[Name]map[int]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Name]map[int]Handler)}
}

// Subscribe registers h for name. The returned function removes the binding
// and is safe to call more than once.
func (b *Bus) Subscribe(name Name, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	if b.subs[name] == nil {
		b.subs[name] = make(map[int]Handler)
	}
	b.subs[name][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[name], id)
			if len(b.subs[name]) == 0 {
				delete(b.subs, name)
			}
		})
	}
}

// Publish delivers m to the handlers of its channel in subscription order and
// reports whether any handler was bound.
func (b *Bus) Publish(m Message) bool {
	b.mu.RLock()
	bound := b.subs[m.Channel]
	ids := make([]int, 0, len(bound))
	for id := range bound {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, bound[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(m)
	}
	return len(handlers) > 0
}

// Len returns the number of live bindings across all channels.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, bound := range b.subs {
		n += len(bound)
	}
	return n
}

// Bindings collects unsubscribe functions so a component can drop all of its
// bindings in one step.
type Bindings struct {
	mu      sync.Mutex
	cancels []func()
}

// Add records an unsubscribe function.
func (b *Bindings) Add(cancel func()) {
	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()
}

// Release runs every recorded unsubscribe function, newest first.
func (b *Bindings) Release() {
	b.mu.Lock()
	cancels := b.cancels
	b.cancels = nil
	b.mu.Unlock()

	for i := len(cancels) - 1; i >= 0; i-- {
		cancels[i]()
	}
}
