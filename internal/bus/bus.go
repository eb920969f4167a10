// Package bus delivers change notifications to observers of canonical
// locators.
package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process publish/subscribe event bus with locator filtering.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	namespace string
	ch        chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// matches reports whether kind is namespace or lies below it. An empty
// namespace matches everything.
func matches(namespace, kind string) bool {
	if namespace == "" || kind == namespace {
		return true
	}
	return strings.HasPrefix(kind, namespace+"/")
}

// Publish sends an event to all subscribers watching its locator.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if matches(sub.namespace, evt.Kind) {
			select {
			case sub.ch <- evt:
			default:
				// Drop event if subscriber is full (non-blocking).
			}
		}
	}
}

// Notify publishes a local change event for each locator.
func (b *Bus) Notify(locators ...string) {
	for _, l := range locators {
		b.Publish(Change(l))
	}
}

// Subscribe returns a channel that receives events for namespace and the
// locators below it. bufSize controls the channel buffer. Returns the
// channel and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: strings.Trim(namespace, "/"), ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}
