// Package bus provides named in-process event channels with
// subscribe/unsubscribe semantics. Runs open subscriptions on entry and must
// release them on every exit path; a leaked subscription shows up as duplicate
// log lines or stale progress updates on the next run.
package bus

import (
	"sync"

	"github.com/google/uuid"
)

// Handler receives one published event.
type Handler func(event any)

// Bus dispatches events to subscribers of a named channel. Dispatch is
// synchronous and in subscription order.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[string]Handler
	ord  map[string][]string
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[string]map[string]Handler),
		ord:  make(map[string][]string),
	}
}

// Subscribe registers h on channel and returns the release function.
// Releasing twice is harmless.
func (b *Bus) Subscribe(channel string, h Handler) (unsubscribe func()) {
	token := uuid.NewString()
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[string]Handler)
	}
	b.subs[channel][token] = h
	b.ord[channel] = append(b.ord[channel], token)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[channel], token)
			tokens := b.ord[channel]
			for i, t := range tokens {
				if t == token {
					b.ord[channel] = append(tokens[:i], tokens[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
		})
	}
}

// Publish delivers event to every current subscriber of channel.
func (b *Bus) Publish(channel string, event any) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.ord[channel]))
	for _, token := range b.ord[channel] {
		if h, ok := b.subs[channel][token]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}

// SubscriberCount returns the number of live subscriptions on channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}
