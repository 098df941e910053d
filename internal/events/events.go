// Package events delivers mutation results to subscribers. The store
// layer never touches presentation: it only announces that records
// changed, and interested layers (session snapshots, views) react.
package events

import "sync"

// Op is the kind of mutation that happened.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// RecordsChanged describes one committed mutation.
type RecordsChanged struct {
	Op Op
	ID int64
}

// Bus fans RecordsChanged events out to subscribers. Delivery is
// synchronous and in subscription order; subscribers must be fast.
type Bus struct {
	mu   sync.RWMutex
	subs []func(RecordsChanged)
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for every future event.
func (b *Bus) Subscribe(fn func(RecordsChanged)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Publish delivers the event to every subscriber.
func (b *Bus) Publish(e RecordsChanged) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}
