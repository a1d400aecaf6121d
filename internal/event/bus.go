package event

import (
	"slices"
	"sync"
)

// Listener receives every dispatched event.
type Listener func(Event)

type subscription struct {
	id       uint64
	listener Listener
}

// Bus is an in-memory, synchronous publish/subscribe channel scoped to one
// tree. Listeners run in subscription order on the dispatching goroutine.
//
// Dispatch iterates over the listener list as it was when dispatch started;
// subscription changes made by a listener take effect for the next event.
// Listeners may dispatch further events; those are delivered depth-first.
type Bus struct {
	mutex  sync.Mutex
	nextID uint64
	subs   []subscription
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe adds a listener and returns the function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(listener Listener) (unsubscribe func()) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.nextID++
	id := b.nextID
	// copy on write so in-flight dispatches keep their snapshot
	next := slices.Clone(b.subs)
	next = append(next, subscription{id: id, listener: listener})
	b.subs = next

	return func() {
		b.remove(id)
	}
}

func (b *Bus) remove(id uint64) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	i := slices.IndexFunc(b.subs, func(s subscription) bool { return s.id == id })
	if i < 0 {
		// not present
		return
	}
	next := slices.Clone(b.subs)
	next = slices.Delete(next, i, i+1)
	b.subs = next
}

// Dispatch delivers event to every current listener in subscription order.
func (b *Bus) Dispatch(event Event) {
	b.mutex.Lock()
	subs := b.subs
	b.mutex.Unlock()

	for _, s := range subs {
		s.listener(event)
	}
}

// Len returns the number of listeners.
func (b *Bus) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.subs)
}
