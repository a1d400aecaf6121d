package service

import (
	"sync"

	"cleantree/internal/event"
)

// Feed fans out committed changes, one bus per tree. Buses are created on
// first use and dropped when their last watcher leaves.
type Feed struct {
	mutex sync.Mutex
	buses map[string]*event.Bus
}

// NewFeed creates an empty feed
func NewFeed() *Feed {
	return &Feed{buses: make(map[string]*event.Bus)}
}

// Watch subscribes listener to treeID.
func (f *Feed) Watch(treeID string, listener event.Listener) (stop func()) {
	f.mutex.Lock()
	bus, ok := f.buses[treeID]
	if !ok {
		bus = event.NewBus()
		f.buses[treeID] = bus
	}
	unsubscribe := bus.Subscribe(listener)
	f.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mutex.Lock()
			defer f.mutex.Unlock()
			unsubscribe()
			if bus.Len() == 0 && f.buses[treeID] == bus {
				delete(f.buses, treeID)
			}
		})
	}
}

// Publish delivers events to the watchers of treeID, in order.
func (f *Feed) Publish(treeID string, events ...event.Event) {
	f.mutex.Lock()
	bus := f.buses[treeID]
	f.mutex.Unlock()
	if bus == nil {
		return
	}
	for _, e := range events {
		bus.Dispatch(e)
	}
}

// Watchers reports how many listeners watch treeID.
func (f *Feed) Watchers(treeID string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if bus := f.buses[treeID]; bus != nil {
		return bus.Len()
	}
	return 0
}
