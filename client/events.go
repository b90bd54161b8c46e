package client

import (
	"sync"

	"golang.org/x/exp/slices"
)

// CallbackList is a copy-on-write, mutex-guarded list of callbacks,
// ported from bringyour-connect's identical CallbackList[T] in
// connect/util.go: Get returns a snapshot so callers can safely range over
// it while another goroutine adds or removes an entry.
type CallbackList[T comparable] struct {
	mutex     sync.Mutex
	callbacks []T
}

func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.callbacks
}

func (self *CallbackList[T]) Add(callback T) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if slices.Index(self.callbacks, callback) >= 0 {
		return
	}
	next := slices.Clone(self.callbacks)
	self.callbacks = append(next, callback)
}

func (self *CallbackList[T]) Remove(callback T) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	i := slices.Index(self.callbacks, callback)
	if i < 0 {
		return
	}
	next := slices.Clone(self.callbacks)
	self.callbacks = slices.Delete(next, i, i+1)
}

// Event is the client's fixed event set.
type Event string

const (
	EventConnected                   Event = "connected"
	EventReady                       Event = "ready"
	EventDisconnected                Event = "disconnected"
	EventError                       Event = "error"
	EventDataUpdate                  Event = "dataUpdate"
	EventMaxReconnectAttemptsReached Event = "maxReconnectAttemptsReached"
)

// EventCallback receives the error passed to Emit; the client itself emits
// every event with a nil error.
type EventCallback func(err error)

type eventBus struct {
	mutex     sync.RWMutex
	listeners map[Event]*CallbackList[*eventCallbackID]
}

// eventCallbackID wraps a callback in a comparable pointer so CallbackList
// (which requires T comparable) can dedupe/remove by identity even though
// func values themselves aren't comparable.
type eventCallbackID struct {
	fn EventCallback
}

func newEventBus() *eventBus {
	return &eventBus{listeners: map[Event]*CallbackList[*eventCallbackID]{}}
}

func (self *eventBus) listOf(event Event) *CallbackList[*eventCallbackID] {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	list, ok := self.listeners[event]
	if !ok {
		list = &CallbackList[*eventCallbackID]{}
		self.listeners[event] = list
	}
	return list
}

// On registers callback for event and returns an unsubscribe function.
func (self *eventBus) On(event Event, callback EventCallback) func() {
	id := &eventCallbackID{fn: callback}
	list := self.listOf(event)
	list.Add(id)
	return func() { list.Remove(id) }
}

func (self *eventBus) Emit(event Event, err error) {
	for _, id := range self.listOf(event).Get() {
		id.fn(err)
	}
}
