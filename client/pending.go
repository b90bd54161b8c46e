package client

import (
	"encoding/json"
	"sync"
)

// pendingRequest is one in-flight request's waiter. complete is invoked
// exactly once: the timeout sweep must
// not race with response delivery, so whichever of the reader goroutine
// or the timeout timer removes the entry from the table first is the one
// that gets to complete it.
type pendingRequest struct {
	done chan struct{}
	data json.RawMessage
	err  error
}

// pendingTable is the client's requestId -> waiter index.
type pendingTable struct {
	mutex   sync.Mutex
	entries map[int64]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: map[int64]*pendingRequest{}}
}

func (self *pendingTable) register(requestID int64) *pendingRequest {
	p := &pendingRequest{done: make(chan struct{})}
	self.mutex.Lock()
	self.entries[requestID] = p
	self.mutex.Unlock()
	return p
}

// take removes and returns the entry for requestID if present. Both the
// response-delivery path and the timeout path call take; only the first
// caller gets a non-nil result, which is what makes completion single-owner.
func (self *pendingTable) take(requestID int64) (*pendingRequest, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	p, ok := self.entries[requestID]
	if ok {
		delete(self.entries, requestID)
	}
	return p, ok
}

// drainAll removes every pending entry and returns them, used when the
// transport disconnects: every pending request is failed immediately
// rather than replayed.
func (self *pendingTable) drainAll() []*pendingRequest {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	out := make([]*pendingRequest, 0, len(self.entries))
	for id, p := range self.entries {
		out = append(out, p)
		delete(self.entries, id)
	}
	return out
}

func (p *pendingRequest) complete(data json.RawMessage, err error) {
	p.data = data
	p.err = err
	close(p.done)
}
