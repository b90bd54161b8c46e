// Package session implements the broker-side connection session:
// per-connection identity, platform, subscription set, and liveness state.
package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bringyour/kvbroker/internal/id"
	"github.com/bringyour/kvbroker/internal/platform"
)

// Subject is a (collection, pattern) subscription key. Pattern is either a
// literal key or the wildcard "*".
type Subject struct {
	Collection string
	Pattern    string
}

// OutboundBufferSize bounds the per-session outbound queue. It mirrors
// TransportBufferSize in bringyour-connect's connect/transport.go: small on
// purpose, since a slow reader should be detected (and its updates
// dropped) quickly rather than let the broker accumulate unbounded memory
// per session.
const OutboundBufferSize = 32

// Session is the broker-side state object for one live client connection.
// Outbound frames are queued on a channel and drained by a single writer
// goroutine owned by the broker (see broker.Server), so that fan-out from
// multiple mutators is delivered to this session in the order it was
// enqueued, while never blocking the mutator: Send is non-blocking and
// drops the frame if the queue is full.
//
// Teardown is signaled through done rather than by closing outbound:
// subscription fan-out calls Send from an arbitrary mutator's goroutine
// after releasing the subscription registry's lock, so by the time Send
// runs this session's own teardown may already be underway on another
// goroutine. Closing outbound from that teardown path would race a
// concurrent send on the same channel and panic; done only ever
// transitions open-to-closed, and Send's select treats it as just another
// case, so the race is inert instead of fatal.
type Session struct {
	ID       id.ID
	Platform platform.Platform

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once

	alive atomic.Bool

	mutex         sync.RWMutex
	subscriptions map[Subject]struct{}
}

func New(sessionID id.ID, p platform.Platform) *Session {
	s := &Session{
		ID:            sessionID,
		Platform:      p,
		outbound:      make(chan []byte, OutboundBufferSize),
		done:          make(chan struct{}),
		subscriptions: map[Subject]struct{}{},
	}
	s.alive.Store(true)
	return s
}

// ErrOutboundFull is returned by Send when the session's queue is full or
// already torn down; callers log and drop it, per the fire-and-forget
// delivery rule.
var ErrOutboundFull = errOutboundFull{}

type errOutboundFull struct{}

func (errOutboundFull) Error() string { return "session: outbound queue full" }

// Send enqueues frame for delivery without blocking the caller. It is safe
// to call concurrently with CloseOutbound from any goroutine: a session
// torn down between the caller's check and this call simply drops the
// frame instead of panicking on a closed channel.
func (self *Session) Send(frame []byte) error {
	select {
	case <-self.done:
		return ErrOutboundFull
	default:
	}
	select {
	case self.outbound <- frame:
		return nil
	default:
		return ErrOutboundFull
	}
}

// SendBlocking enqueues frame, blocking until the queue has room, ctx is
// done, or the session is torn down. The read loop uses this for a
// session's own responses, which must never be silently dropped: this is
// where a slow peer applies backpressure, and it naturally pauses that
// session's inbound processing without affecting any other session.
func (self *Session) SendBlocking(ctx context.Context, frame []byte) error {
	select {
	case self.outbound <- frame:
		return nil
	case <-self.done:
		return ErrOutboundFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outbound exposes the queue for the broker's write pump to drain. The
// pump also selects on Done to know when to stop, since outbound itself is
// never closed.
func (self *Session) Outbound() <-chan []byte {
	return self.outbound
}

// Done reports when the session has been torn down, for the write pump's
// select loop to notice alongside Outbound.
func (self *Session) Done() <-chan struct{} {
	return self.done
}

// CloseOutbound signals teardown. Safe to call more than once and from
// multiple goroutines; only the first call has any effect.
func (self *Session) CloseOutbound() {
	self.closeOnce.Do(func() { close(self.done) })
}

func (self *Session) SetAlive(alive bool) {
	self.alive.Store(alive)
}

func (self *Session) Alive() bool {
	return self.alive.Load()
}

// Subscribe adds a subject to this session's own subscription set.
// Returns false if it was already present (a no-op per the resolved open
// question in DESIGN.md).
func (self *Session) Subscribe(subject Subject) (added bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if _, exists := self.subscriptions[subject]; exists {
		return false
	}
	self.subscriptions[subject] = struct{}{}
	return true
}

// Unsubscribe removes a subject. Returns false if it was not present.
func (self *Session) Unsubscribe(subject Subject) (removed bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if _, exists := self.subscriptions[subject]; !exists {
		return false
	}
	delete(self.subscriptions, subject)
	return true
}

// Subjects returns a snapshot of this session's current subscription set.
func (self *Session) Subjects() []Subject {
	self.mutex.RLock()
	defer self.mutex.RUnlock()
	out := make([]Subject, 0, len(self.subscriptions))
	for s := range self.subscriptions {
		out = append(out, s)
	}
	return out
}

func (self *Session) HasSubject(subject Subject) bool {
	self.mutex.RLock()
	defer self.mutex.RUnlock()
	_, ok := self.subscriptions[subject]
	return ok
}
