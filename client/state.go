// Package client implements the broker's outbound client session: a
// reconnecting WebSocket client with request-id correlation, a
// pending-request table, timeouts, exponential backoff, and a local
// subscription table. It is a direct generalization of
// bringyour-connect's PlatformTransport (connect/transport.go) — dial,
// pump, reconnect-on-error — retargeted from that package's multi-hop
// transport routing onto the broker's request/response/subscription
// protocol.
package client

import "sync/atomic"

// State is the client's connection state machine: idle -> connecting ->
// open -> ready -> closing -> closed, plus a reconnect loop back to
// connecting on an unclean close.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type stateBox struct {
	v atomic.Int32
}

func (self *stateBox) Load() State {
	return State(self.v.Load())
}

func (self *stateBox) Store(s State) {
	self.v.Store(int32(s))
}
