// Package dispatch implements the request dispatcher: routing an
// inbound envelope to the handler for its opcode, resolving the session's
// storage adapter, and emitting a correlated response — plus, for
// mutations, a notify-after-commit fan-out via the subscription registry.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/golang/glog"

	"github.com/bringyour/kvbroker/internal/session"
	"github.com/bringyour/kvbroker/internal/storage"
	"github.com/bringyour/kvbroker/internal/subscribe"
	"github.com/bringyour/kvbroker/internal/wire"
)

// BatchMode controls whether a failing sub-operation inside BATCH aborts
// the remaining operations. Defaults to "continue"; see DESIGN.md for the
// tradeoff.
type BatchMode int

const (
	BatchModeContinue BatchMode = iota
	BatchModeAbort
)

// Handler executes one request opcode against an adapter and session,
// returning the value that becomes the response's `data` field.
type Handler func(ctx context.Context, adapter storage.Adapter, sess *session.Session, payload json.RawMessage) (interface{}, error)

// Clock lets tests substitute a fixed timestamp source; production wiring
// uses time.Now().UnixMilli.
type Clock func() int64

// Dispatcher routes envelopes to their handler. It is built once at
// broker startup with a static, exhaustively-checked opcode table — a map
// populated in New and asserted complete against wire.RequestOpcodes.
type Dispatcher struct {
	adapters      *storage.Registry
	subscriptions *subscribe.Registry
	handlers      map[wire.Opcode]Handler
	now           Clock
	BatchMode     BatchMode
}

func New(adapters *storage.Registry, subscriptions *subscribe.Registry, now Clock) *Dispatcher {
	d := &Dispatcher{
		adapters:      adapters,
		subscriptions: subscriptions,
		now:           now,
		BatchMode:     BatchModeContinue,
	}
	d.handlers = map[wire.Opcode]Handler{
		wire.OpGet:         d.handleGet,
		wire.OpSet:         d.handleSet,
		wire.OpDelete:      d.handleDelete,
		wire.OpQuery:       d.handleQuery,
		wire.OpPing:        d.handlePing,
		wire.OpSubscribe:   d.handleSubscribe,
		wire.OpUnsubscribe: d.handleUnsubscribe,
		// handleBatch looks each sub-operation up in this same table.
		wire.OpBatch: d.handleBatch,
	}
	for _, op := range wire.RequestOpcodes {
		if _, ok := d.handlers[op]; !ok {
			panic(fmt.Sprintf("dispatch: no handler registered for opcode %s", op))
		}
	}
	return d
}

// Dispatch processes exactly one inbound envelope for sess and returns the
// encoded response frame to deliver back to the same connection. It never
// returns an error itself: every failure mode becomes an ERROR or
// `<TYPE>_RESPONSE{success:false}` envelope, so a malformed or unlucky
// request does not take down the connection. The one exception is a
// response that fails to encode: Dispatch then returns nil, and the caller
// ends the connection.
func (self *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, env wire.Envelope) []byte {
	handler, ok := self.handlers[env.Type]
	if !ok {
		return self.encode(wire.NewErrorEnvelope(env.RequestID, fmt.Sprintf("Unknown message type: %s", env.Type), self.now()))
	}

	adapter, err := self.adapters.Resolve(sess.Platform)
	if err != nil {
		return self.encode(wire.NewErrorEnvelope(env.RequestID, err.Error(), self.now()))
	}

	result, err := handler(ctx, adapter, sess, env.Payload)
	if err != nil {
		return self.encode(wire.NewErrorResponse(env.RequestID, env.Type, err.Error(), self.now()))
	}

	// notify-after-commit: the mutation handlers above have already
	// invoked the subscription registry synchronously before returning,
	// so by the time we build the response the fan-out has already been
	// queued to every matching session.
	respEnv, err := wire.NewResponse(env.RequestID, env.Type, result, self.now())
	if err != nil {
		glog.Errorf("dispatch: encode response for %s: %v", env.Type, err)
		return self.encode(wire.NewErrorEnvelope(env.RequestID, "internal encode error", self.now()))
	}
	return self.encode(respEnv)
}

func (self *Dispatcher) encode(env wire.Envelope) []byte {
	frame, err := wire.Encode(env)
	if err != nil {
		// broker-generated envelopes should always encode; this is the one
		// case that terminates the connection, signaled to the caller by
		// returning nil.
		glog.Errorf("dispatch: fatal encode failure: %v", err)
		return nil
	}
	return frame
}
