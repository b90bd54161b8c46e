// Package wire implements the broker's on-the-wire envelope format: framed
// UTF-8 JSON messages with an opcode, a client-chosen request id, a
// type-specific payload, and a timestamp. Decoding follows the same
// tolerant convention as bringyour-connect's frame handling in
// connect/frame.go: a malformed frame is reported to the caller, never
// panics, and never by itself terminates the connection.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/bringyour/kvbroker/internal/document"
)

// Opcode is a closed enumeration of every envelope type the broker
// recognizes, request and server-initiated alike. Dispatch keys off this
// type instead of raw strings once an envelope is decoded.
type Opcode string

const (
	OpGet         Opcode = "GET"
	OpGetResponse Opcode = "GET_RESPONSE"

	OpSet         Opcode = "SET"
	OpSetResponse Opcode = "SET_RESPONSE"

	OpDelete         Opcode = "DELETE"
	OpDeleteResponse Opcode = "DELETE_RESPONSE"

	OpQuery         Opcode = "QUERY"
	OpQueryResponse Opcode = "QUERY_RESPONSE"

	OpBatch         Opcode = "BATCH"
	OpBatchResponse Opcode = "BATCH_RESPONSE"

	OpPing         Opcode = "PING"
	OpPingResponse Opcode = "PING_RESPONSE"

	OpSubscribe         Opcode = "SUBSCRIBE"
	OpSubscribeResponse Opcode = "SUBSCRIBE_RESPONSE"

	OpUnsubscribe         Opcode = "UNSUBSCRIBE"
	OpUnsubscribeResponse Opcode = "UNSUBSCRIBE_RESPONSE"

	// server-initiated, never sent by a client
	OpConnectionEstablished Opcode = "CONNECTION_ESTABLISHED"
	OpSubscriptionUpdate    Opcode = "SUBSCRIPTION_UPDATE"
	OpError                 Opcode = "ERROR"
)

// RequestOpcodes lists every client-issued opcode the dispatcher must have a
// handler for; used at startup to assert exhaustiveness (see dispatch.New).
var RequestOpcodes = []Opcode{
	OpGet, OpSet, OpDelete, OpQuery, OpBatch, OpPing, OpSubscribe, OpUnsubscribe,
}

// ResponseFor returns the response opcode for a request opcode.
func ResponseFor(op Opcode) Opcode {
	return Opcode(string(op) + "_RESPONSE")
}

// Envelope is one JSON message on the wire, in either direction.
type Envelope struct {
	Type      Opcode          `json:"type"`
	RequestID int64           `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`

	// response-only fields
	Success *bool           `json:"success,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`

	// SUBSCRIPTION_UPDATE fields, flattened onto the envelope per spec's
	// wire example rather than nested under Payload/Data.
	Collection string          `json:"collection,omitempty"`
	Key        string          `json:"key,omitempty"`
	Operation  string          `json:"operation,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`

	// CONNECTION_ESTABLISHED fields
	ClientID     string   `json:"clientId,omitempty"`
	Platform     string   `json:"platform,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// Decode parses a raw frame into an Envelope. Callers must not close the
// connection on error; a decode failure is logged and the
// frame is dropped.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode: %w", err)
	}
	return env, nil
}

// Encode serializes an Envelope. Broker-generated envelopes should never
// fail to encode; a failure here is treated as fatal to the connection by
// callers (see broker.Server).
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func successPtr(b bool) *bool { return &b }

// NewResponse builds a `<TYPE>_RESPONSE` success envelope carrying data,
// preserving the request id.
func NewResponse(requestID int64, op Opcode, data interface{}, now int64) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:      ResponseFor(op),
		RequestID: requestID,
		Success:   successPtr(true),
		Data:      raw,
		Timestamp: now,
	}, nil
}

// NewErrorResponse builds a `<TYPE>_RESPONSE` failure envelope.
func NewErrorResponse(requestID int64, op Opcode, message string, now int64) Envelope {
	return Envelope{
		Type:      ResponseFor(op),
		RequestID: requestID,
		Success:   successPtr(false),
		Error:     message,
		Timestamp: now,
	}
}

// NewErrorEnvelope builds a bare ERROR envelope for protocol-level failures
// (unknown opcode, missing adapter).
func NewErrorEnvelope(requestID int64, message string, now int64) Envelope {
	return Envelope{
		Type:      OpError,
		RequestID: requestID,
		Success:   successPtr(false),
		Error:     message,
		Timestamp: now,
	}
}

// NewWelcome builds the CONNECTION_ESTABLISHED envelope sent exactly once at
// accept time.
func NewWelcome(clientID, platform string, capabilities []string, now int64) Envelope {
	return Envelope{
		Type:         OpConnectionEstablished,
		ClientID:     clientID,
		Platform:     platform,
		Capabilities: capabilities,
		Timestamp:    now,
	}
}

// NewSubscriptionUpdate builds a server-initiated fan-out notification.
func NewSubscriptionUpdate(collection, key, operation string, value document.Value, now int64) (Envelope, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:       OpSubscriptionUpdate,
		Collection: collection,
		Key:        key,
		Operation:  operation,
		Value:      raw,
		Timestamp:  now,
	}, nil
}
