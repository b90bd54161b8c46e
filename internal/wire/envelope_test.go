package wire

import (
	"encoding/json"
	"testing"
)

func TestDecodeDropsMalformedFrame(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Fatal("expected decode error for malformed frame")
	}
}

func TestResponseEchoesRequestID(t *testing.T) {
	env, err := NewResponse(7, OpSet, map[string]any{"key": "u1"}, 1700000000000)
	if err != nil {
		t.Fatalf("new response: %v", err)
	}
	if env.RequestID != 7 {
		t.Fatalf("expected requestId 7, got %d", env.RequestID)
	}
	if env.Type != OpSetResponse {
		t.Fatalf("expected SET_RESPONSE, got %s", env.Type)
	}
	if env.Success == nil || !*env.Success {
		t.Fatal("expected success=true")
	}
}

func TestErrorEnvelopeEchoesRequestID(t *testing.T) {
	env := NewErrorEnvelope(3, "Unknown message type: FOO", 0)
	if env.Type != OpError {
		t.Fatalf("expected ERROR, got %s", env.Type)
	}
	if env.RequestID != 3 {
		t.Fatal("expected requestId echoed")
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	raw := []byte(`{"type":"SET","requestId":7,"timestamp":1700000000000,"payload":{"collection":"cart","key":"u1","value":{"items":[],"total":0}}}`)
	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != OpSet || env.RequestID != 7 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	var payload struct {
		Collection string          `json:"collection"`
		Key        string          `json:"key"`
		Value      json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if payload.Collection != "cart" || payload.Key != "u1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}
