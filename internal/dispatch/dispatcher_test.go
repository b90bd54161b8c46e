package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bringyour/kvbroker/internal/document"
	"github.com/bringyour/kvbroker/internal/id"
	"github.com/bringyour/kvbroker/internal/platform"
	"github.com/bringyour/kvbroker/internal/session"
	"github.com/bringyour/kvbroker/internal/storage"
	"github.com/bringyour/kvbroker/internal/subscribe"
	"github.com/bringyour/kvbroker/internal/wire"
)

func newTestDispatcher() (*Dispatcher, *session.Session) {
	adapters := storage.NewRegistry()
	adapters.Bind(platform.Browser, storage.NewMemory())
	subs := subscribe.NewRegistry()
	d := New(adapters, subs, func() int64 { return 0 })
	sess := session.New(id.New(), platform.Browser)
	return d, sess
}

func decodeFrame(t *testing.T, frame []byte) wire.Envelope {
	t.Helper()
	env, err := wire.Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func TestEchoPing(t *testing.T) {
	d, sess := newTestDispatcher()
	env := wire.Envelope{Type: wire.OpPing, RequestID: 1, Payload: json.RawMessage(`{}`)}
	resp := decodeFrame(t, d.Dispatch(context.Background(), sess, env))

	if resp.Type != wire.OpPingResponse || resp.RequestID != 1 {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if resp.Success == nil || !*resp.Success {
		t.Fatal("expected success=true")
	}
	var data pingResult
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("data decode: %v", err)
	}
	if !data.Pong {
		t.Fatal("expected data.pong=true")
	}
}

func TestSetThenGetRoundTrip(t *testing.T) {
	d, sess := newTestDispatcher()
	ctx := context.Background()

	setPayload := `{"collection":"cart","key":"u1","value":{"items":[],"total":0}}`
	setEnv := wire.Envelope{Type: wire.OpSet, RequestID: 1, Payload: json.RawMessage(setPayload)}
	setResp := decodeFrame(t, d.Dispatch(ctx, sess, setEnv))
	if setResp.Type != wire.OpSetResponse || setResp.RequestID != 1 {
		t.Fatalf("unexpected set response: %+v", setResp)
	}

	getEnv := wire.Envelope{Type: wire.OpGet, RequestID: 2, Payload: json.RawMessage(`{"collection":"cart","key":"u1"}`)}
	getResp := decodeFrame(t, d.Dispatch(ctx, sess, getEnv))
	var got document.Value
	if err := json.Unmarshal(getResp.Data, &got); err != nil {
		t.Fatalf("data decode: %v", err)
	}
	if !got.Field("total").Equal(document.NewNumber(0)) {
		t.Fatalf("expected total=0, got %+v", got)
	}

	missEnv := wire.Envelope{Type: wire.OpGet, RequestID: 3, Payload: json.RawMessage(`{"collection":"cart","key":"u2"}`)}
	missResp := decodeFrame(t, d.Dispatch(ctx, sess, missEnv))
	var miss document.Value
	if err := json.Unmarshal(missResp.Data, &miss); err != nil {
		t.Fatalf("data decode: %v", err)
	}
	if !miss.IsNull() {
		t.Fatalf("expected null for missing key, got %+v", miss)
	}
}

func TestUnknownOpcodeReturnsError(t *testing.T) {
	d, sess := newTestDispatcher()
	env := wire.Envelope{Type: wire.Opcode("FROB"), RequestID: 9}
	resp := decodeFrame(t, d.Dispatch(context.Background(), sess, env))
	if resp.Type != wire.OpError || resp.RequestID != 9 {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if resp.Error == "" {
		t.Fatal("expected a non-empty error message")
	}
}

func TestMissingAdapterReturnsError(t *testing.T) {
	adapters := storage.NewRegistry() // nothing bound
	subs := subscribe.NewRegistry()
	d := New(adapters, subs, func() int64 { return 0 })
	sess := session.New(id.New(), platform.Browser)

	env := wire.Envelope{Type: wire.OpPing, RequestID: 1}
	resp := decodeFrame(t, d.Dispatch(context.Background(), sess, env))
	if resp.Type != wire.OpError {
		t.Fatalf("expected ERROR, got %+v", resp)
	}
}

func TestBatchReturnsResultsInInputOrder(t *testing.T) {
	d, sess := newTestDispatcher()
	batchPayloadJSON := `{"operations":[
		{"id":"a","type":"SET","payload":{"collection":"c","key":"k","value":{"x":1}}},
		{"id":"b","type":"QUERY","payload":{"collection":"c","query":{"x":1}}}
	]}`
	env := wire.Envelope{Type: wire.OpBatch, RequestID: 1, Payload: json.RawMessage(batchPayloadJSON)}
	resp := decodeFrame(t, d.Dispatch(context.Background(), sess, env))

	var results []batchResult
	if err := json.Unmarshal(resp.Data, &results); err != nil {
		t.Fatalf("data decode: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Operation != "a" || results[0].Error != "" {
		t.Fatalf("expected op a to succeed, got %+v", results[0])
	}
	if results[1].Operation != "b" {
		t.Fatalf("expected op b second, got %+v", results[1])
	}
}

func TestSetNotifiesSubscriberNotOriginator(t *testing.T) {
	adapters := storage.NewRegistry()
	adapters.Bind(platform.Browser, storage.NewMemory())
	subs := subscribe.NewRegistry()
	d := New(adapters, subs, func() int64 { return 0 })

	a := session.New(id.New(), platform.Browser)
	b := session.New(id.New(), platform.Browser)
	subs.Subscribe(a, session.Subject{Collection: "cart", Pattern: "u1"})

	env := wire.Envelope{Type: wire.OpSet, RequestID: 1, Payload: json.RawMessage(`{"collection":"cart","key":"u1","value":{"total":7}}`)}
	d.Dispatch(context.Background(), b, env)

	select {
	case frame := <-a.Outbound():
		update := decodeFrame(t, frame)
		if update.Type != wire.OpSubscriptionUpdate || update.Key != "u1" {
			t.Fatalf("unexpected update: %+v", update)
		}
	default:
		t.Fatal("expected a queued subscription update for a")
	}

	select {
	case frame := <-b.Outbound():
		t.Fatalf("originator should not receive an update, got %s", frame)
	default:
	}
}
