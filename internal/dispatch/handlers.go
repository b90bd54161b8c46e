package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bringyour/kvbroker/internal/document"
	"github.com/bringyour/kvbroker/internal/session"
	"github.com/bringyour/kvbroker/internal/storage"
)

func (self *Dispatcher) handleGet(ctx context.Context, adapter storage.Adapter, sess *session.Session, raw json.RawMessage) (interface{}, error) {
	var p getPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid GET payload: %w", err)
	}
	return adapter.Get(ctx, p.Collection, p.Key, decodeOptions(p.Options))
}

func (self *Dispatcher) handleSet(ctx context.Context, adapter storage.Adapter, sess *session.Session, raw json.RawMessage) (interface{}, error) {
	var p setPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid SET payload: %w", err)
	}
	result, err := adapter.Set(ctx, p.Collection, p.Key, p.Value, decodeOptions(p.Options))
	if err != nil {
		return nil, err
	}
	self.subscriptions.Notify(p.Collection, p.Key, "SET", p.Value, sess, self.now())
	return result, nil
}

func (self *Dispatcher) handleDelete(ctx context.Context, adapter storage.Adapter, sess *session.Session, raw json.RawMessage) (interface{}, error) {
	var p deletePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid DELETE payload: %w", err)
	}
	result, err := adapter.Delete(ctx, p.Collection, p.Key, decodeOptions(p.Options))
	if err != nil {
		return nil, err
	}
	self.subscriptions.Notify(p.Collection, p.Key, "DELETE", document.Null, sess, self.now())
	return result, nil
}

func (self *Dispatcher) handleQuery(ctx context.Context, adapter storage.Adapter, sess *session.Session, raw json.RawMessage) (interface{}, error) {
	var p queryPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid QUERY payload: %w", err)
	}
	rows, err := adapter.Query(ctx, p.Collection, p.Query, decodeOptions(p.Options))
	if err != nil {
		return nil, err
	}
	return rowsToValues(rows), nil
}

func (self *Dispatcher) handlePing(ctx context.Context, adapter storage.Adapter, sess *session.Session, raw json.RawMessage) (interface{}, error) {
	return pingResult{Pong: true}, nil
}

func (self *Dispatcher) handleSubscribe(ctx context.Context, adapter storage.Adapter, sess *session.Session, raw json.RawMessage) (interface{}, error) {
	var p subscribePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid SUBSCRIBE payload: %w", err)
	}
	result := self.subscriptions.Subscribe(sess, session.Subject{Collection: p.Collection, Pattern: p.Pattern})
	return map[string]bool{"subscribed": true, "added": result.Added}, nil
}

func (self *Dispatcher) handleUnsubscribe(ctx context.Context, adapter storage.Adapter, sess *session.Session, raw json.RawMessage) (interface{}, error) {
	var p unsubscribePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid UNSUBSCRIBE payload: %w", err)
	}
	if err := self.subscriptions.Unsubscribe(sess, session.Subject{Collection: p.Collection, Pattern: p.Pattern}); err != nil {
		return nil, err
	}
	return map[string]bool{"unsubscribed": true}, nil
}
