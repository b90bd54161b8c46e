package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/bringyour/kvbroker/internal/document"
	"github.com/bringyour/kvbroker/internal/wire"
)

// Config configures an outbound Client.
type Config struct {
	ServerURL string
	// Platform overrides platform auto-detection by sending an
	// x-platform header; empty lets the broker infer from User-Agent.
	Platform string
	// ReconnectInterval is the backoff base (default 5s).
	ReconnectInterval time.Duration
	// MaxReconnectAttempts bounds the reconnect loop (default 10).
	MaxReconnectAttempts int
}

func DefaultConfig(serverURL string) Config {
	return Config{
		ServerURL:             serverURL,
		ReconnectInterval:     5 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

const connectTimeout = 10 * time.Second
const requestTimeout = 30 * time.Second

// Subject identifies a subscription target: a literal key or the
// wildcard "*" within a collection.
type Subject struct {
	Collection string
	Pattern    string
}

// Update is a decoded SUBSCRIPTION_UPDATE delivered to a local callback.
type Update struct {
	Collection string
	Key        string
	Operation  string
	Value      document.Value
	Timestamp  int64
}

// Client is the broker's outbound client session.
type Client struct {
	cfg    Config
	events *eventBus

	state stateBox

	connMutex sync.Mutex
	conn      *websocket.Conn
	closing   atomic.Bool

	nextRequestID atomic.Int64
	pending       *pendingTable

	subMutex  sync.RWMutex
	callbacks map[Subject][]func(Update)

	clientID     string
	capabilities []string
}

func New(cfg Config) *Client {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 10
	}
	return &Client{
		cfg:       cfg,
		events:    newEventBus(),
		pending:   newPendingTable(),
		callbacks: map[Subject][]func(Update){},
	}
}

func (self *Client) On(event Event, callback EventCallback) func() {
	return self.events.On(event, callback)
}

func (self *Client) State() State {
	return self.state.Load()
}

func (self *Client) ClientID() string {
	return self.clientID
}

func (self *Client) Capabilities() []string {
	return self.capabilities
}

// Connect dials the broker and blocks until the connection is ready or the
// 10s connect timeout elapses. On success it also starts the background
// read pump that drives the reconnect loop for the rest of this Client's
// life.
func (self *Client) Connect(ctx context.Context) error {
	self.state.Store(StateConnecting)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, welcome, err := self.dial(connectCtx)
	if err != nil {
		self.state.Store(StateIdle)
		if errors.Is(connectCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("Connection timeout")
		}
		return fmt.Errorf("client: connect: %w", err)
	}

	self.installConnection(conn, welcome)
	go self.runUntilClosed(ctx, conn, 1)
	return nil
}

func (self *Client) dial(ctx context.Context) (*websocket.Conn, wire.Envelope, error) {
	u, err := url.Parse(self.cfg.ServerURL)
	if err != nil {
		return nil, wire.Envelope{}, err
	}
	header := map[string][]string{}
	if self.cfg.Platform != "" {
		header["x-platform"] = []string{self.cfg.Platform}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, wire.Envelope{}, err
	}
	self.state.Store(StateOpen)

	conn.SetReadDeadline(time.Now().Add(connectTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, wire.Envelope{}, err
	}
	welcome, err := wire.Decode(raw)
	if err != nil || welcome.Type != wire.OpConnectionEstablished {
		conn.Close()
		return nil, wire.Envelope{}, fmt.Errorf("client: expected CONNECTION_ESTABLISHED, got %+v (err=%v)", welcome, err)
	}
	conn.SetReadDeadline(time.Time{})
	conn.SetPongHandler(func(string) error { return nil })
	return conn, welcome, nil
}

func (self *Client) installConnection(conn *websocket.Conn, welcome wire.Envelope) {
	self.connMutex.Lock()
	self.conn = conn
	self.connMutex.Unlock()

	self.clientID = welcome.ClientID
	self.capabilities = welcome.Capabilities

	self.state.Store(StateReady)
	self.events.Emit(EventConnected, nil)
	self.events.Emit(EventReady, nil)
}

// runUntilClosed owns one connection's read pump; on an unclean close it
// drives the reconnect loop itself (a new Client.Connect is not needed —
// this goroutine keeps running for the Client's entire lifetime).
func (self *Client) runUntilClosed(ctx context.Context, conn *websocket.Conn, attempt int) {
	cleanClose := self.readLoop(conn)

	self.connMutex.Lock()
	if self.conn == conn {
		self.conn = nil
	}
	self.connMutex.Unlock()

	// every pending request at the time of disconnect fails immediately;
	// none are replayed once the connection comes back.
	for _, p := range self.pending.drainAll() {
		p.complete(nil, fmt.Errorf("client: disconnected"))
	}

	if self.closing.Load() || cleanClose {
		self.state.Store(StateClosed)
		return
	}

	self.events.Emit(EventDisconnected, nil)
	self.reconnectLoop(ctx, 1)
}

func (self *Client) reconnectLoop(ctx context.Context, attempt int) {
	for attempt <= self.cfg.MaxReconnectAttempts {
		self.state.Store(StateConnecting)
		delay := backoffDelay(self.cfg.ReconnectInterval, attempt)

		select {
		case <-ctx.Done():
			self.state.Store(StateClosed)
			return
		case <-time.After(delay):
		}

		if self.closing.Load() {
			self.state.Store(StateClosed)
			return
		}

		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		conn, welcome, err := self.dial(connectCtx)
		cancel()
		if err != nil {
			glog.Infof("client: reconnect attempt %d failed: %v", attempt, err)
			attempt++
			continue
		}

		self.installConnection(conn, welcome)
		self.runUntilClosed(ctx, conn, attempt)
		return
	}

	self.state.Store(StateClosed)
	self.events.Emit(EventMaxReconnectAttemptsReached, nil)
}

// readLoop reads frames until the connection errors or closes. It returns
// true if the close was clean (application-initiated, code 1000), in
// which case the caller must not reconnect.
func (self *Client) readLoop(conn *websocket.Conn) (cleanClose bool) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return websocket.IsCloseError(err, websocket.CloseNormalClosure)
		}
		env, err := wire.Decode(raw)
		if err != nil {
			glog.V(2).Infof("client: dropped malformed frame: %v", err)
			continue
		}
		self.handleEnvelope(env)
	}
}

func (self *Client) handleEnvelope(env wire.Envelope) {
	if env.Type == wire.OpSubscriptionUpdate {
		self.dispatchUpdate(env)
		return
	}
	if env.RequestID == 0 {
		return
	}
	p, ok := self.pending.take(env.RequestID)
	if !ok {
		glog.V(2).Infof("client: unknown requestId %d for %s, ignoring", env.RequestID, env.Type)
		return
	}
	if env.Success != nil && !*env.Success {
		p.complete(nil, fmt.Errorf("%s", env.Error))
		return
	}
	p.complete(env.Data, nil)
}

func (self *Client) dispatchUpdate(env wire.Envelope) {
	var value document.Value
	if len(env.Value) > 0 {
		if err := json.Unmarshal(env.Value, &value); err != nil {
			glog.V(1).Infof("client: decode subscription update value: %v", err)
		}
	}
	update := Update{
		Collection: env.Collection,
		Key:        env.Key,
		Operation:  env.Operation,
		Value:      value,
		Timestamp:  env.Timestamp,
	}

	self.subMutex.RLock()
	// both the exact and wildcard callbacks fire if both are registered.
	exact := append([]func(Update){}, self.callbacks[Subject{Collection: env.Collection, Pattern: env.Key}]...)
	wildcard := append([]func(Update){}, self.callbacks[Subject{Collection: env.Collection, Pattern: "*"}]...)
	self.subMutex.RUnlock()

	for _, cb := range exact {
		cb(update)
	}
	for _, cb := range wildcard {
		cb(update)
	}
}

// Request sends a request envelope and blocks for its correlated response.
// A 30s timeout fails the caller with "Request timeout" and removes the
// pending entry so a late response is simply ignored.
func (self *Client) Request(ctx context.Context, opcode wire.Opcode, payload interface{}) (json.RawMessage, error) {
	self.connMutex.Lock()
	conn := self.conn
	self.connMutex.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("client: not connected")
	}

	requestID := self.nextRequestID.Add(1)
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	env := wire.Envelope{
		Type:      opcode,
		RequestID: requestID,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
	}
	frame, err := wire.Encode(env)
	if err != nil {
		return nil, err
	}

	waiter := self.pending.register(requestID)

	self.connMutex.Lock()
	writeErr := conn.WriteMessage(websocket.TextMessage, frame)
	self.connMutex.Unlock()
	if writeErr != nil {
		self.pending.take(requestID)
		return nil, writeErr
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	select {
	case <-waiter.done:
		return waiter.data, waiter.err
	case <-timer.C:
		if p, ok := self.pending.take(requestID); ok {
			p.complete(nil, fmt.Errorf("Request timeout"))
			return p.data, p.err
		}
		// response arrived concurrently with the timer firing; the reader
		// goroutine already completed the waiter.
		return waiter.data, waiter.err
	case <-ctx.Done():
		self.pending.take(requestID)
		return nil, ctx.Err()
	}
}

func (self *Client) Get(ctx context.Context, collection, key string) (document.Value, error) {
	data, err := self.Request(ctx, wire.OpGet, map[string]any{"collection": collection, "key": key})
	if err != nil {
		return document.Null, err
	}
	var v document.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return document.Null, err
	}
	return v, nil
}

func (self *Client) Set(ctx context.Context, collection, key string, value document.Value) error {
	_, err := self.Request(ctx, wire.OpSet, map[string]any{"collection": collection, "key": key, "value": value})
	return err
}

func (self *Client) Delete(ctx context.Context, collection, key string) error {
	_, err := self.Request(ctx, wire.OpDelete, map[string]any{"collection": collection, "key": key})
	return err
}

func (self *Client) Query(ctx context.Context, collection string, predicate map[string]document.Value) ([]document.Value, error) {
	data, err := self.Request(ctx, wire.OpQuery, map[string]any{"collection": collection, "query": predicate})
	if err != nil {
		return nil, err
	}
	var rows []document.Value
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Subscribe registers a local callback for a (collection, pattern) and
// tells the broker about it. Subscriptions are local client state and are
// not replayed by the broker across reconnects: the caller must
// re-subscribe after EventReady fires again. The callback is registered
// before the SUBSCRIBE request is sent, so an update that arrives right
// after the broker's acknowledgement is not missed; if the request fails
// the callback is disarmed.
func (self *Client) Subscribe(ctx context.Context, collection, pattern string, callback func(Update)) (unsubscribe func() error, err error) {
	subject := Subject{Collection: collection, Pattern: pattern}
	var active atomic.Bool
	active.Store(true)
	self.subMutex.Lock()
	self.callbacks[subject] = append(self.callbacks[subject], func(u Update) {
		if active.Load() {
			callback(u)
		}
	})
	self.subMutex.Unlock()

	if _, err := self.Request(ctx, wire.OpSubscribe, map[string]any{"collection": collection, "pattern": pattern}); err != nil {
		active.Store(false)
		return nil, err
	}

	return func() error {
		return self.Unsubscribe(context.Background(), collection, pattern)
	}, nil
}

func (self *Client) Unsubscribe(ctx context.Context, collection, pattern string) error {
	_, err := self.Request(ctx, wire.OpUnsubscribe, map[string]any{"collection": collection, "pattern": pattern})
	if err != nil {
		return err
	}
	subject := Subject{Collection: collection, Pattern: pattern}
	self.subMutex.Lock()
	delete(self.callbacks, subject)
	self.subMutex.Unlock()
	return nil
}

// Ping sends PING and returns the locally-measured round-trip latency.
func (self *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := self.Request(ctx, wire.OpPing, map[string]any{}); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Close performs a clean, application-initiated close (code 1000), which
// must not trigger a reconnect.
func (self *Client) Close() error {
	self.closing.Store(true)
	self.state.Store(StateClosing)

	self.connMutex.Lock()
	conn := self.conn
	self.connMutex.Unlock()
	if conn == nil {
		self.state.Store(StateClosed)
		return nil
	}

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return conn.Close()
}
