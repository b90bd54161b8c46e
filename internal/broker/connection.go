package broker

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/bringyour/kvbroker/internal/id"
	"github.com/bringyour/kvbroker/internal/platform"
	"github.com/bringyour/kvbroker/internal/session"
	"github.com/bringyour/kvbroker/internal/wire"
)

// handleWebSocket accepts one transport, detects the client's platform,
// registers a session, sends the welcome envelope, and then drives that
// session's read and write pumps until the connection closes. This
// mirrors the paired-goroutine structure of
// bringyour-connect's PlatformTransport.run in connect/transport.go: one
// goroutine reads and dispatches, one drains the outbound queue and
// writes, and either side tearing down cancels the other.
func (self *Server) handleWebSocket(c *gin.Context) {
	headerHint := c.GetHeader("x-platform")
	userAgent := c.GetHeader("User-Agent")
	p := platform.Detect(headerHint, userAgent)

	conn, err := self.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		glog.Infof("broker: upgrade failed: %v", err)
		return
	}

	sessionID := id.New()
	sess := session.New(sessionID, p)

	sc := &sessionConn{sess: sess, conn: conn}
	self.registerSession(sc)
	self.metrics.connectionsTotal.Inc()
	self.metrics.connectionsCurrent.Inc()

	conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		sess.SetAlive(true)
		conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	welcome := wire.NewWelcome(sessionID.String(), p.String(), platform.Capabilities(p), now())
	frame, err := wire.Encode(welcome)
	if err != nil {
		glog.Errorf("broker: encode welcome: %v", err)
		self.terminate(sc)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		glog.Infof("broker: write welcome failed for %s: %v", sessionID, err)
		self.terminate(sc)
		return
	}

	writerDone := make(chan struct{})
	go self.writePump(sc, writerDone)

	self.readPump(sc)

	self.terminate(sc)
	<-writerDone
}

func (self *Server) registerSession(sc *sessionConn) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.sessions[sc.sess.ID] = sc
}

// readPump processes this connection's inbound envelopes strictly in
// order, per-session single-consumer, queuing each
// response with SendBlocking so a slow peer applies backpressure to this
// session alone rather than dropping its own responses.
func (self *Server) readPump(sc *sessionConn) {
	ctx := context.Background()
	for {
		messageType, raw, err := sc.conn.ReadMessage()
		if err != nil {
			glog.V(1).Infof("broker: read error for %s: %v", sc.sess.ID, err)
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		env, err := wire.Decode(raw)
		if err != nil {
			// log and drop; the connection stays open.
			glog.V(2).Infof("broker: dropped malformed frame from %s: %v", sc.sess.ID, err)
			continue
		}

		self.metrics.envelopesTotal.WithLabelValues(string(env.Type)).Inc()
		frame := self.dispatcher.Dispatch(ctx, sc.sess, env)
		if frame == nil {
			// encode failure on a broker-generated envelope terminates the
			// connection.
			return
		}
		if err := sc.sess.SendBlocking(ctx, frame); err != nil {
			return
		}
	}
}

// writePump is the single writer for this connection's *websocket.Conn:
// gorilla/websocket forbids concurrent writers, so every outbound frame —
// both direct responses and subscription fan-out — is funneled through
// the session's one outbound channel and drained here in order. It selects
// on the session's Done signal rather than ranging until outbound closes,
// since outbound is never closed (see session.Session).
func (self *Server) writePump(sc *sessionConn, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case frame := <-sc.sess.Outbound():
			if err := sc.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				glog.V(1).Infof("broker: write error for %s: %v", sc.sess.ID, err)
				// closing the transport here also ends the read pump.
				self.terminate(sc)
				return
			}
		case <-sc.sess.Done():
			return
		}
	}
}

// terminate tears a session down: closes the transport, removes it from
// the session table and from every subscription it held, and stops its
// outbound queue. Safe to call more than once.
func (self *Server) terminate(sc *sessionConn) {
	self.mutex.Lock()
	_, present := self.sessions[sc.sess.ID]
	delete(self.sessions, sc.sess.ID)
	self.mutex.Unlock()
	if !present {
		return
	}

	self.subs.RemoveSession(sc.sess)
	sc.conn.Close()
	sc.sess.CloseOutbound()
	self.metrics.connectionsCurrent.Dec()
}

// sweepLiveness implements the 30s keep-alive sweep: any
// session already marked not-alive is terminated; the rest are marked
// not-alive and pinged, expecting a pong to mark them alive again before
// the next sweep.
func (self *Server) sweepLiveness() {
	self.mutex.RLock()
	conns := make([]*sessionConn, 0, len(self.sessions))
	for _, sc := range self.sessions {
		conns = append(conns, sc)
	}
	self.mutex.RUnlock()

	for _, sc := range conns {
		if !sc.sess.Alive() {
			glog.Infof("broker: session %s failed liveness check, closing", sc.sess.ID)
			self.terminate(sc)
			continue
		}
		sc.sess.SetAlive(false)
		if err := sc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
			glog.V(1).Infof("broker: ping failed for %s: %v", sc.sess.ID, err)
			self.terminate(sc)
		}
	}
}
