// Package broker implements the broker server: accepting
// connections, detecting client platform, driving keep-alive liveness,
// and orchestrating the read/dispatch/write lifecycle of each session.
// The HTTP surface is built on github.com/gin-gonic/gin, matching
// bringyour-connect's own control-plane server in tetherctl/api.go; the
// WebSocket upgrade itself uses github.com/gorilla/websocket, the same
// transport bringyour-connect's own client side dials with in
// connect/transport.go.
package broker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bringyour/kvbroker/internal/dispatch"
	"github.com/bringyour/kvbroker/internal/id"
	"github.com/bringyour/kvbroker/internal/platform"
	"github.com/bringyour/kvbroker/internal/session"
	"github.com/bringyour/kvbroker/internal/storage"
	"github.com/bringyour/kvbroker/internal/subscribe"
)

// KeepAliveInterval is the broker's keep-alive sweep period.
const KeepAliveInterval = 30 * time.Second

// PongWait is the read deadline that each pong extends; a connection that
// goes this long without a pong fails its next read and is torn down.
const PongWait = KeepAliveInterval + 10*time.Second

type Server struct {
	cfg        Config
	adapters   *storage.Registry
	subs       *subscribe.Registry
	dispatcher *dispatch.Dispatcher
	metrics    *metrics
	upgrader   websocket.Upgrader

	httpServer *http.Server

	mutex    sync.RWMutex
	sessions map[id.ID]*sessionConn
}

// sessionConn pairs a session with its live transport, so the keep-alive
// sweeper and the close path can reach the underlying *websocket.Conn.
type sessionConn struct {
	sess *session.Session
	conn *websocket.Conn
}

func now() int64 { return time.Now().UnixMilli() }

// New builds a Server with one adapter bound per platform: browser and
// "other" share the in-memory adapter, react-native gets the embedded
// sqlite adapter, and nodejs gets the file-tree adapter under
// cfg.DataDir. A host-bridge adapter for cfg.RedisAddr is left for
// callers to bind explicitly via Adapters() rather than given a default
// platform slot (see DESIGN.md).
func New(cfg Config) (*Server, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("broker: create data dir: %w", err)
	}

	adapters := storage.NewRegistry()

	mem := storage.NewMemory()
	adapters.Bind(platform.Browser, mem)
	adapters.Bind(platform.Other, mem)

	sqlitePath := cfg.DataDir + "/broker.sqlite"
	sqliteAdapter, err := storage.NewSQLite(sqlitePath)
	if err != nil {
		return nil, fmt.Errorf("broker: init sqlite adapter: %w", err)
	}
	adapters.Bind(platform.ReactNative, sqliteAdapter)

	fileTree, err := storage.NewFileTree(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("broker: init file-tree adapter: %w", err)
	}
	adapters.Bind(platform.Server, fileTree)

	subs := subscribe.NewRegistry()
	dispatcher := dispatch.New(adapters, subs, now)

	srv := &Server{
		cfg:        cfg,
		adapters:   adapters,
		subs:       subs,
		dispatcher: dispatcher,
		sessions:   map[id.ID]*sessionConn{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	registry := newPrometheusRegistry()
	srv.metrics = newMetrics(registry)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/ws", srv.handleWebSocket)
	router.GET("/healthz", srv.handleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	srv.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}
	return srv, nil
}

// Adapters exposes the storage registry so callers (e.g. cmd/broker) can
// rebind a platform slot, such as putting the host-bridge adapter on the
// "other" slot when a Redis address is configured.
func (self *Server) Adapters() *storage.Registry {
	return self.adapters
}

// Run starts the HTTP listener and the keep-alive sweeper, blocking until
// ctx is canceled, then shuts both down and releases adapter resources.
func (self *Server) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		glog.Infof("broker: listening on %s", self.httpServer.Addr)
		if err := self.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sweep := time.NewTicker(KeepAliveInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return self.shutdown()
		case err := <-serveErr:
			return err
		case <-sweep.C:
			self.sweepLiveness()
		}
	}
}

func (self *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := self.httpServer.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("broker: forced shutdown: %v", err)
	}

	self.mutex.Lock()
	conns := make([]*sessionConn, 0, len(self.sessions))
	for _, sc := range self.sessions {
		conns = append(conns, sc)
	}
	self.mutex.Unlock()
	for _, sc := range conns {
		self.terminate(sc)
	}

	return self.adapters.CloseAll()
}

func (self *Server) handleHealthz(c *gin.Context) {
	self.mutex.RLock()
	count := len(self.sessions)
	self.mutex.RUnlock()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": count})
}

func newPrometheusRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}
