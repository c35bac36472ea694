// Package server exposes the relay over HTTP: the /ws upgrade endpoint plus
// the /health and /stats status routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"chat-relay/config"
	"chat-relay/domain"
	"chat-relay/hub"
	"chat-relay/liveness"
	"chat-relay/protocol"
	ws "chat-relay/websocket"
)

const ServiceName = "chat-backend"

type Server struct {
	cfg      config.Config
	hub      *hub.Hub
	handler  *protocol.Handler
	monitor  *liveness.Monitor
	upgrader websocket.Upgrader
	router   *gin.Engine
	http     *http.Server
	newID    func() string

	closeMu sync.RWMutex
	closing bool
}

type Option func(*Server)

// WithIDGenerator replaces uuid-based connection ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Server) { s.newID = fn }
}

func WithHandlerOptions(opts ...protocol.Option) Option {
	return func(s *Server) {
		s.handler = protocol.NewHandler(s.hub, s.hub, opts...)
	}
}

func New(cfg config.Config, opts ...Option) *Server {
	h := hub.New()
	s := &Server{
		cfg:     cfg,
		hub:     h,
		handler: protocol.NewHandler(h, h),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.monitor = liveness.New(s.hub, s.handler, cfg.HeartbeatInterval)

	origins, allowAll := cfg.Origins()
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(origins, allowAll),
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = s.routes(origins, allowAll)
	s.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Monitor() *liveness.Monitor { return s.monitor }

func (s *Server) Registry() domain.Registry { return s.hub }

func (s *Server) routes(origins []string, allowAll bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), corsMiddleware(origins, allowAll))

	r.GET("/health", s.health)
	r.GET("/stats", s.stats)
	r.GET("/ws", s.serveWS)
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"service": ServiceName,
		"port":    s.cfg.Port,
	})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clients": s.hub.Count()})
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("upgrade error", "remote", c.Request.RemoteAddr, "error", err)
		return
	}

	// Holding the read lock keeps Shutdown from sweeping the registry
	// between this check and the registration in Start.
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closing {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	wsConn := ws.NewConn(s.newID(), conn, s.handler, ws.WithMaxMessageSize(s.cfg.MaxMessageSize))
	if err := wsConn.Start(); err != nil {
		slog.Error("accept error", "clientId", wsConn.ID(), "error", err)
	}
}

// Run serves until ctx is cancelled, then shuts down. It returns the listen
// error if the port cannot be bound.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.monitor.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", ln.Addr().String(), "wsPath", "/ws")
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.monitor.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// Shutdown refuses further upgrades, stops accepting requests, stops the
// liveness monitor and closes every open connection.
func (s *Server) Shutdown() error {
	slog.Info("server shutting down")
	s.closeMu.Lock()
	s.closing = true
	s.closeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.http.Shutdown(ctx)
	if err != nil {
		slog.Error("shutdown error", "error", err)
	}

	s.monitor.Stop()
	s.hub.ForEach(s.handler.Disconnect)
	return err
}

func originChecker(origins []string, allowAll bool) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if allowAll || origin == "" {
			return true
		}
		if lo.Contains(origins, origin) {
			return true
		}
		slog.Warn("blocked websocket origin", "origin", origin)
		return false
	}
}
