// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-editor/internal/editor/session"
)

// Config tunes the websocket bridge.
type Config struct {
	Addr string
	// MaxMessageBytes caps a single client frame.
	MaxMessageBytes int64
	// RateLimit is the sustained client frames per second; RateBurst the
	// bucket size.
	RateLimit float64
	RateBurst int
	// PongWait is how long a silent peer is tolerated. Pings go out at 9/10
	// of it.
	PongWait  time.Duration
	WriteWait time.Duration
	// SendBuffer is the per-connection queue of pending pushes. A client that
	// falls this far behind is disconnected.
	SendBuffer      int
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// DefaultConfig mirrors the defaults of the config package.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:8787",
		MaxMessageBytes: 4 << 20,
		RateLimit:       50,
		RateBurst:       100,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		SendBuffer:      256,
		ShutdownTimeout: 15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = d.MaxMessageBytes
	}
	if c.RateLimit <= 0 {
		c.RateLimit = d.RateLimit
	}
	if c.RateBurst <= 0 {
		c.RateBurst = d.RateBurst
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

// SessionFactory builds the session a new connection will own.
type SessionFactory func() *session.Session

// Server bridges remote UIs to editor sessions, one session per websocket.
type Server struct {
	cfg        Config
	logger     *zap.Logger
	newSession SessionFactory
	upgrader   websocket.Upgrader
	router     chi.Router

	conns sync.WaitGroup
}

// New builds the bridge. Nothing listens until Run.
func New(logger *zap.Logger, cfg Config, factory SessionFactory) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:        cfg.withDefaults(),
		logger:     logger.Named("server"),
		newSession: factory,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		EnableCompression: true,
		CheckOrigin:       s.checkOrigin,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", handleHealth)
	r.Get("/ws", s.handleWS)
	s.router = r
	return s
}

// Handler exposes the routes, for embedding or httptest.
func (s *Server) Handler() http.Handler { return s.router }

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// checkOrigin admits every origin when none are configured.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	s.logger.Warn("Rejected websocket origin.", zap.String("origin", origin))
	return false
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade websocket.", zap.Error(err))
		return
	}
	s.conns.Add(1)
	defer s.conns.Done()

	c := newClient(s, conn, s.newSession())
	// The request context ends with the server's base context once the
	// connection is hijacked.
	c.serve(r.Context())
}

// Run listens until ctx ends, then shuts down and waits for every
// connection to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("Websocket bridge listening.", zap.String("address", s.cfg.Addr))
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving %s: %w", s.cfg.Addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down websocket bridge.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.conns.Wait()
	if err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
