// Package server exposes grading sessions over WebSocket. Each connection
// owns its own interpreters, Coordinator and grade.Session; nothing is shared
// between learners except the exercise catalog and the progress sink.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/jonwraymond/exercisegrade/progress"
	"github.com/jonwraymond/exercisegrade/runtime"
)

// Defaults for Config.
const (
	DefaultRunRate      = 2.0
	DefaultRunBurst     = 4
	DefaultReadLimit    = 64 << 10
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
)

// Config configures a Server.
type Config struct {
	// Addr is the listen address for ListenAndServe.
	Addr string

	// Catalog provides exercises and SQL fixtures.
	// Required.
	Catalog *Catalog

	// Engine configures each connection's interpreters. Fixtures default to
	// the Catalog.
	Engine EngineConfig

	// Sink is notified of solved exercises. Optional.
	Sink progress.Sink

	// RunRate and RunBurst bound how often one connection may run code.
	RunRate  rate.Limit
	RunBurst int

	// AllowedOrigins restricts the WebSocket Origin header. Empty allows all.
	AllowedOrigins []string

	// ReadLimit caps the size of one inbound message in bytes.
	ReadLimit int64

	WriteTimeout time.Duration
	PingInterval time.Duration

	Logger runtime.Logger
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	var problems []string
	if c.Catalog == nil {
		problems = append(problems, "missing required fields: Catalog")
	}
	if c.RunRate < 0 || c.RunBurst < 0 {
		problems = append(problems, "run rate and burst must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", runtime.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Engine.Fixtures == nil {
		c.Engine.Fixtures = c.Catalog
	}
	if c.RunRate == 0 {
		c.RunRate = DefaultRunRate
	}
	if c.RunBurst == 0 {
		c.RunBurst = DefaultRunBurst
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = DefaultReadLimit
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Engine.Logger == nil {
		c.Engine.Logger = c.Logger
	}
}

// Server serves grading sessions.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	wg sync.WaitGroup
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	s := &Server{cfg: cfg, mux: http.NewServeMux()}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s, nil
}

// Handler returns the HTTP handler serving /ws, /healthz and /metrics.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on cfg.Addr until ctx is done, then shuts down and
// waits for open sessions to finish.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.cfg.Logger.Info("grade server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.wg.Wait()
	return nil
}

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
	return false
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c, err := s.newClient(conn)
	if err != nil {
		s.cfg.Logger.Error("session setup failed", "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session setup failed"))
		_ = conn.Close()
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	activeConnections.Inc()
	defer activeConnections.Dec()

	c.serve(r.Context())
}
