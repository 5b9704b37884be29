// Package ingest is the HTTP surface game servers post events to.
//
// Routes:
//   - POST /v1/events  JSON or form body; optional bearer auth and rate limit
//   - GET  /healthz    notifier stats
//   - GET  /metrics    Prometheus exposition
package ingest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/schema"
	"golang.org/x/time/rate"

	"telenotify/internal/events"
	"telenotify/internal/metrics"
	"telenotify/internal/notifier"
	logx "telenotify/pkg/logx"
)

const (
	DefaultListen = "127.0.0.1:8085"

	maxBodyBytes = 64 << 10
)

// EventHandler is satisfied by *events.Handler.
type EventHandler interface {
	Handle(ev events.Event) events.Disposition
}

type StatsSource interface {
	Stats() notifier.Stats
}

type Config struct {
	Listen     string
	AuthToken  string // empty disables auth
	RatePerSec int    // 0 disables limiting
}

type Server struct {
	cfg   Config
	h     EventHandler
	stats StatsSource
	m     *metrics.Metrics
	log   logx.Logger

	lim     *rate.Limiter
	decoder *schema.Decoder

	mu   sync.Mutex
	srv  *http.Server
	addr string
	done chan struct{}
}

func New(cfg Config, h EventHandler, stats StatsSource, m *metrics.Metrics, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultListen
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)

	s := &Server{cfg: cfg, h: h, stats: stats, m: m, log: log, decoder: dec}
	if cfg.RatePerSec > 0 {
		s.lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/events", Chain(http.HandlerFunc(s.handleEvent), s.authMiddleware, s.rateLimitMiddleware))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.m.Handler())
	return Chain(mux, s.recoveryMiddleware, requestIDMiddleware, s.loggingMiddleware)
}

// Start binds the listener and serves in the background. It returns once the
// socket is bound so bind errors surface to the caller.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.srv, s.addr, s.done = srv, ln.Addr().String(), make(chan struct{})
	done := s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("ingest server stopped", logx.Err(err))
		}
	}()
	s.log.Info("ingest listening", logx.String("addr", s.addr), logx.Bool("auth", s.cfg.AuthToken != ""))
	return nil
}

// Addr is the bound address ("" before Start).
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop shuts the server down gracefully, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	<-done
	return err
}
