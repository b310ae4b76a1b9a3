// Package server exposes the agent over HTTP: an SSE chat endpoint, a
// WebSocket chat endpoint and a health probe.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Berektassuly/terra-vision-ai/pkg/agent"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/transcript"
)

// Asker starts a run for a transcript and streams its events. The channel is
// closed when the run ends. *engine.Engine implements it.
type Asker interface {
	Ask(ctx context.Context, t transcript.Transcript) (<-chan agent.Event, error)
}

// Config holds the server's dependencies and settings.
type Config struct {
	Asker  Asker
	Logger *slog.Logger

	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64
	Version      string

	// KeepAlive is the SSE comment interval. Zero uses 15s.
	KeepAlive time.Duration
}

// Server is the HTTP front end.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// New builds the router and the underlying http.Server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}

	h := &handlers{
		asker:        cfg.Asker,
		logger:       cfg.Logger,
		maxBodyBytes: cfg.MaxBodyBytes,
		keepAlive:    cfg.KeepAlive,
		version:      cfg.Version,
	}

	// Middleware order (outermost first):
	// request ID → tracing → logging → recovery → handler.
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(tracingMiddleware)
	r.Use(loggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/", h.handleChat)
		r.Get("/ws", h.handleChatWS)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "no route for "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler: r,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called. It returns http.ErrServerClosed
// after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server. In-flight streams end when their
// request contexts are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
