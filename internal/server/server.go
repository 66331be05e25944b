// Package server exposes Saathi over HTTP: the browser conversation socket,
// the message log, the name-meaning and quiz endpoints, health probes and
// Prometheus metrics.
//
// Routes:
//
//	GET  /ws                    browser conversation (see package bridge)
//	GET  /api/sessions          running conversations
//	GET  /api/messages          message log, newest first (?limit=, ?session=)
//	POST /api/messages          append {"message": {"user", "text"}}
//	POST /api/name-meaning      {"name"} -> {"meaning"}
//	GET  /api/quiz              quiz snapshot
//	POST /api/quiz/definition   {"topic"} -> {"definition"}
//	POST /api/quiz/question     {} -> {"question"}
//	POST /api/quiz/answer       {"answer"} -> {"evaluation", "correct"}
//	GET  /healthz, /readyz, /metrics
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/saathi/internal/app"
	"github.com/MrWong99/saathi/internal/health"
	"github.com/MrWong99/saathi/internal/observe"
)

// shutdownTimeout bounds the graceful drain in ListenAndServe.
const shutdownTimeout = 10 * time.Second

// Server routes HTTP requests to the application.
type Server struct {
	app      *app.App
	registry *prometheus.Registry
	origins  []string
	handler  http.Handler
}

// Option is a functional option for [New].
type Option func(*Server)

// WithRegistry serves /metrics from reg instead of the default registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithOriginPatterns allows websocket connections from the given host
// patterns in addition to same-origin requests.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = append(s.origins, patterns...) }
}

// New creates a Server for a.
func New(a *app.App, opts ...Option) *Server {
	s := &Server{app: a}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/messages", s.handleAppendMessage)
	mux.HandleFunc("POST /api/name-meaning", s.handleNameMeaning)
	mux.HandleFunc("GET /api/quiz", s.handleQuizSnapshot)
	mux.HandleFunc("POST /api/quiz/definition", s.handleQuizDefinition)
	mux.HandleFunc("POST /api/quiz/question", s.handleQuizQuestion)
	mux.HandleFunc("POST /api/quiz/answer", s.handleQuizAnswer)
	health.New(a.Checkers()...).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler(s.registry))

	s.handler = observe.Middleware(a.Metrics())(mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests. Request contexts, including those of open
// websockets, are cancelled with ctx.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is like ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
