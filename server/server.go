package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"eodmarker/service"
)

// StatusMetrics counts status responses
type StatusMetrics interface {
	RecordStatusRequest(code int)
}

// Server serves the read-only EOD status endpoint
type Server struct {
	query   service.StatusQuery
	metrics StatusMetrics
	server  *http.Server
}

// NewServer creates a server listening on addr
func NewServer(addr string, query service.StatusQuery, metrics StatusMetrics) *Server {
	s := &Server{
		query:   query,
		metrics: metrics,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/eod/status", s.handleStatus)

	return r
}

// Start listens and serves in the background. Listen errors are returned
// immediately; serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	log.WithField("addr", ln.Addr().String()).Info("HTTP server listening")
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requestLogger logs each request with logrus
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"duration":  time.Since(start),
			"requestId": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}
