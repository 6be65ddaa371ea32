package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goodtune/focusd/internal/metrics"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server is the local control API server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates the API server
func NewServer(addr string, handler *Handler, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "api").Logger()

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(handler, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter registers the API routes.
func NewRouter(h *Handler, logger zerolog.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(logger))

	r.HandleFunc("/api/relax", h.GetRelax).Methods(http.MethodGet)
	r.HandleFunc("/api/relax/start", h.StartRelax).Methods(http.MethodPost)
	r.HandleFunc("/api/relax/stop", h.StopRelax).Methods(http.MethodPost)
	r.HandleFunc("/api/relax/tick", h.TickRelax).Methods(http.MethodPost)
	r.HandleFunc("/api/relax/sessions", h.ListSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/rotation", h.GetRotation).Methods(http.MethodGet)
	r.HandleFunc("/api/resume", h.Resume).Methods(http.MethodPost)

	return r
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Stop stops the API server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")
	return s.server.Close()
}

// loggingMiddleware logs each request and records the route metrics.
func loggingMiddleware(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			duration := time.Since(start)
			metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(wrapped.statusCode)).Inc()
			metrics.APIRequestDuration.WithLabelValues(route).Observe(duration.Seconds())

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", duration).
				Msg("API request")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
