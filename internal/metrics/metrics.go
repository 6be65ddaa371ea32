package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Relax quota metrics
	RelaxUsedSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "focusd_relax_used_seconds",
			Help: "Relax time used today, including any open interval",
		},
	)

	RelaxRemainingSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "focusd_relax_remaining_seconds",
			Help: "Relax time remaining today",
		},
	)

	RelaxActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "focusd_relax_active",
			Help: "1 while a relax interval is granting time",
		},
	)

	RelaxIntervalsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusd_relax_intervals_opened_total",
			Help: "Total relax intervals opened",
		},
	)

	RelaxIntervalsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusd_relax_intervals_closed_total",
			Help: "Total relax intervals closed",
		},
		[]string{"reason"},
	)

	RelaxCommittedSeconds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusd_relax_committed_seconds_total",
			Help: "Total relax seconds committed by closed intervals",
		},
	)

	// Rotation metrics
	RotationSelections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusd_rotation_selections_total",
			Help: "Rotation selections by outcome",
		},
		[]string{"outcome"}, // kept, changed, repeated
	)

	// Gate metrics
	GateBlocking = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "focusd_gate_blocking",
			Help: "1 while the blocking gate is enabled",
		},
	)

	GateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusd_gate_transitions_total",
			Help: "Blocking gate transitions",
		},
		[]string{"state"},
	)

	GateSyncErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusd_gate_sync_errors_total",
			Help: "Gate syncs that failed to read relax state",
		},
	)

	// Retention metrics
	RetentionDaysPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusd_retention_days_pruned_total",
			Help: "Total day rows removed by retention",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusd_api_requests_total",
			Help: "Total API requests",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "focusd_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		RelaxUsedSeconds,
		RelaxRemainingSeconds,
		RelaxActive,
		RelaxIntervalsOpened,
		RelaxIntervalsClosed,
		RelaxCommittedSeconds,
		RotationSelections,
		GateBlocking,
		GateTransitions,
		GateSyncErrors,
		RetentionDaysPruned,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
