// Package status serves the read-only HTTP view of a running installation:
// health, the current pad states, Prometheus metrics and a websocket stream
// of changes.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/bbernstein/lacylights-gates/internal/services/installation"
	"github.com/bbernstein/lacylights-gates/internal/services/metrics"
	"github.com/bbernstein/lacylights-gates/internal/services/pubsub"
)

// Snapshotter reports the installation state.
type Snapshotter interface {
	Snapshot(ctx context.Context) (installation.State, error)
}

// Config configures the status server.
type Config struct {
	Addr       string
	CORSOrigin string
	Version    string
	Debug      bool
	// PingInterval is the websocket keep-alive period.
	PingInterval time.Duration
}

// Server is the status HTTP server.
type Server struct {
	cfg      Config
	state    Snapshotter
	pubsub   *pubsub.PubSub
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	started  time.Time
	router   chi.Router
}

// NewServer builds the router. pubsub and metrics may be nil, in which case
// /ws and /metrics are not served.
func NewServer(cfg Config, state Snapshotter, ps *pubsub.PubSub, m *metrics.Metrics) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		state:   state,
		pubsub:  ps,
		metrics: m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for WebSocket
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		started: time.Now(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  log.StandardLogger(),
		NoColor: true,
	}))
	router.Use(middleware.Recoverer)

	origins := []string{"http://localhost:3000", "http://localhost:4000"}
	if s.cfg.CORSOrigin != "" {
		origins = append([]string{s.cfg.CORSOrigin}, origins...)
	}
	router.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		Debug:          s.cfg.Debug,
	}).Handler)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Get("/health", s.health)
		r.Get("/state", s.stateHandler)
		if s.metrics != nil {
			r.Handle("/metrics", s.metrics.Handler())
		}
	})
	if s.pubsub != nil {
		router.Get("/ws", s.stream)
	}
	return router
}

// Handler returns the status router.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.cfg.Addr).Info("status server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("status server stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.cfg.Version,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.state.Snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("failed to write response")
	}
}
