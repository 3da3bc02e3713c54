// Package dashboard serves a read-only JSON view of the supervisor: state,
// tracked orders, snapshot and lifetime counters.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/avoronkov/invest-sentinel/internal/modectl"
	"github.com/avoronkov/invest-sentinel/internal/snapshot"
	"github.com/avoronkov/invest-sentinel/internal/storage"
	"github.com/avoronkov/invest-sentinel/internal/watcher"
)

type Config struct {
	Port      int
	AuthToken string
}

type Server struct {
	router    *chi.Mux
	server    *http.Server
	ctl       *modectl.Controller
	store     storage.Interface
	watch     *watcher.Watcher
	cache     *snapshot.Cache
	logger    *logrus.Logger
	port      int
	authToken string
}

// StatusView is the /api/status payload.
type StatusView struct {
	Active               bool       `json:"active"`
	Mode                 string     `json:"mode"`
	PauseUntil           *time.Time `json:"pause_until,omitempty"`
	TrackedOrders        int        `json:"tracked_orders"`
	PendingSLDeadlines   int        `json:"pending_sl_deadlines"`
	SnapshotTickers      int        `json:"snapshot_tickers"`
	SnapshotUpdatedAt    *time.Time `json:"snapshot_updated_at,omitempty"`
	LastChangeReason     string     `json:"last_change_reason,omitempty"`
	LastChangeBy         string     `json:"last_change_by,omitempty"`
}

// StatsView is the /api/stats payload.
type StatsView struct {
	OrdersPlaced int     `json:"orders_placed"`
	SLTriggered  int     `json:"sl_triggered"`
	TPTriggered  int     `json:"tp_triggered"`
	TotalPnLRub  float64 `json:"total_pnl_rub"`
}

func NewServer(cfg Config, ctl *modectl.Controller, store storage.Interface, watch *watcher.Watcher, cache *snapshot.Cache, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		ctl:       ctl,
		store:     store,
		watch:     watch,
		cache:     cache,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Get("/api/orders", s.handleOrders)
	s.router.Get("/api/snapshot", s.handleSnapshot)
	s.router.Get("/api/stats", s.handleStats)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("starting dashboard on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	settings, err := s.ctl.Settings()
	if err != nil {
		s.logger.WithError(err).Error("failed to read settings")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	view := StatusView{
		Active:             settings.ActiveAt(time.Now()),
		Mode:               string(settings.Mode),
		PauseUntil:         settings.PauseUntil,
		TrackedOrders:      s.watch.TrackedCount(),
		PendingSLDeadlines: s.watch.Guard().Pending(),
		SnapshotTickers:    s.cache.Len(),
		LastChangeReason:   settings.LastChangeReason,
		LastChangeBy:       settings.LastChangeBy,
	}
	if updated := s.cache.UpdatedAt(); !updated.IsZero() {
		view.SnapshotUpdatedAt = &updated
	}
	s.writeJSON(w, view)
}

func (s *Server) handleOrders(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.watch.Tracked())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.cache.List())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	settings, err := s.store.Settings()
	if err != nil {
		s.logger.WithError(err).Error("failed to read settings")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, StatsView{
		OrdersPlaced: settings.TotalOrdersPlaced,
		SLTriggered:  settings.TotalSLTriggered,
		TPTriggered:  settings.TotalTPTriggered,
		TotalPnLRub:  settings.TotalPnLRub,
	})
}
