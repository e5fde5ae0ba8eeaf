package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/praxamed/calsync/internal/calendar"
	"github.com/praxamed/calsync/internal/logging"
	"github.com/praxamed/calsync/internal/store"
	"github.com/praxamed/calsync/internal/sync"
)

const (
	// DefaultReadHeaderTimeout bounds slow-header clients on the control API.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultShutdownTimeout is the graceful shutdown window.
	DefaultShutdownTimeout = 30 * time.Second
)

// SyncTrigger runs a synchronization pass for one account on demand.
type SyncTrigger interface {
	RunAccount(ctx context.Context, accountID string) (*sync.Result, error)
}

// CalendarLister lists the remote calendars an account can sync with.
type CalendarLister interface {
	ListCalendars(ctx context.Context, accountID string) ([]calendar.CalendarInfo, error)
}

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Server is the control API for calendar accounts: settings, manual sync
// triggers, calendar discovery and disconnection.
type Server struct {
	accounts  store.AccountRepository
	trigger   SyncTrigger
	calendars CalendarLister
	pinger    Pinger
	logger    *slog.Logger

	httpServer *http.Server
}

// New creates a control API server listening on addr.
func New(addr string, accounts store.AccountRepository, trigger SyncTrigger, calendars CalendarLister, pinger Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		accounts:  accounts,
		trigger:   trigger,
		calendars: calendars,
		pinger:    pinger,
		logger:    logger,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	return s
}

// Router builds the chi router for the control API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/accounts/{accountID}", func(r chi.Router) {
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Post("/sync", s.handleSyncNow)
		r.Get("/calendars", s.handleListCalendars)
		r.Delete("/", s.handleDisconnect)
	})

	return r
}

// Start serves the control API until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("starting control API server", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the control API server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down control API server")
	return s.httpServer.Shutdown(ctx)
}

// settingsResponse is the read shape of account sync settings.
type settingsResponse struct {
	store.AccountSettings
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	acc, err := s.accounts.GetByID(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settingsResponse{
		AccountSettings: store.AccountSettings{
			SyncEnabled:          acc.SyncEnabled,
			SyncDirection:        acc.SyncDirection,
			SyncFrequencyMinutes: acc.SyncFrequencyMinutes,
			CalendarID:           acc.CalendarID,
		},
		LastSyncAt: acc.LastSyncAt,
	})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var settings store.AccountSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid settings payload: "+err.Error())
		return
	}
	if !settings.SyncDirection.IsValid() {
		s.writeError(w, http.StatusBadRequest, "invalid sync direction: "+string(settings.SyncDirection))
		return
	}
	if settings.SyncFrequencyMinutes < 0 {
		s.writeError(w, http.StatusBadRequest, "sync frequency must not be negative")
		return
	}

	if err := s.accounts.UpdateSettings(r.Context(), accountID, settings); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	res, err := s.trigger.RunAccount(r.Context(), accountID)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, res)
	case errors.Is(err, sync.ErrAccountNotConnected):
		s.writeError(w, http.StatusConflict, "calendar account is not connected, please reconnect your calendar account")
	case errors.Is(err, sync.ErrSyncDisabled):
		s.writeError(w, http.StatusConflict, "calendar synchronization is disabled for this account")
	default:
		s.logger.Error("manual sync failed", logging.Account(accountID), logging.Err(err))
		s.writeError(w, http.StatusBadGateway, "synchronization failed: "+err.Error())
	}
}

func (s *Server) handleListCalendars(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	calendars, err := s.calendars.ListCalendars(r.Context(), accountID)
	if err != nil {
		s.logger.Error("failed to list calendars", logging.Account(accountID), logging.Err(err))
		s.writeError(w, http.StatusBadGateway, "failed to list calendars: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, calendars)
}

// handleDisconnect deletes the account row. Appointments keep their external
// event ids but lose correlation, matching a fresh reconnect semantics.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Delete(r.Context(), chi.URLParam(r, "accountID")); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", logging.Err(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "calendar account not found")
		return
	}
	s.logger.Error("store request failed", slog.String("path", r.URL.Path), logging.Err(err))
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
