package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/h1v3-io/seatwatch/internal/engine"
	"github.com/h1v3-io/seatwatch/internal/journal"
	"github.com/h1v3-io/seatwatch/internal/logbuf"
	"github.com/h1v3-io/seatwatch/internal/probe"
	"github.com/h1v3-io/seatwatch/internal/watchlist"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

// DefaultStreamInterval is how often /api/stream pushes a snapshot.
const DefaultStreamInterval = 2 * time.Second

// LogQuerier abstracts log entry querying to avoid coupling to logbuf directly.
type LogQuerier interface {
	Query(since time.Time, minLevel slog.Level, limit int) []logbuf.Entry
}

// History reads the event journal.
type History interface {
	List(f journal.Filter) ([]journal.Entry, error)
}

// Service is what the API server needs from the engine.
type Service interface {
	Snapshot() protocol.Snapshot
	Start(ctx context.Context) bool
	Stop() bool
	Events() []protocol.Event
	Event(id string) (protocol.Event, error)
	Criteria() protocol.SearchCriteria
	UpdateCriteria(c protocol.SearchCriteria) protocol.SearchCriteria
	Activate(id string, quantity, maxPrice int) (protocol.Event, error)
	Probe(ctx context.Context, id string) error
}

// Config holds API server configuration.
type Config struct {
	Host           string
	Port           int
	Key            string // API key for Bearer auth
	StreamInterval time.Duration
}

// Server is the seatwatch REST API server.
type Server struct {
	runCtx   context.Context
	svc      Service
	cfg      Config
	logger   *slog.Logger
	logs     LogQuerier
	history  History
	mux      *http.ServeMux
	srv      *http.Server
	upgrader websocket.Upgrader
}

// NewServer creates a new API server. runCtx bounds monitoring loops
// started through POST /api/start. logs may be nil.
func NewServer(runCtx context.Context, svc Service, cfg Config, logger *slog.Logger, logs LogQuerier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = DefaultStreamInterval
	}
	s := &Server{
		runCtx: runCtx,
		svc:    svc,
		cfg:    cfg,
		logger: logger,
		logs:   logs,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	mux := s.mux
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/state", s.requireAuth(s.handleState))
	mux.HandleFunc("POST /api/start", s.requireAuth(s.handleStart))
	mux.HandleFunc("POST /api/stop", s.requireAuth(s.handleStop))
	mux.HandleFunc("GET /api/criteria", s.requireAuth(s.handleGetCriteria))
	mux.HandleFunc("POST /api/criteria", s.requireAuth(s.handlePostCriteria))
	mux.HandleFunc("GET /api/events", s.requireAuth(s.handleListEvents))
	mux.HandleFunc("GET /api/events/{id}", s.requireAuth(s.handleGetEvent))
	mux.HandleFunc("POST /api/events/{id}/probe", s.requireAuth(s.handleProbe))
	mux.HandleFunc("POST /api/events/{id}/activate", s.requireAuth(s.handleActivate))
	mux.HandleFunc("GET /api/journal", s.requireAuth(s.handleJournal))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))
	mux.HandleFunc("GET /api/stream", s.requireAuth(s.handleStream))

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetHistory enables GET /api/journal. Call before Start.
func (s *Server) SetHistory(h History) { s.history = h }

// Mount registers an extra handler that does its own authentication, such
// as the inbound webhook. Call before Start.
func (s *Server) Mount(pattern string, h http.Handler) { s.mux.Handle(pattern, h) }

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		if bearerToken(r) != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers
// on websocket upgrades, so those may pass ?token= instead.
func bearerToken(r *http.Request) string {
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return tok
	}
	if websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("token")
	}
	return ""
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	if !s.svc.Start(s.runCtx) {
		writeJSON(w, http.StatusConflict, map[string]any{"running": true, "error": "monitoring already running"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"running": true})
}

// handleStop is idempotent. requested is false when the loop was already
// stopped or a stop was pending.
func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	requested := s.svc.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"running": false, "requested": requested})
}

func (s *Server) handleGetCriteria(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Criteria())
}

func (s *Server) handlePostCriteria(w http.ResponseWriter, r *http.Request) {
	var c protocol.SearchCriteria
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if c.TicketCount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tickets must not be negative"})
		return
	}
	writeJSON(w, http.StatusOK, s.svc.UpdateCriteria(c))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events := s.svc.Events()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]protocol.Event, 0, len(events))
		for _, ev := range events {
			if string(ev.Status) == status {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	if events == nil {
		events = []protocol.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.svc.Event(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.Probe(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "event_id": id})
}

type activateRequest struct {
	Quantity int `json:"quantity"`
	MaxPrice int `json:"max_price"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
	}
	ev, err := s.svc.Activate(r.PathValue("id"), req.Quantity, req.MaxPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return
	}
	q := r.URL.Query()
	f := journal.Filter{
		EventID: q.Get("event"),
		Change:  protocol.EventChange(q.Get("change")),
		Limit:   100,
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		f.Limit = n
	}
	entries, err := s.history.List(f)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	limit := 200
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	minLevel := slog.LevelDebug
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(lvl)); err == nil {
			minLevel = parsed
		}
	}

	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			since = time.UnixMilli(ms)
		}
	}

	entries := s.logs.Query(since, minLevel, limit)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleStream pushes a snapshot on connect and then every StreamInterval
// until the client goes away or the server shuts down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close messages are seen.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.StreamInterval)
	defer ticker.Stop()
	for {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(s.svc.Snapshot()); err != nil {
			s.logger.Debug("stream write failed", "error", err)
			return
		}
		select {
		case <-gone:
			return
		case <-s.runCtx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}

// --- Helpers ---

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, watchlist.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, watchlist.ErrInvalidTransition),
		errors.Is(err, probe.ErrEventBooked),
		errors.Is(err, engine.ErrProbeInFlight):
		status = http.StatusConflict
	case errors.Is(err, watchlist.ErrInvalidQuantity),
		errors.Is(err, watchlist.ErrInvalidPrice):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
