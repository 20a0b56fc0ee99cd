// Package api is the operator HTTP surface: health, state, the event
// stream, and game controls.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/config"
	"github.com/AaronLay10/holoquest/internal/game"
	"github.com/AaronLay10/holoquest/internal/level"
	"github.com/AaronLay10/holoquest/internal/logging"
	"github.com/AaronLay10/holoquest/internal/puzzle"
	"github.com/AaronLay10/holoquest/internal/registry"
	"github.com/AaronLay10/holoquest/internal/storage"
)

// Game is the session surface the API drives. *game.Session satisfies it.
type Game interface {
	State() game.RunState
	Snapshot() game.Snapshot
	Pause() bool
	Resume() bool
	Advance(ctx context.Context) error
	Exit() error
	LoadLevel(ctx context.Context, levelID string) error
	Activate(name, input string) (puzzle.Result, error)
	Hover(name string) bool
	Unhover(name string) bool
	Publish(topic bus.Topic, payload any) error
}

// Journal reads persisted bus messages.
type Journal interface {
	Query(limit int) ([]storage.Row, error)
}

// Options configure a Server. Game and Bus are required.
type Options struct {
	Game    Game
	Bus     *bus.Bus
	Journal Journal
	Auth    config.AuthConfig
	TLS     TLSConfig
	RoomID  string
	Logger  *logging.Logger
}

// Server serves the operator API.
type Server struct {
	game      Game
	bus       *bus.Bus
	journal   Journal
	auth      authConfig
	tls       TLSConfig
	log       *logging.Logger
	metrics   *MetricsState
	readiness *Readiness
}

// New creates a server.
func New(opts Options) *Server {
	return &Server{
		game:      opts.Game,
		bus:       opts.Bus,
		journal:   opts.Journal,
		auth:      newAuthConfig(opts.Auth),
		tls:       opts.TLS,
		log:       opts.Logger,
		metrics:   newMetricsState(opts.RoomID),
		readiness: &Readiness{},
	}
}

// Readiness returns the dependency status holder.
func (s *Server) Readiness() *Readiness { return s.readiness }

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ready", s.readyHandler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)
	mux.HandleFunc("GET /state", s.requireAnyRole(s.stateHandler))
	mux.HandleFunc("GET /events", s.requireAnyRole(s.eventsHandler))
	mux.HandleFunc("GET /ws/events", s.requireAnyRole(s.wsEventsHandler))

	mux.HandleFunc("POST /game/pause", s.requireAnyRole(s.pauseHandler))
	mux.HandleFunc("POST /game/resume", s.requireAnyRole(s.resumeHandler))
	mux.HandleFunc("POST /game/advance", s.requireAnyRole(s.advanceHandler))
	mux.HandleFunc("POST /game/exit", s.requireAnyRole(s.exitHandler))
	mux.HandleFunc("POST /game/hint", s.requireAnyRole(s.hintHandler))
	mux.HandleFunc("POST /game/interact", s.requireAnyRole(s.interactHandler))
	mux.HandleFunc("POST /game/hover", s.requireAnyRole(s.hoverHandler))
	mux.HandleFunc("POST /game/level", s.requireAdmin(s.levelHandler))
	return mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsCfg, err := s.tls.Load()
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsCfg

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api.listening", "API listening", map[string]interface{}{
			"addr": addr,
			"tls":  tlsCfg != nil,
			"auth": s.auth.enabled,
		})
		if tlsCfg != nil {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "holoquest",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	resp := s.readiness.Check(s.game.State())
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Snapshot())
}

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
)

// eventsHandler returns recent bus messages. ?source=journal reads the
// persisted journal instead of the in-memory history.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, OperatorResponse{OK: false, Error: "invalid limit"})
			return
		}
		limit = min(n, maxEventsLimit)
	}

	if r.URL.Query().Get("source") == "journal" {
		if s.journal == nil {
			writeJSON(w, http.StatusNotFound, OperatorResponse{OK: false, Error: "journal not configured"})
			return
		}
		rows, err := s.journal.Query(limit)
		if err != nil {
			s.log.Error("api.journal_failed", "journal query failed", map[string]interface{}{"error": err})
			writeJSON(w, http.StatusServiceUnavailable, OperatorResponse{OK: false, Error: "journal unavailable"})
			return
		}
		if rows == nil {
			rows = []storage.Row{}
		}
		writeJSON(w, http.StatusOK, rows)
		return
	}

	writeJSON(w, http.StatusOK, s.bus.Recent(limit))
}

// OperatorResponse is the body of every game control response.
type OperatorResponse struct {
	OK      bool           `json:"ok"`
	Changed bool           `json:"changed,omitempty"`
	State   string         `json:"state,omitempty"`
	Result  *puzzle.Result `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, changed bool) {
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true, Changed: changed, State: s.game.State().String()})
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, OperatorResponse{OK: false, Error: msg, State: s.game.State().String()})
}

func (s *Server) operatorLog(r *http.Request, action string, fields map[string]interface{}) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["action"] = action
	fields["remote"] = r.RemoteAddr
	s.log.Info("operator."+action, "operator action", fields)
}

func (s *Server) pauseHandler(w http.ResponseWriter, r *http.Request) {
	s.operatorLog(r, "pause", nil)
	s.respond(w, s.game.Pause())
}

func (s *Server) resumeHandler(w http.ResponseWriter, r *http.Request) {
	s.operatorLog(r, "resume", nil)
	s.respond(w, s.game.Resume())
}

func (s *Server) advanceHandler(w http.ResponseWriter, r *http.Request) {
	s.operatorLog(r, "advance", nil)
	before := s.game.State()
	if err := s.game.Advance(r.Context()); err != nil {
		s.transitionFailed(w, err)
		return
	}
	s.respond(w, before == game.StateTransitioning)
}

func (s *Server) exitHandler(w http.ResponseWriter, r *http.Request) {
	s.operatorLog(r, "exit", nil)
	before := s.game.State()
	if err := s.game.Exit(); err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, before == game.StateTransitioning)
}

func (s *Server) hintHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.game.Publish(bus.TopicHintRequest, nil); err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, true)
}

type LevelRequest struct {
	LevelID string `json:"level_id"`
}

func (s *Server) levelHandler(w http.ResponseWriter, r *http.Request) {
	var req LevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.LevelID == "" {
		s.fail(w, http.StatusBadRequest, "level_id required")
		return
	}
	s.operatorLog(r, "load_level", map[string]interface{}{"level_id": req.LevelID})
	if err := s.game.LoadLevel(r.Context(), req.LevelID); err != nil {
		s.transitionFailed(w, err)
		return
	}
	s.respond(w, true)
}

func (s *Server) transitionFailed(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, level.ErrUnknownLevel) {
		status = http.StatusNotFound
	}
	s.fail(w, status, err.Error())
}

type InteractRequest struct {
	Name  string `json:"name"`
	Input string `json:"input,omitempty"`
}

func (s *Server) interactHandler(w http.ResponseWriter, r *http.Request) {
	var req InteractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		s.fail(w, http.StatusBadRequest, "name required")
		return
	}
	res, err := s.game.Activate(req.Name, req.Input)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, registry.ErrUnknownObject) {
			status = http.StatusNotFound
		}
		s.fail(w, status, err.Error())
		return
	}
	s.metrics.interaction()
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true, Changed: res.Outcome != puzzle.OutcomeIgnored, State: s.game.State().String(), Result: &res})
}

type HoverRequest struct {
	Name string `json:"name"`
	On   bool   `json:"on"`
}

func (s *Server) hoverHandler(w http.ResponseWriter, r *http.Request) {
	var req HoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		s.fail(w, http.StatusBadRequest, "name required")
		return
	}
	var changed bool
	if req.On {
		changed = s.game.Hover(req.Name)
	} else {
		changed = s.game.Unhover(req.Name)
	}
	s.respond(w, changed)
}
