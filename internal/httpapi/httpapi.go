// Package httpapi exposes the bridge over plain HTTP for callers that do
// not speak MCP (scripts, schedulers, other services).
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/HendryAvila/crewbridge/internal/bridge"
	"github.com/HendryAvila/crewbridge/internal/journal"
)

// Config contains server configuration values.
type Config struct {
	// Token, when set, is required as "Authorization: Bearer <token>" on
	// every route but /health.
	Token string
	// RequestTimeout bounds a whole request, bridge call included.
	RequestTimeout time.Duration
}

// Providers resolves provider names. *bridge.Registry satisfies it.
type Providers interface {
	Get(name string) (bridge.Caller, error)
	Names() []string
}

// History is the read side of the journal.
type History interface {
	RecentInvocations(provider string, limit int) ([]journal.Invocation, error)
	RecentRuns(limit int) ([]journal.Run, error)
	Stats() (*journal.Stats, error)
}

// InvokeRequest is the body of POST /providers/{name}/invoke.
type InvokeRequest struct {
	Operation string          `json:"operation"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// BridgeRequest decodes the arguments. Missing or null arguments become
// an empty mapping; anything but an object is rejected.
func (r InvokeRequest) BridgeRequest() (bridge.Request, error) {
	args, err := bridge.DecodeArguments(r.Arguments)
	if err != nil {
		return bridge.Request{}, err
	}
	return bridge.Request{Operation: r.Operation, Arguments: args}, nil
}

// Server contains the configured router and its dependencies.
type Server struct {
	cfg       Config
	router    *chi.Mux
	providers Providers
	history   History
}

// New constructs a Server with middleware and routes configured. history
// may be nil, in which case /history answers 404.
func New(cfg Config, providers Providers, history History) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}
	s := &Server{
		cfg:       cfg,
		router:    chi.NewRouter(),
		providers: providers,
		history:   history,
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(cfg.RequestTimeout))

	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/providers", s.handleProviders)
		r.Get("/providers/{name}/tools", s.handleTools)
		r.Post("/providers/{name}/invoke", s.handleInvoke)
		r.Get("/history", s.handleHistory)
		r.Get("/history/runs", s.handleRuns)
		r.Get("/history/stats", s.handleStats)
	})

	return s
}

// Router exposes the root HTTP handler for the server.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		want := []byte("Bearer " + s.cfg.Token)
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.providers.Names()})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, caller.ListCapabilities(r.Context()))
}

// handleInvoke answers 200 for every call that reached the bridge: the
// structured result, failures included, is the response.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var body InvokeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return
	}
	req, err := body.BridgeRequest()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, caller.Invoke(r.Context(), req.Operation, req.Arguments))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	invs, err := s.history.RecentInvocations(r.URL.Query().Get("provider"), limitParam(r, 20))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if invs == nil {
		invs = []journal.Invocation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invocations": invs})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	runs, err := s.history.RecentRuns(limitParam(r, 20))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []journal.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	stats, err := s.history.Stats()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (bridge.Caller, bool) {
	caller, err := s.providers.Get(chi.URLParam(r, "name"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, bridge.ErrProviderNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return nil, false
	}
	return caller, true
}

func (s *Server) requireHistory(w http.ResponseWriter) bool {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return false
	}
	return true
}

func limitParam(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
