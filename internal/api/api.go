package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mparet/crashcast/internal/engine"
	"github.com/mparet/crashcast/internal/persist"
	"github.com/mparet/crashcast/internal/runner"
	"github.com/mparet/crashcast/internal/session"
)

// Server provides REST API endpoints for the simulator.
type Server struct {
	run      *runner.Runner
	params   *engine.Params
	trends   *engine.TrendStore
	eventLog persist.Log
	mgr      *session.Manager
	startAt  time.Time
}

// NewServer creates a new API server.
func NewServer(run *runner.Runner, params *engine.Params, trends *engine.TrendStore, eventLog persist.Log, mgr *session.Manager) *Server {
	return &Server{
		run:      run,
		params:   params,
		trends:   trends,
		eventLog: eventLog,
		mgr:      mgr,
		startAt:  time.Now(),
	}
}

// Register attaches API routes to the given mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/session/start", s.handleStart)
	mux.HandleFunc("POST /api/session/stop", s.handleStop)
	mux.HandleFunc("POST /api/session/pause", s.handlePause)
	mux.HandleFunc("POST /api/session/resume", s.handleResume)
	mux.HandleFunc("POST /api/session/quick-restart", s.handleQuickRestart)
	mux.HandleFunc("POST /api/session/full-restart", s.handleFullRestart)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/forecast", s.handleForecast)
	mux.HandleFunc("POST /api/results", s.handleResults)
	mux.HandleFunc("GET /api/trends/{granularity}", s.handleTrends)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/config", s.handleConfigGet)
	mux.HandleFunc("PUT /api/config", s.handleConfigPut)
	mux.HandleFunc("POST /api/config/reset", s.handleConfigReset)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /health", s.handleHealth)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeOpError maps engine errors onto status codes: rejected input and
// rejected configuration are client errors, everything else is a 500.
func writeOpError(w http.ResponseWriter, err error) {
	var verr *engine.ValidationError
	var cerr *engine.ConfigError
	if errors.As(err, &verr) || errors.As(err, &cerr) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// parseTimeParam parses an RFC3339 query parameter. An absent parameter
// yields nil; a malformed one is an error.
func parseTimeParam(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q is not RFC3339", key, v)
	}
	return &t, nil
}
