package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mparet/crashcast/internal/engine"
	"github.com/mparet/crashcast/internal/event"
	"github.com/mparet/crashcast/internal/interval"
	"github.com/mparet/crashcast/internal/runner"
)

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.run.Start(r.Context()); err != nil {
		writeOpError(w, err)
		return
	}
	s.writeStatus(w, r)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.run.Stop(r.Context()); err != nil {
		writeOpError(w, err)
		return
	}
	s.writeStatus(w, r)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.run.Pause(r.Context()); err != nil {
		writeOpError(w, err)
		return
	}
	s.writeStatus(w, r)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.run.Resume(r.Context()); err != nil {
		writeOpError(w, err)
		return
	}
	s.writeStatus(w, r)
}

func (s *Server) handleQuickRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.run.QuickRestart(r.Context()); err != nil {
		writeOpError(w, err)
		return
	}
	s.writeStatus(w, r)
}

type fullRestartRequest struct {
	Start *time.Time `json:"start"`
}

func (s *Server) handleFullRestart(w http.ResponseWriter, r *http.Request) {
	var req fullRestartRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	start := time.Now()
	if req.Start != nil {
		start = *req.Start
	}
	if err := s.run.FullRestart(r.Context(), start); err != nil {
		writeOpError(w, err)
		return
	}
	s.writeStatus(w, r)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, r)
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.run.Status(r.Context())
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleForecast generates the round sequence from the given start time
// (default now) over the configured horizon.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if t, err := parseTimeParam(r, "start"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	} else if t != nil {
		start = *t
	}
	rounds, err := s.run.Forecast(r.Context(), start)
	if err != nil {
		writeOpError(w, err)
		return
	}
	if rounds == nil {
		rounds = []engine.Round{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"start":  start,
		"count":  len(rounds),
		"rounds": rounds,
	})
}

type resultRequest struct {
	Multiplier float64    `json:"multiplier"`
	CrashTime  *time.Time `json:"crashTime"`
}

// handleResults records one observed real round outcome.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	var req resultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.run.ApplyResult(r.Context(), req.Multiplier, req.CrashTime); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// handleTrends returns every trend bucket for one granularity.
func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	g, err := interval.Parse(r.PathValue("granularity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"granularity": g.String(),
		"buckets":     s.trends.Snapshot(g),
	})
}

type statsResponse struct {
	Uptime  string           `json:"uptime"`
	Clients int              `json:"clients"`
	Buckets int              `json:"trendBuckets"`
	Session runner.StatsView `json:"session"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.run.Stats(r.Context())
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Uptime:  time.Since(s.startAt).Truncate(time.Second).String(),
		Clients: s.mgr.ClientCount(),
		Buckets: s.trends.Size(),
		Session: st,
	})
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.params.Snapshot())
}

func (s *Server) handleConfigPut(w http.ResponseWriter, r *http.Request) {
	var u engine.Partial
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.params.Update(u); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.params.Snapshot())
}

func (s *Server) handleConfigReset(w http.ResponseWriter, r *http.Request) {
	s.params.Reset()
	writeJSON(w, http.StatusOK, s.params.Snapshot())
}

// handleEvents returns the tail of the event log.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 100)
	typ := event.Type(r.URL.Query().Get("type"))
	if typ != "" && !event.Known(typ) {
		writeError(w, http.StatusBadRequest, "unknown event type: "+string(typ))
		return
	}
	events, err := s.eventLog.Tail(r.Context(), limit, typ)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.startAt).Truncate(time.Second).String(),
		"clients": s.mgr.ClientCount(),
	})
}
