package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mparet/crashcast/internal/engine"
	"github.com/mparet/crashcast/internal/persist"
	"github.com/mparet/crashcast/internal/runner"
	"github.com/mparet/crashcast/internal/session"
)

// newTestServer builds a Server over a real engine, CSV log, and a
// running session goroutine.
func newTestServer(t *testing.T) (*Server, *http.ServeMux) {
	t.Helper()

	params := engine.NewParams()
	trends := engine.NewTrendStore()
	ad := engine.NewAdaptive(params)
	gen := engine.NewGenerator(engine.NewRNG(42), params, trends, ad)

	l, err := persist.OpenCSVLog(filepath.Join(t.TempDir(), "events.csv"))
	if err != nil {
		t.Fatalf("OpenCSVLog: %v", err)
	}
	t.Cleanup(func() { l.Close(context.Background()) })

	mgr := session.NewManager(64)
	run := runner.New(gen, params, trends, ad, l, mgr)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go run.Run(ctx)

	srv := NewServer(run, params, trends, l, mgr)
	mux := http.NewServeMux()
	srv.Register(mux)
	return srv, mux
}

func mustDecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	_, mux := newTestServer(t)

	w := do(mux, "GET", "/api/session", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/session: %d", w.Code)
	}
	var st map[string]any
	mustDecodeJSON(t, w.Result(), &st)
	if st["state"] != "stopped" {
		t.Errorf("initial state = %v, want stopped", st["state"])
	}

	w = do(mux, "POST", "/api/session/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("POST start: %d (%s)", w.Code, w.Body.String())
	}
	mustDecodeJSON(t, w.Result(), &st)
	if st["state"] != "running" {
		t.Errorf("state after start = %v, want running", st["state"])
	}

	// Starting twice is a client error.
	w = do(mux, "POST", "/api/session/start", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("double start = %d, want 400", w.Code)
	}

	w = do(mux, "POST", "/api/session/pause", "")
	if w.Code != http.StatusOK {
		t.Fatalf("POST pause: %d", w.Code)
	}
	w = do(mux, "POST", "/api/session/resume", "")
	if w.Code != http.StatusOK {
		t.Fatalf("POST resume: %d", w.Code)
	}
	w = do(mux, "POST", "/api/session/stop", "")
	if w.Code != http.StatusOK {
		t.Fatalf("POST stop: %d", w.Code)
	}
}

func TestRestartEndpoints(t *testing.T) {
	_, mux := newTestServer(t)

	w := do(mux, "POST", "/api/session/quick-restart", "")
	if w.Code != http.StatusOK {
		t.Fatalf("quick-restart: %d (%s)", w.Code, w.Body.String())
	}

	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC).Format(time.RFC3339)
	w = do(mux, "POST", "/api/session/full-restart", `{"start":"`+start+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("full-restart: %d (%s)", w.Code, w.Body.String())
	}
	var st map[string]any
	mustDecodeJSON(t, w.Result(), &st)
	if st["state"] != "running" {
		t.Errorf("state after full restart = %v, want running", st["state"])
	}
}

func TestForecastEndpoint(t *testing.T) {
	_, mux := newTestServer(t)

	w := do(mux, "GET", "/api/forecast?start=2025-06-02T09:00:00Z", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/forecast: %d", w.Code)
	}
	var out struct {
		Count  int            `json:"count"`
		Rounds []engine.Round `json:"rounds"`
	}
	mustDecodeJSON(t, w.Result(), &out)
	if out.Count == 0 || len(out.Rounds) != out.Count {
		t.Fatalf("forecast count = %d with %d rounds", out.Count, len(out.Rounds))
	}
	for i, rd := range out.Rounds {
		if rd.Multiplier < 1.0 {
			t.Errorf("round %d multiplier %v < 1.0", i, rd.Multiplier)
		}
	}

	w = do(mux, "GET", "/api/forecast?start=yesterday", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("GET /api/forecast with bad start: %d, want 400", w.Code)
	}
}

func TestResultsEndpoint(t *testing.T) {
	srv, mux := newTestServer(t)

	w := do(mux, "POST", "/api/results", `{"multiplier":2.45}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/results: %d (%s)", w.Code, w.Body.String())
	}
	if srv.trends.Size() == 0 {
		t.Error("no trend buckets after recorded result")
	}

	w = do(mux, "POST", "/api/results", `{"multiplier":0.4}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid multiplier = %d, want 400", w.Code)
	}

	w = do(mux, "POST", "/api/results", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid body = %d, want 400", w.Code)
	}
}

func TestTrendsEndpoint(t *testing.T) {
	_, mux := newTestServer(t)

	do(mux, "POST", "/api/results", `{"multiplier":3.5}`)

	w := do(mux, "GET", "/api/trends/minute", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/trends/minute: %d", w.Code)
	}
	var out struct {
		Granularity string           `json:"granularity"`
		Buckets     []map[string]any `json:"buckets"`
	}
	mustDecodeJSON(t, w.Result(), &out)
	if out.Granularity != "minute" {
		t.Errorf("granularity = %q, want minute", out.Granularity)
	}
	if len(out.Buckets) != 1 {
		t.Errorf("buckets = %d, want 1", len(out.Buckets))
	}

	w = do(mux, "GET", "/api/trends/decade", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown granularity = %d, want 400", w.Code)
	}
}

func TestConfigEndpoints(t *testing.T) {
	srv, mux := newTestServer(t)

	w := do(mux, "GET", "/api/config", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/config: %d", w.Code)
	}

	w = do(mux, "PUT", "/api/config", `{"simulation":{"pause_between_rounds_seconds":9}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT /api/config: %d (%s)", w.Code, w.Body.String())
	}
	if got := srv.params.Snapshot().Simulation.PauseBetweenRoundsSeconds; got != 9 {
		t.Errorf("pause after update = %v, want 9", got)
	}

	// An out-of-range value rejects the whole update.
	w = do(mux, "PUT", "/api/config", `{"multiplier_generation":{"good_phase_high_mult_chance":1.5}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid chance = %d, want 400", w.Code)
	}
	if got := srv.params.Snapshot().Simulation.PauseBetweenRoundsSeconds; got != 9 {
		t.Errorf("pause after rejected update = %v, want 9", got)
	}

	w = do(mux, "POST", "/api/config/reset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/config/reset: %d", w.Code)
	}
	if got := srv.params.Snapshot().Simulation.PauseBetweenRoundsSeconds; got == 9 {
		t.Error("pause unchanged after reset")
	}
}

func TestEventsEndpoint(t *testing.T) {
	_, mux := newTestServer(t)

	do(mux, "POST", "/api/results", `{"multiplier":2.0}`)
	do(mux, "POST", "/api/results", `{"multiplier":5.0}`)

	w := do(mux, "GET", "/api/events?type=real_result&limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/events: %d", w.Code)
	}
	var events []map[string]any
	mustDecodeJSON(t, w.Result(), &events)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0]["multiplier"] != 5.0 {
		t.Errorf("tail multiplier = %v, want 5", events[0]["multiplier"])
	}

	w = do(mux, "GET", "/api/events?type=bogus", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown type = %d, want 400", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, mux := newTestServer(t)

	w := do(mux, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health: %d", w.Code)
	}
	var out map[string]any
	mustDecodeJSON(t, w.Result(), &out)
	if out["status"] != "ok" {
		t.Errorf("status = %v, want ok", out["status"])
	}
}
