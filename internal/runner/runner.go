package runner

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/mparet/crashcast/internal/engine"
	"github.com/mparet/crashcast/internal/event"
	"github.com/mparet/crashcast/internal/persist"
)

// State is the session lifecycle state.
type State int

const (
	StateStopped State = iota
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	}
	return "unknown"
}

// Broadcaster receives live session events. The WebSocket manager
// implements it; tests substitute their own.
type Broadcaster interface {
	RoundStarted(r engine.Round)
	ResultApplied(p event.ResultPayload)
	StatusChanged(p event.StatusPayload)
}

type nopBroadcaster struct{}

func (nopBroadcaster) RoundStarted(engine.Round)         {}
func (nopBroadcaster) ResultApplied(event.ResultPayload) {}
func (nopBroadcaster) StatusChanged(event.StatusPayload) {}

// StatusView is a point-in-time snapshot of the session.
type StatusView struct {
	State   string        `json:"state"`
	Round   int           `json:"round"`
	Cursor  time.Time     `json:"cursor"`
	Current *engine.Round `json:"currentRound,omitempty"`
}

// StatsView aggregates the multipliers seen this session, live rounds
// and applied real results alike.
type StatsView struct {
	Total     int     `json:"total"`
	Average   float64 `json:"average"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	LowCount  int     `json:"lowCount"`
	MedCount  int     `json:"medCount"`
	HighCount int     `json:"highCount"`
}

type stats struct {
	total int
	sum   float64
	min   float64
	max   float64
	low   int
	med   int
	high  int
}

func (s *stats) observe(m float64) {
	if s.total == 0 || m < s.min {
		s.min = m
	}
	if m > s.max {
		s.max = m
	}
	s.total++
	s.sum += m
	switch engine.BracketFor(m) {
	case engine.BracketLow:
		s.low++
	case engine.BracketMed:
		s.med++
	default:
		s.high++
	}
}

func (s *stats) view() StatsView {
	v := StatsView{
		Total: s.total, Min: s.min, Max: s.max,
		LowCount: s.low, MedCount: s.med, HighCount: s.high,
	}
	if s.total > 0 {
		v.Average = math.Round(s.sum/float64(s.total)*100) / 100
	}
	return v
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdPause
	cmdResume
	cmdQuickRestart
	cmdFullRestart
	cmdApplyResult
	cmdForecast
	cmdStatus
	cmdStats
)

type command struct {
	kind  cmdKind
	start time.Time
	mult  float64
	crash *time.Time
	reply chan response
}

type response struct {
	err    error
	status StatusView
	stats  StatsView
	rounds []engine.Round
}

// Runner drives the live round loop. All session state lives inside the
// Run goroutine; every operation goes through the command channel.
type Runner struct {
	gen      *engine.Generator
	params   *engine.Params
	trends   *engine.TrendStore
	adaptive *engine.Adaptive
	eventLog persist.Log
	bc       Broadcaster

	cmds chan command
	done chan struct{}
}

func New(gen *engine.Generator, params *engine.Params, trends *engine.TrendStore, adaptive *engine.Adaptive, eventLog persist.Log, bc Broadcaster) *Runner {
	if bc == nil {
		bc = nopBroadcaster{}
	}
	return &Runner{
		gen:      gen,
		params:   params,
		trends:   trends,
		adaptive: adaptive,
		eventLog: eventLog,
		bc:       bc,
		cmds:     make(chan command),
		done:     make(chan struct{}),
	}
}

// ReplayHistory feeds every logged event back through the engine. Call
// before Run: real results rebuild the trend counters, crash time data
// rebuilds the duration history and may snap learned bounds. Returns
// the number of events applied and of malformed rows skipped.
func (r *Runner) ReplayHistory(ctx context.Context) (applied, skipped int, err error) {
	skipped, err = r.eventLog.Replay(ctx, func(e event.Event) error {
		switch e.Type {
		case event.TypeRealResult:
			r.trends.Record(e.Multiplier, e.Timestamp)
			applied++
		case event.TypeCrashTimeData:
			if _, dur, perr := event.ParseCrashDataComment(e.Comment); perr == nil {
				r.adaptive.RecordHistorical(e.Multiplier, dur)
				applied++
			}
		}
		return nil
	})
	if err != nil {
		return applied, skipped, err
	}

	if snapped := r.adaptive.ApplyHistory(); len(snapped) > 0 {
		for _, b := range snapped {
			log.Printf("crash bound for %s bracket snapped to historical mean", b)
		}
	}
	return applied, skipped, nil
}

// Run owns the session loop until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)

	var (
		state   = StateStopped
		cursor  time.Time
		roundNo int
		current *engine.Round
		st      stats
	)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	stopTimer := func() {
		if armed && !timer.Stop() {
			<-timer.C
		}
		armed = false
	}
	arm := func(d time.Duration) {
		stopTimer()
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
		armed = true
	}

	broadcastStatus := func() {
		r.bc.StatusChanged(event.StatusPayload{
			State:  state.String(),
			Round:  roundNo,
			Cursor: cursor,
		})
	}

	appendRow := func(e event.Event) {
		if err := r.eventLog.Append(ctx, e); err != nil {
			log.Printf("event log append failed: %v", err)
		}
	}

	nextRound := func() {
		start := cursor
		mult, phase := r.gen.NextMultiplier(start)
		crash := r.gen.CrashTime(start, mult)
		roundNo++
		rd := engine.Round{
			Round:      roundNo,
			StartTime:  start,
			Multiplier: mult,
			CrashTime:  crash,
			Phase:      phase.String(),
		}
		current = &rd
		r.trends.Record(mult, start)
		st.observe(mult)
		cursor = crash.Add(r.params.Pause())
		r.bc.RoundStarted(rd)
		arm(cursor.Sub(start))
	}

	handle := func(cmd command) response {
		switch cmd.kind {
		case cmdStart:
			if state != StateStopped {
				return response{err: &engine.ValidationError{Reason: "session already started"}}
			}
			state = StateRunning
			cursor = time.Now()
			roundNo = 0
			current = nil
			st = stats{}
			appendRow(event.Event{Timestamp: cursor, Type: event.TypeSessionStart, Comment: "Session started"})
			broadcastStatus()
			arm(0)
			return response{}

		case cmdStop:
			if state == StateStopped {
				return response{err: &engine.ValidationError{Reason: "session not running"}}
			}
			state = StateStopped
			current = nil
			stopTimer()
			broadcastStatus()
			return response{}

		case cmdPause:
			if state != StateRunning {
				return response{err: &engine.ValidationError{Reason: "session not running"}}
			}
			state = StatePaused
			stopTimer()
			broadcastStatus()
			return response{}

		case cmdResume:
			if state != StatePaused {
				return response{err: &engine.ValidationError{Reason: "session not paused"}}
			}
			state = StateRunning
			if now := time.Now(); cursor.Before(now) {
				cursor = now
			}
			broadcastStatus()
			arm(0)
			return response{}

		case cmdQuickRestart:
			// Trends and learned bounds survive; only the cursor moves.
			state = StateRunning
			cursor = time.Now()
			current = nil
			appendRow(event.Event{Timestamp: cursor, Type: event.TypeSessionStart, Comment: "Quick restart"})
			broadcastStatus()
			arm(0)
			return response{}

		case cmdFullRestart:
			state = StateRunning
			cursor = cmd.start
			roundNo = 0
			current = nil
			st = stats{}
			r.trends.Clear()
			r.adaptive.ClearHistory()
			r.params.Reset()
			if err := r.eventLog.Truncate(ctx); err != nil {
				log.Printf("event log truncate failed: %v", err)
			}
			appendRow(event.Event{Timestamp: time.Now(), Type: event.TypeSessionStart, Comment: "Full restart"})
			broadcastStatus()
			arm(0)
			return response{}

		case cmdApplyResult:
			return r.applyResult(cmd, &state, &cursor, &current, &st, appendRow, arm)

		case cmdForecast:
			return response{rounds: r.gen.Forecast(cmd.start)}

		case cmdStatus:
			return response{status: StatusView{
				State:   state.String(),
				Round:   roundNo,
				Cursor:  cursor,
				Current: current,
			}}

		case cmdStats:
			return response{stats: st.view()}
		}
		return response{err: &engine.ValidationError{Reason: "unknown command"}}
	}

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			return
		case <-timer.C:
			armed = false
			if state == StateRunning {
				nextRound()
			}
		case cmd := <-r.cmds:
			cmd.reply <- handle(cmd)
		}
	}
}

// applyResult validates and records one real round outcome. Validation
// happens before any mutation so a rejected result leaves no trace.
func (r *Runner) applyResult(cmd command, state *State, cursor *time.Time, current **engine.Round, st *stats, appendRow func(event.Event), arm func(time.Duration)) response {
	if cmd.mult < 1.0 {
		return response{err: &engine.ValidationError{Reason: "multiplier must be >= 1.0"}}
	}

	now := time.Now()
	refStart := now
	if *current != nil {
		refStart = (*current).StartTime
	} else if !cursor.IsZero() {
		refStart = *cursor
	}

	var durSeconds float64
	if cmd.crash != nil {
		durSeconds = cmd.crash.Sub(refStart).Seconds()
		if durSeconds <= 0 {
			return response{err: &engine.ValidationError{Reason: "crash time precedes round start"}}
		}
	}

	r.trends.Record(cmd.mult, now)
	st.observe(cmd.mult)
	appendRow(event.Event{
		Timestamp:  now,
		Type:       event.TypeRealResult,
		Multiplier: cmd.mult,
		Comment:    "User provided feedback",
	})

	crashAt := r.gen.CrashTime(refStart, cmd.mult)
	if cmd.crash != nil {
		crashAt = *cmd.crash
		bracket, adjusted := r.adaptive.ObserveDuration(cmd.mult, durSeconds)
		if adjusted {
			log.Printf("crash bound for %s bracket adjusted from feedback", bracket)
		}
		appendRow(event.Event{
			Timestamp:  now,
			Type:       event.TypeCrashTimeData,
			Multiplier: cmd.mult,
			Comment:    event.CrashDataComment(bracket.String(), durSeconds),
		})
	}

	*cursor = crashAt.Add(r.params.Pause())
	*current = nil
	r.bc.ResultApplied(event.ResultPayload{
		Multiplier: cmd.mult,
		CrashTime:  cmd.crash,
		NextStart:  *cursor,
	})
	if *state == StateRunning {
		arm(time.Until(*cursor))
	}
	return response{}
}

func (r *Runner) send(ctx context.Context, cmd command) (response, error) {
	cmd.reply = make(chan response, 1)
	select {
	case r.cmds <- cmd:
	case <-r.done:
		return response{}, context.Canceled
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
	select {
	case resp := <-cmd.reply:
		return resp, resp.err
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

// Start begins a new session at the current wall clock.
func (r *Runner) Start(ctx context.Context) error {
	_, err := r.send(ctx, command{kind: cmdStart})
	return err
}

func (r *Runner) Stop(ctx context.Context) error {
	_, err := r.send(ctx, command{kind: cmdStop})
	return err
}

func (r *Runner) Pause(ctx context.Context) error {
	_, err := r.send(ctx, command{kind: cmdPause})
	return err
}

func (r *Runner) Resume(ctx context.Context) error {
	_, err := r.send(ctx, command{kind: cmdResume})
	return err
}

// QuickRestart moves the cursor to now and keeps accumulated trends.
func (r *Runner) QuickRestart(ctx context.Context) error {
	_, err := r.send(ctx, command{kind: cmdQuickRestart})
	return err
}

// FullRestart wipes trends, learned history, parameters and the event
// log, then restarts the session from the supplied time.
func (r *Runner) FullRestart(ctx context.Context, start time.Time) error {
	_, err := r.send(ctx, command{kind: cmdFullRestart, start: start})
	return err
}

// ApplyResult records an observed real multiplier, optionally with its
// actual crash time for bound learning.
func (r *Runner) ApplyResult(ctx context.Context, mult float64, crash *time.Time) error {
	_, err := r.send(ctx, command{kind: cmdApplyResult, mult: mult, crash: crash})
	return err
}

// Forecast produces the round sequence from start over the configured
// horizon.
func (r *Runner) Forecast(ctx context.Context, start time.Time) ([]engine.Round, error) {
	resp, err := r.send(ctx, command{kind: cmdForecast, start: start})
	return resp.rounds, err
}

func (r *Runner) Status(ctx context.Context) (StatusView, error) {
	resp, err := r.send(ctx, command{kind: cmdStatus})
	return resp.status, err
}

func (r *Runner) Stats(ctx context.Context) (StatsView, error) {
	resp, err := r.send(ctx, command{kind: cmdStats})
	return resp.stats, err
}
