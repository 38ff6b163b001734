package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/mparet/crashcast/internal/interval"
)

// trendHistoryCap bounds the recent-multiplier ring per interval bucket.
const trendHistoryCap = 10

// trend is the mutable per-bucket state: bracket counters, the recent
// multiplier ring and the cached phase label set at first observation.
type trend struct {
	lowCount  int
	medCount  int
	highCount int
	recent    []float64
	phase     Quality

	compensationMode  bool
	compensationCount int
}

func (t *trend) observe(m float64) {
	switch BracketFor(m) {
	case BracketLow:
		t.lowCount++
	case BracketMed:
		t.medCount++
	default:
		t.highCount++
	}
	t.recent = append(t.recent, m)
	if len(t.recent) > trendHistoryCap {
		t.recent = t.recent[1:]
	}
}

// TrendView is a read-only copy of one bucket's trend state.
type TrendView struct {
	Phase             Quality
	LowCount          int
	MedCount          int
	HighCount         int
	Recent            []float64
	CompensationMode  bool
	CompensationCount int
}

// TrendSnapshot is the JSON-facing form of one bucket's trend.
type TrendSnapshot struct {
	Key               string    `json:"key"`
	Phase             string    `json:"phase"`
	LowCount          int       `json:"lowCount"`
	MedCount          int       `json:"medCount"`
	HighCount         int       `json:"highCount"`
	Recent            []float64 `json:"recent"`
	CompensationMode  bool      `json:"compensationMode"`
	CompensationCount int       `json:"compensationCount"`
}

// TrendStore maintains per-bucket trends across all four granularities.
// Buckets are created lazily on first touch and never evicted; entries
// accumulate for the lifetime of the session.
type TrendStore struct {
	mu     sync.RWMutex
	byGran map[interval.Granularity]map[string]*trend
}

// NewTrendStore creates an empty trend store.
func NewTrendStore() *TrendStore {
	return &TrendStore{byGran: emptyGranMaps()}
}

func emptyGranMaps() map[interval.Granularity]map[string]*trend {
	m := make(map[interval.Granularity]map[string]*trend, 4)
	for _, g := range interval.Granularities() {
		m[g] = make(map[string]*trend)
	}
	return m
}

// Create inserts a bucket with the given phase label. No-op if the bucket
// already exists.
func (s *TrendStore) Create(g interval.Granularity, key string, phase Quality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byGran[g][key]; ok {
		return
	}
	s.byGran[g][key] = &trend{phase: phase, recent: make([]float64, 0, trendHistoryCap)}
}

// View returns a copy of the bucket's state, or false if it has not been
// created yet.
func (s *TrendStore) View(g interval.Granularity, key string) (TrendView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byGran[g][key]
	if !ok {
		return TrendView{}, false
	}
	return TrendView{
		Phase:             t.phase,
		LowCount:          t.lowCount,
		MedCount:          t.medCount,
		HighCount:         t.highCount,
		Recent:            append([]float64(nil), t.recent...),
		CompensationMode:  t.compensationMode,
		CompensationCount: t.compensationCount,
	}, true
}

// ViewAt is View keyed by timestamp.
func (s *TrendStore) ViewAt(g interval.Granularity, ts time.Time) (TrendView, bool) {
	return s.View(g, interval.Key(g, ts))
}

// SetPhase overwrites the phase label of an existing bucket. A downgrade
// to bad or catastrophic marks the bucket as compensating; any other
// phase clears the flag.
func (s *TrendStore) SetPhase(g interval.Granularity, key string, phase Quality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byGran[g][key]
	if !ok {
		return
	}
	if phase == Bad || phase == Catastrophic {
		t.compensationMode = true
		t.compensationCount++
	} else {
		t.compensationMode = false
	}
	t.phase = phase
}

// Record updates the trend entries of all four granularities for the
// buckets the timestamp falls into, creating missing entries with a
// Normal phase. Counters are additive: replaying the same observation
// twice counts it twice.
func (s *TrendStore) Record(m float64, ts time.Time) {
	keys := interval.KeysAt(ts)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range interval.Granularities() {
		key := keys.At(g)
		t, ok := s.byGran[g][key]
		if !ok {
			t = &trend{phase: Normal, recent: make([]float64, 0, trendHistoryCap)}
			s.byGran[g][key] = t
		}
		t.observe(m)
	}
}

// Clear drops all buckets.
func (s *TrendStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byGran = emptyGranMaps()
}

// Size returns the total bucket count across all granularities.
func (s *TrendStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.byGran {
		n += len(m)
	}
	return n
}

// Snapshot returns all buckets of one granularity sorted by key.
func (s *TrendStore) Snapshot(g interval.Granularity) []TrendSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TrendSnapshot, 0, len(s.byGran[g]))
	for key, t := range s.byGran[g] {
		out = append(out, TrendSnapshot{
			Key:               key,
			Phase:             t.phase.String(),
			LowCount:          t.lowCount,
			MedCount:          t.medCount,
			HighCount:         t.highCount,
			Recent:            append([]float64(nil), t.recent...),
			CompensationMode:  t.compensationMode,
			CompensationCount: t.compensationCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
