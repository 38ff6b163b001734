package engine

import (
	"math"
	"sync"
)

const (
	// boundHistoryCap bounds the per-bracket duration history used for
	// crash-time learning.
	boundHistoryCap = 10
	// boundMinSamples is the number of observed durations required before
	// a bracket's bound starts moving.
	boundMinSamples = 3
	// boundSmoothing is the EMA weight kept on the old bound.
	boundSmoothing = 0.9
	// probSkew is the per-draw adjustment applied to the good-phase
	// high-multiplier probability when a bucket's history is lopsided.
	probSkew = 0.2
)

// Adaptive adjusts quality selection and sampling probability from recent
// trend history, and learns crash-time bounds from real feedback.
type Adaptive struct {
	params *Params

	mu        sync.Mutex
	durations map[Bracket][]float64
}

// NewAdaptive creates an adaptive controller bound to a Params object.
func NewAdaptive(params *Params) *Adaptive {
	return &Adaptive{
		params:    params,
		durations: make(map[Bracket][]float64, 3),
	}
}

// OverrideQuality decides whether a bucket's recent history forces a
// quality label, overriding the rule-table draw. Requires at least 3
// recent multipliers; the check order is significant.
func (a *Adaptive) OverrideQuality(v TrendView) (Quality, bool) {
	if len(v.Recent) < 3 {
		return 0, false
	}

	sum := 0.0
	low, high := 0, 0
	for _, m := range v.Recent {
		sum += m
		if m < 2.0 {
			low++
		}
		if m >= 3.0 {
			high++
		}
	}
	mean := sum / float64(len(v.Recent))

	switch {
	case mean < 1.5 && low >= 3:
		return Bad, true
	case mean > 3.0 && high >= 2:
		return Good, true
	case low >= 4:
		return Catastrophic, true
	default:
		return 0, false
	}
}

// SkewGoodChance returns the good-phase high-multiplier probability for a
// single draw, shifted by the bucket's low/high imbalance. The shift is
// never persisted into configuration.
func (a *Adaptive) SkewGoodChance(v TrendView) float64 {
	p := a.params.MultiplierParams().GoodPhaseHighMultChance
	if v.LowCount > v.HighCount*2 {
		p += probSkew
	} else if v.HighCount > v.LowCount*2 {
		p -= probSkew
	}
	return p
}

// ObserveDuration feeds one real crash duration into the bracket's history
// and, once enough samples exist, smooths the bracket's bound toward the
// history mean. Returns the bracket and whether the bound moved.
func (a *Adaptive) ObserveDuration(multiplier, seconds float64) (Bracket, bool) {
	b := BracketFor(multiplier)

	a.mu.Lock()
	a.durations[b] = appendCapped(a.durations[b], seconds, boundHistoryCap)
	n := len(a.durations[b])
	m := mean(a.durations[b])
	a.mu.Unlock()

	if n < boundMinSamples {
		return b, false
	}
	old := a.params.CrashBound(b)
	a.params.SetCrashBound(b, old*boundSmoothing+m*(1-boundSmoothing))
	return b, true
}

// RecordHistorical appends a replayed duration without touching bounds.
// Call ApplyHistory once replay finishes.
func (a *Adaptive) RecordHistorical(multiplier, seconds float64) {
	b := BracketFor(multiplier)
	a.mu.Lock()
	a.durations[b] = appendCapped(a.durations[b], seconds, boundHistoryCap)
	a.mu.Unlock()
}

// ApplyHistory snaps each bracket's bound to its historical mean when the
// gap exceeds 30% of the current bound. Returns the brackets adjusted.
func (a *Adaptive) ApplyHistory() []Bracket {
	a.mu.Lock()
	defer a.mu.Unlock()

	var adjusted []Bracket
	for _, b := range []Bracket{BracketLow, BracketMed, BracketHigh} {
		hist := a.durations[b]
		if len(hist) == 0 {
			continue
		}
		m := mean(hist)
		cur := a.params.CrashBound(b)
		if math.Abs(m-cur) > cur*0.3 {
			a.params.SetCrashBound(b, m)
			adjusted = append(adjusted, b)
		}
	}
	return adjusted
}

// HistoryLen returns the number of stored durations for a bracket.
func (a *Adaptive) HistoryLen(b Bracket) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.durations[b])
}

// ClearHistory drops all stored durations.
func (a *Adaptive) ClearHistory() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.durations = make(map[Bracket][]float64, 3)
}

func appendCapped(s []float64, v float64, limit int) []float64 {
	s = append(s, v)
	if len(s) > limit {
		s = s[1:]
	}
	return s
}

func mean(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}
