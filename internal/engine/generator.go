package engine

import (
	"time"

	"github.com/mparet/crashcast/internal/interval"
)

// Generator produces synthetic rounds: a quality draw from the time-keyed
// rule table, a multiplier sample biased by that quality, and a crash time
// drawn from the multiplier's bracket bound.
type Generator struct {
	rng      *RNG
	params   *Params
	trends   *TrendStore
	adaptive *Adaptive
}

// NewGenerator wires a generator to its RNG, configuration, trend store
// and adaptive controller.
func NewGenerator(rng *RNG, params *Params, trends *TrendStore, adaptive *Adaptive) *Generator {
	return &Generator{rng: rng, params: params, trends: trends, adaptive: adaptive}
}

// Quality draws a quality label for a timestamp at the given granularity
// from the weighted rule table.
func (g *Generator) Quality(gr interval.Granularity, t time.Time) Quality {
	rules := g.params.Rules()
	switch gr {
	case interval.Hour:
		h := t.Hour()
		switch {
		case containsInt(rules.Hour.PeakHours, h):
			return pick(g.rng, rules.Hour.PeakWeights, Good, Normal, Bad)
		case containsInt(rules.Hour.MediumHours, h):
			return pick(g.rng, rules.Hour.MediumWeights, Good, Normal, Bad)
		default:
			return pick(g.rng, rules.Hour.OffPeakWeights, Good, Normal, Bad, Catastrophic)
		}
	case interval.Quarter:
		switch t.Minute() / 15 {
		case 0:
			return pick(g.rng, rules.Quarter.FirstWeights, Good, Normal)
		case 3:
			return pick(g.rng, rules.Quarter.LastWeights, Normal, Bad, Catastrophic)
		default:
			return pick(g.rng, rules.Quarter.MiddleWeights, Good, Normal, Bad)
		}
	case interval.FiveMin:
		if (t.Minute()/5)%2 == 0 {
			return pick(g.rng, rules.FiveMin.EvenWeights, Good, Normal)
		}
		return pick(g.rng, rules.FiveMin.OddWeights, Normal, Bad, Catastrophic)
	default:
		return g.minuteQuality(rules.Minute, t)
	}
}

// minuteQuality applies the minute rules. Precedence is significant: the
// mod-10 digit checks win over the mod-7/5/3 checks.
func (g *Generator) minuteQuality(rules MinuteRules, t time.Time) Quality {
	m, s := t.Minute(), t.Second()
	switch {
	case m%10 == 9:
		if s < 30 {
			return Catastrophic
		}
		return pick(g.rng, rules.Special9LateWeights, Bad, Catastrophic)
	case m%10 == 1:
		if s < 30 {
			return pick(g.rng, rules.Special1EarlyWeights, Bad, Catastrophic)
		}
		return pick(g.rng, rules.Special1LateWeights, Normal, Bad)
	case m%7 == 0:
		return Catastrophic
	case m%5 == 0:
		return pick(g.rng, rules.MultipleOf5Weights, Bad, Catastrophic)
	case m%3 == 0:
		return pick(g.rng, rules.MultipleOf3Weights, Normal, Bad)
	default:
		return pick(g.rng, rules.DefaultWeights, Good, Normal)
	}
}

func pick(rng *RNG, weights []float64, choices ...Quality) Quality {
	i := rng.WeightedPick(weights)
	if i >= len(choices) {
		i = len(choices) - 1
	}
	return choices[i]
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// SampleMultiplier draws a multiplier for a quality at a timestamp, using
// goodChance as the high-branch probability for the good phase. Values are
// rounded to 2 decimals and fall in [1.00, 99.99].
func (g *Generator) SampleMultiplier(q Quality, t time.Time, goodChance float64) float64 {
	mp := g.params.MultiplierParams()
	m, s := t.Minute(), t.Second()

	// The special-minute override supersedes the quality branches.
	if (m%10 == 9 || m%10 == 1) && s < 30 {
		if g.rng.Chance(mp.SpecialMinuteLowChance) {
			return g.rng.Uniform2(1.00, 1.99)
		}
		return g.rng.Uniform2(2.00, 2.50)
	}

	switch q {
	case Good:
		if g.rng.Chance(goodChance) {
			return g.rng.Uniform2(2.00, 9.99)
		}
		return g.rng.Uniform2(1.00, 1.99)
	case Normal:
		r := g.rng.Float64()
		switch {
		case r < 0.5:
			return g.rng.Uniform2(1.00, 1.99)
		case r < 0.8:
			return g.rng.Uniform2(2.00, 3.00)
		default:
			return g.rng.Uniform2(3.01, 9.99)
		}
	case Bad:
		if g.rng.Chance(mp.BadPhaseLowMultChance) {
			return g.rng.Uniform2(1.00, 1.99)
		}
		return g.rng.Uniform2(2.00, 4.00)
	case Catastrophic:
		if g.rng.Chance(mp.CatastrophicPhaseLowMultChance) {
			return g.rng.Uniform2(1.00, 1.99)
		}
		return g.rng.Uniform2(2.00, 3.00)
	default:
		return g.rng.Uniform2(1.00, 1.99)
	}
}

// CrashTime draws a crash timestamp strictly after start, bounded by the
// multiplier bracket's configured max duration.
func (g *Generator) CrashTime(start time.Time, multiplier float64) time.Time {
	maxSeconds := g.params.CrashBound(BracketFor(multiplier))
	seconds := g.rng.Uniform(1, maxSeconds)
	if seconds < 1 {
		seconds = 1
	}
	return start.Add(time.Duration(seconds * float64(time.Second)))
}

// NextMultiplier produces the multiplier for a timestamp: it lazily creates
// trend buckets with rule-table phases, lets recent minute history override
// the minute phase, skews the good-branch probability from the bucket's
// counter imbalance, and samples. Trend counters are NOT updated here;
// recording an observed multiplier is the caller's step.
func (g *Generator) NextMultiplier(t time.Time) (float64, Quality) {
	keys := interval.KeysAt(t)
	for _, gr := range interval.Granularities() {
		key := keys.At(gr)
		if _, ok := g.trends.View(gr, key); !ok {
			g.trends.Create(gr, key, g.Quality(gr, t))
		}
	}

	minuteKey := keys.Minute
	view, _ := g.trends.View(interval.Minute, minuteKey)
	if q, ok := g.adaptive.OverrideQuality(view); ok {
		g.trends.SetPhase(interval.Minute, minuteKey, q)
		view.Phase = q
	}

	goodChance := g.adaptive.SkewGoodChance(view)
	return g.SampleMultiplier(view.Phase, t, goodChance), view.Phase
}

// Round is one simulated or forecasted multiplier + crash-time pair.
type Round struct {
	Round      int       `json:"round"`
	StartTime  time.Time `json:"startTime"`
	Multiplier float64   `json:"multiplier"`
	CrashTime  time.Time `json:"crashTime"`
	Phase      string    `json:"phase"`
}

// forecastRoundCap guards against degenerate configurations where the
// cursor barely advances per round.
const forecastRoundCap = 10000

// Forecast generates the round sequence from start until the configured
// horizon is exhausted. A zero horizon yields an empty slice. Forecasting
// touches trend buckets (lazy creation, phase adaptation) but does not
// record multipliers into the counters.
func (g *Generator) Forecast(start time.Time) []Round {
	horizon := g.params.ForecastHorizon()
	pause := g.params.Pause()
	end := start.Add(horizon)

	var rounds []Round
	cursor := start
	for n := 1; cursor.Before(end) && n <= forecastRoundCap; n++ {
		mult, phase := g.NextMultiplier(cursor)
		crash := g.CrashTime(cursor, mult)
		rounds = append(rounds, Round{
			Round:      n,
			StartTime:  cursor,
			Multiplier: mult,
			CrashTime:  crash,
			Phase:      phase.String(),
		})
		cursor = crash.Add(pause)
	}
	return rounds
}
