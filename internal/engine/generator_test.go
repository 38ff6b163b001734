package engine

import (
	"math"
	"testing"
	"time"

	"github.com/mparet/crashcast/internal/interval"
)

func newTestGenerator(seed int64) (*Generator, *Params, *TrendStore, *Adaptive) {
	params := NewParams()
	trends := NewTrendStore()
	adaptive := NewAdaptive(params)
	gen := NewGenerator(NewRNG(seed), params, trends, adaptive)
	return gen, params, trends, adaptive
}

func at(hour, minute, sec int) time.Time {
	return time.Date(2025, 6, 2, hour, minute, sec, 0, time.UTC)
}

func TestMinuteQualityPrecedence(t *testing.T) {
	gen, _, _, _ := newTestGenerator(42)

	// Minute ending in 9, first half of the minute: always catastrophic.
	for i := 0; i < 50; i++ {
		if q := gen.Quality(interval.Minute, at(12, 49, 10)); q != Catastrophic {
			t.Fatalf("minute 49 second 10 quality = %v, want catastrophic", q)
		}
	}

	// Multiple of 7 (not ending in 9 or 1): always catastrophic.
	for i := 0; i < 50; i++ {
		if q := gen.Quality(interval.Minute, at(12, 28, 0)); q != Catastrophic {
			t.Fatalf("minute 28 quality = %v, want catastrophic", q)
		}
	}

	// 35 is a multiple of both 5 and 7; the mod-7 check wins.
	for i := 0; i < 50; i++ {
		if q := gen.Quality(interval.Minute, at(12, 35, 0)); q != Catastrophic {
			t.Fatalf("minute 35 quality = %v, want catastrophic (mod 7 precedence)", q)
		}
	}

	// Minute ending in 9, second half: bad or catastrophic.
	for i := 0; i < 100; i++ {
		q := gen.Quality(interval.Minute, at(12, 49, 45))
		if q != Bad && q != Catastrophic {
			t.Fatalf("minute 49 second 45 quality = %v, want bad or catastrophic", q)
		}
	}

	// Minute ending in 1, early: bad or catastrophic; late: normal or bad.
	for i := 0; i < 100; i++ {
		q := gen.Quality(interval.Minute, at(12, 21, 5))
		if q != Bad && q != Catastrophic {
			t.Fatalf("minute 21 second 5 quality = %v, want bad or catastrophic", q)
		}
		q = gen.Quality(interval.Minute, at(12, 21, 45))
		if q != Normal && q != Bad {
			t.Fatalf("minute 21 second 45 quality = %v, want normal or bad", q)
		}
	}

	// Multiple of 5 (not of 7): bad or catastrophic.
	for i := 0; i < 100; i++ {
		q := gen.Quality(interval.Minute, at(12, 25, 0))
		if q != Bad && q != Catastrophic {
			t.Fatalf("minute 25 quality = %v, want bad or catastrophic", q)
		}
	}

	// Multiple of 3: normal or bad.
	for i := 0; i < 100; i++ {
		q := gen.Quality(interval.Minute, at(12, 33, 0))
		if q != Normal && q != Bad {
			t.Fatalf("minute 33 quality = %v, want normal or bad", q)
		}
	}

	// Plain minute: good or normal.
	for i := 0; i < 100; i++ {
		q := gen.Quality(interval.Minute, at(12, 22, 0))
		if q != Good && q != Normal {
			t.Fatalf("minute 22 quality = %v, want good or normal", q)
		}
	}
}

func TestHourQualityChoices(t *testing.T) {
	gen, _, _, _ := newTestGenerator(42)

	// Peak hours never produce catastrophic.
	for i := 0; i < 500; i++ {
		if q := gen.Quality(interval.Hour, at(9, 30, 0)); q == Catastrophic {
			t.Fatal("peak hour produced catastrophic quality")
		}
	}

	// Off-peak hours can produce all four.
	seen := make(map[Quality]bool)
	for i := 0; i < 2000; i++ {
		seen[gen.Quality(interval.Hour, at(3, 30, 0))] = true
	}
	for _, q := range []Quality{Good, Normal, Bad, Catastrophic} {
		if !seen[q] {
			t.Errorf("off-peak hour never produced %v in 2000 draws", q)
		}
	}
}

func TestQuarterAndFiveMinQualityChoices(t *testing.T) {
	gen, _, _, _ := newTestGenerator(42)

	// First quarter of the hour: good or normal only.
	for i := 0; i < 200; i++ {
		q := gen.Quality(interval.Quarter, at(12, 7, 0))
		if q != Good && q != Normal {
			t.Fatalf("first quarter quality = %v, want good or normal", q)
		}
	}
	// Last quarter: normal, bad or catastrophic.
	for i := 0; i < 200; i++ {
		q := gen.Quality(interval.Quarter, at(12, 50, 0))
		if q == Good {
			t.Fatal("last quarter produced good quality")
		}
	}

	// Even five-minute block: good or normal only.
	for i := 0; i < 200; i++ {
		q := gen.Quality(interval.FiveMin, at(12, 12, 0))
		if q != Good && q != Normal {
			t.Fatalf("even five-min block quality = %v, want good or normal", q)
		}
	}
	// Odd block: never good.
	for i := 0; i < 200; i++ {
		if q := gen.Quality(interval.FiveMin, at(12, 17, 0)); q == Good {
			t.Fatal("odd five-min block produced good quality")
		}
	}
}

func TestSampleMultiplierBoundsAndRounding(t *testing.T) {
	gen, _, _, _ := newTestGenerator(42)
	ts := at(12, 22, 0)

	for _, q := range []Quality{Good, Normal, Bad, Catastrophic} {
		for i := 0; i < 2000; i++ {
			m := gen.SampleMultiplier(q, ts, 0.7)
			if m < 1.00 || m > 9.99 {
				t.Fatalf("%v multiplier = %v, out of [1.00, 9.99]", q, m)
			}
			cents := m * 100
			if math.Abs(cents-math.Round(cents)) > 1e-9 {
				t.Fatalf("%v multiplier = %v, not rounded to 2 decimals", q, m)
			}
		}
	}
}

func TestSampleMultiplierSpecialMinuteOverride(t *testing.T) {
	gen, _, _, _ := newTestGenerator(42)

	// During the special window the draw ignores the quality entirely.
	low, high := 0, 0
	for i := 0; i < 5000; i++ {
		m := gen.SampleMultiplier(Good, at(12, 9, 5), 1.0)
		switch {
		case m <= 1.99:
			low++
		case m >= 2.00 && m <= 2.50:
			high++
		default:
			t.Fatalf("special-minute multiplier = %v, out of expected ranges", m)
		}
	}
	rate := float64(low) / 5000
	if math.Abs(rate-0.95) > 0.02 {
		t.Errorf("special-minute low rate = %f, expected ~0.95", rate)
	}
	if high == 0 {
		t.Error("special-minute never produced the 2.00-2.50 range")
	}
}

func TestSampleMultiplierGoodPhaseConvergence(t *testing.T) {
	gen, _, _, _ := newTestGenerator(42)
	ts := at(12, 22, 0)

	n := 20000
	highCount := 0
	for i := 0; i < n; i++ {
		if gen.SampleMultiplier(Good, ts, 0.7) >= 2.00 {
			highCount++
		}
	}
	rate := float64(highCount) / float64(n)
	if math.Abs(rate-0.7) > 0.02 {
		t.Errorf("good phase high rate = %f, expected ~0.7", rate)
	}

	// goodChance extremes pin the branch.
	for i := 0; i < 200; i++ {
		if gen.SampleMultiplier(Good, ts, 1.0) < 2.00 {
			t.Fatal("goodChance=1 produced a low multiplier")
		}
		if gen.SampleMultiplier(Good, ts, 0.0) >= 2.00 {
			t.Fatal("goodChance=0 produced a high multiplier")
		}
	}
}

func TestCrashTimeWithinBracketBound(t *testing.T) {
	gen, _, _, _ := newTestGenerator(42)
	start := at(12, 0, 0)

	cases := []struct {
		mult float64
		max  float64
	}{
		{1.50, 5},
		{5.00, 20},
		{50.0, 120},
	}
	for _, tc := range cases {
		for i := 0; i < 2000; i++ {
			crash := gen.CrashTime(start, tc.mult)
			d := crash.Sub(start).Seconds()
			if d < 1.0 || d > tc.max {
				t.Fatalf("mult %v crash duration = %vs, out of [1, %v]", tc.mult, d, tc.max)
			}
		}
	}
}

func TestNextMultiplierCreatesBuckets(t *testing.T) {
	gen, _, trends, _ := newTestGenerator(42)
	ts := at(12, 22, 0)

	m, q := gen.NextMultiplier(ts)
	if m < 1.00 {
		t.Errorf("multiplier = %v, want >= 1.00", m)
	}
	if q != Good && q != Normal {
		t.Errorf("plain-minute phase = %v, want good or normal", q)
	}
	if trends.Size() != 4 {
		t.Errorf("trend buckets = %d, want one per granularity", trends.Size())
	}

	// Counters are the caller's job; generation alone must not record.
	v, _ := trends.ViewAt(interval.Minute, ts)
	if v.LowCount+v.MedCount+v.HighCount != 0 {
		t.Error("NextMultiplier recorded into trend counters")
	}
}

func TestNextMultiplierAdaptiveOverride(t *testing.T) {
	gen, _, trends, _ := newTestGenerator(42)
	ts := at(12, 22, 0)

	// Three low results in the bucket force the bad phase on the next draw.
	trends.Record(1.10, ts)
	trends.Record(1.20, ts)
	trends.Record(1.30, ts)

	gen.NextMultiplier(ts)

	v, ok := trends.ViewAt(interval.Minute, ts)
	if !ok {
		t.Fatal("minute bucket missing")
	}
	if v.Phase != Bad {
		t.Errorf("minute phase = %v, want bad after three low results", v.Phase)
	}
}

func TestForecastDeterministicUnderSeed(t *testing.T) {
	start := at(9, 0, 0)

	g1, _, _, _ := newTestGenerator(1234)
	g2, _, _, _ := newTestGenerator(1234)

	r1 := g1.Forecast(start)
	r2 := g2.Forecast(start)

	if len(r1) == 0 {
		t.Fatal("empty forecast with default horizon")
	}
	if len(r1) != len(r2) {
		t.Fatalf("forecast lengths differ: %d vs %d", len(r1), len(r2))
	}
	for i := range r1 {
		if r1[i] != r2[i] {
			t.Fatalf("round %d differs: %+v vs %+v", i, r1[i], r2[i])
		}
	}
}

func TestForecastCursorAdvances(t *testing.T) {
	gen, params, _, _ := newTestGenerator(77)
	start := at(9, 0, 0)
	horizon := params.ForecastHorizon()
	pause := params.Pause()

	rounds := gen.Forecast(start)
	if len(rounds) == 0 {
		t.Fatal("empty forecast")
	}

	for i, rd := range rounds {
		if rd.Round != i+1 {
			t.Errorf("round %d numbered %d", i, rd.Round)
		}
		if !rd.CrashTime.After(rd.StartTime) {
			t.Errorf("round %d crash %v not after start %v", i, rd.CrashTime, rd.StartTime)
		}
		if i > 0 {
			wantStart := rounds[i-1].CrashTime.Add(pause)
			if !rd.StartTime.Equal(wantStart) {
				t.Errorf("round %d start = %v, want previous crash + pause (%v)", i, rd.StartTime, wantStart)
			}
		}
		if !rd.StartTime.Before(start.Add(horizon)) {
			t.Errorf("round %d starts at %v, beyond horizon", i, rd.StartTime)
		}
	}
}

func TestForecastCapsDegenerateConfigs(t *testing.T) {
	gen, params, _, _ := newTestGenerator(5)

	// Zero pause and 1-second crash bounds advance the cursor by one
	// second per round, so a five-hour horizon would otherwise iterate
	// 18000 times.
	zero := 0.0
	one := 1.0
	horizon := 300.0
	var u Partial
	u.Simulation.PauseBetweenRoundsSeconds = &zero
	u.Simulation.ForecastDurationMinutes = &horizon
	u.CrashTime.LowMultMaxSeconds = &one
	u.CrashTime.MedMultMaxSeconds = &one
	u.CrashTime.HighMultMaxSeconds = &one
	if err := params.Update(u); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rounds := gen.Forecast(at(9, 0, 0))
	if len(rounds) != forecastRoundCap {
		t.Fatalf("got %d rounds, want the cap of %d", len(rounds), forecastRoundCap)
	}
	last := rounds[len(rounds)-1]
	if last.Round != forecastRoundCap {
		t.Errorf("last round number = %d, want %d", last.Round, forecastRoundCap)
	}
	if !last.CrashTime.Before(at(9, 0, 0).Add(300 * time.Minute)) {
		t.Error("cap fired after the horizon was exhausted")
	}
}

func TestForecastEmptyHorizon(t *testing.T) {
	gen, params, _, _ := newTestGenerator(5)

	zero := 0.0
	var u Partial
	u.Simulation.ForecastDurationMinutes = &zero
	if err := params.Update(u); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if rounds := gen.Forecast(at(9, 0, 0)); len(rounds) != 0 {
		t.Fatalf("zero horizon produced %d rounds", len(rounds))
	}
}
