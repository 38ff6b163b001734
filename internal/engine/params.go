package engine

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// SimulationParams controls round pacing and forecast horizon.
type SimulationParams struct {
	PauseBetweenRoundsSeconds float64 `yaml:"pause_between_rounds_seconds" json:"pause_between_rounds_seconds"`
	ForecastDurationMinutes   float64 `yaml:"forecast_duration_minutes" json:"forecast_duration_minutes"`
}

// CrashTimeParams holds the per-bracket max crash durations in seconds.
// These are the targets of adaptive learning from real feedback.
type CrashTimeParams struct {
	LowMultMaxSeconds  float64 `yaml:"low_mult_max_seconds" json:"low_mult_max_seconds"`
	MedMultMaxSeconds  float64 `yaml:"med_mult_max_seconds" json:"med_mult_max_seconds"`
	HighMultMaxSeconds float64 `yaml:"high_mult_max_seconds" json:"high_mult_max_seconds"`
}

// MultiplierParams holds the branch probabilities for multiplier sampling.
type MultiplierParams struct {
	SpecialMinuteLowChance         float64 `yaml:"special_minute_low_chance" json:"special_minute_low_chance"`
	GoodPhaseHighMultChance        float64 `yaml:"good_phase_high_mult_chance" json:"good_phase_high_mult_chance"`
	BadPhaseLowMultChance          float64 `yaml:"bad_phase_low_mult_chance" json:"bad_phase_low_mult_chance"`
	CatastrophicPhaseLowMultChance float64 `yaml:"catastrophic_phase_low_mult_chance" json:"catastrophic_phase_low_mult_chance"`
}

// HourRules holds the hour-granularity quality weights.
type HourRules struct {
	PeakHours      []int     `yaml:"peak_hours" json:"peak_hours"`
	PeakWeights    []float64 `yaml:"peak_weights" json:"peak_weights"`
	MediumHours    []int     `yaml:"medium_hours" json:"medium_hours"`
	MediumWeights  []float64 `yaml:"medium_weights" json:"medium_weights"`
	OffPeakWeights []float64 `yaml:"off_peak_weights" json:"off_peak_weights"`
}

// QuarterRules holds the quarter-hour quality weights by quarter position.
type QuarterRules struct {
	FirstWeights  []float64 `yaml:"first_weights" json:"first_weights"`
	LastWeights   []float64 `yaml:"last_weights" json:"last_weights"`
	MiddleWeights []float64 `yaml:"middle_weights" json:"middle_weights"`
}

// FiveMinRules holds the five-minute-block quality weights.
type FiveMinRules struct {
	EvenWeights []float64 `yaml:"even_weights" json:"even_weights"`
	OddWeights  []float64 `yaml:"odd_weights" json:"odd_weights"`
}

// MinuteRules holds the minute-granularity quality weights. The special
// minute-9 early window and multiples of 7 are deterministic and carry no
// weights.
type MinuteRules struct {
	Special9LateWeights  []float64 `yaml:"special_9_late_weights" json:"special_9_late_weights"`
	Special1EarlyWeights []float64 `yaml:"special_1_early_weights" json:"special_1_early_weights"`
	Special1LateWeights  []float64 `yaml:"special_1_late_weights" json:"special_1_late_weights"`
	MultipleOf5Weights   []float64 `yaml:"multiple_of_5_weights" json:"multiple_of_5_weights"`
	MultipleOf3Weights   []float64 `yaml:"multiple_of_3_weights" json:"multiple_of_3_weights"`
	DefaultWeights       []float64 `yaml:"default_weights" json:"default_weights"`
}

// QualityRules is the full rule table mapping time features to weighted
// quality choices.
type QualityRules struct {
	Hour    HourRules    `yaml:"hour" json:"hour"`
	Quarter QuarterRules `yaml:"quarter" json:"quarter"`
	FiveMin FiveMinRules `yaml:"five_min" json:"five_min"`
	Minute  MinuteRules  `yaml:"minute" json:"minute"`
}

// ParamSet is one complete, immutable snapshot of engine parameters.
type ParamSet struct {
	Simulation   SimulationParams `yaml:"simulation" json:"simulation"`
	CrashTime    CrashTimeParams  `yaml:"crash_time_generation" json:"crash_time_generation"`
	Multiplier   MultiplierParams `yaml:"multiplier_generation" json:"multiplier_generation"`
	QualityRules QualityRules     `yaml:"quality_rules" json:"quality_rules"`
}

// DefaultParamSet returns the hand-tuned defaults.
func DefaultParamSet() ParamSet {
	return ParamSet{
		Simulation: SimulationParams{
			PauseBetweenRoundsSeconds: 10,
			ForecastDurationMinutes:   5,
		},
		CrashTime: CrashTimeParams{
			LowMultMaxSeconds:  5,
			MedMultMaxSeconds:  20,
			HighMultMaxSeconds: 120,
		},
		Multiplier: MultiplierParams{
			SpecialMinuteLowChance:         0.95,
			GoodPhaseHighMultChance:        0.7,
			BadPhaseLowMultChance:          0.7,
			CatastrophicPhaseLowMultChance: 0.9,
		},
		QualityRules: QualityRules{
			Hour: HourRules{
				PeakHours:      []int{9, 10, 14, 15, 20, 21},
				PeakWeights:    []float64{0.4, 0.4, 0.2},
				MediumHours:    []int{11, 12, 13, 16, 17, 18, 19},
				MediumWeights:  []float64{0.3, 0.5, 0.2},
				OffPeakWeights: []float64{0.2, 0.4, 0.3, 0.1},
			},
			Quarter: QuarterRules{
				FirstWeights:  []float64{0.6, 0.4},
				LastWeights:   []float64{0.4, 0.4, 0.2},
				MiddleWeights: []float64{0.3, 0.5, 0.2},
			},
			FiveMin: FiveMinRules{
				EvenWeights: []float64{0.6, 0.4},
				OddWeights:  []float64{0.4, 0.4, 0.2},
			},
			Minute: MinuteRules{
				Special9LateWeights:  []float64{0.3, 0.7},
				Special1EarlyWeights: []float64{0.4, 0.6},
				Special1LateWeights:  []float64{0.6, 0.4},
				MultipleOf5Weights:   []float64{0.6, 0.4},
				MultipleOf3Weights:   []float64{0.6, 0.4},
				DefaultWeights:       []float64{0.5, 0.5},
			},
		},
	}
}

// Partial is a sparse configuration update. Nil fields are left unchanged.
type Partial struct {
	Simulation struct {
		PauseBetweenRoundsSeconds *float64 `json:"pause_between_rounds_seconds"`
		ForecastDurationMinutes   *float64 `json:"forecast_duration_minutes"`
	} `json:"simulation"`
	CrashTime struct {
		LowMultMaxSeconds  *float64 `json:"low_mult_max_seconds"`
		MedMultMaxSeconds  *float64 `json:"med_mult_max_seconds"`
		HighMultMaxSeconds *float64 `json:"high_mult_max_seconds"`
	} `json:"crash_time_generation"`
	Multiplier struct {
		SpecialMinuteLowChance         *float64 `json:"special_minute_low_chance"`
		GoodPhaseHighMultChance        *float64 `json:"good_phase_high_mult_chance"`
		BadPhaseLowMultChance          *float64 `json:"bad_phase_low_mult_chance"`
		CatastrophicPhaseLowMultChance *float64 `json:"catastrophic_phase_low_mult_chance"`
	} `json:"multiplier_generation"`
}

// Params owns the live engine configuration. Adaptive learning mutates the
// crash-time bounds through it; everything else changes via Update/Reset.
type Params struct {
	mu  sync.RWMutex
	set ParamSet
}

// NewParams creates a Params object holding the defaults.
func NewParams() *Params {
	return &Params{set: DefaultParamSet()}
}

// LoadParamsFile reads a full parameter set from a YAML file.
func LoadParamsFile(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params file: %w", err)
	}
	set := DefaultParamSet()
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse params file: %w", err)
	}
	if err := validate(set); err != nil {
		return nil, err
	}
	return &Params{set: set}, nil
}

// DumpFile writes the current parameter set to a YAML file.
func (p *Params) DumpFile(path string) error {
	p.mu.RLock()
	set := p.set
	p.mu.RUnlock()

	data, err := yaml.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write params file: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the current parameter set.
func (p *Params) Snapshot() ParamSet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.set
}

// Reset restores the defaults.
func (p *Params) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set = DefaultParamSet()
}

// Update merges a partial update into the live configuration. On any
// out-of-range value the whole update is rejected with a ConfigError and
// the prior configuration is left intact.
func (p *Params) Update(u Partial) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.set
	apply := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&next.Simulation.PauseBetweenRoundsSeconds, u.Simulation.PauseBetweenRoundsSeconds)
	apply(&next.Simulation.ForecastDurationMinutes, u.Simulation.ForecastDurationMinutes)
	apply(&next.CrashTime.LowMultMaxSeconds, u.CrashTime.LowMultMaxSeconds)
	apply(&next.CrashTime.MedMultMaxSeconds, u.CrashTime.MedMultMaxSeconds)
	apply(&next.CrashTime.HighMultMaxSeconds, u.CrashTime.HighMultMaxSeconds)
	apply(&next.Multiplier.SpecialMinuteLowChance, u.Multiplier.SpecialMinuteLowChance)
	apply(&next.Multiplier.GoodPhaseHighMultChance, u.Multiplier.GoodPhaseHighMultChance)
	apply(&next.Multiplier.BadPhaseLowMultChance, u.Multiplier.BadPhaseLowMultChance)
	apply(&next.Multiplier.CatastrophicPhaseLowMultChance, u.Multiplier.CatastrophicPhaseLowMultChance)

	if err := validate(next); err != nil {
		return err
	}
	p.set = next
	return nil
}

func validate(s ParamSet) error {
	if s.Simulation.PauseBetweenRoundsSeconds < 0 {
		return &ConfigError{Reason: "pause_between_rounds_seconds must be >= 0"}
	}
	if s.Simulation.ForecastDurationMinutes < 0 {
		return &ConfigError{Reason: "forecast_duration_minutes must be >= 0"}
	}
	bounds := []struct {
		name string
		v    float64
	}{
		{"low_mult_max_seconds", s.CrashTime.LowMultMaxSeconds},
		{"med_mult_max_seconds", s.CrashTime.MedMultMaxSeconds},
		{"high_mult_max_seconds", s.CrashTime.HighMultMaxSeconds},
	}
	for _, b := range bounds {
		if b.v <= 0 {
			return &ConfigError{Reason: b.name + " must be > 0"}
		}
	}
	chances := []struct {
		name string
		v    float64
	}{
		{"special_minute_low_chance", s.Multiplier.SpecialMinuteLowChance},
		{"good_phase_high_mult_chance", s.Multiplier.GoodPhaseHighMultChance},
		{"bad_phase_low_mult_chance", s.Multiplier.BadPhaseLowMultChance},
		{"catastrophic_phase_low_mult_chance", s.Multiplier.CatastrophicPhaseLowMultChance},
	}
	for _, c := range chances {
		if c.v < 0 || c.v > 1 {
			return &ConfigError{Reason: c.name + " must be in [0, 1]"}
		}
	}
	for _, w := range allWeights(s.QualityRules) {
		for _, v := range w {
			if v < 0 {
				return &ConfigError{Reason: "quality rule weights must be non-negative"}
			}
		}
	}
	return nil
}

func allWeights(r QualityRules) [][]float64 {
	return [][]float64{
		r.Hour.PeakWeights, r.Hour.MediumWeights, r.Hour.OffPeakWeights,
		r.Quarter.FirstWeights, r.Quarter.LastWeights, r.Quarter.MiddleWeights,
		r.FiveMin.EvenWeights, r.FiveMin.OddWeights,
		r.Minute.Special9LateWeights, r.Minute.Special1EarlyWeights,
		r.Minute.Special1LateWeights, r.Minute.MultipleOf5Weights,
		r.Minute.MultipleOf3Weights, r.Minute.DefaultWeights,
	}
}

// Pause returns the inter-round pause.
func (p *Params) Pause() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.set.Simulation.PauseBetweenRoundsSeconds * float64(time.Second))
}

// ForecastHorizon returns the forecast window length.
func (p *Params) ForecastHorizon() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.set.Simulation.ForecastDurationMinutes * float64(time.Minute))
}

// CrashBound returns the max crash duration in seconds for a bracket.
func (p *Params) CrashBound(b Bracket) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch b {
	case BracketLow:
		return p.set.CrashTime.LowMultMaxSeconds
	case BracketMed:
		return p.set.CrashTime.MedMultMaxSeconds
	default:
		return p.set.CrashTime.HighMultMaxSeconds
	}
}

// SetCrashBound overwrites a bracket's max crash duration. Used by the
// adaptive controller; the value is rounded to 0.1s.
func (p *Params) SetCrashBound(b Bracket, seconds float64) {
	v := math.Round(seconds*10) / 10
	p.mu.Lock()
	defer p.mu.Unlock()
	switch b {
	case BracketLow:
		p.set.CrashTime.LowMultMaxSeconds = v
	case BracketMed:
		p.set.CrashTime.MedMultMaxSeconds = v
	default:
		p.set.CrashTime.HighMultMaxSeconds = v
	}
}

// Multiplier returns the multiplier-generation probabilities.
func (p *Params) MultiplierParams() MultiplierParams {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.set.Multiplier
}

// Rules returns the quality rule table.
func (p *Params) Rules() QualityRules {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.set.QualityRules
}
