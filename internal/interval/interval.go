package interval

import (
	"fmt"
	"time"
)

// Granularity identifies one of the four time-bucket resolutions the
// engine tracks trends at.
type Granularity int

const (
	Hour Granularity = iota
	Quarter
	FiveMin
	Minute
)

// Granularities returns all granularities in coarse-to-fine order.
func Granularities() []Granularity {
	return []Granularity{Hour, Quarter, FiveMin, Minute}
}

func (g Granularity) String() string {
	switch g {
	case Hour:
		return "hour"
	case Quarter:
		return "quarter"
	case FiveMin:
		return "five_min"
	case Minute:
		return "minute"
	default:
		return "unknown"
	}
}

// Parse converts a granularity name to its Granularity value.
func Parse(s string) (Granularity, error) {
	switch s {
	case "hour":
		return Hour, nil
	case "quarter":
		return Quarter, nil
	case "five_min":
		return FiveMin, nil
	case "minute":
		return Minute, nil
	default:
		return 0, fmt.Errorf("unknown granularity: %s", s)
	}
}

// Keys holds the four bucket keys a single timestamp falls into.
type Keys struct {
	Hour    string
	Quarter string
	FiveMin string
	Minute  string
}

// KeysAt derives all four bucket keys for a timestamp.
func KeysAt(t time.Time) Keys {
	return Keys{
		Hour:    Key(Hour, t),
		Quarter: Key(Quarter, t),
		FiveMin: Key(FiveMin, t),
		Minute:  Key(Minute, t),
	}
}

// At returns the bucket key for one granularity.
func (k Keys) At(g Granularity) string {
	switch g {
	case Hour:
		return k.Hour
	case Quarter:
		return k.Quarter
	case FiveMin:
		return k.FiveMin
	default:
		return k.Minute
	}
}

// Key derives the bucket key for a timestamp at the given granularity.
// Hour keys wrap at midnight (23:00-00:00); quarter and five-minute keys
// cap the window end at minute 60 rather than rolling into the next hour.
func Key(g Granularity, t time.Time) string {
	h, m := t.Hour(), t.Minute()
	switch g {
	case Hour:
		return fmt.Sprintf("%02d:00-%02d:00", h, (h+1)%24)
	case Quarter:
		start := (m / 15) * 15
		return fmt.Sprintf("%02d:%02d-%02d:%02d", h, start, h, capMinute(start+15))
	case FiveMin:
		start := (m / 5) * 5
		return fmt.Sprintf("%02d:%02d-%02d:%02d", h, start, h, capMinute(start+5))
	default:
		return fmt.Sprintf("%02d:%02d:00-%02d:%02d:59", h, m, h, m)
	}
}

func capMinute(m int) int {
	if m > 60 {
		return 60
	}
	return m
}
