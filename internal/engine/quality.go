package engine

// Quality is the latent label biasing multiplier sampling for a time
// interval.
type Quality int

const (
	Good Quality = iota
	Normal
	Bad
	Catastrophic
)

func (q Quality) String() string {
	switch q {
	case Good:
		return "good"
	case Normal:
		return "normal"
	case Bad:
		return "bad"
	case Catastrophic:
		return "catastrophic"
	default:
		return "unknown"
	}
}

// Bracket classifies a multiplier by size. The same brackets drive trend
// counters and crash-time bound selection.
type Bracket int

const (
	BracketLow  Bracket = iota // < 2.00
	BracketMed                 // 2.00 - 9.99
	BracketHigh                // >= 10.00
)

func (b Bracket) String() string {
	switch b {
	case BracketLow:
		return "low"
	case BracketMed:
		return "med"
	default:
		return "high"
	}
}

// BracketFor returns the size bracket for a multiplier.
func BracketFor(m float64) Bracket {
	switch {
	case m < 2.00:
		return BracketLow
	case m < 10.00:
		return BracketMed
	default:
		return BracketHigh
	}
}
