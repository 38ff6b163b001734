package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mparet/crashcast/internal/engine"
)

// Feed message kinds pushed to WebSocket clients.
const (
	KindRound  = "round"
	KindResult = "result"
	KindStatus = "status"
)

// ResultPayload describes an applied real result.
type ResultPayload struct {
	Multiplier float64    `json:"multiplier"`
	CrashTime  *time.Time `json:"crashTime,omitempty"`
	NextStart  time.Time  `json:"nextStart"`
}

// StatusPayload describes a session state transition.
type StatusPayload struct {
	State  string    `json:"state"`
	Round  int       `json:"round"`
	Cursor time.Time `json:"cursor"`
}

// FeedMessage is one message on the live feed.
type FeedMessage struct {
	Kind   string         `json:"kind"`
	Time   time.Time      `json:"time"`
	Round  *engine.Round  `json:"round,omitempty"`
	Result *ResultPayload `json:"result,omitempty"`
	Status *StatusPayload `json:"status,omitempty"`
}

// EncodeJSON serializes a feed message for JSON-format clients.
func EncodeJSON(m *FeedMessage) ([]byte, error) {
	return json.Marshal(m)
}

// EncodeText serializes a feed message as a single CSV-style text line
// for clients that prefer the compact format.
func EncodeText(m *FeedMessage) []byte {
	ts := m.Time.Format(time.RFC3339)
	switch m.Kind {
	case KindRound:
		if m.Round != nil {
			return []byte(fmt.Sprintf("round,%s,%d,%.2f,%s,%s",
				ts, m.Round.Round, m.Round.Multiplier,
				m.Round.CrashTime.Format(time.RFC3339), m.Round.Phase))
		}
	case KindResult:
		if m.Result != nil {
			crash := ""
			if m.Result.CrashTime != nil {
				crash = m.Result.CrashTime.Format(time.RFC3339)
			}
			return []byte(fmt.Sprintf("result,%s,%.2f,%s", ts, m.Result.Multiplier, crash))
		}
	case KindStatus:
		if m.Status != nil {
			return []byte(fmt.Sprintf("status,%s,%s,%d", ts, m.Status.State, m.Status.Round))
		}
	}
	return []byte(m.Kind + "," + ts)
}
