package interval

import (
	"testing"
	"time"
)

func at(h, m, s int) time.Time {
	return time.Date(2024, 3, 14, h, m, s, 0, time.UTC)
}

func TestHourKey(t *testing.T) {
	if got := Key(Hour, at(14, 22, 7)); got != "14:00-15:00" {
		t.Errorf("hour key = %q, want 14:00-15:00", got)
	}
}

func TestHourKeyWrapsMidnight(t *testing.T) {
	if got := Key(Hour, at(23, 59, 59)); got != "23:00-00:00" {
		t.Errorf("hour key = %q, want 23:00-00:00", got)
	}
}

func TestQuarterKey(t *testing.T) {
	cases := []struct {
		minute int
		want   string
	}{
		{0, "14:00-14:15"},
		{14, "14:00-14:15"},
		{15, "14:15-14:30"},
		{44, "14:30-14:45"},
		{45, "14:45-14:60"},
		{59, "14:45-14:60"},
	}
	for _, c := range cases {
		if got := Key(Quarter, at(14, c.minute, 0)); got != c.want {
			t.Errorf("quarter key at :%02d = %q, want %q", c.minute, got, c.want)
		}
	}
}

func TestFiveMinKey(t *testing.T) {
	cases := []struct {
		minute int
		want   string
	}{
		{0, "09:00-09:05"},
		{4, "09:00-09:05"},
		{5, "09:05-09:10"},
		{55, "09:55-09:60"},
		{59, "09:55-09:60"},
	}
	for _, c := range cases {
		if got := Key(FiveMin, at(9, c.minute, 0)); got != c.want {
			t.Errorf("five_min key at :%02d = %q, want %q", c.minute, got, c.want)
		}
	}
}

func TestMinuteKey(t *testing.T) {
	if got := Key(Minute, at(8, 3, 45)); got != "08:03:00-08:03:59" {
		t.Errorf("minute key = %q, want 08:03:00-08:03:59", got)
	}
}

func TestKeysAtMatchesKey(t *testing.T) {
	ts := at(20, 49, 10)
	k := KeysAt(ts)
	for _, g := range Granularities() {
		if k.At(g) != Key(g, ts) {
			t.Errorf("KeysAt.%s = %q, Key = %q", g, k.At(g), Key(g, ts))
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, g := range Granularities() {
		parsed, err := Parse(g.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", g.String(), err)
		}
		if parsed != g {
			t.Errorf("Parse(%q) = %v, want %v", g.String(), parsed, g)
		}
	}
	if _, err := Parse("decade"); err == nil {
		t.Error("Parse(decade) should fail")
	}
}
