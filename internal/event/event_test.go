package event

import (
	"strings"
	"testing"
	"time"
)

func TestRowParseRowRoundTrip(t *testing.T) {
	ts := time.Date(2025, 6, 2, 14, 30, 15, 123000000, time.UTC)
	cases := []Event{
		{Timestamp: ts, Type: TypeSessionStart, Multiplier: 0, Comment: "Session started"},
		{Timestamp: ts, Type: TypeRealResult, Multiplier: 2.45, Comment: "User provided feedback"},
		{Timestamp: ts, Type: TypeCrashTimeData, Multiplier: 12.5, Comment: CrashDataComment("high", 34.2)},
	}
	for _, want := range cases {
		got, err := ParseRow(want.Row())
		if err != nil {
			t.Fatalf("ParseRow(%v): %v", want.Row(), err)
		}
		if !got.Timestamp.Equal(want.Timestamp) {
			t.Errorf("timestamp = %v, want %v", got.Timestamp, want.Timestamp)
		}
		if got.Type != want.Type || got.Multiplier != want.Multiplier || got.Comment != want.Comment {
			t.Errorf("round trip = %+v, want %+v", got, want)
		}
	}
}

func TestParseRowErrors(t *testing.T) {
	ok := Event{Timestamp: time.Now().UTC(), Type: TypeRealResult, Multiplier: 1.5}.Row()

	cases := map[string][]string{
		"too few fields":  ok[:3],
		"too many fields": append(append([]string{}, ok...), "extra"),
		"bad timestamp":   {"yesterday", "real_result", "1.5", ""},
		"unknown type":    {ok[0], "bet_placed", "1.5", ""},
		"bad multiplier":  {ok[0], "real_result", "big", ""},
	}
	for name, fields := range cases {
		if _, err := ParseRow(fields); err == nil {
			t.Errorf("%s: want error, got none", name)
		}
	}
}

func TestKnown(t *testing.T) {
	for _, typ := range []Type{TypeSessionStart, TypeRealResult, TypeCrashTimeData} {
		if !Known(typ) {
			t.Errorf("Known(%s) = false", typ)
		}
	}
	if Known("round_started") {
		t.Error("Known accepted an unrecognized type")
	}
}

func TestHeaderMatchesRow(t *testing.T) {
	if got, want := len(Header()), len(Event{}.Row()); got != want {
		t.Fatalf("header has %d columns, rows have %d", got, want)
	}
}

func TestCrashDataCommentRoundTrip(t *testing.T) {
	comment := CrashDataComment("med", 12.34)
	if comment != "Category: med, Duration: 12.3s" {
		t.Fatalf("comment = %q", comment)
	}
	cat, dur, err := ParseCrashDataComment(comment)
	if err != nil {
		t.Fatalf("ParseCrashDataComment: %v", err)
	}
	if cat != "med" || dur != 12.3 {
		t.Errorf("parsed %q %.1f, want med 12.3", cat, dur)
	}
}

func TestParseCrashDataCommentErrors(t *testing.T) {
	for _, comment := range []string{
		"Session started",
		"Category: low",
		"Category: low, Duration: forever",
	} {
		if _, _, err := ParseCrashDataComment(comment); err == nil {
			t.Errorf("%q: want error, got none", comment)
		}
	}
}

func TestEncodeTextShapes(t *testing.T) {
	ts := time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)

	status := &FeedMessage{
		Kind: KindStatus, Time: ts,
		Status: &StatusPayload{State: "running", Round: 7, Cursor: ts},
	}
	if got := string(EncodeText(status)); got != "status,2025-06-02T09:15:00Z,running,7" {
		t.Errorf("status line = %q", got)
	}

	crash := ts.Add(12 * time.Second)
	result := &FeedMessage{
		Kind: KindResult, Time: ts,
		Result: &ResultPayload{Multiplier: 2.45, CrashTime: &crash, NextStart: crash},
	}
	line := string(EncodeText(result))
	if !strings.HasPrefix(line, "result,2025-06-02T09:15:00Z,2.45,") {
		t.Errorf("result line = %q", line)
	}

	// A message missing its payload degrades to kind and timestamp.
	bare := &FeedMessage{Kind: KindRound, Time: ts}
	if got := string(EncodeText(bare)); got != "round,2025-06-02T09:15:00Z" {
		t.Errorf("bare line = %q", got)
	}
}
