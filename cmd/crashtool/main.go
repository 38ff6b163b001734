// Command crashtool inspects a crashcast deployment from the terminal.
// It either analyzes a local CSV event log or tails the live feed.
//
// Usage:
//
//	crashtool -log prediction_log.csv            # summarize a local event log
//	crashtool -log prediction_log.csv -gran hour # include the hour trend table
//	crashtool -watch                             # tail ws://localhost:8200/feed
//	crashtool -watch -url ws://host:8200/feed    # custom endpoint
//	crashtool -watch -kinds round,status         # narrow the subscription
//	crashtool -watch -text                       # request text format
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mparet/crashcast/internal/engine"
	"github.com/mparet/crashcast/internal/event"
	"github.com/mparet/crashcast/internal/interval"
	"github.com/mparet/crashcast/internal/persist"
)

func main() {
	logPath := flag.String("log", "", "CSV event log to analyze")
	gran := flag.String("gran", "", "Also print the trend table for this granularity (hour, quarter, five_min, minute, or all)")
	watch := flag.Bool("watch", false, "Tail the live feed instead of analyzing a log")
	url := flag.String("url", "ws://localhost:8200/feed", "WebSocket endpoint for -watch")
	kinds := flag.String("kinds", "*", "Comma-separated feed kinds or * for all")
	text := flag.Bool("text", false, "Request text format instead of JSON")
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch {
	case *watch:
		watchFeed(*url, *kinds, *text)
	case *logPath != "":
		if err := analyzeLog(*logPath, *gran); err != nil {
			log.Fatal(err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// analyzeLog replays the whole event log through a fresh engine and prints
// what a server booting from this log would reconstruct.
func analyzeLog(path, gran string) error {
	// OpenCSVLog creates missing files; analysis must not.
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("log file %s: %w", path, err)
	}
	l, err := persist.OpenCSVLog(path)
	if err != nil {
		return err
	}
	defer l.Close(context.Background())

	params := engine.NewParams()
	trends := engine.NewTrendStore()
	adaptive := engine.NewAdaptive(params)

	var (
		results   int
		crashData int
		sessions  int
		sum       float64
		min, max  float64
		first     time.Time
		last      time.Time
	)

	skipped, err := l.Replay(context.Background(), func(e event.Event) error {
		if first.IsZero() || e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
		switch e.Type {
		case event.TypeSessionStart:
			sessions++
		case event.TypeRealResult:
			trends.Record(e.Multiplier, e.Timestamp)
			if results == 0 || e.Multiplier < min {
				min = e.Multiplier
			}
			if e.Multiplier > max {
				max = e.Multiplier
			}
			sum += e.Multiplier
			results++
		case event.TypeCrashTimeData:
			if _, dur, perr := event.ParseCrashDataComment(e.Comment); perr == nil {
				adaptive.RecordHistorical(e.Multiplier, dur)
				crashData++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	snapped := adaptive.ApplyHistory()

	fmt.Printf("log:            %s\n", path)
	if !first.IsZero() {
		fmt.Printf("span:           %s .. %s\n", first.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	fmt.Printf("sessions:       %d\n", sessions)
	fmt.Printf("real results:   %d\n", results)
	fmt.Printf("crash samples:  %d\n", crashData)
	fmt.Printf("skipped rows:   %d\n", skipped)
	if results > 0 {
		fmt.Printf("multiplier:     avg %.2f  min %.2f  max %.2f\n", sum/float64(results), min, max)
	}
	fmt.Printf("trend buckets:  %d\n", trends.Size())
	for _, b := range []engine.Bracket{engine.BracketLow, engine.BracketMed, engine.BracketHigh} {
		bound := params.CrashBound(b)
		mark := ""
		for _, s := range snapped {
			if s == b {
				mark = "  (snapped to history)"
			}
		}
		fmt.Printf("crash bound %s: %.1fs%s\n", b, bound, mark)
	}

	switch gran {
	case "":
	case "all":
		for _, g := range interval.Granularities() {
			printTrendTable(trends, g)
		}
	default:
		g, err := interval.Parse(gran)
		if err != nil {
			return err
		}
		printTrendTable(trends, g)
	}
	return nil
}

func printTrendTable(trends *engine.TrendStore, g interval.Granularity) {
	snaps := trends.Snapshot(g)

	fmt.Printf("\n%s trends (%d buckets)\n", g, len(snaps))
	fmt.Printf("%-22s %-13s %5s %5s %5s\n", "bucket", "phase", "low", "med", "high")
	for _, s := range snaps {
		fmt.Printf("%-22s %-13s %5d %5d %5d\n", s.Key, s.Phase, s.LowCount, s.MedCount, s.HighCount)
	}
}

// watchFeed tails the live WebSocket feed and prints every message.
func watchFeed(url, kinds string, text bool) {
	log.Printf("connecting to %s", url)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	log.Println("connected")

	if text {
		sendControl(conn, map[string]any{"action": "format", "format": "text"})
	}
	sendControl(conn, map[string]any{"action": "subscribe", "kinds": strings.Split(kinds, ",")})
	log.Printf("subscribed to %s", kinds)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("shutting down...")
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(200 * time.Millisecond)
		os.Exit(0)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("read: %v", err)
		}
		fmt.Println(string(data))
	}
}

func sendControl(conn *websocket.Conn, msg map[string]any) {
	data, _ := json.Marshal(msg)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Fatalf("send control: %v", err)
	}
}
