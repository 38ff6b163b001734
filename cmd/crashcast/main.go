package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mparet/crashcast/internal/api"
	"github.com/mparet/crashcast/internal/archive"
	"github.com/mparet/crashcast/internal/config"
	"github.com/mparet/crashcast/internal/engine"
	"github.com/mparet/crashcast/internal/persist"
	"github.com/mparet/crashcast/internal/runner"
	"github.com/mparet/crashcast/internal/session"
)

func main() {
	cfg := config.Load()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("crashcast starting")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	// PRNG
	rng := engine.NewRNG(cfg.Seed)
	log.Printf("PRNG seed: %d", cfg.Seed)

	// Parameters
	var params *engine.Params
	if cfg.ParamsFile != "" {
		var err error
		params, err = engine.LoadParamsFile(cfg.ParamsFile)
		if err != nil {
			log.Fatalf("parameter file: %v", err)
		}
		log.Printf("loaded parameters from %s", cfg.ParamsFile)
	} else {
		params = engine.NewParams()
	}

	// Engine
	trends := engine.NewTrendStore()
	adaptive := engine.NewAdaptive(params)
	gen := engine.NewGenerator(rng, params, trends, adaptive)

	// Persistence: Mongo when a URI is configured, local CSV otherwise.
	var eventLog persist.Log
	if cfg.MongoURI != "" {
		store, err := persist.NewStore(ctx, cfg.MongoURI)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer store.Close(context.Background())

		if err := store.Migrate(ctx); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		eventLog = persist.NewMongoLog(store)

		// Retention pruner
		go persist.RunRetention(ctx, store, cfg.EventRetentionDays)

		// Archiver (opt-in)
		if cfg.ArchiveDir != "" {
			archiver := archive.New(store.DB(), cfg.ArchiveDir, cfg.ArchiveMaxGB, cfg.ArchiveIntervalHours, cfg.ArchiveAfterHours)
			go archiver.Run(ctx)
		}
	} else {
		csvLog, err := persist.OpenCSVLog(cfg.CSVPath)
		if err != nil {
			log.Fatalf("event log: %v", err)
		}
		defer csvLog.Close(context.Background())
		eventLog = csvLog
		log.Printf("event log: %s", cfg.CSVPath)
	}

	// Session manager (WebSocket fan-out)
	mgr := session.NewManager(cfg.SendBufferSize)

	// Session runner
	run := runner.New(gen, params, trends, adaptive, eventLog, mgr)

	// Rebuild trends and learned bounds from the event log.
	applied, skipped, err := run.ReplayHistory(ctx)
	if err != nil {
		log.Fatalf("history replay failed: %v", err)
	}
	log.Printf("replayed %d events (%d skipped), %d trend buckets", applied, skipped, trends.Size())

	go run.Run(ctx)

	if cfg.AutoStart {
		if err := run.Start(ctx); err != nil {
			log.Fatalf("auto start failed: %v", err)
		}
		log.Println("session auto-started")
	}

	// HTTP/WebSocket server
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", session.Handler(mgr))

	apiServer := api.NewServer(run, params, trends, eventLog, mgr)
	apiServer.Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
		mgr.CloseAll()
	}()

	log.Printf("feed listening on ws://%s/feed", addr)
	log.Printf("API listening on http://%s/api", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	log.Println("crashcast stopped")
}
