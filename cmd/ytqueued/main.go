package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ytqueue/internal/api"
	"ytqueue/internal/config"
	"ytqueue/internal/engine"
	"ytqueue/internal/fetcher"
	"ytqueue/internal/history"
	"ytqueue/internal/retry"
	"ytqueue/internal/store"
)

func main() {
	cfg := config.Load()

	log.Printf("starting ytqueued on port %d", cfg.Port)
	log.Printf("queue snapshot: %s", cfg.QueuePath)
	log.Printf("history: %s", cfg.HistoryPath)

	settings := config.LoadSettings(cfg.SettingsPath)

	// Reload the persisted queue; completed entries are dropped,
	// everything else comes back as queued.
	queue := store.New(store.NewFileSnapshot(cfg.QueuePath))
	if n, err := queue.Load(); err != nil {
		log.Fatalf("failed to load queue snapshot: %v", err)
	} else if n > 0 {
		log.Printf("restored %d queued jobs", n)
	}

	archive, err := history.New(cfg.HistoryPath)
	if err != nil {
		log.Fatalf("failed to initialize history: %v", err)
	}
	defer archive.Close()

	policy := retry.Default()
	policy.MaxRetries = cfg.MaxRetries

	eng := engine.New(
		queue,
		fetcher.NewClient(cfg.YTDLPPath),
		engine.WithPolicy(policy),
		engine.WithToolValidator(fetcher.FFmpegValidator{}),
		engine.WithArchiver(archive),
	)

	// Seed lifetime counters from the archive.
	if completed, failed, err := archive.Totals(context.Background()); err != nil {
		log.Printf("warning: failed to read history totals: %v", err)
	} else {
		eng.Stats().Seed(completed, failed)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := api.NewServer(eng, archive, settings, cfg.SettingsPath, addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	sig := <-sigCh
	log.Printf("received signal %v, shutting down", sig)

	// Stop the drain and wait for it to unwind; the interrupted job must
	// be back in the snapshot before the process exits.
	eng.Cancel()
	if !eng.AwaitIdle(10 * time.Second) {
		log.Printf("warning: queue drain did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("shutdown complete")
}
