// Package main is the entry point for the device-side sync agent.
//
// The agent owns the local snapshot of events and units, and reconciles
// it with the classroom server on a timer. It is safe to run with the
// network down: recorded events queue locally and go out on the next
// cycle that reaches the server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Deekay69/aale-platform/config"
	"github.com/Deekay69/aale-platform/internal/client"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
	"github.com/Deekay69/aale-platform/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	once := flag.Bool("once", false, "run a single sync cycle and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Sync.StudentID == "" {
		return errors.New("SYNC_STUDENT_ID is required")
	}

	logOpts := logger.DefaultOptions()
	logOpts.Level = logger.ParseLevel(cfg.App.LogLevel)
	log := logger.New(logOpts)
	log.Info("starting sync agent",
		logger.StudentID(cfg.Sync.StudentID),
		logger.String("server", cfg.Sync.ServerURL),
		logger.Duration("interval", cfg.Sync.Interval),
	)

	store, err := openStore(cfg.Sync.SnapshotPath, log)
	if err != nil {
		return err
	}

	apiCfg := client.DefaultAPIConfig(cfg.Sync.ServerURL, cfg.Sync.StudentID)
	apiCfg.Timeout = cfg.Sync.RequestTimeout
	apiCfg.Logger = log
	api := client.NewAPIClient(apiCfg)

	syncer := client.NewSyncer(store, api, cfg.Sync.Interval, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		report, err := syncer.SyncNow(ctx)
		if err != nil {
			if shared.IsTransient(err) {
				log.Warn("sync cycle failed, local queue retained", logger.Err(err))
				return nil
			}
			return fmt.Errorf("sync cycle failed: %w", err)
		}
		log.Info("sync cycle finished",
			logger.Int("pushed", report.Pushed),
			logger.Int("pulled_units", report.PulledUnits),
			logger.Int("pulled_events", report.PulledEvents),
			logger.Watermark(report.Watermark),
		)
		return nil
	}

	syncer.Start(ctx)
	defer syncer.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", logger.String("signal", sig.String()))

	return nil
}

func openStore(path string, log *logger.Logger) (*client.LocalStore, error) {
	if path == "" {
		log.Warn("no snapshot path configured, events are lost on exit")
		return client.NewLocalStore(), nil
	}
	store, err := client.NewPersistentStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}
	log.Info("snapshot loaded",
		logger.String("path", path),
		logger.Int("events", store.EventCount()),
		logger.Int("pending", store.PendingCount()),
	)
	return store, nil
}
