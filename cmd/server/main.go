package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"catalogd/internal/auth"
	"catalogd/internal/config"
	"catalogd/internal/images"
	"catalogd/internal/logger"
	"catalogd/internal/network"
	"catalogd/internal/storage"
	"catalogd/internal/transaction"
	"catalogd/internal/types"
)

func main() {
	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "catalogd: %v\n", err)
		os.Exit(2)
	}

	// Logging Setup
	var out io.Writer = os.Stdout
	if cfg.Log.File != "" {
		logFile, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Fatal("Failed to open log file: %v", err)
		}
		defer logFile.Close()
		out = io.MultiWriter(os.Stdout, logFile)
	}
	logger.Setup(out)
	level, _ := logger.ParseLevel(cfg.Log.Level)
	logger.SetLevel(level)

	logger.Info("----------------------------------------")
	logger.Info("Catalog Server Initializing...")

	if err := run(cfg); err != nil {
		logger.Fatal("%v", err)
	}
	logger.Info("Shutdown complete")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Storage
	if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0o755); err != nil {
		return err
	}
	if cfg.DB.RestoreFrom != "" {
		snap, err := storage.RestoreSnapshot(cfg.DB.RestoreFrom, cfg.DB.Path)
		if err != nil {
			return fmt.Errorf("restore %s: %w", cfg.DB.RestoreFrom, err)
		}
		logger.Info("Restored %s from snapshot %s (taken %s)", cfg.DB.Path, cfg.DB.RestoreFrom, snap.Created.Format(time.RFC3339))
	}
	catalog, err := storage.Open(ctx, storage.Options{
		Path:   cfg.DB.Path,
		Hasher: auth.NewHasher(cfg.Argon2),
		Fresh:  cfg.DB.NewDatabase,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := catalog.Close(); err != nil {
			logger.Error("Closing storage: %v", err)
		}
	}()
	logger.Info("Storage opened at %s", cfg.DB.Path)
	if err := checkStorage(ctx, catalog, cfg.DB.RepairOrphans); err != nil {
		return err
	}

	imgs, err := images.NewOSStore(cfg.Images.Root, int64(cfg.Server.MaxImageBytes))
	if err != nil {
		return err
	}

	// 2. Data-access worker
	txMgr := transaction.NewManager(catalog, types.ServerConfig{
		MaxFrameBytes: cfg.Server.MaxFrameBytes,
		MaxImageBytes: cfg.Server.MaxImageBytes,
		QueueDepth:    cfg.Worker.QueueDepth,
		SnapshotDir:   cfg.Worker.SnapshotDir,
	})
	txMgr.Start()
	defer txMgr.Stop()

	// 3. Server
	server := network.NewServer(network.Options{
		Addr:          cfg.Addr(),
		MaxFrameBytes: cfg.Server.MaxFrameBytes,
		MaxImageBytes: cfg.Server.MaxImageBytes,
		IdleTimeout:   cfg.Server.IdleTimeout,
	}, txMgr, imgs)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := server.ListenAndServe(gctx)
		if errors.Is(err, network.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			logger.Warn("Forced connection close: %v", err)
		}
		// Drain and join the worker before storage closes.
		txMgr.Stop()
		return nil
	})
	return g.Wait()
}

func checkStorage(ctx context.Context, catalog *storage.Catalog, repair bool) error {
	var (
		report *storage.RepairReport
		err    error
	)
	if repair {
		report, err = catalog.RepairOrphans(ctx)
	} else {
		report, err = catalog.CheckConsistency(ctx)
	}
	if err != nil {
		return err
	}
	for _, p := range report.Problems {
		logger.Error("Storage integrity: %s", p)
	}
	switch {
	case report.Repaired:
		logger.Warn("Removed %d items with dangling references", len(report.OrphanItems))
	case len(report.OrphanItems) > 0:
		logger.Warn("%d items reference missing rooms, types or colors (start with --repair to remove them)", len(report.OrphanItems))
	}
	return nil
}
