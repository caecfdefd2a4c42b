// cnabd watches folders for CNAB return files and imports them into the
// QPROF back office through an automated browser session, on a schedule or
// on demand over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"cnabd/internal/config"
	"cnabd/internal/infrastructure"
	"cnabd/internal/qprof"
	"cnabd/internal/scheduler"
	"cnabd/internal/store"
	transport "cnabd/internal/transport/http"
	"cnabd/internal/watch"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cnabd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	logger.Info("cnabd starting",
		slog.String("version", transport.Version),
		slog.String("qprof_url", cfg.QProf.BaseURL),
		slog.Duration("tick", cfg.Watch.TickInterval),
		slog.Bool("credentials_configured", cfg.QProf.HasCredentials()))

	if !cfg.QProf.HasCredentials() {
		logger.Warn("QPROF credentials not configured, imports will fail until CNABD_QPROF_USERNAME and CNABD_QPROF_PASSWORD are set")
	}

	db, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(db); err != nil {
			logger.Error("failed to close database", slog.String("error", err.Error()))
		}
	}()

	st := store.New(db)
	engine := qprof.NewEngine(cfg.QProf, cfg.Watch, st, logger)
	scanner := watch.NewScanner(cfg.Watch.Extension, logger)
	sched := scheduler.New(st, engine, scanner, cfg.Watch.TickInterval, logger)

	router := transport.NewRouter(cfg,
		transport.NewRoutineHandler(st, sched, logger),
		transport.NewFileHandler(st, sched, "data/uploads", logger),
		transport.NewHealthHandler(db, logger),
		logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("cnabd stopped")
	return nil
}
