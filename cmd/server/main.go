// Package main is the entry point for the fan-site API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/bootstrap"
	"github.com/parsascontentcorner/fansite/internal/cache"
	"github.com/parsascontentcorner/fansite/internal/config"
	"github.com/parsascontentcorner/fansite/internal/database"
	httpserver "github.com/parsascontentcorner/fansite/internal/http"
	"github.com/parsascontentcorner/fansite/pkg/logger"
)

func main() {
	cmd := &cli.Command{
		Name:   "fansite",
		Usage:  "API server for the channel fan site",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit",
				Action: migrate,
			},
			{
				Name:   "reconcile",
				Usage:  "Resolve stale pending playlist entries once and exit",
				Action: reconcile,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// deps holds the process-wide dependencies every command needs
type deps struct {
	cfg *config.Config
	log *zap.Logger
	db  *database.DB
	rdb *redis.Client
}

func setup() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.NewDB(&cfg.Database, logger.Component(log, "database"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return &deps{cfg: cfg, log: log, db: db, rdb: rdb}, nil
}

func (rt *deps) close() {
	if err := rt.rdb.Close(); err != nil {
		rt.log.Error("failed to close redis client", zap.Error(err))
	}
	if err := rt.db.Close(); err != nil {
		rt.log.Error("failed to close database connection", zap.Error(err))
	}
	// Sync errors on stdout/stderr are expected for non-syncable descriptors.
	_ = rt.log.Sync()
}

func (rt *deps) app() *bootstrap.App {
	opts := bootstrap.Options{}
	if purger := cache.NewCDNPurger(rt.cfg, logger.Component(rt.log, "cdn")); purger != nil {
		opts.Purger = purger
	}
	return bootstrap.New(rt.cfg, rt.db, rt.rdb, rt.log, opts)
}

func migrate(_ context.Context, _ *cli.Command) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.db.RunMigrations(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func reconcile(ctx context.Context, _ *cli.Command) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	app := rt.app()
	defer app.Close()

	result, err := app.Playlist.Reconcile(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("confirmed %d, removed %d\n", result.Confirmed, result.Removed)
	return nil
}

func serve(ctx context.Context, _ *cli.Command) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	log := rt.log
	log.Info("starting fan site server",
		zap.String("environment", rt.cfg.Server.Env),
		zap.String("http_port", rt.cfg.Server.HTTPPort),
	)

	if err := rt.db.RunMigrations(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if err := rt.rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis is not reachable yet", zap.String("addr", rt.cfg.Redis.Addr), zap.Error(err))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app := rt.app()
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start notifier: %w", err)
	}
	defer app.Close()

	rt.db.StartCleanupJob(ctx, 30*time.Minute)
	app.Playlist.StartReconcileJob(ctx, rt.cfg.Security.ReconcileInterval)

	server := httpserver.NewServer(app.Handlers, rt.cfg.Server, logger.Component(log, "http"))

	errChan := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", zap.String("port", rt.cfg.Server.HTTPPort))
		if err := server.Serve(); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("HTTP server error: %w", err)
	case sig := <-sigChan:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	log.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server gracefully", zap.Error(err))
	}

	log.Info("server shut down successfully")
	return nil
}
