package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/pagewatch/internal/config"
	"github.com/hamed0406/pagewatch/internal/engine"
	"github.com/hamed0406/pagewatch/internal/httpapi"
	"github.com/hamed0406/pagewatch/internal/logging"
	"github.com/hamed0406/pagewatch/internal/monitor"
	"github.com/hamed0406/pagewatch/internal/notify"
	"github.com/hamed0406/pagewatch/internal/probe"
	"github.com/hamed0406/pagewatch/internal/repo"
	"github.com/hamed0406/pagewatch/internal/repo/file"
	"github.com/hamed0406/pagewatch/internal/repo/memory"
	pg "github.com/hamed0406/pagewatch/internal/repo/postgres"
	"github.com/hamed0406/pagewatch/internal/scheduler"
	"github.com/hamed0406/pagewatch/internal/snapshot"
	"github.com/hamed0406/pagewatch/internal/status"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sites, alerts, closeStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_failed", zap.Error(err))
	}
	defer closeStore()

	fetcher := probe.NewFetcher(logger, probe.RetryPolicy{Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}, cfg.FetchTimeout)
	health := probe.NewHealthChecker(cfg.HealthTimeout, cfg.SlowThreshold)
	sv := monitor.New(logger, sites, fetcher, health, snapshot.NewStore(), monitor.Config{
		DefaultInterval: cfg.DefaultInterval,
		DefaultDuration: cfg.DefaultDuration,
		RetryDelay:      cfg.IterationRetry,
	})
	eng := engine.New(engine.Deps{
		Logger:           logger,
		Sites:            sites,
		Supervisor:       sv,
		Reader:           status.NewReader(sv.IsRunning, cfg.ActiveWindow, logger),
		Fetcher:          fetcher,
		Health:           health,
		DefaultOutputDir: cfg.OutputDir,
	})

	notifier := notify.Multi{notify.NewLog(logger)}
	if slack := notify.NewSlack(cfg.SlackWebhookURL); slack != nil {
		notifier = append(notifier, slack)
		logger.Info("slack_enabled")
	}
	alerter := scheduler.NewAlerter(logger, eng, alerts, notifier, scheduler.AlerterConfig{
		AlertOnRecovery: cfg.AlertOnRecovery,
		Cooldown:        cfg.AlertCooldown,
		PollInterval:    cfg.AlertPoll,
	})

	api := httpapi.NewServer(logger, eng)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(cfg.AllowedOrigins, cfg.PreviewRPM, cfg.PreviewBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := alerter.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown_begin")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return multierr.Combine(
			srv.Shutdown(sctx),
			eng.Shutdown(sctx),
		)
	})

	if err := g.Wait(); err != nil {
		logger.Error("api_exit", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}

// openStores picks the registry backend: Postgres when DATABASE_URL is set,
// else the JSON registry file, else process memory.
func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.SiteStore, repo.AlertStore, func(), error) {
	if cfg.DatabaseURL != "" {
		db, err := pg.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		logger.Info("store_selected", zap.String("backend", "postgres"))
		return db, db, db.Close, nil
	}
	if cfg.RegistryPath != "" {
		logger.Info("store_selected", zap.String("backend", "file"), zap.String("path", cfg.RegistryPath))
		return file.New(cfg.RegistryPath, logger), memory.New(), func() {}, nil
	}
	logger.Info("store_selected", zap.String("backend", "memory"))
	mem := memory.New()
	return mem, mem, func() {}, nil
}
