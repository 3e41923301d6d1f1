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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"pricetracker/internal/api"
	"pricetracker/internal/config"
	"pricetracker/internal/fetcher"
	"pricetracker/internal/lock"
	"pricetracker/internal/logging"
	"pricetracker/internal/metrics"
	"pricetracker/internal/notifier"
	"pricetracker/internal/ratelimit"
	"pricetracker/internal/scheduler"
	"pricetracker/internal/store"
	"pricetracker/internal/tracker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configFile := pflag.StringP("config", "c", "", "path to a config file (default: ./config.yaml or $HOME/.pricetracker/config.yaml)")
	once := pflag.Bool("once", false, "run a single check cycle and exit")
	pflag.Parse()

	if err := run(*configFile, *once); err != nil {
		slog.Error("price tracker failed", "error", err)
		os.Exit(1)
	}
}

func run(configFile string, once bool) error {
	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)
	if err != nil {
		logger.Warn("invalid log level, using info", "error", err)
	}

	// Cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Fetching strategies share one per-host limiter
	limiter := ratelimit.New(cfg.RateLimitPerSec, 1)
	profile := fetcher.DefaultProfile()
	clientOpts := fetcher.ClientOptions{
		UserAgent:      cfg.UserAgent,
		MaxAttempts:    cfg.MaxAttempts,
		AttemptTimeout: cfg.AttemptTimeout,
		RetryWait:      cfg.RetryWait,
		RetryMaxWait:   cfg.RetryMaxWait,
		Logger:         logger,
	}

	static := fetcher.NewStaticFetcher(clientOpts, profile, limiter)
	defer static.Close()

	var browser fetcher.Fetcher
	if len(cfg.DynamicDomains) > 0 {
		renderer := fetcher.NewRodRenderer(fetcher.BrowserOptions{
			ControlURL:  cfg.BrowserControlURL,
			Bin:         cfg.BrowserBin,
			WaitTimeout: cfg.BrowserWait,
			UserAgent:   cfg.UserAgent,
			Logger:      logger,
		})
		defer renderer.Close()
		browser = fetcher.NewBrowserFetcher(renderer, clientOpts, profile, limiter)
		logger.Info("browser strategy enabled", "domains", cfg.DynamicDomains)
	}
	router := fetcher.NewRouter(static, browser, cfg.DynamicDomains)

	// Notifications are skipped, not fatal, when SMTP is not configured
	var mailer notifier.Mailer
	if smtp := cfg.SMTP(); smtp.Configured() {
		mailer = notifier.NewSMTPMailer(smtp, logger)
	} else {
		logger.Warn("smtp not configured, notifications will be skipped")
	}
	notify := notifier.NewEmailNotifier(mailer, cfg.CurrencySymbol, logger)

	var locker lock.Locker
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client, "")
		logger.Info("cross-process cycle lock enabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	sched := scheduler.New(st, router, notify, scheduler.Config{
		Interval: cfg.Interval,
		Workers:  cfg.Workers,
		Locker:   locker,
		Metrics:  m,
		Logger:   logger,
	})

	if once {
		report := sched.RunCycle(ctx)
		logger.Info("single cycle complete",
			"items", report.Items,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"notified", report.Notified)
		if report.Error != "" {
			return errors.New(report.Error)
		}
		return nil
	}

	svc := tracker.New(st, router, notify, tracker.Config{
		SupportedDomains: cfg.SupportedDomains,
		SeedTimeout:      cfg.SeedTimeout,
		Logger:           logger,
	})

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewServer(api.Deps{
			Tracker:   svc,
			Scheduler: sched,
			Store:     st,
			Gatherer:  reg,
			Logger:    logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The loop outlives the signal context; shutdown goes through Stop so
	// in-flight items finish.
	sched.Start(context.WithoutCancel(ctx))

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler did not stop in time", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// openStore returns the PostgreSQL store when a database URL is configured and
// the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database configured, tracked items are kept in memory only")
		return store.NewMemoryStore(), func() {}, nil
	}

	if cfg.AutoMigrate {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		logger.Info("database migrations applied")
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgresStore(db), func() { db.Close() }, nil
}
