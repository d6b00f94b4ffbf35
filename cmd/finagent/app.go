package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finagent/internal/alerts"
	"finagent/internal/api"
	"finagent/internal/buildinfo"
	"finagent/internal/config"
	"finagent/internal/email"
	"finagent/internal/events"
	"finagent/internal/market"
	"finagent/internal/mqtt"
)

// checkInterval returns the configured alert check interval.
func checkInterval(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Alerts.IntervalSec) * time.Second
}

// buildNotifier assembles the notification backends from config. The
// returned cleanup disconnects the MQTT session if one was opened. A
// nil notifier is valid; fired alerts are then only logged.
func buildNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (alerts.Notifier, func()) {
	var backends alerts.MultiNotifier
	cleanup := func() {}

	if cfg.Email.Configured() {
		backends = append(backends, email.NewNotifier(cfg.Email, logger))
		logger.Info("email notifications enabled", "host", cfg.Email.Host)
	}

	if cfg.MQTT.Enabled {
		pub := mqtt.New(cfg.MQTT, logger)
		if err := pub.Connect(ctx); err != nil {
			logger.Warn("mqtt connect failed, continuing without broker", "error", err)
		} else {
			backends = append(backends, pub)
			cleanup = func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := pub.Close(closeCtx); err != nil {
					logger.Warn("mqtt disconnect failed", "error", err)
				}
			}
		}
	}

	if len(backends) == 0 {
		logger.Warn("no notification backend configured, fired alerts will only be logged")
		return nil, cleanup
	}
	return backends, cleanup
}

// runWorker handles "finagent worker": the dedicated alert evaluator.
// It owns the heartbeat file so interactive sessions skip their own
// checks while it runs.
func runWorker(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, logLevel(cfg))
	logger.Info("starting alert worker",
		"version", buildinfo.Version, "config", cfgPath, "interval", checkInterval(cfg))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	notifier, cleanup := buildNotifier(ctx, cfg, logger)
	defer cleanup()

	store := alerts.NewStore(cfg.Alerts.TasksFile)
	hb := alerts.NewHeartbeat(cfg.Alerts.HeartbeatFile, logger)
	client := market.NewClient(cfg.Market, logger)
	sched := alerts.NewScheduler(store, hb, client, notifier, nil, logger, checkInterval(cfg))

	return sched.RunWorker(ctx)
}

// runServe handles "finagent serve": the events API server plus a
// passive alert checker that defers to a live worker.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, logLevel(cfg))
	logger.Info("starting events API server",
		"version", buildinfo.Version, "config", cfgPath, "port", cfg.Listen.Port)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	notifier, cleanup := buildNotifier(ctx, cfg, logger)
	defer cleanup()

	bus := events.New()
	store := alerts.NewStore(cfg.Alerts.TasksFile)
	hb := alerts.NewHeartbeat(cfg.Alerts.HeartbeatFile, logger)
	client := market.NewClient(cfg.Market, logger)
	sched := alerts.NewScheduler(store, hb, client, notifier, bus, logger, checkInterval(cfg))
	go sched.RunPassive(ctx)

	server := api.NewServer(cfg.Listen, bus, store, logger)
	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}
	logger.Info("finagent stopped")
	return nil
}
