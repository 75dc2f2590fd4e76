// Perp Engine — a live perpetual-futures market-making / short-horizon
// alpha trading engine.
//
// Architecture:
//
//	main.go                    — entry point: loads config, starts the engine, waits for SIGINT/SIGTERM
//	internal/engine            — orchestrator: single cooperative tick loop wiring every subsystem below
//	internal/signal            — OBI/microprice/impact primitives, aggregation, deduplication
//	internal/execution         — IOC/Maker executors and the confidence-tiered router
//	internal/position          — position manager, TP/SL, timeout-based closer
//	internal/risk              — hard trading limits (single-loss, daily drawdown, position cap)
//	internal/cost              — ex-ante cost estimation and ex-post accuracy tracking
//	internal/attribution       — per-trade PnL decomposition
//	internal/exchange          — REST order client, WebSocket market feed, EIP-712/HMAC auth
//	internal/analytics         — outbound event pipeline (signals, orders, fills, attribution, cost)
//	internal/metrics           — Prometheus instrumentation
//	internal/feed              — Market Data Manager
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"perp-engine/internal/analytics"
	"perp-engine/internal/config"
	"perp-engine/internal/engine"
	"perp-engine/internal/exchange"
	"perp-engine/internal/feed"
	"perp-engine/internal/metrics"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("PERP_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stdout, cfg.Logging)
	auditLog := newAuditLogger(cfg.Logging)

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	auth, err := exchange.NewAuth(cfg.Wallet, cfg.Venue)
	if err != nil {
		logger.Error("failed to build auth", "error", err)
		os.Exit(1)
	}

	venueClient := exchange.NewClient(*cfg, auth, logger)

	mdManager := feed.NewManager(cfg.Symbols, cfg.Signal.MaxTrades, logger)
	marketFeed := exchange.NewMarketFeed(cfg.Venue.WSMarketURL, cfg.Symbols, mdManager, logger)

	m, registry := metrics.New()
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics, registry, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	hub := analytics.NewHub(logger)
	publisher := analytics.NewPublisher(hub)
	go hub.Run()

	var analyticsServer *analytics.Server
	if cfg.Analytics.Enabled {
		analyticsServer = analytics.NewServer(cfg.Analytics, hub, logger)
		go func() {
			if err := analyticsServer.Start(); err != nil {
				logger.Error("analytics server failed", "error", err)
			}
		}()
	}

	eng := engine.New(*cfg, mdManager, venueClient, m, publisher, logger, auditLog)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := marketFeed.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("market feed stopped", "error", err)
		}
	}()

	go eng.Run(ctx)

	logger.Info("perp engine started",
		"symbols", cfg.Symbols,
		"dry_run", cfg.DryRun,
		"tick_period", cfg.Engine.TickPeriod,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	cancel()

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error("failed to stop metrics server", "error", err)
		}
	}
	if analyticsServer != nil {
		if err := analyticsServer.Stop(); err != nil {
			logger.Error("failed to stop analytics server", "error", err)
		}
	}
	if err := marketFeed.Close(); err != nil {
		logger.Error("failed to close market feed", "error", err)
	}

	logger.Info("shutdown complete")
}

func newLogger(out *os.File, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

// newAuditLogger builds the critical-risk audit sink. It writes to
// cfg.AuditPath when configured, otherwise falls back to stderr so
// breach/fallback events are never silently dropped.
func newAuditLogger(cfg config.LoggingConfig) *slog.Logger {
	if cfg.AuditPath == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}

	f, err := os.OpenFile(cfg.AuditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open audit log %q: %v, falling back to stderr\n", cfg.AuditPath, err)
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewJSONHandler(f, nil))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
