// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/absmach/mqtt-agent/config"
	"github.com/absmach/mqtt-agent/conn"
	"github.com/absmach/mqtt-agent/control"
	"github.com/absmach/mqtt-agent/credentials"
	"github.com/absmach/mqtt-agent/notifier"
	"github.com/absmach/mqtt-agent/server/health"
	"github.com/absmach/mqtt-agent/server/otel"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	agentID := uuid.NewString()

	slog.Info("Starting MQTT agent", "agent_id", agentID)
	slog.Info("Configuration loaded",
		"control_listener", cfg.Server.ControlAddr,
		"health_enabled", cfg.Server.HealthEnabled,
		"orchestrator_url", cfg.Notifier.URL,
		"log_level", cfg.Log.Level)

	creds, err := credentials.NewStore(logger)
	if err != nil {
		slog.Error("Failed to initialize credential store", "error", err)
		os.Exit(1)
	}
	defer creds.CleanUp()

	var otelShutdown func(context.Context) error
	var metrics *otel.Metrics

	if cfg.Otel.Enabled {
		shutdown, err := otel.InitProvider(cfg.Otel, agentID)
		if err != nil {
			slog.Error("Failed to initialize OpenTelemetry", "error", err)
			os.Exit(1)
		}
		otelShutdown = shutdown
		slog.Info("OpenTelemetry initialized", "endpoint", cfg.Otel.Endpoint)

		m, err := otel.NewMetrics()
		if err != nil {
			slog.Error("Failed to create metrics", "error", err)
			os.Exit(1)
		}
		metrics = m

		if cfg.Otel.TracesEnabled {
			slog.Info("Distributed tracing enabled", "sample_rate", cfg.Otel.TraceSampleRate)
		}
	} else {
		slog.Info("OpenTelemetry disabled")
	}

	registry := conn.NewRegistry(logger)

	events := notifier.New(cfg.Notifier, agentID, cfg.Server.ControlAddr, nil, metrics, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	shutdownReq := make(chan string, 1)

	controlHandler := control.NewHandler(registry, events, creds, metrics, func(reason string) {
		select {
		case shutdownReq <- reason:
		default:
		}
	}, logger)

	controlServer := &http.Server{
		Addr:    cfg.Server.ControlAddr,
		Handler: control.NewMux(controlHandler),
	}

	g.Go(func() error {
		slog.Info("Starting control server", "address", cfg.Server.ControlAddr)
		if err := controlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := controlServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Control server shutdown error", "error", err)
		}
		return nil
	})

	if cfg.Server.HealthEnabled {
		healthCfg := health.Config{
			Address:         cfg.Server.HealthAddr,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}
		healthServer := health.New(healthCfg, agentID, registry, logger)

		g.Go(func() error {
			slog.Info("Starting health check server", "address", cfg.Server.HealthAddr)
			return healthServer.Listen(gctx)
		})
	}

	registerCtx, registerCancel := context.WithTimeout(ctx, cfg.Notifier.Timeout)
	if err := events.RegisterAgent(registerCtx); err != nil {
		slog.Warn("Failed to register with orchestrator", "error", err)
	}
	registerCancel()

	slog.Info("MQTT agent started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	stopReason := "shutdown signal"
	g.Go(func() error {
		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig)
		case reason := <-shutdownReq:
			stopReason = reason
			slog.Info("Shutdown requested by orchestrator", "reason", reason)
		case <-gctx.Done():
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		stopReason = "server error"
		slog.Error("Server error", "error", err)
	}

	registry.CloseAll()

	unregisterCtx, unregisterCancel := context.WithTimeout(context.Background(), cfg.Notifier.Timeout)
	if err := events.UnregisterAgent(unregisterCtx, stopReason); err != nil {
		slog.Warn("Failed to unregister from orchestrator", "error", err)
	}
	unregisterCancel()

	if err := events.Close(); err != nil {
		slog.Error("Notifier shutdown error", "error", err)
	}

	if otelShutdown != nil {
		otelCtx, otelCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer otelCancel()
		if err := otelShutdown(otelCtx); err != nil {
			slog.Error("Failed to shutdown OpenTelemetry", "error", err)
		}
	}

	slog.Info("MQTT agent stopped")
}
