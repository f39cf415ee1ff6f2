// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the sollol distributed inference
// orchestrator: it loads the node fleet, wires the router, agent
// runtime, collaborative workflow and longform engine against it, and
// serves the dashboard's snapshot/websocket contract over HTTP.
//
// # Environment Variables
//
//   - SOLLOL_CONFIG: path to the YAML config file (default ~/.sollol/sollol.yaml)
//   - SOLLOL_PORT: HTTP listener port override
//   - SOLLOL_DISCOVERY_CIDR: CIDR to scan for nodes on startup
//   - SOLLOL_WORKFLOW_MODEL, SOLLOL_LONGFORM_MODEL: model tag overrides
//   - SOLLOL_OTEL_ENDPOINT: when set, spans are printed to stdout and metrics go to an otel Prometheus exporter instead of stdout (no /metrics endpoint is served)
//   - SOLLOL_WEAVIATE_URL: enables the RAG collaborator against that Weaviate instance
//
// # Usage
//
//	go build -o orchestrator ./cmd/orchestrator
//	./orchestrator
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/sollol/internal/agent"
	"github.com/AleutianAI/sollol/internal/config"
	"github.com/AleutianAI/sollol/internal/dashboard"
	"github.com/AleutianAI/sollol/internal/eventbus"
	"github.com/AleutianAI/sollol/internal/longform"
	"github.com/AleutianAI/sollol/internal/rag"
	"github.com/AleutianAI/sollol/internal/registry"
	"github.com/AleutianAI/sollol/internal/router"
	"github.com/AleutianAI/sollol/internal/telemetry"
	"github.com/AleutianAI/sollol/internal/workflow"
	"github.com/AleutianAI/sollol/pkg/logging"
)

const shutdownGrace = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "orchestrator:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("SOLLOL_CONFIG"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	bus := eventbus.New()

	providers, err := telemetry.Bootstrap(ctx, telemetry.Config{
		ServiceName:    cfg.OTel.ServiceName,
		LogLevel:       logging.LevelInfo,
		LogJSON:        true,
		TraceToStdout:  cfg.OTel.Enabled,
		PrometheusAddr: cfg.OTel.OTLPEndpoint,
		Bus:            bus,
	})
	if err != nil {
		return fmt.Errorf("bootstrap telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()
	logger := providers.Logger

	reg := registry.New()
	reg.SetPublisher(bus.NodeBridge("registry"))

	for _, sn := range cfg.Nodes {
		if _, err := reg.AddNode(ctx, sn.URL, sn.Name, sn.Priority, sn.LimiterRPS); err != nil {
			logger.Warn("failed to add configured node", "url", sn.URL, "error", err)
		}
	}
	if cfg.Discovery.CIDR != "" {
		timeout := time.Duration(cfg.Discovery.TimeoutSeconds) * time.Second
		found, err := reg.Discover(ctx, cfg.Discovery.CIDR, cfg.Discovery.Port, timeout)
		if err != nil {
			logger.Warn("fleet discovery failed", "cidr", cfg.Discovery.CIDR, "error", err)
		} else {
			logger.Info("fleet discovery complete", "cidr", cfg.Discovery.CIDR, "found", len(found))
		}
	}
	if len(reg.All()) == 0 {
		logger.Warn("no nodes configured; add some to the config file or via fleetctl add")
	}

	memory := router.NewMemory()

	rt := agent.New(reg, memory)
	rt.Publisher = bus.NodeBridge("agent")

	wf := workflow.New(rt, cfg.Workflow.Model)
	wf.Quality.Threshold = cfg.Workflow.QualityThreshold
	wf.Quality.MaxRetries = cfg.Workflow.QualityMaxRetries
	wf.Publisher = bus.NodeBridge("workflow")

	engine := longform.New(rt, cfg.Longform.Model)
	engine.MaxChunks = cfg.Longform.MaxChunks
	engine.MaxContextTokens = cfg.Longform.MaxContextTokens
	if cfg.Weaviate.Enabled {
		store, err := rag.New(cfg.Weaviate.URL, cfg.Weaviate.Class)
		if err != nil {
			logger.Warn("rag collaborator disabled: failed to connect to weaviate", "url", cfg.Weaviate.URL, "error", err)
		} else {
			engine.RAG = store
		}
	}

	dashSrv := dashboard.New(reg, memory, bus)

	mux := http.NewServeMux()
	mux.Handle("/", dashSrv.Handler())
	mux.Handle("/api/workflow/run", newWorkflowHandler(wf))
	mux.Handle("/api/longform/run", newLongformHandler(engine))

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("orchestrator listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	bus.Publish(eventbus.Event{
		Component: "orchestrator",
		Level:     eventbus.LevelInfo,
		EventType: eventbus.EventCoordinatorStart,
		Message:   "orchestrator started",
	}, eventbus.ChannelCoordinator)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	bus.Publish(eventbus.Event{
		Component: "orchestrator",
		Level:     eventbus.LevelInfo,
		EventType: eventbus.EventCoordinatorStop,
		Message:   "orchestrator stopping",
	}, eventbus.ChannelCoordinator)
	return httpSrv.Shutdown(shutdownCtx)
}
