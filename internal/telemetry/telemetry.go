// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry bootstraps the orchestrator's OpenTelemetry tracer and
// meter providers and wires pkg/logging into the same process-wide
// configuration, the way cmd/aleutian/internal/diagnostics wires a tracer
// for the CLI: a FOSS-tier no-export path by default, and a richer export
// path when an endpoint is configured.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/sollol/internal/eventbus"
	"github.com/AleutianAI/sollol/pkg/logging"
)

// Config selects which exporters to wire. The zero value creates spans
// without exporting them, exports metrics to stdout, and logs text to
// stderr.
type Config struct {
	ServiceName string
	LogLevel    logging.Level
	LogJSON     bool
	LogDir      string
	// TraceToStdout, when true, prints spans to stdout as they finish.
	// When false, spans are still created (for propagation and
	// in-process correlation) but never exported.
	TraceToStdout bool
	// PrometheusAddr, if non-empty, selects an otel Prometheus exporter as
	// the metric reader instead of stdout. The address value itself is not
	// used, and this package serves no /metrics endpoint.
	PrometheusAddr string
	// Bus, if non-nil, receives every log entry as a log.entry event so
	// dashboard subscribers see the same stream operators do.
	Bus *eventbus.Bus
}

// Providers bundles the constructed tracer/meter providers and logger so
// callers can shut them down together.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Logger         *logging.Logger
}

// Bootstrap wires otel global providers and a Logger per cfg. Call
// Shutdown when the process exits.
func Bootstrap(ctx context.Context, cfg Config) (*Providers, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "sollol"
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.DeploymentEnvironmentKey.String(deploymentEnv()),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tracerOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceToStdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: build trace exporter: %w", err)
		}
		tracerOpts = append(tracerOpts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(tracerOpts...)
	otel.SetTracerProvider(tp)

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.PrometheusAddr != "" {
		promExp, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("telemetry: build prometheus exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(promExp))
	} else {
		stdoutExp, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("telemetry: build stdout metric exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(stdoutExp)))
	}
	mp := sdkmetric.NewMeterProvider(meterOpts...)
	otel.SetMeterProvider(mp)

	logCfg := logging.Config{
		Level:   cfg.LogLevel,
		LogDir:  cfg.LogDir,
		Service: cfg.ServiceName,
		JSON:    cfg.LogJSON,
	}
	if cfg.Bus != nil {
		logCfg.Exporter = logging.NewEventBusExporter(cfg.Bus.NodeBridge(cfg.ServiceName), "log.entry")
	}
	logger := logging.New(logCfg)

	return &Providers{TracerProvider: tp, MeterProvider: mp, Logger: logger}, nil
}

// Shutdown flushes and releases everything Bootstrap constructed.
func (p *Providers) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := p.TracerProvider.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.MeterProvider.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.Logger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func deploymentEnv() string {
	if env := os.Getenv("SOLLOL_ENV"); env != "" {
		return env
	}
	return "development"
}
