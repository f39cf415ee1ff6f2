// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package node represents a single Ollama-API-compatible HTTP endpoint.
//
// A Node owns its own capabilities, rolling metrics, and load score. All
// mutation of a Node's mutable state happens under the Node's own lock;
// the registry that owns a set of Nodes never reaches into their fields
// directly.
package node

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("sollol.node")

// smoothingAlpha is the EMA smoothing factor for avg_latency_ms, as fixed
// by spec: avg_latency is an exponential moving average with α≈0.3.
const smoothingAlpha = 0.3

// maxAcceptableLatency is the normalization ceiling for the latency
// component of the load score (10s, per spec).
const maxAcceptableLatency = 10 * time.Second

// Capabilities describes the hardware capabilities of a node, probed
// best-effort and never guaranteed accurate.
type Capabilities struct {
	HasGPU        bool
	GPUCount      int
	GPUMemoryMB   int
	CPUCount      int
	TotalMemoryMB int
	ModelsLoaded  []string
}

// Metrics holds the mutable, lock-protected performance state of a Node.
type Metrics struct {
	TotalRequests     int64
	FailedRequests    int64
	AvgLatencyMS      float64
	LastLatencyMS     float64
	LastHealthCheckAt time.Time
	IsHealthy         bool
	LastError         string
}

// Node is one inference HTTP endpoint. Equality for registry dedup purposes
// is by resolved IP, not by this struct's URL field (see internal/registry).
type Node struct {
	URL      string
	Name     string
	Priority int

	mu           sync.RWMutex
	capabilities Capabilities
	metrics      Metrics

	httpClient *http.Client
	limiter    *rate.Limiter
}

// New constructs a Node bound to the given URL. limiterRPS caps outbound
// requests per second to this node; 0 disables limiting.
func New(url, name string, priority int, limiterRPS float64) *Node {
	if name == "" {
		name = url
	}
	var limiter *rate.Limiter
	if limiterRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(limiterRPS), 1)
	}
	return &Node{
		URL:      url,
		Name:     name,
		Priority: priority,
		metrics:  Metrics{IsHealthy: true},
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
		limiter: limiter,
	}
}

// Snapshot is an immutable point-in-time view of a Node, safe to pass
// across goroutines and used by the router for scoring candidates.
type Snapshot struct {
	URL          string
	Name         string
	Priority     int
	Capabilities Capabilities
	Metrics      Metrics
	LoadScore    float64
}

// Snapshot takes a consistent read of the node's identity, capabilities,
// and metrics, and computes the current load score.
func (n *Node) Snapshot() Snapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return Snapshot{
		URL:          n.URL,
		Name:         n.Name,
		Priority:     n.Priority,
		Capabilities: n.capabilities,
		Metrics:      n.metrics,
		LoadScore:    n.computeLoadScoreLocked(),
	}
}

// IsHealthy reports the node's last known health state.
func (n *Node) IsHealthy() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.metrics.IsHealthy
}

// tagsResponse mirrors Ollama's GET /api/tags response shape.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ProbeHealth hits GET /api/tags. On success it updates last latency, the
// health-check timestamp, and the loaded-model list, and marks the node
// healthy. On any failure it marks the node unhealthy and records the
// error string; probe failures are never fatal to the caller.
func (n *Node) ProbeHealth(ctx context.Context, timeout time.Duration) bool {
	ctx, span := tracer.Start(ctx, "node.probe_health", trace.WithAttributes(
		attribute.String("node.url", n.URL),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.URL+"/api/tags", nil)
	if err != nil {
		n.markUnhealthy(err)
		span.RecordError(err)
		return false
	}

	resp, err := n.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		n.markUnhealthy(err)
		span.RecordError(err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		n.markUnhealthy(errUnexpectedStatus(resp.StatusCode))
		span.SetStatus(codes.Error, "non-200 status")
		return false
	}

	var tags tagsResponse
	models := []string(nil)
	if json.NewDecoder(resp.Body).Decode(&tags) == nil {
		for _, m := range tags.Models {
			models = append(models, m.Name)
		}
	}

	n.mu.Lock()
	n.metrics.LastLatencyMS = float64(elapsed.Milliseconds())
	n.metrics.LastHealthCheckAt = time.Now()
	n.metrics.IsHealthy = true
	n.metrics.LastError = ""
	n.capabilities.ModelsLoaded = models
	n.mu.Unlock()

	span.SetStatus(codes.Ok, "")
	return true
}

func (n *Node) markUnhealthy(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.metrics.IsHealthy = false
	n.metrics.LastHealthCheckAt = time.Now()
	if err != nil {
		n.metrics.LastError = err.Error()
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "unexpected status code"
}

func errUnexpectedStatus(code int) error {
	return &statusError{code: code}
}

// ProbeCapabilities is a best-effort fill of GPU/CPU fields. Fields remain
// at their previous values on failure; this never returns an error to the
// caller since the fill is heuristic by design.
func (n *Node) ProbeCapabilities(ctx context.Context, timeout time.Duration) bool {
	ctx, span := tracer.Start(ctx, "node.probe_capabilities")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := map[string]string{"name": "llama3.2"}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL+"/api/show", bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var showResp struct {
		Parameters string `json:"parameters"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&showResp); err == nil {
		if containsGPUHint(showResp.Parameters) {
			n.mu.Lock()
			n.capabilities.HasGPU = true
			n.mu.Unlock()
		}
	}

	n.mu.Lock()
	if n.capabilities.CPUCount == 0 {
		n.capabilities.CPUCount = 4
	}
	if n.capabilities.TotalMemoryMB == 0 {
		n.capabilities.TotalMemoryMB = 8192
	}
	n.mu.Unlock()

	return true
}

func containsGPUHint(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "gpu") || strings.Contains(lower, "cuda")
}

// RecordOutcome increments request counters and updates the EMA average
// latency using the new sample. It must be called exactly once per
// completed inference (see spec.md §3 invariants).
func (n *Node) RecordOutcome(durationMS float64, success bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.metrics.TotalRequests++
	if !success {
		n.metrics.FailedRequests++
	}
	n.metrics.LastLatencyMS = durationMS
	if n.metrics.AvgLatencyMS == 0 {
		n.metrics.AvgLatencyMS = durationMS
	} else {
		n.metrics.AvgLatencyMS = smoothingAlpha*durationMS + (1-smoothingAlpha)*n.metrics.AvgLatencyMS
	}
}

// ComputeLoadScore returns the node's current load score in [0,1], where
// lower is better. Unhealthy nodes always score 1.0.
func (n *Node) ComputeLoadScore() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.computeLoadScoreLocked()
}

func (n *Node) computeLoadScoreLocked() float64 {
	if !n.metrics.IsHealthy {
		return 1.0
	}
	failureRate := 0.0
	if n.metrics.TotalRequests > 0 {
		failureRate = float64(n.metrics.FailedRequests) / float64(n.metrics.TotalRequests)
	}
	latencyComponent := n.metrics.AvgLatencyMS / float64(maxAcceptableLatency.Milliseconds())
	if latencyComponent > 1 {
		latencyComponent = 1
	}
	return 0.5*failureRate + 0.5*latencyComponent
}

// RateLimiter exposes the node's outbound rate limiter, or nil if disabled.
func (n *Node) RateLimiter() *rate.Limiter {
	return n.limiter
}

// HTTPClient exposes the node's HTTP client for use by the agent runtime.
func (n *Node) HTTPClient() *http.Client {
	return n.httpClient
}
