// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cluster implements Cluster bookkeeping, the HybridRouter's
// Ollama-vs-RPC decision, and the Coordinator subprocess lifecycle —
// components B and H.
package cluster

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("sollol.cluster")

// Backend is one llama.cpp RPC worker participating in a sharded model.
type Backend struct {
	Host string
	Port int

	mu        sync.RWMutex
	healthy   bool
	numLayers int
}

// Addr returns the backend's host:port dial target.
func (b *Backend) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

func (b *Backend) setHealthy(v bool) {
	b.mu.Lock()
	b.healthy = v
	b.mu.Unlock()
}

// IsHealthy reports the backend's last known reachability.
func (b *Backend) IsHealthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.healthy
}

// probe does a bare TCP dial; RPC backends have no HTTP surface of their
// own, so reachability is the only cheap signal available (grounded on
// rpc_heartbeat_monitor.py's per-backend probe loop).
func (b *Backend) probe(ctx context.Context, timeout time.Duration) bool {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", b.Addr())
	if err != nil {
		b.setHealthy(false)
		return false
	}
	_ = conn.Close()
	b.setHealthy(true)
	return true
}

// LayerRange is one backend's assigned slice of the model's layers.
type LayerRange struct {
	Backend    *Backend
	FirstLayer int
	LastLayer  int // inclusive
}

// Cluster is a named group of Backends jointly serving one sharded model.
type Cluster struct {
	Name     string
	Model    string
	Strategy string // "even" or "explicit"

	mu       sync.RWMutex
	backends []*Backend
	healthy  bool
}

// NewCluster constructs a Cluster over backends for model, using the
// given partitioning strategy ("even" when strategy is empty).
func NewCluster(name, model, strategy string, backends []*Backend) *Cluster {
	if strategy == "" {
		strategy = "even"
	}
	return &Cluster{Name: name, Model: model, Strategy: strategy, backends: backends}
}

// Backends returns the cluster's member backends.
func (c *Cluster) Backends() []*Backend {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Backend, len(c.backends))
	copy(out, c.backends)
	return out
}

// HealthCheck probes every backend in parallel; the cluster is healthy
// iff every backend responded.
func (c *Cluster) HealthCheck(ctx context.Context, timeout time.Duration) bool {
	ctx, span := tracer.Start(ctx, "cluster.health_check")
	defer span.End()

	backends := c.Backends()
	g, gctx := errgroup.WithContext(ctx)
	results := make([]bool, len(backends))
	for i, b := range backends {
		i, b := i, b
		g.Go(func() error {
			results[i] = b.probe(gctx, timeout)
			return nil
		})
	}
	_ = g.Wait()

	allHealthy := len(backends) > 0
	for _, ok := range results {
		if !ok {
			allHealthy = false
		}
	}

	c.mu.Lock()
	c.healthy = allHealthy
	c.mu.Unlock()
	return allHealthy
}

// IsHealthy returns the cluster's last-computed aggregate health.
func (c *Cluster) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// IsSuitableFor reports whether this cluster already serves model.
func (c *Cluster) IsSuitableFor(model string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Model == model
}

// AssignLayers splits totalLayers across the cluster's backends. With the
// "even" strategy layers are divided as evenly as possible in backend
// order; any other strategy honors each Backend's pre-set numLayers.
func (c *Cluster) AssignLayers(totalLayers int) []LayerRange {
	backends := c.Backends()
	if len(backends) == 0 || totalLayers <= 0 {
		return nil
	}

	if c.Strategy != "even" {
		ranges := make([]LayerRange, 0, len(backends))
		next := 0
		for _, b := range backends {
			b.mu.RLock()
			n := b.numLayers
			b.mu.RUnlock()
			if n <= 0 {
				continue
			}
			ranges = append(ranges, LayerRange{Backend: b, FirstLayer: next, LastLayer: next + n - 1})
			next += n
		}
		return ranges
	}

	base := totalLayers / len(backends)
	remainder := totalLayers % len(backends)
	ranges := make([]LayerRange, 0, len(backends))
	next := 0
	for i, b := range backends {
		n := base
		if i < remainder {
			n++
		}
		if n == 0 {
			continue
		}
		ranges = append(ranges, LayerRange{Backend: b, FirstLayer: next, LastLayer: next + n - 1})
		next += n
	}
	return ranges
}
