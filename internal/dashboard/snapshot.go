// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dashboard serves the pull-based snapshot contract of spec.md §6
// and bridges EventBus events to the (out-of-scope) dashboard UI over a
// websocket. Only the contract is owned here — the UI itself is external.
package dashboard

import (
	"time"

	"github.com/AleutianAI/sollol/internal/cluster"
	"github.com/AleutianAI/sollol/internal/node"
	"github.com/AleutianAI/sollol/internal/router"
)

// HostStatus is one host's coarse health classification in a snapshot.
type HostStatus string

const (
	HostHealthy  HostStatus = "healthy"
	HostDegraded HostStatus = "degraded"
	HostOffline  HostStatus = "offline"
)

// degradedLatencyMS and degradedSuccessRate are the thresholds spec.md §6
// defines for a healthy-but-degraded host.
const (
	degradedLatencyMS   = 1000.0
	degradedSuccessRate = 0.9
)

// HostSnapshot is one Ollama node's row in the snapshot's hosts array.
type HostSnapshot struct {
	Host        string     `json:"host"`
	Status      HostStatus `json:"status"`
	LatencyMS   float64    `json:"latency_ms"`
	SuccessRate float64    `json:"success_rate"`
	Load        float64    `json:"load"`
	GPUMB       int        `json:"gpu_mb"`
}

// RPCHostSnapshot is one RPC-sharding cluster's row in the snapshot.
type RPCHostSnapshot struct {
	Name     string   `json:"name"`
	Model    string   `json:"model"`
	Healthy  bool     `json:"healthy"`
	Backends []string `json:"backends"`
}

// Alert is one entry in the snapshot's alerts array.
type Alert struct {
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Status summarizes fleet-wide health counts.
type Status struct {
	Healthy        bool `json:"healthy"`
	AvailableHosts int  `json:"available_hosts"`
	TotalHosts     int  `json:"total_hosts"`
}

// Performance summarizes fleet-wide aggregate performance.
type Performance struct {
	AvgLatencyMS     float64 `json:"avg_latency_ms"`
	AvgSuccessRate   float64 `json:"avg_success_rate"`
	TotalGPUMemoryMB int     `json:"total_gpu_memory_mb"`
}

// Routing summarizes what the router has learned so far.
type Routing struct {
	PatternsAvailable int `json:"patterns_available"`
	TaskTypesLearned  int `json:"task_types_learned"`
}

// Snapshot is the exact shape spec.md §6 defines for the dashboard
// contract. Refresh is strictly pull-based; Build computes a fresh one
// from live registry/memory state on every call.
type Snapshot struct {
	Status      Status            `json:"status"`
	Performance Performance       `json:"performance"`
	Hosts       []HostSnapshot    `json:"hosts"`
	RPCHosts    []RPCHostSnapshot `json:"rpc_hosts"`
	Alerts      []Alert           `json:"alerts"`
	Routing     Routing           `json:"routing"`
}

// NodeSource is the narrow registry view Build needs.
type NodeSource interface {
	All() []*node.Node
	GetHealthyNodes() []*node.Node
	AllClusters() []*cluster.Cluster
}

// Build computes a fresh Snapshot from live node and cluster state plus
// the router's performance memory. No internal timer is required; the
// caller decides how often to call Build (typically once per inbound
// GET /api/snapshot request).
func Build(src NodeSource, memory *router.Memory) Snapshot {
	all := src.All()
	healthy := src.GetHealthyNodes()

	hosts := make([]HostSnapshot, 0, len(all))
	var (
		totalLatency   float64
		totalSuccess   float64
		totalGPUMB     int
		alerts         []Alert
	)
	for _, n := range all {
		snap := n.Snapshot()
		successRate := 1.0
		if snap.Metrics.TotalRequests > 0 {
			successRate = 1.0 - float64(snap.Metrics.FailedRequests)/float64(snap.Metrics.TotalRequests)
		}

		status := HostOffline
		switch {
		case !snap.Metrics.IsHealthy:
			status = HostOffline
		case snap.Metrics.AvgLatencyMS > degradedLatencyMS || successRate < degradedSuccessRate:
			status = HostDegraded
		default:
			status = HostHealthy
		}

		if status == HostOffline {
			alerts = append(alerts, Alert{
				Severity:  "critical",
				Message:   "node " + snap.URL + " is offline: " + snap.Metrics.LastError,
				Timestamp: time.Now(),
			})
		} else if status == HostDegraded {
			alerts = append(alerts, Alert{
				Severity:  "warning",
				Message:   "node " + snap.URL + " is degraded",
				Timestamp: time.Now(),
			})
		}

		hosts = append(hosts, HostSnapshot{
			Host:        snap.URL,
			Status:      status,
			LatencyMS:   snap.Metrics.AvgLatencyMS,
			SuccessRate: successRate,
			Load:        snap.LoadScore,
			GPUMB:       snap.Capabilities.GPUMemoryMB,
		})

		totalLatency += snap.Metrics.AvgLatencyMS
		totalSuccess += successRate
		totalGPUMB += snap.Capabilities.GPUMemoryMB
	}

	avgLatency, avgSuccess := 0.0, 0.0
	if len(all) > 0 {
		avgLatency = totalLatency / float64(len(all))
		avgSuccess = totalSuccess / float64(len(all))
	}

	rpcHosts := make([]RPCHostSnapshot, 0)
	for _, c := range src.AllClusters() {
		backends := c.Backends()
		addrs := make([]string, len(backends))
		for i, b := range backends {
			addrs[i] = b.Addr()
		}
		rpcHosts = append(rpcHosts, RPCHostSnapshot{
			Name:     c.Name,
			Model:    c.Model,
			Healthy:  c.IsHealthy(),
			Backends: addrs,
		})
	}

	patterns, taskTypes := 0, 0
	if memory != nil {
		summary := memory.Summary()
		patterns = len(summary)
		seen := make(map[router.TaskType]struct{})
		for _, b := range summary {
			seen[b.TaskType] = struct{}{}
		}
		taskTypes = len(seen)
	}

	return Snapshot{
		Status: Status{
			Healthy:        len(healthy) > 0,
			AvailableHosts: len(healthy),
			TotalHosts:     len(all),
		},
		Performance: Performance{
			AvgLatencyMS:     avgLatency,
			AvgSuccessRate:   avgSuccess,
			TotalGPUMemoryMB: totalGPUMB,
		},
		Hosts:    hosts,
		RPCHosts: rpcHosts,
		Alerts:   alerts,
		Routing: Routing{
			PatternsAvailable: patterns,
			TaskTypesLearned:  taskTypes,
		},
	}
}
