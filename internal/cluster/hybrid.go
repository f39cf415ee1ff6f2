// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cluster

import (
	"regexp"
	"strings"
	"sync"

	"github.com/AleutianAI/sollol/internal/node"
	"github.com/AleutianAI/sollol/internal/orcherr"
)

// ModelProfile describes a model's resource requirements for the
// Ollama-vs-RPC decision.
type ModelProfile struct {
	Name                string
	ParameterBillions   int
	EstimatedMemoryGB   float64
	RequiresDistributed bool
	NumLayers           int
}

// modelProfiles is the built-in lookup table ported from the reference
// implementation's MODEL_PROFILES; unlisted tags fall back to
// estimateProfile.
var modelProfiles = map[string]ModelProfile{
	"llama3.2":       {"llama3.2", 3, 2.5, false, 32},
	"llama3.2:3b":    {"llama3.2:3b", 3, 2.5, false, 32},
	"phi":            {"phi", 3, 1.5, false, 32},
	"phi3":           {"phi3", 4, 2.0, false, 32},
	"gemma:7b":       {"gemma:7b", 7, 5.0, false, 28},
	"llama3:8b":      {"llama3:8b", 8, 6.0, false, 32},
	"llama3.1:8b":    {"llama3.1:8b", 8, 6.0, false, 32},
	"mistral:7b":     {"mistral:7b", 7, 5.0, false, 32},
	"llama2:7b":      {"llama2:7b", 7, 5.0, false, 32},
	"llama2:13b":     {"llama2:13b", 13, 9.0, false, 40},
	"llama2:70b":     {"llama2:70b", 70, 40.0, true, 80},
	"llama3:70b":     {"llama3:70b", 70, 40.0, true, 80},
	"llama3.1:70b":   {"llama3.1:70b", 70, 40.0, true, 80},
	"mixtral:8x7b":   {"mixtral:8x7b", 47, 26.0, true, 32},
	"qwen2.5:72b":    {"qwen2.5:72b", 72, 42.0, true, 80},
	"llama3.1:405b": {"llama3.1:405b", 405, 230.0, true, 126},
	"mixtral:8x22b": {"mixtral:8x22b", 141, 80.0, true, 56},
}

var paramSuffix = regexp.MustCompile(`(\d+)b`)

// getModelProfile looks model up directly, then by its base name (tag
// stripped), then falls back to estimateProfile.
func getModelProfile(model string) ModelProfile {
	key := strings.ToLower(strings.TrimSpace(model))
	if p, ok := modelProfiles[key]; ok {
		return p
	}
	if base, _, found := strings.Cut(key, ":"); found {
		if p, ok := modelProfiles[base]; ok {
			return p
		}
	}
	return estimateProfile(key)
}

// estimateProfile parses a parameter count out of the model tag; 8B is
// the fallback when nothing can be parsed (spec.md §4.8).
func estimateProfile(model string) ModelProfile {
	params := 8
	if m := paramSuffix.FindStringSubmatch(model); len(m) == 2 {
		n := 0
		for _, c := range m[1] {
			n = n*10 + int(c-'0')
		}
		params = n
	}
	layers := params
	if layers < 32 {
		layers = 32
	}
	return ModelProfile{
		Name:                model,
		ParameterBillions:   params,
		EstimatedMemoryGB:   float64(params) * 0.6,
		RequiresDistributed: params > 70,
		NumLayers:           layers,
	}
}

// Decision is the HybridRouter's output: which backend family should
// serve this model, and why.
type Decision struct {
	UseDistributed bool
	Reason         string
	Cluster        *Cluster // set when UseDistributed is true and a match exists
}

// HybridRouter decides between the Ollama node pool and an RPC-sharded
// Cluster for each model, per spec.md §4.8's parameter-count thresholds.
type HybridRouter struct {
	mu       sync.RWMutex
	clusters map[string]*Cluster
}

// NewHybridRouter constructs a router with no clusters registered yet.
func NewHybridRouter() *HybridRouter {
	return &HybridRouter{clusters: make(map[string]*Cluster)}
}

// RegisterCluster makes c available for models it serves.
func (h *HybridRouter) RegisterCluster(c *Cluster) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clusters[c.Name] = c
}

// Decide chooses Ollama vs. RPC for model, given the healthy Ollama
// nodes currently available (used to check whether any single node's
// GPU memory covers the medium-tier model's estimated requirement).
func (h *HybridRouter) Decide(model string, healthyNodes []node.Snapshot) (Decision, error) {
	profile := getModelProfile(model)

	switch {
	case profile.ParameterBillions <= 13:
		return Decision{UseDistributed: false, Reason: "small model, ollama pool"}, nil

	case profile.ParameterBillions <= 70:
		requiredMB := profile.EstimatedMemoryGB * 1024
		for _, n := range healthyNodes {
			if n.Capabilities.HasGPU && float64(n.Capabilities.GPUMemoryMB) >= requiredMB {
				return Decision{UseDistributed: false, Reason: "medium model, gpu memory sufficient on a single node"}, nil
			}
		}
		c := h.clusterFor(model)
		if c == nil {
			return Decision{}, orcherr.Wrap(orcherr.ErrNoCapacity, "cluster.hybrid_router", "", "")
		}
		return Decision{UseDistributed: true, Reason: "medium model, no single node has sufficient gpu memory", Cluster: c}, nil

	default:
		c := h.clusterFor(model)
		if c == nil {
			return Decision{}, orcherr.Wrap(orcherr.ErrNoCapacity, "cluster.hybrid_router", "", "")
		}
		return Decision{UseDistributed: true, Reason: "large model, distributed required", Cluster: c}, nil
	}
}

func (h *HybridRouter) clusterFor(model string) *Cluster {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clusters {
		if c.IsSuitableFor(model) && c.IsHealthy() {
			return c
		}
	}
	return nil
}
