// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package router

import (
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/sollol/internal/node"
	"github.com/AleutianAI/sollol/internal/orcherr"
)

// Scoring weights, fixed as named constants per spec.md §4.5 and §9 Open
// Question 1 (several variants exist in the source material; these are
// the weights this repository treats as canonical).
const (
	baseScore             = 50.0
	capabilityMatchBonus  = 25.0
	successRateWeight     = 20.0
	successRateClamp      = 10.0
	latencyPenaltyDivisor = 50.0
	latencyPenaltyClamp   = 20.0
	cpuLoadWeight         = 20.0
	priorityWeight        = 2.0

	historicalSampleFloor = 5
)

// Decision is the router's output for one selection (spec.md's
// RoutingDecision).
type Decision struct {
	ChosenURL     string
	Score         float64
	Reasoning     string
	Timestamp     time.Time
	FallbackNodes []string
}

// Select scores every healthy host in hosts against ctx and returns the
// chosen node plus an ordered fallback list. It never returns an
// unavailable host; if no host is available it returns an error wrapping
// orcherr.ErrNoCapacity (spec.md's routing-safety invariant).
func Select(ctx Context, hosts []node.Snapshot, memory *Memory) (Decision, error) {
	healthy := make([]node.Snapshot, 0, len(hosts))
	for _, h := range hosts {
		if h.Metrics.IsHealthy {
			healthy = append(healthy, h)
		}
	}
	if len(healthy) == 0 {
		return Decision{}, orcherr.Wrap(orcherr.ErrNoCapacity, "router.select", "", "")
	}

	avgPriority := averagePriority(healthy)

	type scored struct {
		snap   node.Snapshot
		score  float64
		reason string
	}
	results := make([]scored, 0, len(healthy))
	for _, h := range healthy {
		s, reason := scoreHost(ctx, h, avgPriority, memory)
		results = append(results, scored{snap: h, score: s, reason: reason})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		if results[i].snap.Priority != results[j].snap.Priority {
			return results[i].snap.Priority > results[j].snap.Priority
		}
		return results[i].snap.URL < results[j].snap.URL
	})

	fallbacks := make([]string, 0, len(results)-1)
	for _, r := range results[1:] {
		fallbacks = append(fallbacks, r.snap.URL)
	}

	return Decision{
		ChosenURL:     results[0].snap.URL,
		Score:         results[0].score,
		Reasoning:     results[0].reason,
		Timestamp:     time.Now(),
		FallbackNodes: fallbacks,
	}, nil
}

func averagePriority(hosts []node.Snapshot) float64 {
	if len(hosts) == 0 {
		return 0
	}
	total := 0
	for _, h := range hosts {
		total += h.Priority
	}
	return float64(total) / float64(len(hosts))
}

func scoreHost(ctx Context, h node.Snapshot, avgPriority float64, memory *Memory) (float64, string) {
	score := baseScore
	reason := "base=50"

	if ctx.RequiresGPU {
		if h.Capabilities.HasGPU {
			score += capabilityMatchBonus
			reason += "; +25 gpu match"
		} else {
			score -= capabilityMatchBonus
			reason += "; -25 no gpu"
		}
	}

	successRate := 1.0
	if h.Metrics.TotalRequests > 0 {
		successRate = float64(h.Metrics.TotalRequests-h.Metrics.FailedRequests) / float64(h.Metrics.TotalRequests)
	}
	successDelta := clamp(successRateWeight*(successRate-0.5), -successRateClamp, successRateClamp)
	score += successDelta
	reason += "; success_rate_delta=" + formatFloat(successDelta)

	latencyMS := h.Metrics.AvgLatencyMS
	usedHistorical := false
	if memory != nil {
		q := memory.Query(h.URL, ctx.TaskType, ctx.ModelPreference)
		if !q.Insufficient && q.Count >= historicalSampleFloor {
			latencyMS = q.P50MS
			usedHistorical = true
		}
	}
	latencyPenalty := clamp(latencyMS/latencyPenaltyDivisor, 0, latencyPenaltyClamp)
	score -= latencyPenalty
	if usedHistorical {
		reason += "; historical_p50_penalty=" + formatFloat(latencyPenalty)
	} else {
		reason += "; latency_penalty=" + formatFloat(latencyPenalty)
	}

	cpuPenalty := cpuLoadWeight * h.LoadScore
	score -= cpuPenalty
	reason += "; cpu_load_penalty=" + formatFloat(cpuPenalty)

	priorityBonus := priorityWeight * (float64(h.Priority) - avgPriority)
	score += priorityBonus
	reason += "; priority_bonus=" + formatFloat(priorityBonus)

	return score, reason
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.1f", f)
}
