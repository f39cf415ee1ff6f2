// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executor implements the ParallelExecutor (component J): bounded
// fan-out of agent tasks across the node fleet, with pluggable merge
// strategies over the collected results.
package executor

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/sollol/internal/agent"
)

var tracer = otel.Tracer("sollol.executor")

// defaultPoolSize bounds concurrent in-flight tasks when the caller does
// not override it, per spec.md §4.10.
const defaultPoolSize = 10

// MergeStrategy selects how Run combines per-task results into one value.
type MergeStrategy string

const (
	MergeCollect MergeStrategy = "collect"
	MergeMerge   MergeStrategy = "merge"
	MergeVote    MergeStrategy = "vote"
	MergeBest    MergeStrategy = "best"
)

// Executor runs a batch of agent.Task values concurrently through a
// agent.Runtime and merges their results.
type Executor struct {
	Runtime  *agent.Runtime
	PoolSize int
}

// New constructs an Executor bound to rt, using the default pool size.
func New(rt *agent.Runtime) *Executor {
	return &Executor{Runtime: rt, PoolSize: defaultPoolSize}
}

// Stats reports the aggregate timing of one Run call.
type Stats struct {
	WallClockMS     float64
	TotalDurationMS float64
	SpeedupFactor   float64
	SucceededCount  int
	FailedCount     int
}

// Output is the full result of one Run call: every per-task agent.Result
// in submission order, the merged value (vote and best yield an empty map
// rather than nil when no result qualifies), and aggregate Stats.
type Output struct {
	Results []agent.Result
	Merged  any
	Stats   Stats
}

// Run launches every task concurrently, bounded to min(len(tasks),
// PoolSize) in flight at once, and merges the results per strategy. A
// per-task failure never cancels its peers; only ctx's own cancellation
// or deadline does. Run blocks until every task has either finished or
// been cancelled by ctx.
func (e *Executor) Run(ctx context.Context, tasks []agent.Task, strategy MergeStrategy) (Output, error) {
	ctx, span := tracer.Start(ctx, "executor.run", trace.WithAttributes(
		attribute.Int("executor.task_count", len(tasks)),
		attribute.String("executor.merge_strategy", string(strategy)),
	))
	defer span.End()

	poolSize := e.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	if poolSize > len(tasks) {
		poolSize = len(tasks)
	}

	results := make([]agent.Result, len(tasks))
	start := time.Now()

	g, gCtx := errgroup.WithContext(ctx)
	if poolSize > 0 {
		g.SetLimit(poolSize)
	}

	var mu sync.Mutex
	var totalDurationMS float64

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			result := e.Runtime.Execute(gCtx, task)
			results[i] = result
			mu.Lock()
			totalDurationMS += result.DurationMS
			mu.Unlock()
			return nil
		})
	}
	// Per-task errors are captured in each Result, not propagated through
	// errgroup — a failing task must never cancel its peers.
	_ = g.Wait()

	wallClock := time.Since(start)

	stats := Stats{
		WallClockMS:     float64(wallClock.Milliseconds()),
		TotalDurationMS: totalDurationMS,
	}
	if stats.WallClockMS > 0 {
		stats.SpeedupFactor = totalDurationMS / stats.WallClockMS
	}
	for _, r := range results {
		if r.Status == agent.StatusSuccess {
			stats.SucceededCount++
		} else {
			stats.FailedCount++
		}
	}

	merged := merge(results, strategy)

	return Output{Results: results, Merged: merged, Stats: stats}, nil
}
