// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hedge implements the HedgingExecutor (component G):
// race-to-first dispatch across the top-k scored nodes for a request,
// with adaptive k and loser cancellation.
package hedge

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/sollol/internal/orcherr"
)

var tracer = otel.Tracer("sollol.hedge")

// Task is one node-bound attempt at a request.
type Task struct {
	NodeURL string
	Run     func(ctx context.Context) (any, error)
}

// Outcome records what happened to one launched Task, for PerformanceMemory
// bookkeeping. Cancelled losers report Success=false but are excluded from
// failure-rate accounting by callers (spec.md §4.7).
type Outcome struct {
	NodeURL    string
	DurationMS float64
	Success    bool
	Cancelled  bool
}

// RaceResult is the winner's value plus every launched attempt's outcome.
type RaceResult struct {
	Value     any
	WinnerURL string
	Outcomes  []Outcome
}

// ChooseK picks the hedge width per spec.md §4.7's adaptive rule:
// default 1 (no hedge) when cluster load exceeds 70% or priority < 5;
// k=2 when priority >= 7 and cluster load < 50%; forceHedge always
// yields 2 regardless of load or priority.
func ChooseK(priority int, clusterLoad float64, forceHedge bool) int {
	if forceHedge {
		return 2
	}
	if clusterLoad > 0.70 || priority < 5 {
		return 1
	}
	if priority >= 7 && clusterLoad < 0.50 {
		return 2
	}
	return 1
}

// Race launches the first k tasks concurrently; once one succeeds the rest
// are cancelled, and Race returns after every launched task has reported
// back. tasks should already be ordered by
// preference (e.g. router score descending); k is clamped to len(tasks).
// If every launched task fails, Race returns the last error seen wrapped
// with "hedge.race" component context; orcherr.ErrUnreachable is not added.
func Race(ctx context.Context, tasks []Task, k int, totalTimeout time.Duration) (RaceResult, error) {
	_, span := tracer.Start(ctx, "hedge.race")
	defer span.End()

	if k > len(tasks) {
		k = len(tasks)
	}
	if k <= 0 {
		return RaceResult{}, orcherr.Wrap(orcherr.ErrNoCapacity, "hedge.race", "", "")
	}

	raceCtx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	type attemptResult struct {
		idx     int
		value   any
		err     error
		elapsed time.Duration
	}

	results := make(chan attemptResult, k)
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			value, err := tasks[i].Run(raceCtx)
			results <- attemptResult{idx: i, value: value, err: err, elapsed: time.Since(start)}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]Outcome, k)
	var winner *attemptResult
	var lastErr error

	for r := range results {
		durationMS := float64(r.elapsed.Milliseconds())

		if r.err == nil && winner == nil {
			r := r
			winner = &r
			outcomes[r.idx] = Outcome{NodeURL: tasks[r.idx].NodeURL, DurationMS: durationMS, Success: true}
			cancel()
			continue
		}

		if r.err != nil {
			lastErr = r.err
		}
		// Every non-winning attempt is tagged cancelled once a winner
		// exists, excluded from failure-rate counts regardless of
		// whether it happened to finish with an error (spec.md §4.7).
		outcomes[r.idx] = Outcome{
			NodeURL:    tasks[r.idx].NodeURL,
			DurationMS: durationMS,
			Success:    false,
			Cancelled:  winner != nil,
		}
	}

	if winner == nil {
		if lastErr == nil {
			lastErr = context.DeadlineExceeded
		}
		return RaceResult{Outcomes: outcomes}, orcherr.Wrap(lastErr, "hedge.race", "", "")
	}

	return RaceResult{Value: winner.value, WinnerURL: tasks[winner.idx].NodeURL, Outcomes: outcomes}, nil
}
