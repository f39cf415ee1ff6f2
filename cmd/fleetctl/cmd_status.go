// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/sollol/internal/dashboard"
)

// fetchSnapshot returns a live dashboard.Snapshot, either by querying a
// running orchestrator's dashboard server (--server) or by building one
// from the CLI's own local fleet state. A local build has no router
// memory to draw on, since each fleetctl invocation is a fresh process,
// so its routing counts are always zero; --server is what a long-running
// orchestrator is for.
func fetchSnapshot(cmd *cobra.Command) (dashboard.Snapshot, error) {
	if serverAddr != "" {
		return fetchRemoteSnapshot(serverAddr)
	}

	ctx := cmd.Context()
	reg, err := loadFleet(ctx)
	if err != nil {
		return dashboard.Snapshot{}, err
	}
	reg.HealthCheckAll(ctx, cliHealthTimeout)
	return dashboard.Build(reg, nil), nil
}

func fetchRemoteSnapshot(base string) (dashboard.Snapshot, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(base + "/api/snapshot")
	if err != nil {
		return dashboard.Snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return dashboard.Snapshot{}, fmt.Errorf("dashboard server returned %s", resp.Status)
	}
	var snap dashboard.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return dashboard.Snapshot{}, err
	}
	return snap, nil
}

func runStatusCommand(cmd *cobra.Command, args []string) error {
	snap, err := fetchSnapshot(cmd)
	if err != nil {
		return newExitError(exitUserError, err)
	}
	fmt.Printf("healthy=%v available=%d/%d avg_latency_ms=%.1f avg_success_rate=%.3f\n",
		snap.Status.Healthy, snap.Status.AvailableHosts, snap.Status.TotalHosts,
		snap.Performance.AvgLatencyMS, snap.Performance.AvgSuccessRate)
	if !snap.Status.Healthy {
		return newExitError(exitNoCapacity, fmt.Errorf("no healthy backend"))
	}
	return nil
}

func runMetricsCommand(cmd *cobra.Command, args []string) error {
	snap, err := fetchSnapshot(cmd)
	if err != nil {
		return newExitError(exitUserError, err)
	}
	fmt.Printf("patterns_available=%d task_types_learned=%d total_gpu_memory_mb=%d\n",
		snap.Routing.PatternsAvailable, snap.Routing.TaskTypesLearned, snap.Performance.TotalGPUMemoryMB)
	for _, h := range snap.Hosts {
		fmt.Printf("  %-32s status=%-8s latency_ms=%.1f success_rate=%.3f load=%.2f gpu_mb=%d\n",
			h.Host, h.Status, h.LatencyMS, h.SuccessRate, h.Load, h.GPUMB)
	}
	return nil
}

func runBenchmarkCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := loadFleet(ctx)
	if err != nil {
		return newExitError(exitUserError, err)
	}

	nodes := reg.All()
	if len(nodes) == 0 {
		return newExitError(exitNoCapacity, fmt.Errorf("no configured nodes"))
	}
	for _, n := range nodes {
		start := time.Now()
		ok := n.ProbeHealth(ctx, cliHealthTimeout)
		elapsed := time.Since(start)
		fmt.Printf("%-32s healthy=%v probe_time=%s\n", n.Snapshot().URL, ok, elapsed)
	}
	return nil
}

func runDashboardCommand(cmd *cobra.Command, args []string) error {
	snap, err := fetchSnapshot(cmd)
	if err != nil {
		return newExitError(exitUserError, err)
	}
	enc := json.NewEncoder(os.Stdout)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(snap)
}
