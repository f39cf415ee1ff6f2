// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const cliHealthTimeout = 3 * time.Second

func runNodesCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := loadFleet(ctx)
	if err != nil {
		return newExitError(exitUserError, err)
	}
	reg.HealthCheckAll(ctx, cliHealthTimeout)

	for _, n := range reg.All() {
		snap := n.Snapshot()
		status := "offline"
		if snap.Metrics.IsHealthy {
			status = "healthy"
		}
		fmt.Printf("%-32s %-16s priority=%d status=%s latency_ms=%.1f\n",
			snap.URL, snap.Name, snap.Priority, status, snap.Metrics.AvgLatencyMS)
	}
	return nil
}

func runAddCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := loadFleet(ctx)
	if err != nil {
		return newExitError(exitUserError, err)
	}
	if _, err := reg.AddNode(ctx, args[0], "", 0, 0); err != nil {
		return newExitError(exitUserError, err)
	}
	path, err := resolvedNodesPath()
	if err != nil {
		return newExitError(exitUserError, err)
	}
	if err := reg.SaveConfig(path); err != nil {
		return newExitError(exitUserError, err)
	}
	fmt.Println("added", args[0])
	return nil
}

func runRemoveCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := loadFleet(ctx)
	if err != nil {
		return newExitError(exitUserError, err)
	}
	if !reg.RemoveNode(args[0]) {
		return newExitError(exitUserError, fmt.Errorf("no such node: %s", args[0]))
	}
	path, err := resolvedNodesPath()
	if err != nil {
		return newExitError(exitUserError, err)
	}
	if err := reg.SaveConfig(path); err != nil {
		return newExitError(exitUserError, err)
	}
	fmt.Println("removed", args[0])
	return nil
}

func runDiscoverCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := loadFleet(ctx)
	if err != nil {
		return newExitError(exitUserError, err)
	}

	cidr := "192.168.1.0/24"
	if len(args) > 0 {
		cidr = args[0]
	}

	found, err := reg.Discover(ctx, cidr, 11434, cliHealthTimeout)
	if err != nil {
		return newExitError(exitUserError, err)
	}
	for _, n := range found {
		fmt.Println("discovered", n.Snapshot().URL)
	}

	path, err := resolvedNodesPath()
	if err != nil {
		return newExitError(exitUserError, err)
	}
	return reg.SaveConfig(path)
}

func runHealthCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := loadFleet(ctx)
	if err != nil {
		return newExitError(exitUserError, err)
	}

	results := reg.HealthCheckAll(ctx, cliHealthTimeout)
	healthyCount := 0
	for url, healthy := range results {
		status := "unhealthy"
		if healthy {
			status = "healthy"
			healthyCount++
		}
		fmt.Printf("%-32s %s\n", url, status)
	}
	if healthyCount == 0 && len(results) > 0 {
		return newExitError(exitNoCapacity, fmt.Errorf("no healthy backend among %d configured nodes", len(results)))
	}
	return nil
}

func runSaveCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := loadFleet(ctx)
	if err != nil {
		return newExitError(exitUserError, err)
	}
	if err := reg.SaveConfig(args[0]); err != nil {
		return newExitError(exitUserError, err)
	}
	fmt.Println("saved", reg.Len(), "nodes to", args[0])
	return nil
}

func runLoadCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if _, err := os.Stat(args[0]); err != nil {
		return newExitError(exitUserError, err)
	}

	reg, err := loadFleet(ctx)
	if err != nil {
		return newExitError(exitUserError, err)
	}
	loadErrs, err := reg.LoadConfig(ctx, args[0])
	if err != nil {
		return newExitError(exitUserError, err)
	}
	for _, e := range loadErrs {
		fmt.Fprintln(os.Stderr, "warning:", e)
	}

	path, err := resolvedNodesPath()
	if err != nil {
		return newExitError(exitUserError, err)
	}
	if err := reg.SaveConfig(path); err != nil {
		return newExitError(exitUserError, err)
	}
	fmt.Println("loaded", reg.Len(), "nodes from", args[0])
	return nil
}

