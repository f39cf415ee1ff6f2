// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Flags ---
var (
	nodesFile  string
	serverAddr string
)

var rootCmd = &cobra.Command{
	Use:           "fleetctl",
	Short:         "Operate and query a sollol inference fleet",
	Long:          `fleetctl is the operator CLI for a sollol distributed inference orchestrator: add and discover nodes, run one-shot queries, and inspect fleet health.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Run a one-shot query through the collaborative workflow or a single agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunCommand, // Defined in cmd_run.go
}

var modeCmd = &cobra.Command{
	Use:   "mode [standard|distributed]",
	Short: "Get or set the stored execution mode (kept in the session; run does not read it)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModeCommand, // Defined in cmd_session.go
}

var strategyCmd = &cobra.Command{
	Use:   "strategy [auto|single|parallel|multi|gpu]",
	Short: "Get or set the routing strategy for subsequent run commands",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStrategyCommand, // Defined in cmd_session.go
}

var collabCmd = &cobra.Command{
	Use:   "collab [on|off]",
	Short: "Get or set whether run uses the collaborative workflow",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCollabCommand, // Defined in cmd_session.go
}

var refineCmd = &cobra.Command{
	Use:   "refine [n]",
	Short: "Get or set the number of extra refinement rounds",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRefineCommand, // Defined in cmd_session.go
}

var timeoutCmd = &cobra.Command{
	Use:   "timeout [seconds]",
	Short: "Get or set the per-run timeout in seconds",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTimeoutCommand, // Defined in cmd_session.go
}

var astCmd = &cobra.Command{
	Use:   "ast [on|off]",
	Short: "Get or set the stored AST flag (kept in the session; run does not read it)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runASTCommand, // Defined in cmd_session.go
}

var qualityCmd = &cobra.Command{
	Use:   "quality [0..1]",
	Short: "Get or set the editor quality threshold",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runQualityCommand, // Defined in cmd_session.go
}

var qretriesCmd = &cobra.Command{
	Use:   "qretries [n]",
	Short: "Get or set the editor quality retry budget",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runQRetriesCommand, // Defined in cmd_session.go
}

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List configured nodes and their last-known status",
	RunE:  runNodesCommand, // Defined in cmd_nodes.go
}

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add a node to the fleet",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddCommand, // Defined in cmd_nodes.go
}

var removeCmd = &cobra.Command{
	Use:   "remove <url>",
	Short: "Remove a node from the fleet",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoveCommand, // Defined in cmd_nodes.go
}

var discoverCmd = &cobra.Command{
	Use:   "discover [cidr]",
	Short: "Discover Ollama-compatible nodes on a subnet",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDiscoverCommand, // Defined in cmd_nodes.go
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Health-check every configured node",
	RunE:  runHealthCommand, // Defined in cmd_nodes.go
}

var saveCmd = &cobra.Command{
	Use:   "save <file>",
	Short: "Save the current node list to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSaveCommand, // Defined in cmd_nodes.go
}

var loadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load a node list from a file, merging into the current fleet",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoadCommand, // Defined in cmd_nodes.go
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the fleet's current dashboard snapshot (status + performance)",
	RunE:  runStatusCommand, // Defined in cmd_status.go
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print the fleet's router performance-memory summary",
	RunE:  runMetricsCommand, // Defined in cmd_status.go
}

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Probe every node's health-check latency",
	RunE:  runBenchmarkCommand, // Defined in cmd_status.go
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Print the full dashboard snapshot contract as JSON",
	RunE:  runDashboardCommand, // Defined in cmd_status.go
}

var exitCmd = &cobra.Command{
	Use:   "exit",
	Short: "No-op, present for parity with the interactive command surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&nodesFile, "nodes-file", "", "path to the persisted node list (default ~/.sollol/nodes.json)")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "base URL of a running orchestrator's dashboard server, e.g. http://localhost:11434 (status/metrics/dashboard query it over HTTP instead of building a local snapshot)")

	rootCmd.AddCommand(
		runCmd,
		modeCmd,
		strategyCmd,
		collabCmd,
		refineCmd,
		timeoutCmd,
		astCmd,
		qualityCmd,
		qretriesCmd,
		nodesCmd,
		addCmd,
		removeCmd,
		discoverCmd,
		healthCmd,
		saveCmd,
		loadCmd,
		statusCmd,
		metricsCmd,
		benchmarkCmd,
		dashboardCmd,
		exitCmd,
	)
}
