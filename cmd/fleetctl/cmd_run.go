// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/sollol/internal/agent"
	"github.com/AleutianAI/sollol/internal/executor"
	"github.com/AleutianAI/sollol/internal/node"
	"github.com/AleutianAI/sollol/internal/registry"
	"github.com/AleutianAI/sollol/internal/router"
	"github.com/AleutianAI/sollol/internal/workflow"
)

var runModel string

func init() {
	runCmd.Flags().StringVar(&runModel, "model", "llama3.2:3b", "model tag to run the query against")
}

func runRunCommand(cmd *cobra.Command, args []string) error {
	query := args[0]

	s, err := loadSession()
	if err != nil {
		return newExitError(exitUserError, err)
	}

	ctx := cmd.Context()
	reg, err := loadFleet(ctx)
	if err != nil {
		return newExitError(exitUserError, err)
	}
	reg.HealthCheckAll(ctx, cliHealthTimeout)
	if len(reg.GetHealthyNodes()) == 0 {
		return newExitError(exitNoCapacity, fmt.Errorf("no healthy backend"))
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.TimeoutSecs)*time.Second)
	defer cancel()

	memory := router.NewMemory()
	rt := agent.New(agentRegistry(reg, s.Strategy), memory)

	if s.Collab {
		wf := workflow.New(rt, runModel)
		wf.Quality.Threshold = s.Quality
		wf.Quality.MaxRetries = s.QRetries
		doc, err := wf.Run(ctx, query, s.Refine)
		if err != nil {
			return newExitError(exitUserError, err)
		}
		return printJSON(doc)
	}

	task := agent.NewTask(agent.Storyteller, 0, query, runModel)
	out, err := runStrategy(ctx, rt, task, s.Strategy)
	if err != nil {
		return newExitError(exitUserError, err)
	}
	return printJSON(out)
}

// agentRegistry narrows reg to the agent.NodeRegistry shape,
// restricting candidates to GPU-capable nodes when strategy is "gpu".
func agentRegistry(reg *registry.Registry, strategy string) agent.NodeRegistry {
	if strategy != "gpu" {
		return reg
	}
	return &gpuOnlyRegistry{reg: reg}
}

type gpuOnlyRegistry struct {
	reg *registry.Registry
}

func (g *gpuOnlyRegistry) GetHealthyNodes() []*node.Node { return g.reg.GetGPUNodes() }
func (g *gpuOnlyRegistry) GetNodeByURL(url string) *node.Node {
	return g.reg.GetNodeByURL(url)
}

// runStrategy dispatches a non-collaborative run per the CLI's strategy
// setting: single/auto/gpu run one task; parallel/multi fan the same
// query out across up to three nodes and merge, exercising
// internal/executor's ParallelExecutor.
func runStrategy(ctx context.Context, rt *agent.Runtime, task agent.Task, strategy string) (any, error) {
	switch strategy {
	case "parallel", "multi":
		const fanOut = 3
		tasks := make([]agent.Task, fanOut)
		for i := range tasks {
			t := task
			t.TaskID = fmt.Sprintf("%s_%d", task.TaskID, i)
			tasks[i] = t
		}
		merge := executor.MergeCollect
		if strategy == "multi" {
			merge = executor.MergeVote
		}
		ex := executor.New(rt)
		return ex.Run(ctx, tasks, merge)
	default:
		return rt.Execute(ctx, task), nil
	}
}

// printJSON pretty-prints to an interactive terminal and emits compact,
// pipe-friendly JSON otherwise.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
