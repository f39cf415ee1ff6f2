// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/sollol/internal/hedge"
	"github.com/AleutianAI/sollol/internal/node"
	"github.com/AleutianAI/sollol/internal/orcherr"
	"github.com/AleutianAI/sollol/internal/router"
)

var tracer = otel.Tracer("sollol.agent")

// NodeRegistry is the narrow view of internal/registry.Registry the
// runtime needs: enough to score candidate hosts without importing the
// registry package directly.
type NodeRegistry interface {
	GetHealthyNodes() []*node.Node
	GetNodeByURL(url string) *node.Node
}

// EventPublisher is the narrow publish surface the runtime emits
// agent_start/agent_finish events to, matching the same shape
// internal/cluster and internal/registry already depend on.
type EventPublisher interface {
	Publish(topic string, payload any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

// Runtime executes Tasks against the node fleet: it routes each task to a
// scored node, issues the generate call, extracts and validates JSON
// output, repairs it against the role's schema when needed, and records
// the outcome back into the registry and performance memory.
type Runtime struct {
	Registry  NodeRegistry
	Memory    *router.Memory
	Publisher EventPublisher
}

// New constructs a Runtime against the given registry and performance
// memory. A nil memory still functions; TokensPerSecond estimates simply
// fall back to the router's static defaults.
func New(registry NodeRegistry, memory *router.Memory) *Runtime {
	return &Runtime{Registry: registry, Memory: memory, Publisher: nopPublisher{}}
}

// Execute routes and runs a single task, returning a wrapped Result per
// spec.md §4.9's {agent, status, format, data} output contract. Execute
// never returns an error itself; failures are reported via Result.Status
// and Result.Err so callers fanning out many tasks can collect every
// outcome uniformly.
func (rt *Runtime) Execute(ctx context.Context, task Task) Result {
	ctx, span := tracer.Start(ctx, "agent.execute", trace.WithAttributes(
		attribute.String("agent.role", task.Role.Name),
		attribute.String("agent.task_id", task.TaskID),
		attribute.String("agent.model", task.Model),
	))
	defer span.End()

	rt.publish(EventAgentStart(task))

	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	n, decision, err := rt.selectNode(ctx, task)
	if err != nil {
		span.RecordError(err)
		result := Result{Agent: task.Role.Name, TaskID: task.TaskID, Status: StatusError, Err: err}
		rt.publish(eventAgentFinish(task, result))
		return result
	}
	span.SetAttributes(attribute.String("agent.node_url", n.Snapshot().URL))
	_ = decision

	gen := n.Generate(ctx, task.Model, task.Role.PromptFn(task.Prompt), task.Role.SystemPrompt, "json")
	n.RecordOutcome(gen.DurationMS, gen.Success)
	if rt.Memory != nil {
		rt.Memory.Record(n.Snapshot().URL, classifyTaskType(task), task.Model, gen.DurationMS, gen.Success)
	}

	result := Result{
		Agent:      task.Role.Name,
		TaskID:     task.TaskID,
		NodeURL:    n.Snapshot().URL,
		DurationMS: gen.DurationMS,
	}

	if !gen.Success {
		result.Status = StatusError
		result.Err = orcherr.Wrap(gen.Err, "agent.execute", n.Snapshot().URL, task.TaskID)
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
		rt.publish(eventAgentFinish(task, result))
		return result
	}

	data, ok := extractJSON(gen.Response)
	if !ok {
		result.Status = StatusSuccess
		result.Format = FormatText
		result.RawText = gen.Response
		span.SetStatus(codes.Ok, "")
		rt.publish(eventAgentFinish(task, result))
		return result
	}

	if err := task.Role.Schema.Validate(data); err != nil {
		repairFn := func(ctx context.Context, prompt string) (string, error) {
			patchGen := n.Generate(ctx, task.Model, prompt, "", "")
			if !patchGen.Success {
				return "", patchGen.Err
			}
			return patchGen.Response, nil
		}
		repaired, repairErr := repairAgainstSchema(ctx, task.Role.Schema, data, repairFn)
		if repairErr == nil {
			data = repaired
		}
	}

	result.Status = StatusSuccess
	result.Format = FormatJSON
	result.Data = data
	span.SetStatus(codes.Ok, "")
	rt.publish(eventAgentFinish(task, result))
	return result
}

// selectNode scores the current healthy fleet via internal/router and
// resolves the chosen URL back to a *node.Node. Every call routes fresh;
// no node is pinned across calls.
func (rt *Runtime) selectNode(ctx context.Context, task Task) (*node.Node, router.Decision, error) {
	_, span := tracer.Start(ctx, "agent.select_node")
	defer span.End()

	healthy := rt.Registry.GetHealthyNodes()
	snapshots := make([]node.Snapshot, len(healthy))
	for i, n := range healthy {
		snapshots[i] = n.Snapshot()
	}

	var estimator router.ThroughputEstimator
	if rt.Memory != nil {
		estimator = rt.Memory
	}
	priority := task.Priority
	if priority == 0 {
		priority = defaultPriority
	}
	routerCtx := router.Analyze(router.RequestPayload{
		Model:  task.Model,
		Prompt: task.Prompt,
		System: task.Role.SystemPrompt,
	}, priority, estimator)

	decision, err := router.Select(routerCtx, snapshots, rt.Memory)
	if err != nil {
		return nil, router.Decision{}, err
	}

	n := rt.Registry.GetNodeByURL(decision.ChosenURL)
	if n == nil {
		return nil, router.Decision{}, orcherr.Wrap(orcherr.ErrNoCapacity, "agent.select_node", decision.ChosenURL, task.TaskID)
	}
	return n, decision, nil
}

const defaultPriority = 5

// ExecuteHedged behaves like Execute but, per spec.md §4.7, races the
// request across the top-k scored nodes via hedge.Race, which cancels the
// rest once one succeeds. k is chosen by hedge.ChooseK from the
// task's priority and the caller-supplied clusterLoad unless forceHedge
// is set. Only non-cancelled attempts produce a PerformanceRecord; a
// cancelled loser is not recorded at all, so it never counts against a
// node's failure rate.
func (rt *Runtime) ExecuteHedged(ctx context.Context, task Task, clusterLoad float64, forceHedge bool) Result {
	ctx, span := tracer.Start(ctx, "agent.execute_hedged", trace.WithAttributes(
		attribute.String("agent.role", task.Role.Name),
		attribute.String("agent.task_id", task.TaskID),
	))
	defer span.End()

	rt.publish(EventAgentStart(task))

	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	_, decision, err := rt.selectNode(ctx, task)
	if err != nil {
		span.RecordError(err)
		result := Result{Agent: task.Role.Name, TaskID: task.TaskID, Status: StatusError, Err: err}
		rt.publish(eventAgentFinish(task, result))
		return result
	}

	priority := task.Priority
	if priority == 0 {
		priority = defaultPriority
	}
	k := hedge.ChooseK(priority, clusterLoad, forceHedge)

	candidateURLs := append([]string{decision.ChosenURL}, decision.FallbackNodes...)
	if k > len(candidateURLs) {
		k = len(candidateURLs)
	}
	candidateURLs = candidateURLs[:k]

	taskType := classifyTaskType(task)
	candidateNodes := make([]*node.Node, 0, len(candidateURLs))
	hedgeTasks := make([]hedge.Task, 0, len(candidateURLs))
	for _, url := range candidateURLs {
		url := url
		n := rt.Registry.GetNodeByURL(url)
		if n == nil {
			continue
		}
		candidateNodes = append(candidateNodes, n)
		hedgeTasks = append(hedgeTasks, hedge.Task{
			NodeURL: url,
			Run: func(ctx context.Context) (any, error) {
				gen := n.Generate(ctx, task.Model, task.Role.PromptFn(task.Prompt), task.Role.SystemPrompt, "json")
				if !gen.Success {
					return nil, gen.Err
				}
				return gen, nil
			},
		})
	}

	raceResult, err := hedge.Race(ctx, hedgeTasks, k, task.Timeout)

	// Record each non-cancelled attempt's outcome exactly once. Cancelled
	// losers produce no record at all, so they never count as a failed
	// request in node/memory accounting.
	for i, outcome := range raceResult.Outcomes {
		if outcome.Cancelled || i >= len(candidateNodes) {
			continue
		}
		candidateNodes[i].RecordOutcome(outcome.DurationMS, outcome.Success)
		if rt.Memory != nil {
			rt.Memory.Record(outcome.NodeURL, taskType, task.Model, outcome.DurationMS, outcome.Success)
		}
	}

	if err != nil {
		span.RecordError(err)
		result := Result{Agent: task.Role.Name, TaskID: task.TaskID, Status: StatusError, Err: orcherr.Wrap(err, "agent.execute_hedged", "", task.TaskID)}
		rt.publish(eventAgentFinish(task, result))
		return result
	}

	gen, _ := raceResult.Value.(node.GenerateResult)
	result := Result{
		Agent:      task.Role.Name,
		TaskID:     task.TaskID,
		NodeURL:    raceResult.WinnerURL,
		DurationMS: gen.DurationMS,
		Status:     StatusSuccess,
	}

	data, ok := extractJSON(gen.Response)
	if !ok {
		result.Format = FormatText
		result.RawText = gen.Response
		span.SetStatus(codes.Ok, "")
		rt.publish(eventAgentFinish(task, result))
		return result
	}

	if err := task.Role.Schema.Validate(data); err != nil {
		if winner := rt.Registry.GetNodeByURL(raceResult.WinnerURL); winner != nil {
			repairFn := func(ctx context.Context, prompt string) (string, error) {
				patchGen := winner.Generate(ctx, task.Model, prompt, "", "")
				if !patchGen.Success {
					return "", patchGen.Err
				}
				return patchGen.Response, nil
			}
			if repaired, repairErr := repairAgainstSchema(ctx, task.Role.Schema, data, repairFn); repairErr == nil {
				data = repaired
			}
		}
	}

	result.Format = FormatJSON
	result.Data = data
	span.SetStatus(codes.Ok, "")
	rt.publish(eventAgentFinish(task, result))
	return result
}

func classifyTaskType(task Task) router.TaskType {
	switch task.Role.Name {
	case Researcher.Name:
		return router.TaskExtraction
	case Critic.Name:
		return router.TaskAnalysis
	case Editor.Name:
		return router.TaskSummarization
	case Storyteller.Name:
		return router.TaskGeneration
	default:
		return router.TaskGeneration
	}
}

func (rt *Runtime) publish(topic string, payload map[string]any) {
	if rt.Publisher == nil {
		return
	}
	rt.Publisher.Publish(topic, payload)
}

// EventAgentStart is exported so the longform and workflow packages can
// build the same event name without importing an eventbus constant set.
func EventAgentStart(task Task) (string, map[string]any) {
	return "agent_start", map[string]any{"agent": task.Role.Name, "task_id": task.TaskID, "model": task.Model}
}

func eventAgentFinish(task Task, result Result) (string, map[string]any) {
	payload := map[string]any{
		"agent":       task.Role.Name,
		"task_id":     task.TaskID,
		"status":      string(result.Status),
		"duration_ms": result.DurationMS,
	}
	if result.Err != nil {
		payload["error"] = result.Err.Error()
	}
	return "agent_finish", payload
}
