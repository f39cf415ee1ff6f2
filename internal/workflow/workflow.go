// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workflow implements the CollaborativeWorkflow (component K): a
// sequential Research → Critic → Editor pipeline with optional
// Critic → Editor refinement rounds and quality-gated retries.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/sollol/internal/agent"
	"github.com/AleutianAI/sollol/internal/node"
)

var tracer = otel.Tracer("sollol.workflow")

// EventPublisher is the narrow publish surface phase-completion events go
// through, matching the shape internal/agent and internal/cluster use.
type EventPublisher interface {
	Publish(topic string, payload any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

// PhaseTiming records the wall-clock duration of one pipeline phase.
type PhaseTiming struct {
	Phase      string
	DurationMS float64
}

// Document is the synthesized output of one Run, retaining every
// intermediate phase result for callers that want to inspect the
// reasoning chain rather than only the final text.
type Document struct {
	Research  agent.Result
	Critiques []agent.Result
	Editions  []agent.Result
	Final     map[string]any
	Timings   []PhaseTiming
}

// Workflow runs the Research → Critic → Editor pipeline against a shared
// agent.Runtime.
type Workflow struct {
	Runtime   *agent.Runtime
	Model     string
	Quality   QualityVoter
	Publisher EventPublisher
}

// New constructs a Workflow targeting model for every phase, using the
// default quality voter.
func New(rt *agent.Runtime, model string) *Workflow {
	return &Workflow{Runtime: rt, Model: model, Quality: DefaultQualityVoter(), Publisher: nopPublisher{}}
}

// Run executes the full pipeline: Research, then Critic, then Editor,
// then refinementRounds additional Critic→Editor rounds. When the
// registry has at least two healthy nodes, each refinement round
// excludes the node the prior Editor call used, to avoid cache
// contamination (spec.md §4.11). The Editor's final output is retried
// (up to Quality.MaxRetries times) if it fails the quality bar; the
// best-scoring attempt observed is always kept.
func (w *Workflow) Run(ctx context.Context, query string, refinementRounds int) (Document, error) {
	ctx, span := tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.model", w.Model),
		attribute.Int("workflow.refinement_rounds", refinementRounds),
	))
	defer span.End()

	doc := Document{}

	research, dur := w.runPhase(ctx, w.Runtime, agent.Researcher, query)
	doc.Research = research
	doc.Timings = append(doc.Timings, PhaseTiming{Phase: "research", DurationMS: dur})
	w.publish("workflow.phase", map[string]any{"phase": "research", "duration_ms": dur})

	critic, dur := w.runPhase(ctx, w.Runtime, agent.Critic, summarizeForCritic(research))
	doc.Critiques = append(doc.Critiques, critic)
	doc.Timings = append(doc.Timings, PhaseTiming{Phase: "critic", DurationMS: dur})

	edit, dur := w.runEditorWithQuality(ctx, w.Runtime, summarizeForEditor(research, critic))
	doc.Editions = append(doc.Editions, edit)
	doc.Timings = append(doc.Timings, PhaseTiming{Phase: "editor", DurationMS: dur})

	lastNode := edit.NodeURL
	for round := 0; round < refinementRounds; round++ {
		roundRuntime := w.runtimeExcluding(lastNode)

		critic, dur = w.runPhase(ctx, roundRuntime, agent.Critic, summarizeForCritic(edit))
		doc.Critiques = append(doc.Critiques, critic)
		doc.Timings = append(doc.Timings, PhaseTiming{Phase: fmt.Sprintf("refine_critic_%d", round+1), DurationMS: dur})

		edit, dur = w.runEditorWithQuality(ctx, roundRuntime, summarizeForEditor(edit, critic))
		doc.Editions = append(doc.Editions, edit)
		doc.Timings = append(doc.Timings, PhaseTiming{Phase: fmt.Sprintf("refine_editor_%d", round+1), DurationMS: dur})
		lastNode = edit.NodeURL
	}

	doc.Final = edit.Data
	w.publish("workflow.complete", map[string]any{"phases": len(doc.Timings)})
	return doc, nil
}

// runEditorWithQuality runs the Editor role and, if the result is
// JSON-formatted but scores below the quality threshold, retries up to
// Quality.MaxRetries times, keeping whichever attempt scored highest.
func (w *Workflow) runEditorWithQuality(ctx context.Context, rt *agent.Runtime, input string) (agent.Result, float64) {
	var best agent.Result
	var bestDur float64
	bestScore := -1.0

	attempts := w.Quality.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		result, dur := w.runPhase(ctx, rt, agent.Editor, input)
		score := 0.0
		if result.Status == agent.StatusSuccess && result.Format == agent.FormatJSON {
			score = w.Quality.Score(result.Data)
		}
		if score > bestScore {
			best, bestScore, bestDur = result, score, dur
		}
		if w.Quality.Meets(result.Data) {
			break
		}
	}
	return best, bestDur
}

func (w *Workflow) runPhase(ctx context.Context, rt *agent.Runtime, role agent.Role, input string) (agent.Result, float64) {
	start := time.Now()
	task := agent.NewTask(role, 0, input, w.Model)
	result := rt.Execute(ctx, task)
	return result, float64(time.Since(start).Milliseconds())
}

func (w *Workflow) publish(topic string, payload map[string]any) {
	if w.Publisher == nil {
		return
	}
	w.Publisher.Publish(topic, payload)
}

// runtimeExcluding returns a Runtime sharing the same memory and
// publisher but whose node selection skips excludeURL, falling back to
// the full healthy set if exclusion would leave none.
func (w *Workflow) runtimeExcluding(excludeURL string) *agent.Runtime {
	if excludeURL == "" {
		return w.Runtime
	}
	return &agent.Runtime{
		Registry:  &excludingRegistry{base: w.Runtime.Registry, exclude: excludeURL},
		Memory:    w.Runtime.Memory,
		Publisher: w.Runtime.Publisher,
	}
}

// excludingRegistry filters one node URL out of GetHealthyNodes, used to
// steer a refinement round onto a distinct node.
type excludingRegistry struct {
	base    agent.NodeRegistry
	exclude string
}

func (e *excludingRegistry) GetHealthyNodes() []*node.Node {
	all := e.base.GetHealthyNodes()
	filtered := make([]*node.Node, 0, len(all))
	for _, n := range all {
		if n.URL != e.exclude {
			filtered = append(filtered, n)
		}
	}
	if len(filtered) == 0 {
		return all
	}
	return filtered
}

func (e *excludingRegistry) GetNodeByURL(url string) *node.Node {
	return e.base.GetNodeByURL(url)
}

func summarizeForCritic(r agent.Result) string {
	return "Review the following content:\n\n" + resultText(r)
}

func summarizeForEditor(research, critic agent.Result) string {
	var b strings.Builder
	b.WriteString("Research findings:\n")
	b.WriteString(resultText(research))
	b.WriteString("\n\nCritique:\n")
	b.WriteString(resultText(critic))
	return b.String()
}

// resultText renders an agent.Result as plain text for the next phase's
// prompt, regardless of whether it came back as structured JSON or a
// text fallback.
func resultText(r agent.Result) string {
	if r.Format == agent.FormatText {
		return r.RawText
	}
	var parts []string
	for _, key := range []string{"summary", "context", "detailed_explanation", "key_points", "issues", "strengths", "topics", "key_facts"} {
		v, ok := r.Data[key]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", key, v))
	}
	if len(parts) == 0 {
		return r.RawText
	}
	return strings.Join(parts, "\n")
}
