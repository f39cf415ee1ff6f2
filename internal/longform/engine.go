// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package longform implements the LongformEngine (component L): content
// type detection, mutually-exclusive focus-area assignment across
// chunks, parallel chunk generation, and synthesis into one report.
package longform

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/sollol/internal/agent"
)

var tracer = otel.Tracer("sollol.longform")

const chunkPreviewChars = 200

// Engine generates long-form, multi-chunk documents by suppressing the
// repetition naive multi-chunk generation produces: each chunk beyond
// the first is given an exclusive focus area and told to avoid
// overlapping the first chunk's content.
type Engine struct {
	Runtime          *agent.Runtime
	Model            string
	RAG              Collaborator
	MaxContextTokens int
	MaxChunks        int
}

// New constructs an Engine with the default max of 5 chunks and no RAG
// collaborator configured.
func New(rt *agent.Runtime, model string) *Engine {
	return &Engine{Runtime: rt, Model: model, MaxChunks: defaultMaxChunks, MaxContextTokens: 2000}
}

// Report is the engine's final output.
type Report struct {
	Classification Classification
	Chunks         []string
	Synthesis      string
	Sources        []string
}

// Run executes the full pipeline described in spec.md §4.12: classify,
// optionally enrich with retrieved context, generate chunk 1, generate
// the remaining chunks in parallel with assigned focus areas, then
// synthesize every chunk into one document.
func (e *Engine) Run(ctx context.Context, query string) (Report, error) {
	ctx, span := tracer.Start(ctx, "longform.run", trace.WithAttributes(
		attribute.String("longform.model", e.Model),
	))
	defer span.End()

	maxChunks := e.MaxChunks
	if maxChunks <= 0 {
		maxChunks = defaultMaxChunks
	}

	classification := DetectContentType(query, maxChunks)
	span.SetAttributes(
		attribute.String("longform.content_type", string(classification.Type)),
		attribute.Int("longform.chunks_needed", classification.ChunksNeeded),
	)

	enrichedQuery := query
	var sources []string
	if classification.Type == ContentResearch && e.RAG != nil {
		var err error
		enrichedQuery, sources, err = enrichWithRAG(ctx, e.RAG, query, e.MaxContextTokens)
		if err != nil {
			sources = nil
		}
	}

	firstChunkRole := agent.Researcher
	if classification.Type == ContentStorytelling {
		firstChunkRole = agent.Storyteller
	}

	firstResult := e.Runtime.Execute(ctx, agent.NewTask(firstChunkRole, 0, initialContentPrompt(enrichedQuery), e.Model))
	firstChunk := extractNarrative(firstResult)

	chunks := make([]string, classification.ChunksNeeded)
	chunks[0] = firstChunk

	if classification.ChunksNeeded > 1 {
		remaining, err := e.generateRemainingChunks(ctx, firstChunkRole, classification, firstChunk)
		if err != nil {
			return Report{}, err
		}
		for i, c := range remaining {
			chunks[i+1] = c
		}
	}

	synthesis := e.synthesize(ctx, classification.Type, chunks)

	return Report{
		Classification: classification,
		Chunks:         chunks,
		Synthesis:      synthesis,
		Sources:        sources,
	}, nil
}

// generateRemainingChunks launches chunks 2..N concurrently, each with a
// distinct focus area and a preview of chunk 1 for coherence, per spec.md
// §4.12 step 4.
func (e *Engine) generateRemainingChunks(ctx context.Context, role agent.Role, classification Classification, firstChunk string) ([]string, error) {
	focusAreas := focusAreasFor(classification.Type, classification.ChunksNeeded-1)
	preview := previewOf(firstChunk, chunkPreviewChars)

	results := make([]string, classification.ChunksNeeded-1)
	g, gCtx := errgroup.WithContext(ctx)

	for i, focus := range focusAreas {
		i, focus := i, focus
		g.Go(func() error {
			prompt := chunkPrompt(preview, focus, i+2)
			task := agent.NewTask(role, i+1, prompt, e.Model)
			result := e.Runtime.Execute(gCtx, task)
			results[i] = extractNarrative(result)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// synthesize concatenates every chunk under "## Part N" headers and hands
// the result to an Editor (Storyteller for storytelling content) for a
// cohesive final pass. If the synthesis call returns empty content, the
// plain concatenation is returned instead, per spec.md §4.12 step 6.
func (e *Engine) synthesize(ctx context.Context, contentType ContentType, chunks []string) string {
	var b strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&b, "## Part %d\n\n%s\n\n", i+1, c)
	}
	concatenated := strings.TrimSpace(b.String())

	synthRole := agent.Editor
	if contentType == ContentStorytelling {
		synthRole = agent.Storyteller
	}

	prompt := "Synthesize the following parts into one cohesive, well-organized document, removing redundancy and smoothing transitions:\n\n" + concatenated
	result := e.Runtime.Execute(ctx, agent.NewTask(synthRole, 0, prompt, e.Model))

	synthesized := strings.TrimSpace(extractNarrative(result))
	if synthesized == "" {
		return concatenated
	}
	return synthesized
}

func initialContentPrompt(query string) string {
	return "Write the initial, foundational content for the following request. This is Part 1 of a multi-part document:\n\n" + query
}

func chunkPrompt(preview, focusArea string, partNumber int) string {
	return fmt.Sprintf(
		"The document so far begins: %q\n\n"+
			"Write Part %d of this multi-part document. Focus EXCLUSIVELY on %s. "+
			"Write ENTIRELY NEW content with zero overlap with Part 1. "+
			"Be specific, technical, and detailed.",
		preview, partNumber, focusArea,
	)
}

func previewOf(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
