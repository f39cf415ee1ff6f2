// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package longform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/sollol/internal/agent"
	"github.com/AleutianAI/sollol/internal/node"
	"github.com/AleutianAI/sollol/internal/router"
)

type fakeRegistry struct {
	nodes []*node.Node
}

func (f *fakeRegistry) GetHealthyNodes() []*node.Node { return f.nodes }

func (f *fakeRegistry) GetNodeByURL(url string) *node.Node {
	for _, n := range f.nodes {
		if n.URL == url {
			return n
		}
	}
	return nil
}

func chunkServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": `{"context": "generated chunk content about the topic in question"}`})
	}))
}

func TestRunProducesOneChunkPerChunkNeeded(t *testing.T) {
	srv := chunkServer(t)
	defer srv.Close()

	n := node.New(srv.URL, "n1", 0, 0)
	reg := &fakeRegistry{nodes: []*node.Node{n}}
	rt := agent.New(reg, router.NewMemory())
	eng := New(rt, "llama3.2:3b")

	report, err := eng.Run(context.Background(), "give me a comprehensive explanation of neural networks")
	require.NoError(t, err)

	assert.Equal(t, 5, len(report.Chunks))
	for _, c := range report.Chunks {
		assert.NotEmpty(t, c)
	}
	assert.NotEmpty(t, report.Synthesis)
}

func TestRunFallsBackToConcatenationWhenSynthesisEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		resp := `{"context": "chunk text"}`
		if len(req.Prompt) > 0 && containsSynthesize(req.Prompt) {
			resp = `{"context": ""}`
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": resp})
	}))
	defer srv.Close()

	n := node.New(srv.URL, "n1", 0, 0)
	reg := &fakeRegistry{nodes: []*node.Node{n}}
	rt := agent.New(reg, router.NewMemory())
	eng := New(rt, "llama3.2:3b")
	eng.MaxChunks = 1

	report, err := eng.Run(context.Background(), "what's the weather like")
	require.NoError(t, err)
	assert.Contains(t, report.Synthesis, "Part 1")
}

func containsSynthesize(s string) bool {
	for i := 0; i+len("Synthesize") <= len(s); i++ {
		if s[i:i+len("Synthesize")] == "Synthesize" {
			return true
		}
	}
	return false
}

func TestEnrichWithRAGAppendsExcerptsAndTracksSources(t *testing.T) {
	collab := stubCollaborator{excerpts: []Excerpt{
		{Source: "doc1.pdf", Text: "relevant passage one"},
		{Source: "doc2.pdf", Text: "relevant passage two"},
	}}
	enriched, sources, err := enrichWithRAG(context.Background(), collab, "original query", 1000)
	require.NoError(t, err)
	assert.Contains(t, enriched, "original query")
	assert.Contains(t, enriched, "relevant passage one")
	assert.ElementsMatch(t, []string{"doc1.pdf", "doc2.pdf"}, sources)
}

type stubCollaborator struct {
	excerpts []Excerpt
}

func (s stubCollaborator) Retrieve(_ context.Context, _ string, _ int) ([]Excerpt, error) {
	return s.excerpts, nil
}
