// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

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

// roleResponder serves a different canned JSON body depending on which
// role's system prompt the request carries, matching the prompts set in
// agent.Researcher/Critic/Editor.
func roleResponder(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			System string `json:"system"`
		}
		body, _ := readAll(r)
		_ = json.Unmarshal(body, &req)

		var resp string
		switch {
		case contains(req.System, "research agent"):
			resp = `{"key_facts": ["fact one"], "context": "background", "topics": ["topic"]}`
		case contains(req.System, "critical reviewer"):
			resp = `{"issues": ["needs depth"], "strengths": ["clear"], "quality_score": 0.5}`
		case contains(req.System, "expert editor"):
			resp = `{"summary": "a thorough summary of the research and critique combined", "key_points": ["p1","p2"], "detailed_explanation": "a long detailed explanation that goes on for a while to cover the topic in depth", "examples": ["e1"], "practical_applications": ["a1"]}`
		default:
			resp = `{}`
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": resp})
	}))
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := r.Body.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	return buf, nil
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestRunExecutesFullPipelineAndProducesFinalDocument(t *testing.T) {
	srv := roleResponder(t)
	defer srv.Close()

	n := node.New(srv.URL, "n1", 0, 0)
	reg := &fakeRegistry{nodes: []*node.Node{n}}
	rt := agent.New(reg, router.NewMemory())
	wf := New(rt, "llama3.2:3b")

	doc, err := wf.Run(context.Background(), "explain transformers", 0)
	require.NoError(t, err)

	assert.Equal(t, agent.StatusSuccess, doc.Research.Status)
	assert.Len(t, doc.Critiques, 1)
	assert.Len(t, doc.Editions, 1)
	require.NotNil(t, doc.Final)
	assert.Contains(t, doc.Final, "summary")
	assert.Len(t, doc.Timings, 3)
}

func TestRunWithRefinementRoundsAddsPhases(t *testing.T) {
	srv := roleResponder(t)
	defer srv.Close()
	srv2 := roleResponder(t)
	defer srv2.Close()

	n1 := node.New(srv.URL, "n1", 0, 0)
	n2 := node.New(srv2.URL, "n2", 0, 0)
	reg := &fakeRegistry{nodes: []*node.Node{n1, n2}}
	rt := agent.New(reg, router.NewMemory())
	wf := New(rt, "llama3.2:3b")

	doc, err := wf.Run(context.Background(), "explain transformers", 2)
	require.NoError(t, err)

	assert.Len(t, doc.Critiques, 3)
	assert.Len(t, doc.Editions, 3)
	assert.Len(t, doc.Timings, 7)
}

func TestExcludingRegistryFiltersOneNode(t *testing.T) {
	srv1 := roleResponder(t)
	defer srv1.Close()
	srv2 := roleResponder(t)
	defer srv2.Close()

	n1 := node.New(srv1.URL, "n1", 0, 0)
	n2 := node.New(srv2.URL, "n2", 0, 0)
	base := &fakeRegistry{nodes: []*node.Node{n1, n2}}

	filtered := &excludingRegistry{base: base, exclude: srv1.URL}
	healthy := filtered.GetHealthyNodes()
	require.Len(t, healthy, 1)
	assert.Equal(t, srv2.URL, healthy[0].URL)
}

func TestExcludingRegistryFallsBackWhenExclusionWouldEmptySet(t *testing.T) {
	srv := roleResponder(t)
	defer srv.Close()
	n := node.New(srv.URL, "n1", 0, 0)
	base := &fakeRegistry{nodes: []*node.Node{n}}

	filtered := &excludingRegistry{base: base, exclude: srv.URL}
	assert.Len(t, filtered.GetHealthyNodes(), 1)
}
