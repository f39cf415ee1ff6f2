// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/sollol/internal/node"
	"github.com/AleutianAI/sollol/internal/router"
)

// TestExecuteHedgedExcludesCancelledLoserFromAccounting covers spec.md
// §4.7: a hedge race launches both candidates, but only the winner's
// (and any genuinely failed loser's) outcome should land in node/memory
// failure-rate accounting. A cancelled loser must be recorded nowhere.
func TestExecuteHedgedExcludesCancelledLoserFromAccounting(t *testing.T) {
	fast := generateServer(t, `{"story": "the fast one wins"}`)
	defer fast.Close()

	cancelled := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(cancelled)
		case <-time.After(5 * time.Second):
		}
	}))
	defer slow.Close()

	fastNode := node.New(fast.URL, "fast", 0, 0)
	slowNode := node.New(slow.URL, "slow", 0, 0)
	reg := &fakeRegistry{nodes: []*node.Node{fastNode, slowNode}}
	memory := router.NewMemory()
	rt := New(reg, memory)

	task := NewTask(Storyteller, 0, "tell me a story", "llama3.2:3b")
	task.Timeout = 2 * time.Second

	result := rt.ExecuteHedged(context.Background(), task, 0.1, true)
	require.Equal(t, StatusSuccess, result.Status)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the losing node's request context to be cancelled")
	}

	fastSnap := fastNode.Snapshot()
	assert.EqualValues(t, 1, fastSnap.Metrics.TotalRequests)
	assert.EqualValues(t, 0, fastSnap.Metrics.FailedRequests)

	slowSnap := slowNode.Snapshot()
	assert.EqualValues(t, 0, slowSnap.Metrics.TotalRequests, "a cancelled hedge loser must not be recorded as an outcome")

	assert.NotEmpty(t, memory.Summary(), "the winning outcome should have been recorded in performance memory")
}
