// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cluster

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/sollol/internal/node"
)

func listenTCP(t *testing.T) (*Backend, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return &Backend{Host: "127.0.0.1", Port: addr.Port}, func() { ln.Close() }
}

func TestClusterHealthCheckAllHealthy(t *testing.T) {
	b1, close1 := listenTCP(t)
	defer close1()
	b2, close2 := listenTCP(t)
	defer close2()

	c := NewCluster("test", "llama3.1:405b", "even", []*Backend{b1, b2})
	ok := c.HealthCheck(context.Background(), time.Second)
	assert.True(t, ok)
	assert.True(t, c.IsHealthy())
}

func TestClusterHealthCheckOneUnreachableFailsCluster(t *testing.T) {
	b1, close1 := listenTCP(t)
	defer close1()
	dead := &Backend{Host: "127.0.0.1", Port: 1}

	c := NewCluster("test", "llama3.1:405b", "even", []*Backend{b1, dead})
	ok := c.HealthCheck(context.Background(), 200*time.Millisecond)
	assert.False(t, ok)
}

func TestAssignLayersEvenSplit(t *testing.T) {
	backends := []*Backend{{Host: "a", Port: 1}, {Host: "b", Port: 2}, {Host: "c", Port: 3}}
	c := NewCluster("test", "m", "even", backends)

	ranges := c.AssignLayers(10)
	require.Len(t, ranges, 3)
	total := 0
	for _, r := range ranges {
		total += r.LastLayer - r.FirstLayer + 1
	}
	assert.Equal(t, 10, total)
}

func TestGetModelProfileDirectLookup(t *testing.T) {
	p := getModelProfile("llama3.1:405b")
	assert.Equal(t, 405, p.ParameterBillions)
	assert.True(t, p.RequiresDistributed)
}

func TestGetModelProfileEstimatesUnknownTag(t *testing.T) {
	p := getModelProfile("some-custom-model:34b")
	assert.Equal(t, 34, p.ParameterBillions)
	assert.False(t, p.RequiresDistributed)
}

func TestHybridRouterSmallModelUsesOllama(t *testing.T) {
	h := NewHybridRouter()
	d, err := h.Decide("llama3.2:3b", nil)
	require.NoError(t, err)
	assert.False(t, d.UseDistributed)
}

func TestHybridRouterLargeModelRequiresClusterOrNoCapacity(t *testing.T) {
	h := NewHybridRouter()
	_, err := h.Decide("llama3.1:405b", nil)
	assert.Error(t, err)

	c := NewCluster("big", "llama3.1:405b", "even", []*Backend{{Host: "a", Port: 1}})
	c.healthy = true
	h.RegisterCluster(c)

	d, err := h.Decide("llama3.1:405b", nil)
	require.NoError(t, err)
	assert.True(t, d.UseDistributed)
	assert.Equal(t, c, d.Cluster)
}

func TestHybridRouterMediumModelUsesOllamaWhenGPUSufficient(t *testing.T) {
	h := NewHybridRouter()
	nodes := []node.Snapshot{
		{URL: "http://gpu-node", Capabilities: node.Capabilities{HasGPU: true, GPUMemoryMB: 80000}},
	}
	d, err := h.Decide("llama2:70b", nodes)
	require.NoError(t, err)
	assert.False(t, d.UseDistributed)
}

func TestHybridRouterMediumModelFallsBackToClusterWithoutGPU(t *testing.T) {
	h := NewHybridRouter()
	c := NewCluster("med", "llama2:70b", "even", []*Backend{{Host: "a", Port: 1}})
	c.healthy = true
	h.RegisterCluster(c)

	d, err := h.Decide("llama2:70b", nil)
	require.NoError(t, err)
	assert.True(t, d.UseDistributed)
}
