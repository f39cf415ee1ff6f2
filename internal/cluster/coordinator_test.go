// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	topics []string
}

func (r *recordingPublisher) Publish(topic string, _ any) {
	r.topics = append(r.topics, topic)
}

func TestCoordinatorStartsIdle(t *testing.T) {
	c := NewCoordinator("/bin/true", 9, nil)
	assert.Equal(t, StateIdle, c.State())
}

func TestCoordinatorStartFailureOnMissingBinary(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCoordinator("/no/such/binary", 19999, pub)
	clu := NewCluster("c", "m", "even", []*Backend{{Host: "127.0.0.1", Port: 1}})

	err := c.Start(context.Background(), clu, "/models/m.gguf", 300*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, StateFailed, c.State())
	assert.Contains(t, pub.topics, "coordinator.state_changed")
}

func TestCoordinatorIdleTimeoutTransition(t *testing.T) {
	c := NewCoordinator("/bin/true", 9, nil)
	c.IdleTimeout = 10 * time.Millisecond
	c.setState(StateReady)
	c.mu.Lock()
	c.lastActive = time.Now().Add(-time.Second)
	c.mu.Unlock()

	assert.True(t, c.MarkIdleIfExpired(time.Now()))
	assert.Equal(t, StateStopping, c.State())
}

func TestCoordinatorMarkServingResetsClock(t *testing.T) {
	c := NewCoordinator("/bin/true", 9, nil)
	c.setState(StateReady)
	c.MarkServing()
	assert.Equal(t, StateServing, c.State())
	assert.False(t, c.MarkIdleIfExpired(time.Now()))
}
