// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hedge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooseKDefaultsToOneUnderHighLoad(t *testing.T) {
	assert.Equal(t, 1, ChooseK(9, 0.85, false))
}

func TestChooseKDefaultsToOneForLowPriority(t *testing.T) {
	assert.Equal(t, 1, ChooseK(2, 0.1, false))
}

func TestChooseKHedgesForHighPriorityLowLoad(t *testing.T) {
	assert.Equal(t, 2, ChooseK(8, 0.3, false))
}

func TestChooseKForceHedgeOverridesEverything(t *testing.T) {
	assert.Equal(t, 2, ChooseK(1, 0.99, true))
}

func sleepTask(url string, delay time.Duration, err error) Task {
	return Task{
		NodeURL: url,
		Run: func(ctx context.Context) (any, error) {
			select {
			case <-time.After(delay):
				if err != nil {
					return nil, err
				}
				return url, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

func TestRaceReturnsFastestWinner(t *testing.T) {
	tasks := []Task{
		sleepTask("http://slow", 200*time.Millisecond, nil),
		sleepTask("http://fast", 10*time.Millisecond, nil),
	}
	result, err := Race(context.Background(), tasks, 2, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "http://fast", result.WinnerURL)
	assert.Equal(t, "http://fast", result.Value)
}

func TestRaceTagsLosersCancelled(t *testing.T) {
	tasks := []Task{
		sleepTask("http://slow", 150*time.Millisecond, nil),
		sleepTask("http://fast", 5*time.Millisecond, nil),
	}
	result, err := Race(context.Background(), tasks, 2, time.Second)
	require.NoError(t, err)

	var loserOutcome Outcome
	for _, o := range result.Outcomes {
		if o.NodeURL == "http://slow" {
			loserOutcome = o
		}
	}
	assert.True(t, loserOutcome.Cancelled)
	assert.False(t, loserOutcome.Success)
}

func TestRaceAllFailReturnsError(t *testing.T) {
	boom := errors.New("boom")
	tasks := []Task{
		sleepTask("http://a", 5*time.Millisecond, boom),
		sleepTask("http://b", 5*time.Millisecond, boom),
	}
	_, err := Race(context.Background(), tasks, 2, time.Second)
	assert.Error(t, err)
}

func TestRaceClampsKToTaskCount(t *testing.T) {
	tasks := []Task{sleepTask("http://only", time.Millisecond, nil)}
	result, err := Race(context.Background(), tasks, 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "http://only", result.WinnerURL)
}
