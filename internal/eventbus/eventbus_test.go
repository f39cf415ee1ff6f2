// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToNamedAndAllLogsChannels(t *testing.T) {
	b := New()
	named := b.Subscribe(ChannelMetrics)
	all := b.Subscribe(ChannelAllLogs)

	b.Publish(Event{Component: "router", EventType: EventRouteDecision, Message: "chose node"}, ChannelMetrics)

	select {
	case ev := <-named:
		assert.Equal(t, EventRouteDecision, ev.EventType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for named-channel delivery")
	}

	select {
	case ev := <-all:
		assert.Equal(t, EventRouteDecision, ev.EventType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for all_logs delivery")
	}
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := New(WithQueueCapacity(2))
	sub := b.Subscribe(ChannelRaw)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{EventType: "x"}, ChannelRaw)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber queue")
	}
	assert.Len(t, sub, 2)
}

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Publish(_ context.Context, _ string, ev Event) error {
	r.events = append(r.events, ev)
	return nil
}

func TestExternalSinkReceivesPublishedEvents(t *testing.T) {
	sink := &recordingSink{}
	b := New(WithExternalSink(sink))
	b.Publish(Event{EventType: "route_decision"})

	require.Eventually(t, func() bool { return len(sink.events) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "route_decision", sink.events[0].EventType)
}

func TestNarrowPublisherWrapsTopicAsEvent(t *testing.T) {
	b := New()
	sub := b.Subscribe(ChannelCoordinator)
	narrow := b.NodeBridge("cluster")
	narrow.Publish("coordinator.start", map[string]any{"cluster": "c1"})

	select {
	case ev := <-sub:
		assert.Equal(t, "cluster", ev.Component)
		assert.Equal(t, "coordinator.start", ev.EventType)
		assert.Equal(t, "c1", ev.Details["cluster"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for narrow-publish delivery")
	}
}
