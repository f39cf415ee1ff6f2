// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package eventbus implements the EventBus (component M): a best-effort,
// bounded pub/sub channel for structured log and metric events. Producers
// are never blocked by a slow or absent subscriber; the bus drops the
// oldest queued event on back-pressure rather than stall a caller.
package eventbus

import (
	"context"
	"sync"
	"time"
)

// Logical channel names, per spec.md §4.13.
const (
	ChannelAllLogs     = "all_logs"
	ChannelCoordinator = "coordinator"
	ChannelRPCBackends = "rpc_backends"
	ChannelMetrics     = "metrics"
	ChannelRaw         = "raw"
)

// Event-type constants emitted by the core, per spec.md §4.13.
const (
	EventRouteDecision     = "route_decision"
	EventAgentStart        = "agent_start"
	EventAgentFinish       = "agent_finish"
	EventNodeUnhealthy     = "node_unhealthy"
	EventNodeHealthy       = "node_healthy"
	EventCoordinatorStart  = "coordinator.start"
	EventCoordinatorStop   = "coordinator.stop"
	EventRPCConnect        = "rpc.connect"
	EventRPCDisconnect     = "rpc.disconnect"
	EventModelLoad         = "model.load"
	EventMetricSnapshot    = "metric.snapshot"
)

// Level mirrors the severity vocabulary used elsewhere in the orchestrator
// (see pkg/logging) without importing it, keeping the bus free of a
// dependency on any particular logging backend.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one structured record flowing through the bus.
type Event struct {
	Timestamp time.Time
	Component string
	Level     Level
	EventType string
	Message   string
	Details   map[string]any
}

// ExternalSink is an optional, best-effort external pub/sub destination
// (e.g. Redis). A nil or failing sink never affects local delivery; errors
// are swallowed, matching spec.md's "degrades silently if unavailable".
type ExternalSink interface {
	Publish(ctx context.Context, channel string, event Event) error
}

const defaultQueueCapacity = 10_000

// subscription is one observer's bounded, channel-scoped mailbox.
type subscription struct {
	channel string
	ch      chan Event
}

// Bus is the process-wide (or per-test-isolated) event pub/sub hub.
// Construct with New; the zero value is not usable.
type Bus struct {
	mu       sync.RWMutex
	subs     map[string][]*subscription
	external ExternalSink
	capacity int
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithExternalSink attaches an optional external publisher (e.g. a Redis
// adapter). Publish failures from the sink are ignored.
func WithExternalSink(sink ExternalSink) Option {
	return func(b *Bus) { b.external = sink }
}

// WithQueueCapacity overrides the default 10k-event per-subscriber bound.
func WithQueueCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// New constructs an empty Bus with no subscribers. Tests should construct
// their own isolated Bus rather than share a process-wide singleton
// (spec.md §9's note on PerformanceMemory applies equally here).
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:     make(map[string][]*subscription),
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe returns a receive-only channel of events published to channel.
// The returned channel is closed when the Bus is itself never explicitly
// torn down in this design — callers intending a bounded lifetime should
// instead drain and discard, since Unsubscribe is not tracked per-handle;
// the dashboard bridge subscribes once per websocket connection and never
// releases that subscription.
func (b *Bus) Subscribe(channel string) <-chan Event {
	sub := &subscription{channel: channel, ch: make(chan Event, b.capacity)}
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()
	return sub.ch
}

// Publish is best-effort and never blocks the producer. The event is
// always delivered to ChannelAllLogs subscribers in addition to any
// channel named explicitly; on a full subscriber queue the oldest queued
// event is dropped to make room, per spec.md's back-pressure policy.
func (b *Bus) Publish(ev Event, channels ...string) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	targets := make(map[string]struct{}, len(channels)+1)
	targets[ChannelAllLogs] = struct{}{}
	for _, c := range channels {
		targets[c] = struct{}{}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for channel := range targets {
		for _, sub := range b.subs[channel] {
			deliver(sub.ch, ev)
		}
	}

	if b.external != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = b.external.Publish(ctx, ChannelAllLogs, ev)
		}()
	}
}

// deliver pushes ev onto ch, dropping the oldest queued event first if ch
// is full rather than blocking the publisher.
func deliver(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}

// publishNarrow adapts the structured Publish API to the minimal
// Publish(topic, payload) shape several components accept as a
// constructor dependency (e.g. cluster.EventPublisher), so they need not
// import this package directly.
func (b *Bus) publishNarrow(component, topic string, payload any) {
	details, _ := payload.(map[string]any)
	if details == nil && payload != nil {
		details = map[string]any{"payload": payload}
	}
	b.Publish(Event{
		Component: component,
		Level:     LevelInfo,
		EventType: topic,
		Message:   topic,
		Details:   details,
	}, channelForTopic(topic))
}

func channelForTopic(topic string) string {
	switch {
	case len(topic) >= len("coordinator") && topic[:len("coordinator")] == "coordinator":
		return ChannelCoordinator
	case len(topic) >= len("rpc") && topic[:len("rpc")] == "rpc":
		return ChannelRPCBackends
	case len(topic) >= len("metric") && topic[:len("metric")] == "metric":
		return ChannelMetrics
	default:
		return ChannelRaw
	}
}

// NodeBridge returns an adapter satisfying the narrow
// Publish(topic string, payload any) shape that internal/cluster.Coordinator
// expects, scoped to the given component name for attribution.
func (b *Bus) NodeBridge(component string) NarrowPublisher {
	return narrowPublisher{bus: b, component: component}
}

// NarrowPublisher is the minimal publish surface components depend on
// without importing this package, matching cluster.EventPublisher.
type NarrowPublisher interface {
	Publish(topic string, payload any)
}

type narrowPublisher struct {
	bus       *Bus
	component string
}

func (p narrowPublisher) Publish(topic string, payload any) {
	p.bus.publishNarrow(p.component, topic, payload)
}
