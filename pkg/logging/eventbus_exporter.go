// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import "context"

// EventBusSink is the narrow publish surface a pub/sub hub exposes to a
// LogExporter. It matches eventbus.Bus.NodeBridge's shape so callers can
// wire a Logger straight into the orchestrator's event bus without this
// package importing it back.
type EventBusSink interface {
	Publish(topic string, payload any)
}

// EventBusExporter is a LogExporter that republishes every log entry onto
// an EventBusSink under the all_logs channel, so dashboard subscribers see
// the same structured log stream operators get on stderr/file.
type EventBusExporter struct {
	sink  EventBusSink
	topic string
}

// NewEventBusExporter returns an exporter that republishes log entries as
// events of the given topic (e.g. "log.entry") on sink.
func NewEventBusExporter(sink EventBusSink, topic string) *EventBusExporter {
	if topic == "" {
		topic = "log.entry"
	}
	return &EventBusExporter{sink: sink, topic: topic}
}

// Export publishes entry onto the bus. It never returns an error: a full or
// absent bus must not disrupt normal logging.
func (e *EventBusExporter) Export(_ context.Context, entry LogEntry) error {
	if e.sink == nil {
		return nil
	}
	payload := map[string]any{
		"timestamp": entry.Timestamp,
		"level":     entry.Level.String(),
		"message":   entry.Message,
		"service":   entry.Service,
	}
	for k, v := range entry.Attrs {
		payload[k] = v
	}
	e.sink.Publish(e.topic, payload)
	return nil
}

// Flush is a no-op: publishing is synchronous and unbuffered.
func (e *EventBusExporter) Flush(_ context.Context) error { return nil }

// Close is a no-op: the exporter owns no resources of its own.
func (e *EventBusExporter) Close() error { return nil }
