// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/sollol/internal/eventbus"
)

func TestBootstrapProducesUsableProviders(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe(eventbus.ChannelAllLogs)

	providers, err := Bootstrap(context.Background(), Config{
		ServiceName: "sollol-test",
		Bus:         bus,
	})
	require.NoError(t, err)
	require.NotNil(t, providers.TracerProvider)
	require.NotNil(t, providers.MeterProvider)
	require.NotNil(t, providers.Logger)

	providers.Logger.Info("hello from test", "k", "v")

	select {
	case ev := <-sub:
		assert.Equal(t, "log.entry", ev.EventType)
	case <-time.After(time.Second):
		t.Fatal("expected a log.entry event on the bus")
	}

	require.NoError(t, providers.Shutdown(context.Background()))
}
