// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"os"

	"github.com/AleutianAI/sollol/internal/registry"
)

// resolvedNodesPath returns the --nodes-file flag value, or the default
// ~/.sollol/nodes.json when unset.
func resolvedNodesPath() (string, error) {
	if nodesFile != "" {
		return nodesFile, nil
	}
	return defaultNodesPath()
}

// loadFleet builds a Registry from the persisted node list. A missing
// file yields an empty, still-usable Registry rather than an error,
// matching the "save if present" semantics of a first run.
func loadFleet(ctx context.Context) (*registry.Registry, error) {
	path, err := resolvedNodesPath()
	if err != nil {
		return nil, err
	}
	reg := registry.New()
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return reg, nil
	}
	if _, err := reg.LoadConfig(ctx, path); err != nil {
		return nil, err
	}
	return reg, nil
}
